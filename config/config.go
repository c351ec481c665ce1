// Package config loads settings for the library CLI from an optional YAML file,
// an optional .env file and LIBRARY_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"library-ledger/library"
)

// Environment variables that override file settings.
const (
	EnvDriver              = "LIBRARY_DB_DRIVER"
	EnvDSN                 = "LIBRARY_DB_DSN"
	EnvPath                = "LIBRARY_DB_PATH"
	EnvLogLevel            = "LIBRARY_LOG_LEVEL"
	EnvLogFormat           = "LIBRARY_LOG_FORMAT"
	EnvRequireEmployeeAuth = "LIBRARY_REQUIRE_EMPLOYEE_AUTH"
	EnvOverdueDays         = "LIBRARY_OVERDUE_DAYS"
)

const (
	defaultDBPath      = "library.db"
	defaultOverdueDays = 30
)

// Config is the complete CLI configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Lending  LendingConfig  `yaml:"lending"`
}

// DatabaseConfig selects the storage engine. For SQLite only Path is needed.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite3 pgx postgres"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver sqlite3"`
	Path   string `yaml:"path" validate:"required_if=Driver sqlite3"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// LendingConfig holds desk policy.
type LendingConfig struct {
	RequireEmployeeAuth bool `yaml:"require_employee_auth"`
	OverdueDays         int  `yaml:"overdue_days" validate:"gte=1"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: library.DriverSQLite, Path: defaultDBPath},
		Log:      LogConfig{Level: "info", Format: "text"},
		Lending:  LendingConfig{OverdueDays: defaultOverdueDays},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (skipped when empty),
// then environment overrides. The result is not validated; call Validate after applying flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvDriver); ok {
		c.Database.Driver = v
	}
	if v, ok := os.LookupEnv(EnvDSN); ok {
		c.Database.DSN = v
	}
	if v, ok := os.LookupEnv(EnvPath); ok {
		c.Database.Path = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv(EnvRequireEmployeeAuth); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRequireEmployeeAuth, err)
		}
		c.Lending.RequireEmployeeAuth = b
	}
	if v, ok := os.LookupEnv(EnvOverdueDays); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOverdueDays, err)
		}
		c.Lending.OverdueDays = n
	}
	return nil
}

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DataSource returns the driver and DSN to open. SQLite DSNs are derived from Path unless DSN is set.
func (d DatabaseConfig) DataSource() (driver, dsn string) {
	if d.Driver == library.DriverSQLite && d.DSN == "" {
		return d.Driver, library.SQLiteDSN(d.Path)
	}
	return d.Driver, d.DSN
}

// NewLogger builds the slog logger described by c, writing to w.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
