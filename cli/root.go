// Package cli implements the library desk command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/library"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	DBPath     string
	Driver     string
	DSN        string
	Verbose    bool
	Format     string // "json" | "text"

	// readPassword prompts for an employee password. Defaults to a masked terminal read.
	readPassword func(cmd *cobra.Command, prompt string) (string, error)
	// managerOptions are appended to the options of every LibraryManager the commands open.
	managerOptions []library.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the library CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.readPassword == nil {
		opts.readPassword = terminalPassword
	}

	cmd := &cobra.Command{
		Use:   "library",
		Short: "Library lending desk",
		Long: `Issue and return books against the library lending ledger.

Every issue and return runs as a single transaction: a book is lent to at most
one member at a time and each issue record is returned at most once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with LIBRARY_* variables")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite3|pgx|postgres (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewIssueCommand(opts))
	cmd.AddCommand(NewReturnCommand(opts))
	cmd.AddCommand(NewLoansCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewBookCommand(opts))
	cmd.AddCommand(NewMemberCommand(opts))
	cmd.AddCommand(NewEmployeeCommand(opts))
	cmd.AddCommand(NewBranchCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported once, in the selected output format.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdin, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	_ = opts.formatter(cmd).Fail(err)
	return GetExitCode(err)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	format := o.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves configuration: file, dotenv, environment, then flags.
func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.EnvFile != "" {
		if err := config.LoadEnvFile(o.EnvFile); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if o.DSN != "" {
		cfg.Database.DSN = o.DSN
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
		if o.Driver == "" && o.DSN == "" {
			cfg.Database.Driver = library.DriverSQLite
			cfg.Database.DSN = ""
		}
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "bad configuration", err)
	}
	return cfg, nil
}

// session bundles what a command needs once the database is open.
type session struct {
	cfg     config.Config
	manager *library.LibraryManager
	out     *OutputFormatter
}

func (s *session) Close() error { return s.manager.Close() }

// openSession loads config, builds the logger and opens the ledger database.
func (o *RootOptions) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	mopts := append([]library.Option{library.WithLogger(logger)}, o.managerOptions...)

	driver, dsn := cfg.Database.DataSource()
	var db *library.Database
	if driver == library.DriverSQLite && cfg.Database.DSN == "" {
		db, err = library.NewDatabase(cfg.Database.Path, mopts...)
	} else {
		db, err = library.OpenDatabase(driver, dsn, mopts...)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("database opened", slog.String("driver", driver))

	return &session{
		cfg:     cfg,
		manager: library.NewLibraryManagerFromDatabase(db, mopts...),
		out:     o.formatter(cmd),
	}, nil
}

// withSession opens a session for the duration of fn.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := o.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
