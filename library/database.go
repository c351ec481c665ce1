package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPGX      = "pgx"
	DriverPostgres = "postgres"
)

const (
	logMsgSQLExecuted     = "executed sql"
	logMsgSchemaMigrated  = "schema migrated"
	logMsgTxFailed        = "transaction rolled back"
	logMsgBookIssued      = "book issued"
	logMsgIssueDeclined   = "issue declined, book unavailable"
	logMsgBookReturned    = "book returned"
	logMsgDuplicateReturn = "duplicate return rejected"
	logAttrQuery          = "query"
	logAttrError          = "error"
	logAttrDriver         = "driver"
	logAttrVersion        = "schema_version"
	logAttrISBN           = "isbn"
	logAttrIssuedID       = "issued_id"
	logAttrReturnID       = "return_id"
	logAttrMemberID       = "member_id"
	logAttrEmployeeID     = "employee_id"

	pgUniqueViolation = "23505"
)

// Database provides high-level helpers around a SQL connection.
// SQLite is the default engine; PostgreSQL is reachable through the pgx or lib/pq drivers.
type Database struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	logger  Logger
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies schema migrations.
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return OpenDatabase(DriverSQLite, SQLiteDSN(dbPath), opts...)
}

// SQLiteDSN builds the connection string for a SQLite file.
// Every transaction begins IMMEDIATE so that check-then-act sequences hold the write lock.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path)
}

// OpenDatabase connects with the given driver and DSN and applies schema migrations.
func OpenDatabase(driver, dsn string, opts ...Option) (*Database, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	return newDatabase(db, driver, dialect, buildOptions(opts))
}

// NewDatabaseFromSQLX wraps an existing connection. The driver name of db selects the SQL dialect.
func NewDatabaseFromSQLX(db *sqlx.DB, opts ...Option) (*Database, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	dialect, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return newDatabase(db, db.DriverName(), dialect, buildOptions(opts))
}

func newDatabase(db *sqlx.DB, driver string, dialect goqu.DialectWrapper, o options) (*Database, error) {
	d := &Database{db: db, driver: driver, dialect: dialect, logger: o.logger}
	if err := d.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func dialectFor(driver string) (goqu.DialectWrapper, error) {
	switch driver {
	case DriverSQLite:
		return goqu.Dialect("sqlite3"), nil
	case DriverPGX, DriverPostgres:
		return goqu.Dialect("postgres"), nil
	default:
		return goqu.DialectWrapper{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// Driver returns the database/sql driver name in use.
func (d *Database) Driver() string { return d.driver }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

// schemaStatements is portable between SQLite and PostgreSQL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS branches (
        branch_id      VARCHAR(16) PRIMARY KEY,
        manager_id     VARCHAR(16) NOT NULL DEFAULT '',
        branch_address VARCHAR(128) NOT NULL DEFAULT '',
        contact_no     VARCHAR(32) NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS employees (
        emp_id        VARCHAR(16) PRIMARY KEY,
        emp_name      VARCHAR(64) NOT NULL,
        position      VARCHAR(64) NOT NULL DEFAULT '',
        salary        DOUBLE PRECISION NOT NULL DEFAULT 0,
        branch_id     VARCHAR(16) REFERENCES branches(branch_id),
        password_hash VARCHAR(128) NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS members (
        member_id      VARCHAR(16) PRIMARY KEY,
        member_name    VARCHAR(64) NOT NULL,
        member_address VARCHAR(128) NOT NULL DEFAULT '',
        reg_date       DATE NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS books (
        isbn         VARCHAR(32) PRIMARY KEY,
        book_title   VARCHAR(128) NOT NULL,
        category     VARCHAR(64) NOT NULL DEFAULT '',
        rental_price DOUBLE PRECISION NOT NULL DEFAULT 0,
        available    BOOLEAN NOT NULL DEFAULT TRUE,
        author       VARCHAR(64) NOT NULL DEFAULT '',
        publisher    VARCHAR(64) NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS issued_status (
        issued_id        VARCHAR(64) PRIMARY KEY,
        issued_member_id VARCHAR(16) NOT NULL REFERENCES members(member_id),
        issued_book_name VARCHAR(128) NOT NULL,
        issued_date      DATE NOT NULL,
        issued_book_isbn VARCHAR(32) NOT NULL REFERENCES books(isbn),
        issued_emp_id    VARCHAR(16) NOT NULL REFERENCES employees(emp_id)
    )`,
	`CREATE TABLE IF NOT EXISTS return_status (
        return_id    VARCHAR(64) PRIMARY KEY,
        issued_id    VARCHAR(64) NOT NULL UNIQUE REFERENCES issued_status(issued_id),
        return_date  DATE NOT NULL,
        book_quality VARCHAR(64) NOT NULL DEFAULT ''
    )`,
	`CREATE INDEX IF NOT EXISTS idx_issued_status_isbn ON issued_status(issued_book_isbn)`,
	`CREATE INDEX IF NOT EXISTS idx_issued_status_member ON issued_status(issued_member_id)`,
}

func (d *Database) applyMigrations() error {
	if d.driver == DriverSQLite {
		// WAL improves write concurrency.
		if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key VARCHAR(64) PRIMARY KEY, value VARCHAR(64))`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	current, err := d.SchemaVersion()
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	upsert := tx.Rebind(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value`)
	if _, err := tx.Exec(upsert, fmt.Sprint(schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	d.logger.Info(logMsgSchemaMigrated, logAttrDriver, d.driver, logAttrVersion, schemaVersion)
	return nil
}

// SchemaVersion returns the applied schema version, 0 for an empty database.
func (d *Database) SchemaVersion() (int, error) {
	var versions []int
	if err := d.db.Select(&versions, `SELECT value FROM meta WHERE key='schema_version'`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[0], nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	Rebind(query string) string
}

// inTx runs fn in one transaction; any error from fn rolls everything back.
func (d *Database) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		d.logger.Debug(logMsgTxFailed, logAttrError, err.Error())
		return err
	}
	if err := tx.Commit(); err != nil {
		d.logger.Error(logMsgTxFailed, logAttrError, err.Error())
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// forUpdate returns the row-lock suffix for engines that support it.
// SQLite transactions already hold the write lock from BEGIN IMMEDIATE.
func (d *Database) forUpdate() string {
	if d.driver == DriverSQLite {
		return ""
	}
	return " FOR UPDATE"
}

func (d *Database) exec(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	query = q.Rebind(query)
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, query)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// requireRow fails with a NotFoundError unless the EXISTS query finds id.
func requireRow(ctx context.Context, q queryer, existsQuery, entity, id string) error {
	var found bool
	if err := sqlx.GetContext(ctx, q, &found, q.Rebind(existsQuery), id); err != nil {
		return fmt.Errorf("lookup %s: %w", entity, err)
	}
	if !found {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// isUniqueViolation reports primary-key and unique constraint failures across drivers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
