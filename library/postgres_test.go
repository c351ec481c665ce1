package library

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresDB connects to LIBRARY_TEST_POSTGRES_DSN through the given driver and empties the ledger tables.
func postgresDB(t *testing.T, driver string) *Database {
	t.Helper()
	dsn := os.Getenv("LIBRARY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIBRARY_TEST_POSTGRES_DSN not set")
	}

	db, err := OpenDatabase(driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.db.Exec(`TRUNCATE return_status, issued_status, books, members, employees, branches CASCADE`)
	require.NoError(t, err)
	return db
}

func TestPostgres_IssueReturnScenario(t *testing.T) {
	for _, driver := range []string{DriverPGX, DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			db := postgresDB(t, driver)
			seedDB(t, db)
			ctx := context.Background()

			res, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
			require.NoError(t, err)
			assert.Equal(t, StatusIssued, res.Status)

			res, err = db.IssueBook(ctx, issue("IS2", "M2", "B1"))
			require.NoError(t, err)
			assert.Equal(t, StatusUnavailable, res.Status)

			rr, err := db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
			require.NoError(t, err)
			assert.Equal(t, "To Kill a Mockingbird", rr.BookTitle)
			requireAvailable(t, db, "B1", true)

			_, err = db.ReturnBook(ctx, ret("RS2", "IS1", "Good"))
			assert.ErrorIs(t, err, ErrDuplicateReturn)

			_, err = db.IssueBook(ctx, issue("IS1", "M2", "B2"))
			assert.ErrorIs(t, err, ErrAlreadyExists)
			requireAvailable(t, db, "B2", true)

			requireConsistent(t, db)
		})
	}
}

func TestPostgres_ConcurrentSameBook(t *testing.T) {
	db := postgresDB(t, DriverPGX)
	seedDB(t, db)
	ctx := context.Background()

	const workers = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := db.IssueBook(ctx, issue(fmt.Sprintf("IS%d", i), "M1", "B2"))
			if err != nil {
				return
			}
			if res.Status == StatusIssued {
				mu.Lock()
				issued++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	requireConsistent(t, db)
}

func TestPostgres_FromSQLX(t *testing.T) {
	dsn := os.Getenv("LIBRARY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIBRARY_TEST_POSTGRES_DSN not set")
	}
	conn, err := sqlx.Connect(DriverPGX, dsn)
	require.NoError(t, err)

	db, err := NewDatabaseFromSQLX(conn)
	require.NoError(t, err)
	defer db.Close()

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}
