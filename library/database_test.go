package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeClock is a settable clock for deterministic dates.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

// seedDB adds branch BR1, employee E1, members M1..M3 and books B1, B2.
func seedDB(t *testing.T, db *Database) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.AddBranch(ctx, &Branch{ID: "BR1", ManagerID: "E1", Address: "123 Main St", ContactNo: "+919099988676"}))
	require.NoError(t, db.AddEmployee(ctx, &Employee{ID: "E1", Name: "John Doe", Position: "Clerk", Salary: 60000, BranchID: "BR1"}))
	for _, m := range []Member{
		{ID: "M1", Name: "Alice Johnson", Address: "123 Main St", RegistrationDate: day},
		{ID: "M2", Name: "Bob Smith", Address: "456 Elm St", RegistrationDate: day},
		{ID: "M3", Name: "Carol Davis", Address: "789 Oak St", RegistrationDate: day},
	} {
		require.NoError(t, db.AddMember(ctx, &m))
	}
	require.NoError(t, db.AddBook(ctx, &Book{ISBN: "B1", Title: "To Kill a Mockingbird", Category: "Classic", RentalPrice: 6, Author: "Harper Lee", Publisher: "J.B. Lippincott & Co."}))
	require.NoError(t, db.AddBook(ctx, &Book{ISBN: "B2", Title: "1984", Category: "Dystopian", RentalPrice: 6.5, Author: "George Orwell", Publisher: "Penguin Books"}))
}

func countRows(t *testing.T, db *Database, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "lib.db")

	db, err := NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file was not created")

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
	assert.Equal(t, DriverSQLite, db.Driver())
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")

	for i := 0; i < 3; i++ {
		db, err := NewDatabase(path)
		require.NoError(t, err, "open iteration %d", i)
		if i == 0 {
			require.NoError(t, db.AddMember(context.Background(), &Member{ID: "M1", Name: "Alice", RegistrationDate: day}))
		}
		db.Close()
	}

	db, err := NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()
	m, err := db.GetMember(context.Background(), "M1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", m.Name)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := OpenDatabase("mysql", "whatever")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)

	_, err = NewDatabaseFromSQLX(nil)
	assert.ErrorIs(t, err, ErrNilDatabase)
}

func TestCatalogCRUD(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	b, err := db.GetBook(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "To Kill a Mockingbird", b.Title)
	assert.True(t, b.Available)

	_, err = db.GetBook(ctx, "nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityBook, nf.Entity)
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.AddBook(ctx, &Book{ISBN: "B1", Title: "Again"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = db.AddEmployee(ctx, &Employee{ID: "E9", Name: "Nobody", BranchID: "BR9"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.AddEmployee(ctx, &Employee{ID: "E2", Name: "No Branch"}))
	e, err := db.GetEmployee(ctx, "E2")
	require.NoError(t, err)
	assert.Empty(t, e.BranchID)

	members, err := db.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "M1", members[0].ID)
	assert.True(t, members[0].RegistrationDate.Equal(day))

	employees, err := db.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 2)

	branches, err := db.ListBranches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "123 Main St", branches[0].Address)
}

func TestListBooks_Filters(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	all, err := db.ListBooks(ctx, BookFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B1", all[0].ISBN)

	classics, err := db.ListBooks(ctx, BookFilter{Category: "Classic"})
	require.NoError(t, err)
	require.Len(t, classics, 1)
	assert.Equal(t, "B1", classics[0].ISBN)

	orwell, err := db.ListBooks(ctx, BookFilter{Query: "orwell"})
	require.NoError(t, err)
	require.Len(t, orwell, 1)
	assert.Equal(t, "B2", orwell[0].ISBN)

	_, err = db.IssueBook(ctx, IssueRecord{ID: "IS1", MemberID: "M1", BookISBN: "B1", EmployeeID: "E1", IssuedDate: day})
	require.NoError(t, err)

	available, err := db.ListBooks(ctx, BookFilter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "B2", available[0].ISBN)
}

func TestIsUniqueViolation(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)

	_, err := db.db.Exec(`INSERT INTO members(member_id, member_name, reg_date) VALUES('M1','dup',?)`, day)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed")))
	assert.False(t, isUniqueViolation(nil))
}
