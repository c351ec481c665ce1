package library

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issue(id, member, isbn string) IssueRecord {
	return IssueRecord{ID: id, MemberID: member, BookISBN: isbn, EmployeeID: "E1", IssuedDate: day}
}

func ret(id, issuedID, note string) ReturnRecord {
	return ReturnRecord{ID: id, IssuedID: issuedID, ReturnDate: day.AddDate(0, 0, 7), QualityNote: note}
}

func requireAvailable(t *testing.T, db *Database, isbn string, want bool) {
	t.Helper()
	b, err := db.GetBook(context.Background(), isbn)
	require.NoError(t, err)
	require.Equal(t, want, b.Available, "availability of %s", isbn)
}

func requireConsistent(t *testing.T, db *Database) {
	t.Helper()
	mismatches, err := db.AuditAvailability(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestIssueReturnScenario(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	res, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, res.Status)
	assert.Equal(t, "B1", res.ISBN)
	assert.Equal(t, "IS1", res.IssuedID)
	assert.False(t, res.Declined())
	requireAvailable(t, db, "B1", false)

	res, err = db.IssueBook(ctx, issue("IS2", "M2", "B1"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.True(t, res.Declined())
	assert.Empty(t, res.IssuedID)

	rr, err := db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, rr.Status)
	assert.Equal(t, "To Kill a Mockingbird", rr.BookTitle)
	assert.Equal(t, "B1", rr.ISBN)
	requireAvailable(t, db, "B1", true)

	requireConsistent(t, db)
}

func TestIssueUnavailable_CreatesNoRecord(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	before := countRows(t, db, "issued_status")

	for i := 0; i < 3; i++ {
		res, err := db.IssueBook(ctx, issue(fmt.Sprintf("IS-x%d", i), "M2", "B1"))
		require.NoError(t, err)
		require.True(t, res.Declined())
	}

	assert.Equal(t, before, countRows(t, db, "issued_status"))
	_, err = db.GetLoan(ctx, "IS-x0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssue_NotFound(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	tests := []struct {
		name   string
		rec    IssueRecord
		entity string
	}{
		{name: "unknown book", rec: issue("IS1", "M1", "B404"), entity: EntityBook},
		{name: "unknown member", rec: issue("IS1", "M404", "B1"), entity: EntityMember},
		{name: "unknown employee", rec: IssueRecord{ID: "IS1", MemberID: "M1", BookISBN: "B1", EmployeeID: "E404", IssuedDate: day}, entity: EntityEmployee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := db.IssueBook(ctx, tt.rec)
			assert.Nil(t, res)
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.entity, nf.Entity)
			assert.ErrorIs(t, err, ErrNotFound)
			requireAvailable(t, db, "B1", true)
		})
	}
	assert.Equal(t, 0, countRows(t, db, "issued_status"))
}

func TestIssue_DuplicateIssuedIDRollsBack(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)

	// The availability flip for B2 happens before the insert fails.
	_, err = db.IssueBook(ctx, issue("IS1", "M2", "B2"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	requireAvailable(t, db, "B2", true)
	assert.Equal(t, 1, countRows(t, db, "issued_status"))
	requireConsistent(t, db)
}

func TestReturn_NotFound(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)

	_, err := db.ReturnBook(context.Background(), ret("RS1", "IS404", "Good"))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityIssue, nf.Entity)
	assert.Equal(t, "IS404", nf.ID)
	assert.Equal(t, 0, countRows(t, db, "return_status"))
}

func TestReturn_Duplicate(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	_, err = db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
	require.NoError(t, err)

	// Lend it again so a wrongly accepted second return would flip the flag.
	_, err = db.IssueBook(ctx, issue("IS2", "M2", "B1"))
	require.NoError(t, err)

	_, err = db.ReturnBook(ctx, ret("RS2", "IS1", "Damaged"))
	require.ErrorIs(t, err, ErrDuplicateReturn)
	var dup *DuplicateReturnError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "IS1", dup.IssuedID)
	assert.Equal(t, "RS1", dup.ReturnID)

	requireAvailable(t, db, "B1", false)
	assert.Equal(t, 1, countRows(t, db, "return_status"))
	requireConsistent(t, db)
}

func TestReturn_DuplicateReturnIDRollsBack(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	_, err = db.IssueBook(ctx, issue("IS2", "M2", "B2"))
	require.NoError(t, err)
	_, err = db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
	require.NoError(t, err)

	_, err = db.ReturnBook(ctx, ret("RS1", "IS2", "Good"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	requireAvailable(t, db, "B2", false)
	loan, err := db.GetLoan(ctx, "IS2")
	require.NoError(t, err)
	assert.True(t, loan.Outstanding())
	requireConsistent(t, db)
}

func TestIssue_ConcurrentSameBook(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   int
		declined int
	)
	members := []string{"M1", "M2", "M3"}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := db.IssueBook(ctx, issue(fmt.Sprintf("IS%d", i), members[i%len(members)], "B1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				t.Logf("worker %d: %v", i, err)
			case res.Status == StatusIssued:
				issued++
			default:
				declined++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, 1, countRows(t, db, "issued_status"))
	assert.LessOrEqual(t, declined, workers-1)
	requireAvailable(t, db, "B1", false)
	requireConsistent(t, db)
}

func TestIssueThenReturn_RestoresAvailability(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		issuedID := fmt.Sprintf("IS%d", i)
		res, err := db.IssueBook(ctx, issue(issuedID, "M1", "B2"))
		require.NoError(t, err)
		require.Equal(t, StatusIssued, res.Status)
		requireAvailable(t, db, "B2", false)

		_, err = db.ReturnBook(ctx, ret(fmt.Sprintf("RS%d", i), issuedID, "Good"))
		require.NoError(t, err)
		requireAvailable(t, db, "B2", true)
		requireConsistent(t, db)
	}
}

func TestGetLoan(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)

	loan, err := db.GetLoan(ctx, "IS1")
	require.NoError(t, err)
	assert.True(t, loan.Outstanding())
	assert.Equal(t, "To Kill a Mockingbird", loan.Issue.BookTitle)
	assert.Equal(t, "E1", loan.Issue.EmployeeID)
	assert.True(t, loan.Issue.IssuedDate.Equal(day))

	_, err = db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
	require.NoError(t, err)

	loan, err = db.GetLoan(ctx, "IS1")
	require.NoError(t, err)
	require.False(t, loan.Outstanding())
	assert.Equal(t, "RS1", loan.Return.ID)
	assert.Equal(t, "Good", loan.Return.QualityNote)
}

func TestAuditAvailability_DetectsDrift(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	requireConsistent(t, db)

	_, err = db.db.Exec(db.db.Rebind(`UPDATE books SET available=? WHERE isbn IN ('B1','B2')`), true)
	require.NoError(t, err)
	_, err = db.db.Exec(db.db.Rebind(`UPDATE books SET available=? WHERE isbn='B2'`), false)
	require.NoError(t, err)

	mismatches, err := db.AuditAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AvailabilityMismatch{
		{ISBN: "B1", Available: true, Outstanding: 1},
		{ISBN: "B2", Available: false, Outstanding: 0},
	}, mismatches)
}

func TestOutstandingIssues_Filters(t *testing.T) {
	db := tempDB(t)
	seedDB(t, db)
	ctx := context.Background()

	_, err := db.IssueBook(ctx, issue("IS1", "M1", "B1"))
	require.NoError(t, err)
	late := issue("IS2", "M2", "B2")
	late.IssuedDate = day.AddDate(0, 0, 5)
	_, err = db.IssueBook(ctx, late)
	require.NoError(t, err)

	all, err := db.OutstandingIssues(ctx, IssueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "IS1", all[0].IssuedID)
	assert.Equal(t, "Alice Johnson", all[0].MemberName)
	assert.Equal(t, "To Kill a Mockingbird", all[0].BookTitle)

	bob, err := db.OutstandingIssues(ctx, IssueFilter{MemberID: "M2"})
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "IS2", bob[0].IssuedID)

	old, err := db.OutstandingIssues(ctx, IssueFilter{IssuedBefore: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "IS1", old[0].IssuedID)

	_, err = db.ReturnBook(ctx, ret("RS1", "IS1", "Good"))
	require.NoError(t, err)
	open, err := db.OutstandingIssues(ctx, IssueFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "IS2", open[0].IssuedID)
}
