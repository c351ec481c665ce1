package library

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// IssueFilter narrows OutstandingIssues. Zero values match everything.
type IssueFilter struct {
	MemberID     string
	IssuedBefore time.Time
}

// OutstandingIssues lists issue records that have no return, oldest first.
func (d *Database) OutstandingIssues(ctx context.Context, f IssueFilter) ([]*OutstandingIssue, error) {
	ds := d.dialect.
		From(goqu.T("issued_status").As("i")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.isbn").Eq(goqu.I("i.issued_book_isbn")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("i.issued_member_id")))).
		LeftJoin(goqu.T("return_status").As("r"), goqu.On(goqu.I("r.issued_id").Eq(goqu.I("i.issued_id")))).
		Select(
			goqu.I("i.issued_id").As("issued_id"),
			goqu.I("i.issued_member_id").As("member_id"),
			goqu.I("m.member_name").As("member_name"),
			goqu.I("i.issued_book_isbn").As("isbn"),
			goqu.I("b.book_title").As("book_title"),
			goqu.I("i.issued_emp_id").As("employee_id"),
			goqu.I("i.issued_date").As("issued_date"),
		).
		Where(goqu.I("r.return_id").IsNull()).
		Order(goqu.I("i.issued_date").Asc(), goqu.I("i.issued_id").Asc())

	if f.MemberID != "" {
		ds = ds.Where(goqu.I("i.issued_member_id").Eq(f.MemberID))
	}
	if !f.IssuedBefore.IsZero() {
		ds = ds.Where(goqu.I("i.issued_date").Lt(f.IssuedBefore))
	}

	issues := []*OutstandingIssue{}
	if err := d.list(ctx, &issues, ds); err != nil {
		return nil, fmt.Errorf("list outstanding issues: %w", err)
	}
	return issues, nil
}

const auditSQL = `SELECT b.isbn AS isbn, b.available AS available, COUNT(i.issued_id) AS outstanding
    FROM books b
    LEFT JOIN issued_status i
      ON i.issued_book_isbn = b.isbn
     AND NOT EXISTS (SELECT 1 FROM return_status r WHERE r.issued_id = i.issued_id)
    GROUP BY b.isbn, b.available
    ORDER BY b.isbn`

// AuditAvailability returns every book whose availability flag disagrees with the ledger:
// available with an outstanding issue, on loan without one, or more than one outstanding issue.
func (d *Database) AuditAvailability(ctx context.Context) ([]AvailabilityMismatch, error) {
	var rows []AvailabilityMismatch
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, auditSQL)
	if err := d.db.SelectContext(ctx, &rows, auditSQL); err != nil {
		return nil, fmt.Errorf("audit availability: %w", err)
	}

	mismatches := []AvailabilityMismatch{}
	for _, r := range rows {
		consistent := (r.Available && r.Outstanding == 0) || (!r.Available && r.Outstanding == 1)
		if !consistent {
			mismatches = append(mismatches, r)
		}
	}
	return mismatches, nil
}
