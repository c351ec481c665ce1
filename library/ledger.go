package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// IssueStatus is the outcome of an issue attempt.
type IssueStatus string

const (
	StatusIssued      IssueStatus = "issued"
	StatusUnavailable IssueStatus = "unavailable"
)

// StatusReturned is the only status a successful return reports.
const StatusReturned = "returned"

// IssueResult is returned by IssueBook. An unavailable book is a normal, declined outcome.
type IssueResult struct {
	Status     IssueStatus `json:"status"`
	ISBN       string      `json:"isbn"`
	BookTitle  string      `json:"book_title"`
	IssuedID   string      `json:"issued_id,omitempty"`
	IssuedDate *time.Time  `json:"issued_date,omitempty"`
}

// Declined reports whether the book was on loan and nothing was recorded.
func (r *IssueResult) Declined() bool { return r.Status == StatusUnavailable }

// ReturnResult is returned by ReturnBook.
type ReturnResult struct {
	Status     string    `json:"status"`
	ReturnID   string    `json:"return_id"`
	IssuedID   string    `json:"issued_id"`
	ISBN       string    `json:"isbn"`
	BookTitle  string    `json:"book_title"`
	ReturnDate time.Time `json:"return_date"`
}

const (
	selectIssueSQL = `SELECT issued_id, issued_member_id, issued_book_isbn, issued_book_name, issued_emp_id, issued_date
        FROM issued_status WHERE issued_id=?`
	selectReturnByIssueSQL = `SELECT return_id, issued_id, return_date, book_quality
        FROM return_status WHERE issued_id=?`
	insertIssueSQL = `INSERT INTO issued_status(issued_id, issued_member_id, issued_book_name, issued_date, issued_book_isbn, issued_emp_id)
        VALUES(?,?,?,?,?,?)`
	insertReturnSQL = `INSERT INTO return_status(return_id, issued_id, return_date, book_quality) VALUES(?,?,?,?)`
	claimBookSQL    = `UPDATE books SET available=? WHERE isbn=? AND available=?`
	releaseBookSQL  = `UPDATE books SET available=? WHERE isbn=?`
)

func (d *Database) lockBook(ctx context.Context, tx *sqlx.Tx, isbn string) (*Book, error) {
	var b Book
	query := tx.Rebind(`SELECT isbn, book_title, category, rental_price, available, author, publisher
        FROM books WHERE isbn=?` + d.forUpdate())
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, query)
	if err := tx.GetContext(ctx, &b, query, isbn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: EntityBook, ID: isbn}
		}
		return nil, fmt.Errorf("lookup book: %w", err)
	}
	return &b, nil
}

// IssueBook records rec and marks the book as on loan in one transaction.
// The book row is read under the transaction's write lock; if it is already on loan the
// result is declined and nothing is written. The availability flip is a compare-and-swap,
// so a concurrent issue that slipped past the read also ends up declined.
func (d *Database) IssueBook(ctx context.Context, rec IssueRecord) (*IssueResult, error) {
	var result *IssueResult
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		book, err := d.lockBook(ctx, tx, rec.BookISBN)
		if err != nil {
			return err
		}
		declined := &IssueResult{Status: StatusUnavailable, ISBN: book.ISBN, BookTitle: book.Title}
		if !book.Available {
			result = declined
			return nil
		}

		if err := requireRow(ctx, tx, memberExistsSQL, EntityMember, rec.MemberID); err != nil {
			return err
		}
		if err := requireRow(ctx, tx, employeeExistsSQL, EntityEmployee, rec.EmployeeID); err != nil {
			return err
		}

		claimed, err := d.exec(ctx, tx, claimBookSQL, false, book.ISBN, true)
		if err != nil {
			return fmt.Errorf("claim book: %w", err)
		}
		if claimed == 0 {
			result = declined
			return nil
		}

		rec.BookTitle = book.Title
		if _, err := d.exec(ctx, tx, insertIssueSQL,
			rec.ID, rec.MemberID, rec.BookTitle, rec.IssuedDate, rec.BookISBN, rec.EmployeeID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("issue record %q: %w", rec.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("insert issue record: %w", err)
		}

		issued := rec.IssuedDate
		result = &IssueResult{
			Status:     StatusIssued,
			ISBN:       book.ISBN,
			BookTitle:  book.Title,
			IssuedID:   rec.ID,
			IssuedDate: &issued,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Declined() {
		d.logger.Warn(logMsgIssueDeclined, logAttrISBN, result.ISBN, logAttrMemberID, rec.MemberID)
	} else {
		d.logger.Info(logMsgBookIssued,
			logAttrIssuedID, rec.ID, logAttrISBN, rec.BookISBN,
			logAttrMemberID, rec.MemberID, logAttrEmployeeID, rec.EmployeeID)
	}
	return result, nil
}

// ReturnBook records rec against its issue record and makes the book available again,
// all in one transaction.
func (d *Database) ReturnBook(ctx context.Context, rec ReturnRecord) (*ReturnResult, error) {
	var result *ReturnResult
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		var issue IssueRecord
		query := tx.Rebind(selectIssueSQL + d.forUpdate())
		if err := tx.GetContext(ctx, &issue, query, rec.IssuedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &NotFoundError{Entity: EntityIssue, ID: rec.IssuedID}
			}
			return fmt.Errorf("lookup issue record: %w", err)
		}

		var existing ReturnRecord
		err := tx.GetContext(ctx, &existing, tx.Rebind(selectReturnByIssueSQL), rec.IssuedID)
		switch {
		case err == nil:
			return &DuplicateReturnError{IssuedID: rec.IssuedID, ReturnID: existing.ID}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup return record: %w", err)
		}

		if _, err := d.exec(ctx, tx, insertReturnSQL, rec.ID, rec.IssuedID, rec.ReturnDate, rec.QualityNote); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("return record %q: %w", rec.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("insert return record: %w", err)
		}

		if _, err := d.exec(ctx, tx, releaseBookSQL, true, issue.BookISBN); err != nil {
			return fmt.Errorf("release book: %w", err)
		}

		var title string
		if err := tx.GetContext(ctx, &title, tx.Rebind(`SELECT book_title FROM books WHERE isbn=?`), issue.BookISBN); err != nil {
			return fmt.Errorf("lookup book title: %w", err)
		}

		result = &ReturnResult{
			Status:     StatusReturned,
			ReturnID:   rec.ID,
			IssuedID:   rec.IssuedID,
			ISBN:       issue.BookISBN,
			BookTitle:  title,
			ReturnDate: rec.ReturnDate,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReturn) {
			d.logger.Warn(logMsgDuplicateReturn, logAttrIssuedID, rec.IssuedID, logAttrReturnID, rec.ID)
		}
		return nil, err
	}

	d.logger.Info(logMsgBookReturned, logAttrReturnID, rec.ID, logAttrIssuedID, rec.IssuedID, logAttrISBN, result.ISBN)
	return result, nil
}

// GetLoan fetches an issue record together with its return, if any.
func (d *Database) GetLoan(ctx context.Context, issuedID string) (*Loan, error) {
	var loan Loan
	if err := d.db.GetContext(ctx, &loan.Issue, d.db.Rebind(selectIssueSQL), issuedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: EntityIssue, ID: issuedID}
		}
		return nil, fmt.Errorf("lookup issue record: %w", err)
	}

	var ret ReturnRecord
	err := d.db.GetContext(ctx, &ret, d.db.Rebind(selectReturnByIssueSQL), issuedID)
	switch {
	case err == nil:
		loan.Return = &ret
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup return record: %w", err)
	}
	return &loan, nil
}
