package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

var (
	bookColumns     = []any{"isbn", "book_title", "category", "rental_price", "available", "author", "publisher"}
	memberColumns   = []any{"member_id", "member_name", "member_address", "reg_date"}
	employeeColumns = []any{
		"emp_id", "emp_name", "position", "salary",
		goqu.COALESCE(goqu.C("branch_id"), "").As("branch_id"), "password_hash",
	}
	branchColumns = []any{"branch_id", "manager_id", "branch_address", "contact_no"}
)

const (
	memberExistsSQL   = `SELECT EXISTS(SELECT 1 FROM members WHERE member_id=?)`
	employeeExistsSQL = `SELECT EXISTS(SELECT 1 FROM employees WHERE emp_id=?)`
	branchExistsSQL   = `SELECT EXISTS(SELECT 1 FROM branches WHERE branch_id=?)`
)

// BookFilter narrows ListBooks. Zero values match everything.
type BookFilter struct {
	Category      string
	AvailableOnly bool
	Query         string // substring of title or author, case-insensitive
}

// ---------------------------------------------------------------------------
// Inserts
// ---------------------------------------------------------------------------

func (d *Database) insert(ctx context.Context, table string, row goqu.Record) error {
	query, args, err := d.dialect.Insert(table).Prepared(true).Rows(row).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert into %s: %w", table, err)
	}
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, query)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert into %s: %w", table, ErrAlreadyExists)
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// AddBranch inserts a branch.
func (d *Database) AddBranch(ctx context.Context, b *Branch) error {
	return d.insert(ctx, "branches", goqu.Record{
		"branch_id":      b.ID,
		"manager_id":     b.ManagerID,
		"branch_address": b.Address,
		"contact_no":     b.ContactNo,
	})
}

// AddEmployee inserts an employee; a non-empty BranchID must reference an existing branch.
func (d *Database) AddEmployee(ctx context.Context, e *Employee) error {
	if e.BranchID != "" {
		if err := requireRow(ctx, d.db, branchExistsSQL, EntityBranch, e.BranchID); err != nil {
			return err
		}
	}
	return d.insert(ctx, "employees", goqu.Record{
		"emp_id":        e.ID,
		"emp_name":      e.Name,
		"position":      e.Position,
		"salary":        e.Salary,
		"branch_id":     nullIfEmpty(e.BranchID),
		"password_hash": e.PasswordHash,
	})
}

// AddMember inserts a member.
func (d *Database) AddMember(ctx context.Context, m *Member) error {
	return d.insert(ctx, "members", goqu.Record{
		"member_id":      m.ID,
		"member_name":    m.Name,
		"member_address": m.Address,
		"reg_date":       m.RegistrationDate,
	})
}

// AddBook inserts a book. New books are always available.
func (d *Database) AddBook(ctx context.Context, b *Book) error {
	return d.insert(ctx, "books", goqu.Record{
		"isbn":         b.ISBN,
		"book_title":   b.Title,
		"category":     b.Category,
		"rental_price": b.RentalPrice,
		"available":    true,
		"author":       b.Author,
		"publisher":    b.Publisher,
	})
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// get runs a single-row select and maps no rows to a NotFoundError.
func (d *Database) get(ctx context.Context, q queryer, dest any, ds *goqu.SelectDataset, entity, id string) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, query)
	if err := sqlx.GetContext(ctx, q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: entity, ID: id}
		}
		return fmt.Errorf("get %s: %w", entity, err)
	}
	return nil
}

func (d *Database) list(ctx context.Context, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build list query: %w", err)
	}
	d.logger.Debug(logMsgSQLExecuted, logAttrQuery, query)
	return d.db.SelectContext(ctx, dest, query, args...)
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, isbn string) (*Book, error) {
	var b Book
	ds := d.dialect.From("books").Select(bookColumns...).Where(goqu.C("isbn").Eq(isbn))
	if err := d.get(ctx, d.db, &b, ds, EntityBook, isbn); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks returns books ordered by isbn.
func (d *Database) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	ds := d.dialect.From("books").Select(bookColumns...).Order(goqu.C("isbn").Asc())
	if f.Category != "" {
		ds = ds.Where(goqu.C("category").Eq(f.Category))
	}
	if f.AvailableOnly {
		// Eq(true) renders as IS, which PostgreSQL rejects with a bound parameter.
		ds = ds.Where(goqu.L("available = ?", true))
	}
	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("book_title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		))
	}

	books := []*Book{}
	if err := d.list(ctx, &books, ds); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetMember fetches a single member.
func (d *Database) GetMember(ctx context.Context, id string) (*Member, error) {
	var m Member
	ds := d.dialect.From("members").Select(memberColumns...).Where(goqu.C("member_id").Eq(id))
	if err := d.get(ctx, d.db, &m, ds, EntityMember, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns all members.
func (d *Database) ListMembers(ctx context.Context) ([]*Member, error) {
	members := []*Member{}
	ds := d.dialect.From("members").Select(memberColumns...).Order(goqu.C("member_id").Asc())
	if err := d.list(ctx, &members, ds); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// GetEmployee fetches a single employee including the password hash.
func (d *Database) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	var e Employee
	ds := d.dialect.From("employees").Select(employeeColumns...).Where(goqu.C("emp_id").Eq(id))
	if err := d.get(ctx, d.db, &e, ds, EntityEmployee, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees returns all employees.
func (d *Database) ListEmployees(ctx context.Context) ([]*Employee, error) {
	employees := []*Employee{}
	ds := d.dialect.From("employees").Select(employeeColumns...).Order(goqu.C("emp_id").Asc())
	if err := d.list(ctx, &employees, ds); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employees, nil
}

// ListBranches returns all branches.
func (d *Database) ListBranches(ctx context.Context) ([]*Branch, error) {
	branches := []*Branch{}
	ds := d.dialect.From("branches").Select(branchColumns...).Order(goqu.C("branch_id").Asc())
	if err := d.list(ctx, &branches, ds); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}
