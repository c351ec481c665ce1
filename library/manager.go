package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	issueIDPrefix  = "IS-"
	returnIDPrefix = "RS-"
)

// IssueRequest asks to lend a book. IssuedID is generated when empty.
type IssueRequest struct {
	IssuedID   string `json:"issued_id" validate:"omitempty,max=64"`
	MemberID   string `json:"member_id" validate:"required,max=16"`
	ISBN       string `json:"isbn" validate:"required,max=32"`
	EmployeeID string `json:"employee_id" validate:"required,max=16"`
}

// ReturnRequest asks to close a loan. ReturnID is generated when empty.
type ReturnRequest struct {
	ReturnID    string `json:"return_id" validate:"omitempty,max=64"`
	IssuedID    string `json:"issued_id" validate:"required,max=64"`
	QualityNote string `json:"quality_note" validate:"max=64"`
}

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// It validates requests, fills in identifiers and dates, and hashes employee passwords.
type LibraryManager struct {
	db       *Database
	validate *validator.Validate
	logger   Logger
	now      func() time.Time
	newID    func(prefix string) string
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	return NewLibraryManagerFromDatabase(db, opts...), nil
}

// NewLibraryManagerFromDatabase builds a manager over an already opened Database.
func NewLibraryManagerFromDatabase(db *Database, opts ...Option) *LibraryManager {
	o := buildOptions(opts)
	return &LibraryManager{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   o.logger,
		now:      o.now,
		newID:    o.newID,
	}
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Database exposes the underlying store.
func (lm *LibraryManager) Database() *Database { return lm.db }

// Today is the manager clock truncated to a UTC calendar date.
func (lm *LibraryManager) Today() time.Time {
	t := lm.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (lm *LibraryManager) check(v any) error {
	if err := lm.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ------------------ Circulation ------------------

// IssueBook lends a book to a member. A book already on loan yields a declined result, not an error.
func (lm *LibraryManager) IssueBook(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := lm.check(req); err != nil {
		return nil, err
	}
	if req.IssuedID == "" {
		req.IssuedID = lm.newID(issueIDPrefix)
	}
	return lm.db.IssueBook(ctx, IssueRecord{
		ID:         req.IssuedID,
		MemberID:   req.MemberID,
		BookISBN:   req.ISBN,
		EmployeeID: req.EmployeeID,
		IssuedDate: lm.Today(),
	})
}

// ReturnBook closes an outstanding loan and makes the book available again.
func (lm *LibraryManager) ReturnBook(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	if err := lm.check(req); err != nil {
		return nil, err
	}
	if req.ReturnID == "" {
		req.ReturnID = lm.newID(returnIDPrefix)
	}
	return lm.db.ReturnBook(ctx, ReturnRecord{
		ID:          req.ReturnID,
		IssuedID:    req.IssuedID,
		ReturnDate:  lm.Today(),
		QualityNote: strings.TrimSpace(req.QualityNote),
	})
}

// GetLoan returns an issue record and its return, if any.
func (lm *LibraryManager) GetLoan(ctx context.Context, issuedID string) (*Loan, error) {
	return lm.db.GetLoan(ctx, issuedID)
}

// OutstandingIssues lists open loans. overdueDays > 0 keeps only loans out for more than that many days.
func (lm *LibraryManager) OutstandingIssues(ctx context.Context, memberID string, overdueDays int) ([]*OutstandingIssue, error) {
	today := lm.Today()
	f := IssueFilter{MemberID: memberID}
	if overdueDays > 0 {
		f.IssuedBefore = today.AddDate(0, 0, -overdueDays)
	}
	issues, err := lm.db.OutstandingIssues(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		is.DaysOut = int(today.Sub(is.IssuedDate.UTC()).Hours() / 24)
	}
	return issues, nil
}

// AuditAvailability reports books whose availability flag disagrees with the ledger.
func (lm *LibraryManager) AuditAvailability(ctx context.Context) ([]AvailabilityMismatch, error) {
	return lm.db.AuditAvailability(ctx)
}

// ------------------ Book helpers ------------------

// normalizeCategory title-cases a category. Casers are stateful, so one is built per call.
func normalizeCategory(c string) string {
	return cases.Title(language.English).String(strings.TrimSpace(c))
}

// AddBook adds a book to the catalog. Categories are stored title-cased.
func (lm *LibraryManager) AddBook(ctx context.Context, b Book) (*Book, error) {
	b.ISBN = strings.TrimSpace(b.ISBN)
	b.Title = strings.TrimSpace(b.Title)
	b.Category = normalizeCategory(b.Category)
	if err := lm.check(b); err != nil {
		return nil, err
	}
	if err := lm.db.AddBook(ctx, &b); err != nil {
		return nil, err
	}
	b.Available = true
	return &b, nil
}

func (lm *LibraryManager) GetBook(ctx context.Context, isbn string) (*Book, error) {
	return lm.db.GetBook(ctx, isbn)
}

func (lm *LibraryManager) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	if f.Category != "" {
		f.Category = normalizeCategory(f.Category)
	}
	return lm.db.ListBooks(ctx, f)
}

// ------------------ Member helpers ------------------

// AddMember registers a member; a zero registration date means today.
func (lm *LibraryManager) AddMember(ctx context.Context, m Member) (*Member, error) {
	if m.RegistrationDate.IsZero() {
		m.RegistrationDate = lm.Today()
	}
	if err := lm.check(m); err != nil {
		return nil, err
	}
	if err := lm.db.AddMember(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (lm *LibraryManager) GetMember(ctx context.Context, id string) (*Member, error) {
	return lm.db.GetMember(ctx, id)
}

func (lm *LibraryManager) ListMembers(ctx context.Context) ([]*Member, error) {
	return lm.db.ListMembers(ctx)
}

// ------------------ Staff helpers ------------------

func (lm *LibraryManager) AddBranch(ctx context.Context, b Branch) (*Branch, error) {
	if err := lm.check(b); err != nil {
		return nil, err
	}
	if err := lm.db.AddBranch(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (lm *LibraryManager) ListBranches(ctx context.Context) ([]*Branch, error) {
	return lm.db.ListBranches(ctx)
}

// AddEmployee adds a staff member. A non-empty password is stored as a bcrypt hash
// and must then be supplied to AuthenticateEmployee.
func (lm *LibraryManager) AddEmployee(ctx context.Context, e Employee, password string) (*Employee, error) {
	e.PasswordHash = ""
	if err := lm.check(e); err != nil {
		return nil, err
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		e.PasswordHash = string(hash)
	}
	if err := lm.db.AddEmployee(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (lm *LibraryManager) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return lm.db.GetEmployee(ctx, id)
}

func (lm *LibraryManager) ListEmployees(ctx context.Context) ([]*Employee, error) {
	return lm.db.ListEmployees(ctx)
}

// AuthenticateEmployee verifies an employee's desk password.
// Employees without a password always authenticate.
func (lm *LibraryManager) AuthenticateEmployee(ctx context.Context, id, password string) error {
	e, err := lm.db.GetEmployee(ctx, id)
	if err != nil {
		return err
	}
	if !e.HasPassword() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

// ------------------ Catalog import ------------------

// ImportSummary counts imported rows per section.
type ImportSummary struct {
	Branches  int `json:"branches"`
	Employees int `json:"employees"`
	Members   int `json:"members"`
	Books     int `json:"books"`
}

// LoadCatalog decodes a YAML catalog; unknown fields are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// ImportCatalog adds every record of c, branches first so employees can reference them.
// It stops at the first failure; rows added before it stay.
func (lm *LibraryManager) ImportCatalog(ctx context.Context, c *Catalog) (ImportSummary, error) {
	var sum ImportSummary
	for _, b := range c.Branches {
		if _, err := lm.AddBranch(ctx, b); err != nil {
			return sum, fmt.Errorf("branch %q: %w", b.ID, err)
		}
		sum.Branches++
	}
	for _, e := range c.Employees {
		if _, err := lm.AddEmployee(ctx, e.Employee, e.Password); err != nil {
			return sum, fmt.Errorf("employee %q: %w", e.ID, err)
		}
		sum.Employees++
	}
	for _, m := range c.Members {
		if _, err := lm.AddMember(ctx, m); err != nil {
			return sum, fmt.Errorf("member %q: %w", m.ID, err)
		}
		sum.Members++
	}
	for _, b := range c.Books {
		if _, err := lm.AddBook(ctx, b); err != nil {
			return sum, fmt.Errorf("book %q: %w", b.ISBN, err)
		}
		sum.Books++
	}
	lm.logger.Info("catalog imported",
		"branches", sum.Branches, "employees", sum.Employees, "members", sum.Members, "books", sum.Books)
	return sum, nil
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-14s %-32s %-12s %8.2f %s", b.ISBN, truncate(b.Title, 32), truncate(b.Category, 12), b.RentalPrice, yesNo(b.Available))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
