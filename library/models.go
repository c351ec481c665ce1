package library

import "time"

// Book represents catalog metadata and current availability of a book.
// Available is false exactly while the book has an outstanding issue record.
type Book struct {
	ISBN        string  `db:"isbn" json:"isbn" yaml:"isbn" validate:"required,max=32"`
	Title       string  `db:"book_title" json:"title" yaml:"title" validate:"required,max=128"`
	Category    string  `db:"category" json:"category" yaml:"category" validate:"max=64"`
	RentalPrice float64 `db:"rental_price" json:"rental_price" yaml:"rental_price" validate:"gte=0"`
	Available   bool    `db:"available" json:"available" yaml:"-"`
	Author      string  `db:"author" json:"author" yaml:"author" validate:"max=64"`
	Publisher   string  `db:"publisher" json:"publisher" yaml:"publisher" validate:"max=64"`
}

// Member represents a registered library member.
type Member struct {
	ID               string    `db:"member_id" json:"member_id" yaml:"member_id" validate:"required,max=16"`
	Name             string    `db:"member_name" json:"name" yaml:"name" validate:"required,max=64"`
	Address          string    `db:"member_address" json:"address" yaml:"address" validate:"max=128"`
	RegistrationDate time.Time `db:"reg_date" json:"registration_date" yaml:"registration_date"`
}

// Employee represents a staff member who issues books at a branch.
type Employee struct {
	ID           string  `db:"emp_id" json:"emp_id" yaml:"emp_id" validate:"required,max=16"`
	Name         string  `db:"emp_name" json:"name" yaml:"name" validate:"required,max=64"`
	Position     string  `db:"position" json:"position" yaml:"position" validate:"max=64"`
	Salary       float64 `db:"salary" json:"salary" yaml:"salary" validate:"gte=0"`
	BranchID     string  `db:"branch_id" json:"branch_id,omitempty" yaml:"branch_id" validate:"max=16"`
	PasswordHash string  `db:"password_hash" json:"-" yaml:"-"` // Don't serialize password hash
}

// HasPassword reports whether the employee must authenticate before issuing.
func (e *Employee) HasPassword() bool { return e.PasswordHash != "" }

// Branch is a library location employees belong to.
type Branch struct {
	ID        string `db:"branch_id" json:"branch_id" yaml:"branch_id" validate:"required,max=16"`
	ManagerID string `db:"manager_id" json:"manager_id" yaml:"manager_id" validate:"max=16"`
	Address   string `db:"branch_address" json:"address" yaml:"address" validate:"max=128"`
	ContactNo string `db:"contact_no" json:"contact_no" yaml:"contact_no" validate:"max=32"`
}

// IssueRecord is one physical loan event. It is never modified once written.
type IssueRecord struct {
	ID         string    `db:"issued_id" json:"issued_id"`
	MemberID   string    `db:"issued_member_id" json:"member_id"`
	BookISBN   string    `db:"issued_book_isbn" json:"isbn"`
	BookTitle  string    `db:"issued_book_name" json:"book_title"`
	EmployeeID string    `db:"issued_emp_id" json:"employee_id"`
	IssuedDate time.Time `db:"issued_date" json:"issued_date"`
}

// ReturnRecord closes exactly one IssueRecord.
type ReturnRecord struct {
	ID          string    `db:"return_id" json:"return_id"`
	IssuedID    string    `db:"issued_id" json:"issued_id"`
	ReturnDate  time.Time `db:"return_date" json:"return_date"`
	QualityNote string    `db:"book_quality" json:"quality_note"`
}

// Loan is an issue record together with its return, if any.
type Loan struct {
	Issue  IssueRecord   `json:"issue"`
	Return *ReturnRecord `json:"return,omitempty"`
}

// Outstanding reports whether the book has not been given back yet.
func (l *Loan) Outstanding() bool { return l.Return == nil }

// OutstandingIssue is a row of the open-loans listing.
type OutstandingIssue struct {
	IssuedID   string    `db:"issued_id" json:"issued_id"`
	MemberID   string    `db:"member_id" json:"member_id"`
	MemberName string    `db:"member_name" json:"member_name"`
	ISBN       string    `db:"isbn" json:"isbn"`
	BookTitle  string    `db:"book_title" json:"book_title"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	IssuedDate time.Time `db:"issued_date" json:"issued_date"`
	DaysOut    int       `db:"-" json:"days_out"`
}

// AvailabilityMismatch describes a book whose flag disagrees with its ledger.
type AvailabilityMismatch struct {
	ISBN        string `db:"isbn" json:"isbn"`
	Available   bool   `db:"available" json:"available"`
	Outstanding int    `db:"outstanding" json:"outstanding"`
}

// Catalog represents a complete catalog snapshot for bulk import.
type Catalog struct {
	Branches  []Branch          `yaml:"branches"`
	Employees []CatalogEmployee `yaml:"employees"`
	Members   []Member          `yaml:"members"`
	Books     []Book            `yaml:"books"`
}

// CatalogEmployee carries an optional clear-text password that is hashed on import.
type CatalogEmployee struct {
	Employee `yaml:",inline"`
	Password string `yaml:"password"`
}
