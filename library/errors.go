package library

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReturn    = errors.New("issue record already returned")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid employee credentials")
	ErrNilDatabase        = errors.New("nil database connection")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
)

// Entity names used in NotFoundError.
const (
	EntityBook     = "book"
	EntityMember   = "member"
	EntityEmployee = "employee"
	EntityBranch   = "branch"
	EntityIssue    = "issue record"
)

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateReturnError reports a second return against the same issue record.
type DuplicateReturnError struct {
	IssuedID string
	ReturnID string // the return already on record, empty when unknown
}

func (e *DuplicateReturnError) Error() string {
	if e.ReturnID == "" {
		return fmt.Sprintf("issue record %q already returned", e.IssuedID)
	}
	return fmt.Sprintf("issue record %q already returned by %q", e.IssuedID, e.ReturnID)
}

func (e *DuplicateReturnError) Is(target error) bool { return target == ErrDuplicateReturn }
