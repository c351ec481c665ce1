package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

const dateLayout = "2006-01-02"

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the ledger database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				version, err := s.manager.Database().SchemaVersion()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read schema version", err)
				}
				driver := s.manager.Database().Driver()
				return s.out.Success(
					map[string]any{"driver": driver, "schema_version": version},
					fmt.Sprintf("Database ready (driver %s, schema version %d)", driver, version),
				)
			})
		},
	}
}

// IssueOptions holds flags for the issue command.
type IssueOptions struct {
	*RootOptions
	library.IssueRequest
}

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Lend a book to a member",
		Long: `Lend a book to a member.

If the book is already on loan the request is declined and nothing is recorded.
Employees with a desk password are prompted for it first.

Example:
  library issue --member C101 --isbn 978-0-553-29698-2 --employee E101`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				res, err := issueBook(cmd, opts.RootOptions, s, opts.IssueRequest)
				if err != nil {
					return err
				}
				return s.out.Success(res, describeIssue(res))
			})
		},
	}

	cmd.Flags().StringVar(&opts.MemberID, "member", "", "member ID (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.ISBN, "isbn", "", "book ISBN (required)")
	_ = cmd.MarkFlagRequired("isbn")
	cmd.Flags().StringVar(&opts.EmployeeID, "employee", "", "issuing employee ID (required)")
	_ = cmd.MarkFlagRequired("employee")
	cmd.Flags().StringVar(&opts.IssuedID, "issued-id", "", "issue record ID (generated when empty)")

	return cmd
}

func issueBook(cmd *cobra.Command, opts *RootOptions, s *session, req library.IssueRequest) (*library.IssueResult, error) {
	if err := opts.authorizeEmployee(cmd.Context(), cmd, s, req.EmployeeID); err != nil {
		return nil, err
	}
	return s.manager.IssueBook(cmd.Context(), req)
}

func describeIssue(res *library.IssueResult) string {
	if res.Declined() {
		return fmt.Sprintf("Book %s is not available", res.ISBN)
	}
	return fmt.Sprintf("Issued %q (%s) as %s on %s", res.BookTitle, res.ISBN, res.IssuedID, res.IssuedDate.Format(dateLayout))
}

// ReturnOptions holds flags for the return command.
type ReturnOptions struct {
	*RootOptions
	library.ReturnRequest
}

// NewReturnCommand creates the return command.
func NewReturnCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReturnOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "return",
		Short: "Record the return of an issued book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				res, err := s.manager.ReturnBook(cmd.Context(), opts.ReturnRequest)
				if err != nil {
					return err
				}
				return s.out.Success(res, describeReturn(res))
			})
		},
	}

	cmd.Flags().StringVar(&opts.IssuedID, "issued-id", "", "issue record being returned (required)")
	_ = cmd.MarkFlagRequired("issued-id")
	cmd.Flags().StringVar(&opts.QualityNote, "quality", "", "condition of the returned book")
	cmd.Flags().StringVar(&opts.ReturnID, "return-id", "", "return record ID (generated when empty)")

	return cmd
}

func describeReturn(res *library.ReturnResult) string {
	return fmt.Sprintf("Thank you for returning the book: %s (%s)", res.BookTitle, res.ReturnID)
}

// LoansOptions holds flags for the loans command.
type LoansOptions struct {
	*RootOptions
	MemberID    string
	Overdue     bool
	OverdueDays int
}

// NewLoansCommand creates the loans command.
func NewLoansCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoansOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List books that have not been returned",
		Long: `List issue records without a return, oldest first.

--overdue keeps loans older than lending.overdue_days; --overdue-days sets the
threshold explicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				days := opts.OverdueDays
				if opts.Overdue && days == 0 {
					days = s.cfg.Lending.OverdueDays
				}
				loans, err := s.manager.OutstandingIssues(cmd.Context(), opts.MemberID, days)
				if err != nil {
					return err
				}
				if s.out.JSON() {
					return s.out.Success(loans, "")
				}
				writeLoans(s.out.Writer, loans)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.MemberID, "member", "", "only loans of this member")
	cmd.Flags().BoolVar(&opts.Overdue, "overdue", false, "only loans past the configured overdue threshold")
	cmd.Flags().IntVar(&opts.OverdueDays, "overdue-days", 0, "only loans out for more than N days")

	return cmd
}

func writeLoans(w io.Writer, loans []*library.OutstandingIssue) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No outstanding loans.")
		return
	}
	fmt.Fprintf(w, "%-12s %-10s %-20s %-14s %-28s %-10s %s\n", "Issued ID", "Member", "Name", "ISBN", "Title", "Issued", "Days")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, l := range loans {
		fmt.Fprintf(w, "%-12s %-10s %-20s %-14s %-28s %-10s %d\n",
			l.IssuedID,
			l.MemberID,
			truncate(l.MemberName, 20),
			l.ISBN,
			truncate(l.BookTitle, 28),
			l.IssuedDate.Format(dateLayout),
			l.DaysOut)
	}
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check book availability against the ledger",
		Long: `Check that every book is unavailable exactly when it has an issue record
without a return. Exits with status 1 when a mismatch is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				mismatches, err := s.manager.AuditAvailability(cmd.Context())
				if err != nil {
					return err
				}
				if len(mismatches) == 0 {
					return s.out.Success([]library.AvailabilityMismatch{}, "No availability mismatches.")
				}
				if !s.out.JSON() {
					w := s.out.Writer
					fmt.Fprintf(w, "%-14s %-10s %s\n", "ISBN", "Available", "Outstanding")
					fmt.Fprintln(w, strings.Repeat("-", 37))
					for _, m := range mismatches {
						fmt.Fprintf(w, "%-14s %-10s %d\n", m.ISBN, yesNo(m.Available), m.Outstanding)
					}
				}
				return &ExitError{
					Code:    ExitFailure,
					Kind:    CodeAuditMismatch,
					Message: fmt.Sprintf("%d book(s) disagree with the ledger", len(mismatches)),
					Details: mismatches,
				}
			})
		},
	}
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
