package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

// NewBookCommand creates the book command group.
func NewBookCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the book catalog",
	}
	cmd.AddCommand(newBookAddCommand(opts))
	cmd.AddCommand(newBookListCommand(opts))
	cmd.AddCommand(newBookShowCommand(opts))
	return cmd
}

func newBookAddCommand(opts *RootOptions) *cobra.Command {
	var b library.Book

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book; new books are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				added, err := s.manager.AddBook(cmd.Context(), b)
				if err != nil {
					return err
				}
				return s.out.Success(added, fmt.Sprintf("Added book %s: %s", added.ISBN, added.Title))
			})
		},
	}

	cmd.Flags().StringVar(&b.ISBN, "isbn", "", "ISBN (required)")
	_ = cmd.MarkFlagRequired("isbn")
	cmd.Flags().StringVar(&b.Title, "title", "", "title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&b.Category, "category", "", "category")
	cmd.Flags().Float64Var(&b.RentalPrice, "price", 0, "rental price")
	cmd.Flags().StringVar(&b.Author, "author", "", "author")
	cmd.Flags().StringVar(&b.Publisher, "publisher", "", "publisher")

	return cmd
}

func newBookListCommand(opts *RootOptions) *cobra.Command {
	var f library.BookFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				books, err := s.manager.ListBooks(cmd.Context(), f)
				if err != nil {
					return err
				}
				if s.out.JSON() {
					return s.out.Success(books, "")
				}
				writeBooks(s.out.Writer, books)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.Category, "category", "", "only this category")
	cmd.Flags().BoolVar(&f.AvailableOnly, "available", false, "only books on the shelf")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "title or author contains")

	return cmd
}

func writeBooks(w io.Writer, books []*library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books in library.")
		return
	}
	fmt.Fprintf(w, "%-14s %-32s %-12s %8s %s\n", "ISBN", "Title", "Category", "Price", "Available")
	fmt.Fprintln(w, strings.Repeat("-", 79))
	for _, b := range books {
		fmt.Fprintln(w, library.PrettyBook(b))
	}
}

func newBookShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <isbn>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				b, err := s.manager.GetBook(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var sb strings.Builder
				fmt.Fprintf(&sb, "ISBN:      %s\n", b.ISBN)
				fmt.Fprintf(&sb, "Title:     %s\n", b.Title)
				fmt.Fprintf(&sb, "Author:    %s\n", b.Author)
				fmt.Fprintf(&sb, "Publisher: %s\n", b.Publisher)
				fmt.Fprintf(&sb, "Category:  %s\n", b.Category)
				fmt.Fprintf(&sb, "Price:     %.2f\n", b.RentalPrice)
				fmt.Fprintf(&sb, "Available: %s", yesNo(b.Available))
				return s.out.Success(b, sb.String())
			})
		},
	}
}

// NewMemberCommand creates the member command group.
func NewMemberCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}
	cmd.AddCommand(newMemberAddCommand(opts))
	cmd.AddCommand(newMemberListCommand(opts))
	return cmd
}

func newMemberAddCommand(opts *RootOptions) *cobra.Command {
	var (
		m          library.Member
		registered string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if registered != "" {
				d, err := time.Parse(dateLayout, registered)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --registered date", err)
				}
				m.RegistrationDate = d
			}
			return opts.withSession(cmd, func(s *session) error {
				added, err := s.manager.AddMember(cmd.Context(), m)
				if err != nil {
					return err
				}
				return s.out.Success(added, fmt.Sprintf("Added member %s: %s", added.ID, added.Name))
			})
		},
	}

	cmd.Flags().StringVar(&m.ID, "id", "", "member ID (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&m.Name, "name", "", "name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&m.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&registered, "registered", "", "registration date YYYY-MM-DD (default today)")

	return cmd
}

func newMemberListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				members, err := s.manager.ListMembers(cmd.Context())
				if err != nil {
					return err
				}
				if s.out.JSON() {
					return s.out.Success(members, "")
				}
				w := s.out.Writer
				if len(members) == 0 {
					fmt.Fprintln(w, "No members registered.")
					return nil
				}
				fmt.Fprintf(w, "%-10s %-24s %-30s %s\n", "ID", "Name", "Address", "Registered")
				fmt.Fprintln(w, strings.Repeat("-", 76))
				for _, m := range members {
					fmt.Fprintf(w, "%-10s %-24s %-30s %s\n", m.ID, truncate(m.Name, 24), truncate(m.Address, 30), m.RegistrationDate.Format(dateLayout))
				}
				return nil
			})
		},
	}
}

// NewEmployeeCommand creates the employee command group.
func NewEmployeeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Manage staff",
	}
	cmd.AddCommand(newEmployeeAddCommand(opts))
	cmd.AddCommand(newEmployeeListCommand(opts))
	return cmd
}

func newEmployeeAddCommand(opts *RootOptions) *cobra.Command {
	var (
		e           library.Employee
		setPassword bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an employee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if setPassword {
				p, err := opts.readPassword(cmd, fmt.Sprintf("Enter desk password for %s: ", e.Name))
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read password", err)
				}
				if p == "" {
					return NewExitError(ExitCommandError, "password cannot be empty")
				}
				password = p
			}
			return opts.withSession(cmd, func(s *session) error {
				added, err := s.manager.AddEmployee(cmd.Context(), e, password)
				if err != nil {
					return err
				}
				return s.out.Success(added, fmt.Sprintf("Added employee %s: %s", added.ID, added.Name))
			})
		},
	}

	cmd.Flags().StringVar(&e.ID, "id", "", "employee ID (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&e.Name, "name", "", "name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&e.Position, "position", "", "job title")
	cmd.Flags().Float64Var(&e.Salary, "salary", 0, "salary")
	cmd.Flags().StringVar(&e.BranchID, "branch", "", "branch ID")
	cmd.Flags().BoolVar(&setPassword, "password", false, "prompt for a desk password required when issuing")

	return cmd
}

func newEmployeeListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				employees, err := s.manager.ListEmployees(cmd.Context())
				if err != nil {
					return err
				}
				if s.out.JSON() {
					return s.out.Success(employees, "")
				}
				w := s.out.Writer
				if len(employees) == 0 {
					fmt.Fprintln(w, "No employees.")
					return nil
				}
				fmt.Fprintf(w, "%-10s %-24s %-20s %-10s %s\n", "ID", "Name", "Position", "Branch", "Password Set")
				fmt.Fprintln(w, strings.Repeat("-", 79))
				for _, e := range employees {
					fmt.Fprintf(w, "%-10s %-24s %-20s %-10s %s\n", e.ID, truncate(e.Name, 24), truncate(e.Position, 20), e.BranchID, yesNo(e.HasPassword()))
				}
				return nil
			})
		},
	}
}

// NewBranchCommand creates the branch command group.
func NewBranchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage branches",
	}
	cmd.AddCommand(newBranchAddCommand(opts))
	cmd.AddCommand(newBranchListCommand(opts))
	return cmd
}

func newBranchAddCommand(opts *RootOptions) *cobra.Command {
	var b library.Branch

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				added, err := s.manager.AddBranch(cmd.Context(), b)
				if err != nil {
					return err
				}
				return s.out.Success(added, fmt.Sprintf("Added branch %s", added.ID))
			})
		},
	}

	cmd.Flags().StringVar(&b.ID, "id", "", "branch ID (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&b.ManagerID, "manager", "", "manager employee ID")
	cmd.Flags().StringVar(&b.Address, "address", "", "address")
	cmd.Flags().StringVar(&b.ContactNo, "contact", "", "contact number")

	return cmd
}

func newBranchListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				branches, err := s.manager.ListBranches(cmd.Context())
				if err != nil {
					return err
				}
				if s.out.JSON() {
					return s.out.Success(branches, "")
				}
				w := s.out.Writer
				if len(branches) == 0 {
					fmt.Fprintln(w, "No branches.")
					return nil
				}
				fmt.Fprintf(w, "%-10s %-10s %-30s %s\n", "ID", "Manager", "Address", "Contact")
				fmt.Fprintln(w, strings.Repeat("-", 66))
				for _, b := range branches {
					fmt.Fprintf(w, "%-10s %-10s %-30s %s\n", b.ID, b.ManagerID, truncate(b.Address, 30), b.ContactNo)
				}
				return nil
			})
		},
	}
}
