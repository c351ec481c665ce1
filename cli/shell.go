package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

// NewShellCommand creates the interactive desk shell.
func NewShellCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive lending desk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session) error {
				d := &desk{
					opts: opts,
					cmd:  cmd,
					s:    s,
					sc:   bufio.NewScanner(cmd.InOrStdin()),
					out:  cmd.OutOrStdout(),
				}
				return d.run()
			})
		},
	}
}

// desk is one interactive session. Errors from individual commands are printed, not returned.
type desk struct {
	opts *RootOptions
	cmd  *cobra.Command
	s    *session
	sc   *bufio.Scanner
	out  io.Writer
}

const deskHelp = `Available commands:
  Circulation: issue, return, loans, overdue
  Catalog: list books, search book, show book
  System: audit, help, exit`

func (d *desk) run() error {
	fmt.Fprintln(d.out, "Welcome to the library lending desk!")
	fmt.Fprintln(d.out, deskHelp)

	for {
		fmt.Fprint(d.out, "\n> ")
		if !d.sc.Scan() {
			break
		}

		switch strings.TrimSpace(d.sc.Text()) {
		case "":
		case "issue":
			d.handleIssue()
		case "return":
			d.handleReturn()
		case "loans":
			d.handleLoans(0)
		case "overdue":
			d.handleLoans(d.s.cfg.Lending.OverdueDays)
		case "list books":
			d.handleListBooks(library.BookFilter{})
		case "search book":
			if q, ok := d.ask("Query: "); ok {
				d.handleListBooks(library.BookFilter{Query: q})
			}
		case "show book":
			d.handleShowBook()
		case "audit":
			d.handleAudit()
		case "help":
			fmt.Fprintln(d.out, deskHelp)
		case "exit", "quit":
			fmt.Fprintln(d.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(d.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}
	return d.sc.Err()
}

// ask prints prompt and reads one trimmed line. ok is false at end of input.
func (d *desk) ask(prompt string) (string, bool) {
	fmt.Fprint(d.out, prompt)
	if !d.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(d.sc.Text()), true
}

func (d *desk) printErr(err error) {
	fmt.Fprintf(d.out, "Error [%s]: %v\n", ErrorCode(err), err)
}

func (d *desk) handleIssue() {
	var req library.IssueRequest
	var ok bool
	if req.ISBN, ok = d.ask("Book ISBN: "); !ok {
		return
	}
	if req.MemberID, ok = d.ask("Member ID: "); !ok {
		return
	}
	if req.EmployeeID, ok = d.ask("Employee ID: "); !ok {
		return
	}

	res, err := issueBook(d.cmd, d.opts, d.s, req)
	if err != nil {
		d.printErr(err)
		return
	}
	fmt.Fprintln(d.out, describeIssue(res))
}

func (d *desk) handleReturn() {
	var req library.ReturnRequest
	var ok bool
	if req.IssuedID, ok = d.ask("Issued ID: "); !ok {
		return
	}
	if req.QualityNote, ok = d.ask("Book quality (optional): "); !ok {
		return
	}

	res, err := d.s.manager.ReturnBook(d.cmd.Context(), req)
	if err != nil {
		if errors.Is(err, library.ErrDuplicateReturn) {
			fmt.Fprintf(d.out, "Issue %s has already been returned.\n", req.IssuedID)
			return
		}
		d.printErr(err)
		return
	}
	fmt.Fprintln(d.out, describeReturn(res))
}

func (d *desk) handleLoans(overdueDays int) {
	loans, err := d.s.manager.OutstandingIssues(d.cmd.Context(), "", overdueDays)
	if err != nil {
		d.printErr(err)
		return
	}
	writeLoans(d.out, loans)
}

func (d *desk) handleListBooks(f library.BookFilter) {
	books, err := d.s.manager.ListBooks(d.cmd.Context(), f)
	if err != nil {
		d.printErr(err)
		return
	}
	writeBooks(d.out, books)
}

func (d *desk) handleShowBook() {
	isbn, ok := d.ask("Book ISBN: ")
	if !ok {
		return
	}
	b, err := d.s.manager.GetBook(d.cmd.Context(), isbn)
	if err != nil {
		d.printErr(err)
		return
	}
	fmt.Fprintln(d.out, library.PrettyBook(b))
}

func (d *desk) handleAudit() {
	mismatches, err := d.s.manager.AuditAvailability(d.cmd.Context())
	if err != nil {
		d.printErr(err)
		return
	}
	if len(mismatches) == 0 {
		fmt.Fprintln(d.out, "No availability mismatches.")
		return
	}
	for _, m := range mismatches {
		fmt.Fprintf(d.out, "%s: available=%s outstanding=%d\n", m.ISBN, yesNo(m.Available), m.Outstanding)
	}
}
