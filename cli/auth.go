package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-ledger/library"
)

// terminalPassword securely reads a password with masking.
func terminalPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required but stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr()) // Add newline after password input
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytePassword)), nil
}

// authorizeEmployee prompts for the desk password of employeeID when one is needed.
// An unknown employee is left for the workflow to report, after the book checks.
func (o *RootOptions) authorizeEmployee(ctx context.Context, cmd *cobra.Command, s *session, employeeID string) error {
	e, err := s.manager.GetEmployee(ctx, employeeID)
	if errors.Is(err, library.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !e.HasPassword() {
		if s.cfg.Lending.RequireEmployeeAuth {
			return fmt.Errorf("employee %q has no desk password: %w", e.ID, library.ErrInvalidCredentials)
		}
		return nil
	}

	password, err := o.readPassword(cmd, fmt.Sprintf("Password for %s (%s): ", e.Name, e.ID))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read password", err)
	}
	if err := s.manager.AuthenticateEmployee(ctx, e.ID, password); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}
