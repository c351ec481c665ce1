package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/library"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		dbPath string
		reset  bool
	)

	cmd := &cobra.Command{
		Use:   "import_catalog <catalog.yaml>",
		Short: "Load branches, staff, members and books from a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				resetDatabase(dbPath)
			}
			return importCatalog(cmd.Context(), dbPath, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&dbPath, "db", "library.db", "path to SQLite database")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the database before importing")

	return cmd
}

// resetDatabase removes the database and its WAL side files.
func resetDatabase(dbPath string) {
	fmt.Println("Cleaning up existing database files...")
	for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
		}
	}
	fmt.Println("Database cleanup complete.")
}

func importCatalog(ctx context.Context, dbPath, catalogPath string) error {
	f, err := os.Open(catalogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	catalog, err := library.LoadCatalog(f)
	if err != nil {
		return err
	}

	logger := config.NewLogger(config.LogConfig{Level: "info", Format: "text"}, os.Stderr)
	manager, err := library.NewLibraryManager(dbPath, library.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer manager.Close()

	fmt.Printf("Importing catalog from %s...\n", catalogPath)
	sum, err := manager.ImportCatalog(ctx, catalog)
	fmt.Printf("Branches: %d, employees: %d, members: %d, books: %d\n", sum.Branches, sum.Employees, sum.Members, sum.Books)
	if err != nil {
		return err
	}
	fmt.Printf("\nImport complete!\n")

	if sum.Books == 0 {
		return nil
	}
	books, err := manager.ListBooks(ctx, library.BookFilter{})
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}
	fmt.Println("\nCatalog:")
	fmt.Printf("%-14s %-32s %-12s %8s %s\n", "ISBN", "Title", "Category", "Price", "Available")
	fmt.Println(strings.Repeat("-", 79))
	for _, b := range books {
		fmt.Println(library.PrettyBook(b))
	}
	return nil
}
