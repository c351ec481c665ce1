package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

func TestImportCatalog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()

	require.NoError(t, importCatalog(ctx, dbPath, filepath.Join("testdata", "catalog.yaml")))

	manager, err := library.NewLibraryManager(dbPath)
	require.NoError(t, err)
	defer manager.Close()

	books, err := manager.ListBooks(ctx, library.BookFilter{Category: "classic"})
	require.NoError(t, err)
	assert.Len(t, books, 2)

	assert.NoError(t, manager.AuthenticateEmployee(ctx, "E101", "desk-secret"))
	assert.ErrorIs(t, manager.AuthenticateEmployee(ctx, "E101", "wrong"), library.ErrInvalidCredentials)

	// Importing the same catalog again hits the existing branch first.
	err = importCatalog(ctx, dbPath, filepath.Join("testdata", "catalog.yaml"))
	assert.ErrorIs(t, err, library.ErrAlreadyExists)
}

func TestImportCatalog_Reset(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()
	catalog := filepath.Join("testdata", "catalog.yaml")

	require.NoError(t, importCatalog(ctx, dbPath, catalog))
	resetDatabase(dbPath)
	require.NoError(t, importCatalog(ctx, dbPath, catalog))
}

func TestImportCatalog_MissingFile(t *testing.T) {
	err := importCatalog(context.Background(), filepath.Join(t.TempDir(), "library.db"), "testdata/nope.yaml")
	assert.Error(t, err)
}
