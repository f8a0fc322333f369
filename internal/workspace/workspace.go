// Package workspace opens one library: its folder, its store and its
// identity. A Workspace is acquired per operation and closed with defer.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/storage"
	"github.com/starford/lectern/internal/store"
	"github.com/starford/lectern/internal/tunables"
)

// StoreFile is the store's file name inside storage.MetaDir.
const StoreFile = "library.db"

// Workspace is an open library.
type Workspace struct {
	Library models.Library
	Files   *storage.FS
	DB      *store.DB
}

// StorePath returns where the store of the workspace at root lives.
func StorePath(root string) string {
	return filepath.Join(root, storage.MetaDir, StoreFile)
}

// Open opens the workspace at root. On first use it creates the store,
// mints a library ID and seeds the queue tunables from tun.
func Open(ctx context.Context, root string, tun *tunables.Set) (*Workspace, error) {
	files, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(files.Root(), storage.MetaDir), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", storage.MetaDir, err)
	}
	db, err := store.Open(StorePath(files.Root()))
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	lib, err := db.Library(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		lib, err = initialise(ctx, db, filepath.Base(files.Root()), tun)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{Library: lib, Files: files, DB: db}, nil
}

// OpenExisting opens a workspace that must already have a store.
func OpenExisting(ctx context.Context, root string) (*Workspace, error) {
	if _, err := os.Stat(StorePath(root)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workspace: no library at %s: %w", root, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return Open(ctx, root, nil)
}

func initialise(ctx context.Context, db *store.DB, name string, tun *tunables.Set) (models.Library, error) {
	if tun == nil {
		tun = tunables.Defaults()
	}
	lib := models.Library{ID: uuid.NewString(), Name: name}
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateLibrary(ctx, lib); err != nil {
			return err
		}
		for _, row := range tun.Rows(lib.ID) {
			if err := tx.SetQueueConfig(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Library{}, err
	}
	return lib, nil
}

// Root returns the absolute workspace folder.
func (w *Workspace) Root() string { return w.Files.Root() }

// Close releases the store.
func (w *Workspace) Close() error {
	return w.DB.Close()
}
