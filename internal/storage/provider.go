// Package storage defines the workspace file-system abstraction.
package storage

// Provider is the interface for workspace file operations. All paths are
// relative to the workspace root and use forward slashes.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Create writes a new file and fails with apperr.ErrAlreadyExists if
	// path is taken.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether path names an existing file or directory.
	Exists(path string) (bool, error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// PageText returns the plain text of pages [from, to] of a PDF, one
	// string per page. A to of zero or less reads through the last page.
	PageText(path string, from, to int) ([]string, error)
}
