// Package docstore keeps the original uploaded document files, keyed by
// their sanitized names.
package docstore

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ziadkadry99/chaxai/internal/apperr"
)

// Document describes a stored file.
type Document struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// Store is a flat namespace of named files.
type Store interface {
	// Put writes data under name, replacing any existing file. The write is
	// atomic: readers see the old content or the new, never a mix.
	Put(ctx context.Context, name string, data []byte) (Document, error)
	// Get returns the content of name, or a NotFound error.
	Get(ctx context.Context, name string) ([]byte, error)
	// Stat returns metadata for name, or a NotFound error.
	Stat(ctx context.Context, name string) (Document, error)
	// Delete removes name, or returns a NotFound error.
	Delete(ctx context.Context, name string) error
	// List returns all stored documents sorted by name.
	List(ctx context.Context) ([]Document, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeName reduces a client-supplied file name to a safe base name.
// Directory components are dropped, so "../../etc/passwd" becomes "passwd",
// and any character outside [A-Za-z0-9_.-] is replaced with "_". Names that
// are empty or consist only of dots are rejected.
func SanitizeName(name string) (string, error) {
	// Treat backslashes as separators too, whatever the host OS.
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(filepath.ToSlash(strings.TrimSpace(name)))
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || strings.Trim(base, "_") == "" {
		return "", apperr.Newf(apperr.KindInvalidName, "invalid file name %q", name)
	}
	return base, nil
}

func notFound(name string) error {
	return apperr.Newf(apperr.KindNotFound, "document %q not found", name)
}
