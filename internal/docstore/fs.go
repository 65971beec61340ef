package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ziadkadry99/chaxai/internal/atomicfile"
)

// FSStore stores documents as files in a single directory.
type FSStore struct {
	root string
}

// NewFSStore creates the directory if needed and returns a store rooted there.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("docstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the store directory.
func (s *FSStore) Root() string { return s.root }

// path resolves name inside the root. Names must already be sanitized; this
// is the last line against escaping the directory.
func (s *FSStore) path(name string) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if clean != name {
		return "", fmt.Errorf("docstore: unsanitized name %q", name)
	}
	p := filepath.Join(s.root, clean)
	if rel, err := filepath.Rel(s.root, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("docstore: %q escapes store root", name)
	}
	return p, nil
}

func (s *FSStore) Put(_ context.Context, name string, data []byte) (Document, error) {
	p, err := s.path(name)
	if err != nil {
		return Document{}, err
	}
	if err := atomicfile.Write(p, data, 0o644); err != nil {
		return Document{}, fmt.Errorf("docstore: write %s: %w", name, err)
	}
	return s.Stat(context.Background(), name)
}

func (s *FSStore) Get(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", name, err)
	}
	return data, nil
}

func (s *FSStore) Stat(_ context.Context, name string) (Document, error) {
	p, err := s.path(name)
	if err != nil {
		return Document{}, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, notFound(name)
	}
	if err != nil {
		return Document{}, fmt.Errorf("docstore: stat %s: %w", name, err)
	}
	return Document{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *FSStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(name)
	}
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", name, err)
	}
	return nil
}

func (s *FSStore) List(_ context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}
	var docs []Document
	for _, e := range entries {
		// Skips in-flight temp files, which start with a dot.
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Document{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
