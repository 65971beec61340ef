package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and ephemeral deployments.
type MemStore struct {
	mu    sync.RWMutex
	files map[string]memFile
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]memFile)}
}

func (s *MemStore) Put(_ context.Context, name string, data []byte) (Document, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return Document{}, err
	}
	if clean != name {
		return Document{}, fmt.Errorf("docstore: unsanitized name %q", name)
	}
	cp := append([]byte(nil), data...)
	now := time.Now()

	s.mu.Lock()
	s.files[name] = memFile{data: cp, modTime: now}
	s.mu.Unlock()

	return Document{Name: name, Size: int64(len(cp)), ModTime: now}, nil
}

func (s *MemStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	if !ok {
		return nil, notFound(name)
	}
	return append([]byte(nil), f.data...), nil
}

func (s *MemStore) Stat(_ context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	if !ok {
		return Document{}, notFound(name)
	}
	return Document{Name: name, Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

func (s *MemStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return notFound(name)
	}
	delete(s.files, name)
	return nil
}

func (s *MemStore) List(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.files))
	for name, f := range s.files {
		docs = append(docs, Document{Name: name, Size: int64(len(f.data)), ModTime: f.modTime})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
