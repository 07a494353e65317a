// Package registry keeps the per-user list of ingested documents in a JSON
// file. The vector store remains the source of truth for content; the
// registry only answers "which documents does this user have".
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"voicedoc/internal/model"
)

// Documents maps a user id to that user's descriptors in upload order.
type Documents map[string][]model.DocumentDescriptor

// FileRegistry serializes read-modify-write cycles within one process.
// Writers in other processes sharing the file can still lose updates.
type FileRegistry struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewFileRegistry(path string, logger *slog.Logger) *FileRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRegistry{path: path, logger: logger}
}

func (r *FileRegistry) Path() string {
	return r.path
}

// Load returns the whole registry. A missing or unreadable file yields an
// empty registry.
func (r *FileRegistry) Load() Documents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *FileRegistry) load() Documents {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("read document registry failed", "path", r.path, "error", err)
		}
		return Documents{}
	}
	docs := Documents{}
	if err := json.Unmarshal(raw, &docs); err != nil {
		r.logger.Warn("document registry is corrupt, starting empty", "path", r.path, "error", err)
		return Documents{}
	}
	return docs
}

// Save replaces the registry file atomically.
func (r *FileRegistry) Save(docs Documents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(docs)
}

func (r *FileRegistry) save(docs Documents) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode document registry failed: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create registry temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry temp file failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry temp file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry temp file failed: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace registry file failed: %w", err)
	}
	return nil
}

// Add records desc for userID unless a descriptor with the same name exists.
// It reports whether a descriptor was added.
func (r *FileRegistry) Add(userID string, desc model.DocumentDescriptor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.load()
	for _, d := range docs[userID] {
		if d.Name == desc.Name {
			return false, nil
		}
	}
	docs[userID] = append(docs[userID], desc)
	if err := r.save(docs); err != nil {
		return false, err
	}
	return true, nil
}

// Remove drops every descriptor of userID whose name is in names and returns
// the names that were present.
func (r *FileRegistry) Remove(userID string, names []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	docs := r.load()
	current, ok := docs[userID]
	if !ok {
		return nil, nil
	}
	kept := make([]model.DocumentDescriptor, 0, len(current))
	var removed []string
	for _, d := range current {
		if _, hit := drop[d.Name]; hit {
			removed = append(removed, d.Name)
			continue
		}
		kept = append(kept, d)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if len(kept) == 0 {
		delete(docs, userID)
	} else {
		docs[userID] = kept
	}
	if err := r.save(docs); err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *FileRegistry) List(userID string) []model.DocumentDescriptor {
	return r.Load()[userID]
}
