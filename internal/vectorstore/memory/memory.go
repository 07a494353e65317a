// Package memory is an in-process vector store client for development and
// tests. It supports upsert, search, delete by ids and a namespace wipe.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"voicedoc/internal/vectorstore"
)

type entry struct {
	id     string
	fields map[string]any
	terms  map[string]struct{}
}

type Store struct {
	mu         sync.RWMutex
	namespaces map[string][]*entry
}

func New() *Store {
	return &Store{namespaces: make(map[string][]*entry)}
}

func (s *Store) UpsertRecords(ctx context.Context, namespace string, records []vectorstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.namespaces[namespace]
	for _, r := range records {
		e := &entry{id: r.ID, fields: r.Fields(), terms: termSet(r.Text)}
		replaced := false
		for i, existing := range entries {
			if existing.id == r.ID {
				entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, e)
		}
	}
	s.namespaces[namespace] = entries
	return nil
}

// SearchRecords scores every record by the share of query terms it contains
// and returns the best TopK. Ties keep insertion order.
func (s *Store) SearchRecords(ctx context.Context, namespace string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := termSet(req.Query)
	entries := s.namespaces[namespace]
	hits := make([]vectorstore.Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, vectorstore.Hit{ID: e.id, Score: overlap(query, e.terms), Fields: copyFields(e.fields)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if req.TopK > 0 && len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}
	return hits, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.namespaces[namespace][:0]
	for _, e := range s.namespaces[namespace] {
		if _, ok := drop[e.id]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.namespaces, namespace)
		return nil
	}
	s.namespaces[namespace] = kept
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Len reports how many records namespace holds.
func (s *Store) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func termSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	n := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			n++
		}
	}
	return float64(n) / float64(len(query))
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
