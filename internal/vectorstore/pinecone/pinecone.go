// Package pinecone talks to one Pinecone index with integrated embedding over
// its data-plane REST API.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicedoc/internal/vectorstore"
)

const DefaultAPIVersion = "2025-04"

type Config struct {
	APIKey     string
	Host       string
	APIVersion string
	Timeout    time.Duration
}

type Store struct {
	baseURL    string
	apiKey     string
	apiVersion string
	httpClient *http.Client
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pinecone response status %d: %s", e.Code, e.Body)
}

func New(cfg Config) (*Store, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("pinecone index host is empty")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		baseURL:    strings.TrimRight(host, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: version,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *Store) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build pinecone request failed: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("X-Pinecone-API-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pinecone response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(raw)}
	}
	return raw, nil
}

func (s *Store) UpsertRecords(ctx context.Context, namespace string, records []vectorstore.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		line := r.Fields()
		line["_id"] = r.ID
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode record %s failed: %w", r.ID, err)
		}
	}
	_, err := s.do(ctx, http.MethodPost, "/records/namespaces/"+url.PathEscape(namespace)+"/upsert", "application/x-ndjson", buf.Bytes())
	return err
}

type searchHit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Fields map[string]any `json:"fields"`
}

func (s *Store) SearchRecords(ctx context.Context, namespace string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	payload := map[string]any{
		"query": map[string]any{
			"inputs": map[string]any{"text": req.Query},
			"top_k":  req.TopK,
		},
	}
	if len(req.Fields) > 0 {
		payload["fields"] = req.Fields
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request failed: %w", err)
	}
	raw, err := s.do(ctx, http.MethodPost, "/records/namespaces/"+url.PathEscape(namespace)+"/search", "application/json", body)
	if err != nil {
		return nil, err
	}

	// Hits live under result.hits; some gateway versions return them at the top level.
	var parsed struct {
		Result struct {
			Hits []searchHit `json:"hits"`
		} `json:"result"`
		Hits []searchHit `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response failed: %w", err)
	}
	found := parsed.Result.Hits
	if len(found) == 0 {
		found = parsed.Hits
	}
	hits := make([]vectorstore.Hit, 0, len(found))
	for _, h := range found {
		hits = append(hits, vectorstore.Hit{ID: h.ID, Score: h.Score, Fields: h.Fields})
	}
	return hits, nil
}

func (s *Store) deleteVectors(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal delete request failed: %w", err)
	}
	_, err = s.do(ctx, http.MethodPost, "/vectors/delete", "application/json", body)
	return err
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	// The data plane caps ids per delete call.
	const batch = 1000
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		if err := s.deleteVectors(ctx, map[string]any{"ids": ids[start:end], "namespace": namespace}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll treats a missing namespace as already empty.
func (s *Store) DeleteAll(ctx context.Context, namespace string) error {
	err := s.deleteVectors(ctx, map[string]any{"deleteAll": true, "namespace": namespace})
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// DeleteNamespace reports ErrUnsupported when the API version in use has no
// namespace endpoint, so the caller can fall back to DeleteAll.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.do(ctx, http.MethodDelete, "/namespaces/"+url.PathEscape(namespace), "", nil)
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
			return fmt.Errorf("%w: %v", vectorstore.ErrUnsupported, err)
		}
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodPost, "/describe_index_stats", "application/json", []byte("{}"))
	return err
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if r := []rune(s); len(r) > 240 {
		return string(r[:240])
	}
	return s
}
