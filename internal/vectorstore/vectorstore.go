// Package vectorstore normalizes namespaced record storage across vector
// store clients whose method surfaces differ.
//
// A client handle is probed for the optional capability interfaces declared
// here, in a fixed preference order, the same way io.Copy probes for
// io.WriterTo. A client signals that an entry point exists but cannot serve
// the call (for example an older API version) by returning ErrUnsupported,
// which makes the adapter fall through to the next strategy.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// TextField carries the embeddable text of every record type so the store's
// integrated embedding applies uniformly.
const TextField = "chunk_text"

var (
	ErrUnsupported            = errors.New("vector store operation unsupported by client")
	ErrStoreCapabilityMissing = errors.New("vector store client has no usable upsert entry point")
	ErrStoreOperationFailed   = errors.New("vector store operation failed")
	ErrMissingNamespace       = errors.New("vector store namespace is required")
)

// Record is one upsertable item. Attributes must not contain TextField.
type Record struct {
	ID         string
	Text       string
	Attributes map[string]any
}

// Fields flattens the record into the field map stored alongside it.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Attributes)+1)
	for k, v := range r.Attributes {
		out[k] = v
	}
	out[TextField] = r.Text
	return out
}

type SearchRequest struct {
	Query  string
	TopK   int
	Fields []string
}

// Hit is one ranked search result.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

// String returns the named field rendered as text, or "" when absent.
func (h Hit) String(name string) string {
	v, ok := h.Fields[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the named field as an integer, or fallback when absent or not numeric.
func (h Hit) Int(name string, fallback int) int {
	switch t := h.Fields[name].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return fallback
}

// Client is any store client handle. Its abilities are discovered through
// the capability interfaces below.
type Client any

type RecordUpserter interface {
	UpsertRecords(ctx context.Context, namespace string, records []Record) error
}

type RecordSearcher interface {
	SearchRecords(ctx context.Context, namespace string, req SearchRequest) ([]Hit, error)
}

type IDDeleter interface {
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// FilterDeleter deletes records whose fields equal every filter value. The
// returned count is -1 when the store does not report it.
type FilterDeleter interface {
	DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) (int, error)
}

type NamespaceDeleter interface {
	DeleteNamespace(ctx context.Context, namespace string) error
}

// AllDeleter removes every record of a namespace while keeping the namespace itself.
type AllDeleter interface {
	DeleteAll(ctx context.Context, namespace string) error
}

// Pinger is implemented by clients backed by a remote service or a file.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Capabilities lists which entry points a client exposes.
type Capabilities struct {
	Upsert          bool `json:"upsert"`
	Search          bool `json:"search"`
	DeleteIDs       bool `json:"delete_ids"`
	DeleteByFilter  bool `json:"delete_by_filter"`
	DeleteNamespace bool `json:"delete_namespace"`
	DeleteAll       bool `json:"delete_all"`
}

func Probe(c Client) Capabilities {
	_, upsert := c.(RecordUpserter)
	_, search := c.(RecordSearcher)
	_, ids := c.(IDDeleter)
	_, filter := c.(FilterDeleter)
	_, ns := c.(NamespaceDeleter)
	_, all := c.(AllDeleter)
	return Capabilities{
		Upsert:          upsert,
		Search:          search,
		DeleteIDs:       ids,
		DeleteByFilter:  filter,
		DeleteNamespace: ns,
		DeleteAll:       all,
	}
}
