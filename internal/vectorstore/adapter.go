package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// FallbackCandidateLimit bounds the search used to locate records when the
	// client cannot delete by filter. Larger documents may leave orphans.
	FallbackCandidateLimit = 5000

	defaultTimeout = 15 * time.Second
)

// Adapter is the single entry point the rest of the service uses to talk to
// a vector store. It is safe for concurrent use when the client is.
type Adapter struct {
	client  Client
	logger  *slog.Logger
	timeout time.Duration
}

func New(client Client, logger *slog.Logger, timeout time.Duration) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{client: client, logger: logger, timeout: timeout}
}

func (a *Adapter) Capabilities() Capabilities {
	return Probe(a.client)
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// Upsert writes records into namespace with a single client call.
func (a *Adapter) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return ErrMissingNamespace
	}
	if len(records) == 0 {
		return nil
	}
	up, ok := a.client.(RecordUpserter)
	if !ok {
		return ErrStoreCapabilityMissing
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := up.UpsertRecords(ctx, namespace, records); err != nil {
		if errors.Is(err, ErrUnsupported) {
			return ErrStoreCapabilityMissing
		}
		return fmt.Errorf("upsert %d records failed: %w", len(records), err)
	}
	return nil
}

// Search returns up to topK hits projected to fields. Failures are logged and
// reported as no hits.
func (a *Adapter) Search(ctx context.Context, namespace, query string, topK int, fields []string) []Hit {
	if namespace == "" || topK <= 0 {
		return nil
	}
	searcher, ok := a.client.(RecordSearcher)
	if !ok {
		a.logger.Warn("vector store search unavailable", "namespace", namespace)
		return nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	hits, err := searcher.SearchRecords(ctx, namespace, SearchRequest{Query: query, TopK: topK, Fields: fields})
	if err != nil {
		a.logger.Warn("vector store search failed", "namespace", namespace, "error", err)
		return nil
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	if len(fields) == 0 {
		return hits
	}
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		projected := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := h.Fields[f]; ok {
				projected[f] = v
			}
		}
		out = append(out, Hit{ID: h.ID, Score: h.Score, Fields: projected})
	}
	return out
}

// DeleteByField removes every record in namespace whose field equals value
// and returns the number removed when known. It never fails; a store that
// cannot serve any strategy yields 0.
func (a *Adapter) DeleteByField(ctx context.Context, namespace, field string, value any) int {
	if namespace == "" || field == "" {
		return 0
	}
	logger := a.logger.With("namespace", namespace, "field", field)

	if fd, ok := a.client.(FilterDeleter); ok {
		n, err := a.deleteByFilter(ctx, fd, namespace, map[string]any{field: value})
		switch {
		case err == nil:
			return n
		case errors.Is(err, ErrUnsupported):
			logger.Debug("filtered delete unsupported, falling back to search")
		default:
			logger.Warn("filtered delete failed, falling back to search", "error", err)
		}
	}

	searcher, canSearch := a.client.(RecordSearcher)
	deleter, canDelete := a.client.(IDDeleter)
	if !canSearch || !canDelete {
		logger.Warn("vector store cannot delete by field")
		return 0
	}

	ids := a.matchingIDs(ctx, searcher, namespace, field, value)
	if len(ids) == 0 {
		return 0
	}
	dctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := deleter.DeleteIDs(dctx, namespace, ids); err != nil {
		logger.Warn("delete by ids failed", "count", len(ids), "error", err)
		return 0
	}
	return len(ids)
}

func (a *Adapter) deleteByFilter(ctx context.Context, fd FilterDeleter, namespace string, filter map[string]any) (int, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	n, err := fd.DeleteByFilter(ctx, namespace, filter)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func (a *Adapter) matchingIDs(ctx context.Context, searcher RecordSearcher, namespace, field string, value any) []string {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprint(value)
	hits, err := searcher.SearchRecords(ctx, namespace, SearchRequest{
		Query:  query,
		TopK:   FallbackCandidateLimit,
		Fields: []string{field},
	})
	if err != nil {
		a.logger.Warn("candidate search failed", "namespace", namespace, "error", err)
		return nil
	}
	var ids []string
	for _, h := range hits {
		if h.ID != "" && h.String(field) == query {
			ids = append(ids, h.ID)
		}
	}
	return ids
}

// ClearNamespace removes every record in namespace. Namespace-level wipes are
// tried first, then delete-all scoped to the namespace. It fails only when no
// strategy succeeds.
func (a *Adapter) ClearNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return ErrMissingNamespace
	}
	var errs []error

	if nd, ok := a.client.(NamespaceDeleter); ok {
		err := a.call(ctx, func(ctx context.Context) error { return nd.DeleteNamespace(ctx, namespace) })
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("delete namespace: %w", err))
	}
	if ad, ok := a.client.(AllDeleter); ok {
		err := a.call(ctx, func(ctx context.Context) error { return ad.DeleteAll(ctx, namespace) })
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("delete all: %w", err))
	}

	if len(errs) == 0 {
		return fmt.Errorf("%w: no namespace clear entry point", ErrStoreOperationFailed)
	}
	a.logger.Warn("clear namespace failed", "namespace", namespace, "error", errors.Join(errs...))
	return fmt.Errorf("%w: %w", ErrStoreOperationFailed, errors.Join(errs...))
}

func (a *Adapter) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return fn(ctx)
}
