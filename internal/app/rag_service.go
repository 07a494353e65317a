package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicedoc/internal/ai"
	"voicedoc/internal/metrics"
	"voicedoc/internal/model"
	"voicedoc/internal/pkg/chunker"
	"voicedoc/internal/pkg/docextract"
	"voicedoc/internal/vectorstore"
)

const (
	docSearchTopK      = 16
	maxExcerpts        = 5
	memorySearchTopK   = 3
	defaultTemperature = 0.6
	maxTemperature     = 1.5
	turnWriteTimeout   = 15 * time.Second

	fieldSource = "source"
	fieldPage   = "page"
	fieldChunk  = "chunk"
)

var (
	ErrNoFiles              = errors.New("no files uploaded")
	ErrNoExtractableContent = errors.New("no extractable text found in the uploaded files")
	ErrNoDocumentNames      = errors.New("no document names supplied")
	ErrEmptyQuery           = errors.New("empty query")
	ErrMissingUser          = errors.New("missing user id")
)

// VectorStore is the namespaced store surface the service needs.
// *vectorstore.Adapter implements it.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error
	Search(ctx context.Context, namespace, query string, topK int, fields []string) []vectorstore.Hit
	DeleteByField(ctx context.Context, namespace, field string, value any) int
	ClearNamespace(ctx context.Context, namespace string) error
}

type DocumentRegistry interface {
	Add(userID string, desc model.DocumentDescriptor) (bool, error)
	Remove(userID string, names []string) ([]string, error)
	List(userID string) []model.DocumentDescriptor
}

// DocumentListCache fronts DocumentRegistry.List. Implementations must treat
// their own failures as misses.
type DocumentListCache interface {
	Get(ctx context.Context, userID string) ([]model.DocumentDescriptor, bool)
	Set(ctx context.Context, userID string, docs []model.DocumentDescriptor)
	Invalidate(ctx context.Context, userID string)
}

// TurnRecorder persists a finished question/answer exchange.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, turn model.ConversationTurn) error
}

type Extractor interface {
	Extract(raw []byte, kind docextract.Type, name string) ([]docextract.Unit, error)
}

// RAGServiceDeps.DefaultTemperature applies when a question carries none;
// nil means 0.6.
type RAGServiceDeps struct {
	Docs               VectorStore
	Memory             VectorStore
	Registry           DocumentRegistry
	ListCache          DocumentListCache
	Extractor          Extractor
	Chunker            *chunker.Chunker
	LLM                ai.Completer
	ChatConfig         ai.ChatConfig
	DefaultTemperature *float64
	Turns              TurnRecorder
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

type RAGService struct {
	docs        VectorStore
	memory      VectorStore
	registry    DocumentRegistry
	listCache   DocumentListCache
	extractor   Extractor
	chunker     *chunker.Chunker
	llm         ai.Completer
	chatConfig  ai.ChatConfig
	defaultTemp float64
	turns       TurnRecorder
	metrics     *metrics.Metrics
	logger      *slog.Logger

	now      func() time.Time
	newID    func() string
	inflight sync.WaitGroup

	// listMu orders registry writes against cache fills on a list miss.
	listMu sync.RWMutex
}

func NewRAGService(deps RAGServiceDeps) *RAGService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = docextract.New()
	}
	ck := deps.Chunker
	if ck == nil {
		ck = chunker.New(chunker.DefaultMaxChars, chunker.DefaultOverlap)
	}
	defaultTemp := defaultTemperature
	if deps.DefaultTemperature != nil {
		defaultTemp = clampTemperature(deps.DefaultTemperature, defaultTemperature)
	}
	turns := deps.Turns
	if turns == nil {
		turns = NewMemoryTurnWriter(deps.Memory)
	}
	return &RAGService{
		docs:        deps.Docs,
		memory:      deps.Memory,
		registry:    deps.Registry,
		listCache:   deps.ListCache,
		extractor:   extractor,
		chunker:     ck,
		llm:         deps.LLM,
		chatConfig:  deps.ChatConfig,
		defaultTemp: defaultTemp,
		turns:       turns,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Wait blocks until background memory writes started by Ask have finished.
func (s *RAGService) Wait() {
	s.inflight.Wait()
}

type UploadFile struct {
	Name string
	Data []byte
}

type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type IngestResult struct {
	Message string        `json:"message"`
	Files   int           `json:"files"`
	Pages   int           `json:"pages"`
	Chunks  int           `json:"chunks"`
	Skipped []SkippedFile `json:"skipped,omitempty"`
}

// Ingest indexes a batch of uploads into the caller's document namespace.
// Every file's type is checked before any file is read, so an unsupported
// name rejects the batch without side effects.
func (s *RAGService) Ingest(ctx context.Context, userID string, files []UploadFile) (*IngestResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	kinds := make([]docextract.Type, len(files))
	for i, f := range files {
		kind, err := docextract.TypeFromFilename(f.Name)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}

	result := &IngestResult{}
	changed := false
	for i, f := range files {
		name := strings.TrimSpace(f.Name)
		logger := s.logger.With("user_id", userID, "file", name)

		pages, chunks, err := s.ingestFile(ctx, userID, name, kinds[i], f.Data)
		if errors.Is(err, vectorstore.ErrStoreCapabilityMissing) {
			return nil, err
		}
		if err != nil {
			logger.Warn("skip uploaded file", "error", err)
			s.metrics.FileSkipped(skipReason(err))
			result.Skipped = append(result.Skipped, SkippedFile{Name: name, Reason: err.Error()})
			continue
		}
		if chunks == 0 {
			s.metrics.FileSkipped("empty")
			result.Skipped = append(result.Skipped, SkippedFile{Name: name, Reason: "no extractable text"})
			continue
		}

		result.Files++
		result.Pages += pages
		result.Chunks += chunks
		s.metrics.ChunksIngested(chunks)

		s.listMu.Lock()
		added, err := s.registry.Add(userID, model.DocumentDescriptor{
			Name:       name,
			Type:       descriptorType(kinds[i]),
			Pages:      pages,
			UploadedAt: s.now().UTC(),
		})
		s.listMu.Unlock()
		if err != nil {
			logger.Error("register document failed", "error", err)
		}
		changed = changed || added
		logger.Info("document ingested", "pages", pages, "chunks", chunks)
	}
	if changed {
		s.invalidateList(ctx, userID)
	}

	if result.Files == 0 {
		return result, ErrNoExtractableContent
	}
	result.Message = fmt.Sprintf("Ingested %d document(s).", result.Files)
	return result, nil
}

func (s *RAGService) ingestFile(ctx context.Context, userID, name string, kind docextract.Type, raw []byte) (pages, chunks int, err error) {
	units, err := s.extractor.Extract(raw, kind, name)
	if err != nil {
		return 0, 0, err
	}
	if len(units) == 0 {
		return 0, 0, nil
	}

	var records []vectorstore.Record
	seen := make(map[int]struct{})
	for _, u := range units {
		s.chunker.Each(u.Text, func(index int, text string) bool {
			records = append(records, vectorstore.Record{
				ID:   userID + ":doc:" + s.newID(),
				Text: text,
				Attributes: map[string]any{
					fieldSource: name,
					fieldPage:   u.Page,
					fieldChunk:  index,
				},
			})
			seen[u.Page] = struct{}{}
			return true
		})
	}
	if len(records) == 0 {
		return 0, 0, nil
	}
	if err := s.docs.Upsert(ctx, userID, records); err != nil {
		return 0, 0, err
	}
	return max(1, len(seen)), len(records), nil
}

func skipReason(err error) string {
	var perr *docextract.ParseError
	switch {
	case errors.As(err, &perr):
		return "parse"
	case errors.Is(err, docextract.ErrCapabilityUnavailable):
		return "capability"
	default:
		return "store"
	}
}

func descriptorType(kind docextract.Type) model.DocumentType {
	switch kind {
	case docextract.TypePDF:
		return model.DocumentPDF
	case docextract.TypeDOCX:
		return model.DocumentDOCX
	default:
		return model.DocumentText
	}
}

// ListDocuments returns the caller's descriptors in upload order.
//
// A cache fill never outlives a registry write made by this service: the
// write waits for the fill and the invalidation that follows it removes the
// entry. Writes made by another process sharing the cache are not ordered,
// so their readers may see a stale list until the cache TTL expires.
func (s *RAGService) ListDocuments(ctx context.Context, userID string) ([]model.DocumentDescriptor, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if s.listCache != nil {
		if docs, ok := s.listCache.Get(ctx, userID); ok {
			return docs, nil
		}
	}

	s.listMu.RLock()
	defer s.listMu.RUnlock()
	docs := s.registry.List(userID)
	if docs == nil {
		docs = []model.DocumentDescriptor{}
	}
	if s.listCache != nil {
		s.listCache.Set(ctx, userID, docs)
	}
	return docs, nil
}

type DeleteResult struct {
	Removed []string `json:"removed"`
	Deleted int      `json:"deleted"`
}

// DeleteDocuments removes the named documents' records best-effort and drops
// their descriptors regardless of how many records were found.
func (s *RAGService) DeleteDocuments(ctx context.Context, userID string, names []string) (*DeleteResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoDocumentNames
	}

	deleted := 0
	for _, name := range cleaned {
		deleted += s.docs.DeleteByField(ctx, userID, fieldSource, name)
	}
	s.listMu.Lock()
	_, err := s.registry.Remove(userID, cleaned)
	s.listMu.Unlock()
	if err != nil {
		s.logger.Error("unregister documents failed", "user_id", userID, "error", err)
	}
	s.invalidateList(ctx, userID)

	return &DeleteResult{Removed: cleaned, Deleted: deleted}, nil
}

// ClearMemory erases every conversation turn of the caller.
func (s *RAGService) ClearMemory(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	if err := s.memory.ClearNamespace(ctx, userID); err != nil {
		return fmt.Errorf("clear memory failed: %w", err)
	}
	return nil
}

func (s *RAGService) invalidateList(ctx context.Context, userID string) {
	if s.listCache != nil {
		s.listCache.Invalidate(ctx, userID)
	}
}

type AskInput struct {
	UserID          string
	Message         string
	SelectedSources []string
	Temperature     *float64
}

type AskResult struct {
	Answer   string          `json:"answer"`
	Excerpts []model.Excerpt `json:"excerpts"`
}

// Ask answers a question from the caller's documents and recent turns in a
// style suited to text-to-speech.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if input.UserID == "" {
		return nil, ErrMissingUser
	}
	query := strings.TrimSpace(input.Message)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	temperature := clampTemperature(input.Temperature, s.defaultTemp)

	excerpts := s.retrieveExcerpts(ctx, input.UserID, query, input.SelectedSources)
	if len(excerpts) == 0 {
		s.metrics.RetrievalEmpty("documents")
	}
	history := s.retrieveMemory(ctx, input.UserID, query)
	if len(history) == 0 {
		s.metrics.RetrievalEmpty("memory")
	}

	cfg := s.chatConfig
	cfg.Temperature = temperature
	messages := []ai.ChatMessage{
		{Role: "system", Content: systemPrompt()},
		{Role: "user", Content: userPrompt(query, excerpts, history)},
	}

	started := time.Now()
	raw, err := s.llm.Complete(ctx, cfg, messages)
	s.metrics.ObserveCompletion(time.Since(started).Seconds())
	if err != nil {
		s.metrics.CompletionFailed()
		var cse *ai.CompletionServiceError
		if !errors.As(err, &cse) {
			err = &ai.CompletionServiceError{Err: err}
		}
		return nil, err
	}
	answer := VoiceClean(raw)

	s.recordTurn(ctx, model.ConversationTurn{
		ID:        input.UserID + ":chat:" + s.newID(),
		UserID:    input.UserID,
		Question:  query,
		Answer:    answer,
		CreatedAt: s.now().UTC(),
	})

	return &AskResult{Answer: answer, Excerpts: excerpts}, nil
}

func clampTemperature(t *float64, fallback float64) float64 {
	if t == nil {
		return fallback
	}
	return min(max(*t, 0), maxTemperature)
}

func (s *RAGService) retrieveExcerpts(ctx context.Context, userID, query string, selected []string) []model.Excerpt {
	allowed := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		allowed[name] = struct{}{}
	}

	hits := s.docs.Search(ctx, userID, query, docSearchTopK, []string{vectorstore.TextField, fieldSource, fieldPage})
	excerpts := make([]model.Excerpt, 0, maxExcerpts)
	for _, h := range hits {
		text := chunker.Normalize(h.String(vectorstore.TextField))
		if text == "" {
			continue
		}
		source := h.String(fieldSource)
		if source == "" {
			source = "doc"
		}
		if len(allowed) > 0 {
			if _, ok := allowed[source]; !ok {
				continue
			}
		}
		page := h.Int(fieldPage, 1)
		if page < 1 {
			page = 1
		}
		excerpts = append(excerpts, model.Excerpt{Source: source, Page: page, Text: text})
		if len(excerpts) == maxExcerpts {
			break
		}
	}
	return excerpts
}

func (s *RAGService) retrieveMemory(ctx context.Context, userID, query string) []string {
	hits := s.memory.Search(ctx, userID, query, memorySearchTopK, []string{vectorstore.TextField})
	var turns []string
	for _, h := range hits {
		if text := chunker.Normalize(h.String(vectorstore.TextField)); text != "" {
			turns = append(turns, text)
		}
	}
	return turns
}

// recordTurn hands the turn to the recorder without delaying the response.
// The write outlives the request context.
func (s *RAGService) recordTurn(ctx context.Context, turn model.ConversationTurn) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnWriteTimeout)
		defer cancel()
		if err := s.turns.RecordTurn(wctx, turn); err != nil {
			s.metrics.MemoryTurn(false)
			s.logger.Warn("record conversation turn failed", "user_id", turn.UserID, "error", err)
			return
		}
		s.metrics.MemoryTurn(true)
	}()
}

// MemoryTurnWriter stores turns directly in the memory namespace.
type MemoryTurnWriter struct {
	memory VectorStore
}

func NewMemoryTurnWriter(memory VectorStore) *MemoryTurnWriter {
	return &MemoryTurnWriter{memory: memory}
}

func (w *MemoryTurnWriter) RecordTurn(ctx context.Context, turn model.ConversationTurn) error {
	if turn.UserID == "" {
		return ErrMissingUser
	}
	return w.memory.Upsert(ctx, turn.UserID, []vectorstore.Record{{ID: turn.ID, Text: turn.Text()}})
}
