package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voicedoc/internal/ai"
	"voicedoc/internal/app"
	"voicedoc/internal/pkg/jwtutil"
	"voicedoc/internal/registry"
	transporthttp "voicedoc/internal/transport/http"
	"voicedoc/internal/transport/http/handler"
	"voicedoc/internal/vectorstore"
	"voicedoc/internal/vectorstore/memory"
)

const secret = "router-secret"

type cannedLLM struct {
	answer string
	err    error
}

func (l cannedLLM) Complete(context.Context, ai.ChatConfig, []ai.ChatMessage) (string, error) {
	return l.answer, l.err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	svc    *app.RAGService
	token  string
}

func newTestServer(t *testing.T, llm ai.Completer) *testServer {
	t.Helper()
	return newTestServerWithMemory(t, llm, memory.New())
}

func newTestServerWithMemory(t *testing.T, llm ai.Completer, chat vectorstore.Client) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := app.NewRAGService(app.RAGServiceDeps{
		Docs:     vectorstore.New(memory.New(), logger, time.Second),
		Memory:   vectorstore.New(chat, logger, time.Second),
		Registry: registry.NewFileRegistry(filepath.Join(t.TempDir(), "registry.json"), logger),
		LLM:      llm,
		Logger:   logger,
	})
	t.Cleanup(svc.Wait)

	engine := gin.New()
	transporthttp.RegisterRAGRoutes(engine.Group("/api/v1"), handler.NewRAGHandler(svc), secret)

	token, err := jwtutil.GenerateToken(secret, time.Hour, 9, "tester")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return &testServer{engine: engine, svc: svc, token: token}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func (s *testServer) upload(t *testing.T, files map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = mw.Close()
	return s.do(t, http.MethodPost, "/api/v1/upload", mw.FormDataContentType(), &buf)
}

func (s *testServer) postJSON(t *testing.T, method, path string, payload any) (int, envelope) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	return s.do(t, method, path, "application/json", bytes.NewReader(raw))
}

func TestUploadListDeleteFlow(t *testing.T) {
	s := newTestServer(t, cannedLLM{answer: "ok"})

	status, env := s.upload(t, map[string]string{"notes.txt": "Refunds are accepted within thirty days."})
	if status != http.StatusOK {
		t.Fatalf("upload status = %d, body = %+v", status, env)
	}
	var ingest app.IngestResult
	_ = json.Unmarshal(env.Data, &ingest)
	if ingest.Files != 1 || ingest.Pages != 1 || ingest.Chunks != 1 {
		t.Fatalf("ingest = %+v", ingest)
	}

	status, env = s.do(t, http.MethodGet, "/api/v1/docs", "", nil)
	var listed struct {
		Docs []string `json:"docs"`
	}
	_ = json.Unmarshal(env.Data, &listed)
	if status != http.StatusOK || len(listed.Docs) != 1 || listed.Docs[0] != "notes.txt" {
		t.Fatalf("list = %d %+v", status, listed)
	}

	status, env = s.postJSON(t, http.MethodDelete, "/api/v1/docs", map[string]any{"names": []string{"notes.txt"}})
	var deleted app.DeleteResult
	_ = json.Unmarshal(env.Data, &deleted)
	if status != http.StatusOK || deleted.Deleted != 1 || len(deleted.Removed) != 1 {
		t.Fatalf("delete = %d %+v", status, deleted)
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/docs", "", nil)
	_ = json.Unmarshal(env.Data, &listed)
	if len(listed.Docs) != 0 {
		t.Fatalf("docs after delete = %v", listed.Docs)
	}
}

func TestUploadRejections(t *testing.T) {
	s := newTestServer(t, cannedLLM{})

	if status, _ := s.upload(t, map[string]string{"a.txt": "x", "b.exe": "y"}); status != http.StatusBadRequest {
		t.Fatalf("unsupported type status = %d", status)
	}
	if status, env := s.upload(t, map[string]string{"blank.txt": "   \n  "}); status != http.StatusBadRequest || !strings.Contains(string(env.Data), "blank.txt") {
		t.Fatalf("empty upload = %d %+v", status, env)
	}
	if status, _ := s.upload(t, map[string]string{}); status != http.StatusBadRequest {
		t.Fatalf("no files status = %d", status)
	}
}

func TestChatStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		llm     cannedLLM
		message string
		status  int
	}{
		{"answer", cannedLLM{answer: "- Thirty days\n"}, "refund window?", http.StatusOK},
		{"empty query", cannedLLM{answer: "unused"}, "   ", http.StatusBadRequest},
		{"upstream failure", cannedLLM{err: &ai.CompletionServiceError{StatusCode: 500, Snippet: "boom"}}, "hi", http.StatusBadGateway},
	}
	for _, tc := range cases {
		s := newTestServer(t, tc.llm)
		status, env := s.postJSON(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": tc.message})
		if status != tc.status {
			t.Fatalf("%s: status = %d, want %d (%+v)", tc.name, status, tc.status, env)
		}
		if tc.status == http.StatusOK {
			var res app.AskResult
			_ = json.Unmarshal(env.Data, &res)
			if res.Answer != "Thirty days." {
				t.Fatalf("%s: answer = %q", tc.name, res.Answer)
			}
		}
	}
}

// searchOnly exposes no delete entry point.
type searchOnly struct{ inner *memory.Store }

func (s searchOnly) UpsertRecords(ctx context.Context, ns string, records []vectorstore.Record) error {
	return s.inner.UpsertRecords(ctx, ns, records)
}

func (s searchOnly) SearchRecords(ctx context.Context, ns string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	return s.inner.SearchRecords(ctx, ns, req)
}

func TestClearMemory(t *testing.T) {
	s := newTestServer(t, cannedLLM{})
	status, env := s.do(t, http.MethodPost, "/api/v1/memory/clear", "", nil)
	var cleared struct {
		Cleared bool `json:"cleared"`
	}
	_ = json.Unmarshal(env.Data, &cleared)
	if status != http.StatusOK || !cleared.Cleared {
		t.Fatalf("clear memory = %d %+v", status, env)
	}
}

func TestClearMemoryWithoutCapability(t *testing.T) {
	s := newTestServerWithMemory(t, cannedLLM{}, searchOnly{memory.New()})
	status, env := s.do(t, http.MethodPost, "/api/v1/memory/clear", "", nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("clear memory on search-only store = %d %+v", status, env)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, cannedLLM{})
	s.token = "nope"
	if status, _ := s.do(t, http.MethodGet, "/api/v1/docs", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
}
