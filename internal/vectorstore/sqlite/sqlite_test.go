package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"voicedoc/internal/vectorstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store", "vectors.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, ns string, records ...vectorstore.Record) {
	t.Helper()
	if err := s.UpsertRecords(context.Background(), ns, records); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
}

func rec(id, text, source string, page int) vectorstore.Record {
	return vectorstore.Record{ID: id, Text: text, Attributes: map[string]any{"source": source, "page": page, "chunk": 1}}
}

func TestSearchRanksAndScopesByNamespace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, "1",
		rec("1:doc:a", "Refunds are accepted within thirty days of purchase.", "policy.pdf", 2),
		rec("1:doc:b", "Shipping takes five business days.", "policy.pdf", 3),
	)
	seed(t, s, "2", rec("2:doc:a", "Refunds are never accepted.", "other.pdf", 1))

	hits, err := s.SearchRecords(ctx, "1", vectorstore.SearchRequest{Query: "refund? refunds!", TopK: 16})
	if err != nil {
		t.Fatalf("SearchRecords: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "1:doc:a" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].String("source") != "policy.pdf" || hits[0].Int("page", 0) != 2 {
		t.Fatalf("fields = %+v", hits[0].Fields)
	}
	if hits[0].String(vectorstore.TextField) == "" {
		t.Fatal("chunk_text missing from hit")
	}

	all, err := s.SearchRecords(ctx, "1", vectorstore.SearchRequest{Query: "   ", TopK: 10})
	if err != nil || len(all) != 2 {
		t.Fatalf("empty query: %d hits, err %v", len(all), err)
	}
}

func TestUpsertReplacesSameID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, "1", rec("1:doc:a", "first version", "a.md", 1))
	seed(t, s, "1", rec("1:doc:a", "second version", "a.md", 1))

	hits, err := s.SearchRecords(ctx, "1", vectorstore.SearchRequest{Query: "version", TopK: 10})
	if err != nil {
		t.Fatalf("SearchRecords: %v", err)
	}
	if len(hits) != 1 || hits[0].String(vectorstore.TextField) != "second version" {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestDeleteByFilterAndIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, "1",
		rec("1:doc:1", "alpha", "a.pdf", 1),
		rec("1:doc:2", "alpha beta", "a.pdf", 2),
		rec("1:doc:3", "alpha gamma", "b.pdf", 1),
	)
	seed(t, s, "2", rec("2:doc:1", "alpha", "a.pdf", 1))

	n, err := s.DeleteByFilter(ctx, "1", map[string]any{"source": "a.pdf"})
	if err != nil || n != 2 {
		t.Fatalf("DeleteByFilter = %d, %v; want 2", n, err)
	}
	if _, err := s.DeleteByFilter(ctx, "1", map[string]any{"source') OR 1=1 --": "x"}); err == nil {
		t.Fatal("expected invalid field name to be rejected")
	}

	if err := s.DeleteIDs(ctx, "1", []string{"1:doc:3", "2:doc:1"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
	left, _ := s.SearchRecords(ctx, "1", vectorstore.SearchRequest{Query: "alpha", TopK: 10})
	if len(left) != 0 {
		t.Fatalf("user 1 records left: %+v", left)
	}
	other, _ := s.SearchRecords(ctx, "2", vectorstore.SearchRequest{Query: "alpha", TopK: 10})
	if len(other) != 1 {
		t.Fatal("delete by ids crossed namespaces")
	}
}

func TestAdapterOverSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := vectorstore.New(s, nil, time.Second)

	if got := a.Capabilities(); !got.Upsert || !got.DeleteByFilter || !got.DeleteAll || got.DeleteNamespace {
		t.Fatalf("capabilities = %+v", got)
	}
	if err := a.Upsert(ctx, "7", []vectorstore.Record{rec("7:doc:1", "voice assistant notes", "n.md", 1)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n := a.DeleteByField(ctx, "7", "source", "n.md"); n != 1 {
		t.Fatalf("DeleteByField = %d, want 1", n)
	}
	seed(t, s, "7", vectorstore.Record{ID: "7:chat:1", Text: "User: hi\nAssistant: Hello."})
	if err := a.ClearNamespace(ctx, "7"); err != nil {
		t.Fatalf("ClearNamespace: %v", err)
	}
	if hits := a.Search(ctx, "7", "", 5, nil); len(hits) != 0 {
		t.Fatalf("hits after clear = %+v", hits)
	}
}

func TestMatchExpression(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"What's the refund?":    `"what" OR "s" OR "the" OR "refund"`,
		`"quoted" AND NEAR(x)`:  `"quoted" OR "and" OR "near" OR "x"`,
		"refund refund REFUND.": `"refund"`,
	}
	for in, want := range cases {
		if got := matchExpression(in); got != want {
			t.Fatalf("matchExpression(%q) = %q, want %q", in, got, want)
		}
	}
}
