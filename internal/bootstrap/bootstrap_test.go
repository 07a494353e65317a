package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicedoc/internal/config"
	"voicedoc/internal/vectorstore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestOpenStores(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	sqliteCfg := config.StoreConfig{
		Provider:       config.StoreProviderSQLite,
		TimeoutSeconds: 5,
		DocsIndex:      "docs",
		ChatIndex:      "chat",
		SQLite:         config.SQLiteConfig{Dir: dir},
	}
	docs, chat, closers, err := openStores(sqliteCfg, logger)
	if err != nil {
		t.Fatalf("openStores(sqlite): %v", err)
	}
	for _, c := range closers {
		defer c.Close()
	}
	if len(closers) != 2 || docs.Index != "docs" || chat.Index != "chat" {
		t.Fatalf("docs=%+v chat=%+v closers=%d", docs, chat, len(closers))
	}
	if !vectorstore.Probe(docs.Client).DeleteByFilter {
		t.Fatal("sqlite docs store should delete by filter")
	}
	for _, name := range []string{"docs.db", "chat.db"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	memCfg := sqliteCfg
	memCfg.Provider = config.StoreProviderMemory
	docs, _, closers, err = openStores(memCfg, logger)
	if err != nil || len(closers) != 0 {
		t.Fatalf("openStores(memory) = %v, closers=%d", err, len(closers))
	}
	if caps := vectorstore.Probe(docs.Client); !caps.Upsert || !caps.DeleteAll {
		t.Fatalf("memory capabilities = %+v", caps)
	}

	pineCfg := sqliteCfg
	pineCfg.Provider = config.StoreProviderPinecone
	if _, _, _, err := openStores(pineCfg, logger); err == nil {
		t.Fatal("pinecone without hosts should fail")
	}
}

func TestMemoryProviderClearsConversation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, chat, _, err := openStores(config.StoreConfig{Provider: config.StoreProviderMemory, DocsIndex: "docs", ChatIndex: "chat"}, logger)
	if err != nil {
		t.Fatalf("openStores(memory): %v", err)
	}
	ctx := context.Background()
	mem := vectorstore.New(chat.Client, logger, time.Second)
	if err := mem.Upsert(ctx, "user-42", []vectorstore.Record{{ID: "turn-1", Text: "refund window question"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mem.ClearNamespace(ctx, "user-42"); err != nil {
		t.Fatalf("ClearNamespace: %v", err)
	}
	if hits := mem.Search(ctx, "user-42", "refund", 3, nil); len(hits) != 0 {
		t.Fatalf("hits after clear = %+v", hits)
	}
}
