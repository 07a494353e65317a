package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"voicedoc/internal/config"
	"voicedoc/internal/vectorstore"
	"voicedoc/internal/vectorstore/memory"
	"voicedoc/internal/vectorstore/pinecone"
	"voicedoc/internal/vectorstore/sqlite"
)

// StoreClient is one opened index with the name it was opened under.
type StoreClient struct {
	Index  string
	Client vectorstore.Client
}

// openStores returns the document and conversation index clients for the
// configured provider plus anything that must be closed on shutdown.
func openStores(cfg config.StoreConfig, logger *slog.Logger) (docs, chat StoreClient, closers []io.Closer, err error) {
	docs.Index, chat.Index = cfg.DocsIndex, cfg.ChatIndex
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case config.StoreProviderPinecone:
		docs.Client, err = pinecone.New(pinecone.Config{
			APIKey:     cfg.Pinecone.APIKey,
			Host:       cfg.Pinecone.DocsHost,
			APIVersion: cfg.Pinecone.APIVersion,
			Timeout:    timeout,
		})
		if err != nil {
			return docs, chat, nil, fmt.Errorf("init docs index failed: %w", err)
		}
		chat.Client, err = pinecone.New(pinecone.Config{
			APIKey:     cfg.Pinecone.APIKey,
			Host:       cfg.Pinecone.ChatHost,
			APIVersion: cfg.Pinecone.APIVersion,
			Timeout:    timeout,
		})
		if err != nil {
			return docs, chat, nil, fmt.Errorf("init chat index failed: %w", err)
		}

	case config.StoreProviderSQLite:
		docsDB, err := sqlite.Open(filepath.Join(cfg.SQLite.Dir, cfg.DocsIndex+".db"), logger)
		if err != nil {
			return docs, chat, nil, fmt.Errorf("open docs index failed: %w", err)
		}
		chatDB, err := sqlite.Open(filepath.Join(cfg.SQLite.Dir, cfg.ChatIndex+".db"), logger)
		if err != nil {
			_ = docsDB.Close()
			return docs, chat, nil, fmt.Errorf("open chat index failed: %w", err)
		}
		docs.Client, chat.Client = docsDB, chatDB
		closers = append(closers, docsDB, chatDB)

	case config.StoreProviderMemory:
		docs.Client, chat.Client = memory.New(), memory.New()

	default:
		return docs, chat, nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}

	logger.Info("vector stores ready",
		"provider", cfg.Provider,
		"docs_index", docs.Index,
		"docs_capabilities", vectorstore.Probe(docs.Client),
		"chat_index", chat.Index,
		"chat_capabilities", vectorstore.Probe(chat.Client),
	)
	return docs, chat, closers, nil
}
