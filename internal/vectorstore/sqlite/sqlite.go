// Package sqlite is an embedded vector store client backed by an FTS5 table.
// Ranking is lexical (bm25), which stands in for the hosted store's
// integrated embedding in single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"voicedoc/internal/vectorstore"

	_ "modernc.org/sqlite"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS records USING fts5(
		chunk_text,
		namespace UNINDEXED,
		record_id UNINDEXED,
		attributes UNINDEXED
	);`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) UpsertRecords(ctx context.Context, namespace string, records []vectorstore.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes of %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE namespace = ? AND record_id = ?`, namespace, r.ID,
		); err != nil {
			return fmt.Errorf("replace %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (chunk_text, namespace, record_id, attributes) VALUES (?, ?, ?, ?)`,
			r.Text, namespace, r.ID, string(attrs),
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// SearchRecords ranks records containing any query term by bm25. A query
// without terms lists the namespace in insertion order.
func (s *Store) SearchRecords(ctx context.Context, namespace string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	limit := req.TopK
	if limit <= 0 {
		limit = 10
	}

	var (
		rows *sql.Rows
		err  error
	)
	if match := matchExpression(req.Query); match != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT record_id, chunk_text, attributes, bm25(records) AS score
			 FROM records WHERE records MATCH ? AND namespace = ?
			 ORDER BY score LIMIT ?`, match, namespace, limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT record_id, chunk_text, attributes, 0.0
			 FROM records WHERE namespace = ?
			 ORDER BY rowid LIMIT ?`, namespace, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			id, text, attrs string
			rank            float64
		)
		if err := rows.Scan(&id, &text, &attrs, &rank); err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if attrs != "" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &fields); err != nil {
				s.logger.Warn("skip record with unreadable attributes", "id", id, "error", err)
				continue
			}
		}
		fields[vectorstore.TextField] = text
		// bm25 is lower-is-better; flip it so higher scores rank first.
		hits = append(hits, vectorstore.Hit{ID: id, Score: -rank, Fields: fields})
	}
	return hits, rows.Err()
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND record_id IN (`+placeholders+`)`, args...,
	)
	return err
}

// DeleteByFilter removes records whose attributes equal every filter value.
func (s *Store) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("empty filter")
	}
	where := []string{"namespace = ?"}
	args := []any{namespace}
	for field, value := range filter {
		if !fieldNamePattern.MatchString(field) {
			return 0, fmt.Errorf("invalid filter field %q", field)
		}
		where = append(where, "json_extract(attributes, '$."+field+"') = ?")
		args = append(args, value)
	}
	cond := strings.Join(where, " AND ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count filtered records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE `+cond, args...); err != nil {
		return 0, fmt.Errorf("delete filtered records: %w", err)
	}
	return n, tx.Commit()
}

func (s *Store) DeleteAll(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE namespace = ?`, namespace)
	return err
}

// matchExpression turns free text into an FTS5 query that ORs quoted terms,
// so punctuation in user input never reaches the query parser.
func matchExpression(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
