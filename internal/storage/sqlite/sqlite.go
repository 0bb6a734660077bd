// Package sqlite provides a SQLite-backed implementation of storage.Mirror.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/storage"
)

// Ensure SQLiteMirror implements storage.Mirror
var _ storage.Mirror = (*SQLiteMirror)(nil)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteMirror implements storage.Mirror using SQLite.
type SQLiteMirror struct {
	db *sql.DB
}

// New creates a new SQLiteMirror with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteMirror, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteMirror) Close() error {
	return s.db.Close()
}

// Replace swaps the stored records of collection for docs in one transaction.
func (s *SQLiteMirror) Replace(ctx context.Context, collection fetch.Collection, docs []json.RawMessage) (*storage.MirrorRun, error) {
	for i, doc := range docs {
		if !json.Valid(doc) || !strings.HasPrefix(strings.TrimSpace(string(doc)), "{") {
			return nil, fmt.Errorf("record %d of %s is not a JSON object", i, collection)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", string(collection)); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", collection, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO records (collection, doc) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, string(collection), string(doc)); err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
	}

	run := &storage.MirrorRun{
		ID:         uuid.New().String(),
		Collection: collection,
		Records:    len(docs),
		MirroredAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO mirror_runs (id, collection, records, mirrored_at) VALUES (?, ?, ?, ?)",
		run.ID, string(run.Collection), run.Records, run.MirroredAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record mirror run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return run, nil
}

// Runs returns the latest run of each mirrored collection.
func (s *SQLiteMirror) Runs(ctx context.Context) ([]storage.MirrorRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, records, mirrored_at FROM mirror_runs r
		 WHERE mirrored_at = (SELECT MAX(mirrored_at) FROM mirror_runs WHERE collection = r.collection)
		 ORDER BY collection`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.MirrorRun
	for rows.Next() {
		var (
			run        storage.MirrorRun
			collection string
			mirroredAt int64
		)
		if err := rows.Scan(&run.ID, &collection, &run.Records, &mirroredAt); err != nil {
			return nil, fmt.Errorf("failed to scan mirror run: %w", err)
		}
		run.Collection = fetch.Collection(collection)
		run.MirroredAt = time.Unix(0, mirroredAt).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mirror runs: %w", err)
	}

	return runs, nil
}

// Fetch implements fetch.Fetcher. Select is ignored; whole documents are
// returned. Database failures are reported as transport errors so callers
// treat the mirror like any other store.
func (s *SQLiteMirror) Fetch(ctx context.Context, collection fetch.Collection, q fetch.Query) ([]json.RawMessage, error) {
	query, args, empty, err := buildSelect(collection, q)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &fetch.TransportError{Collection: collection, Err: err}
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, &fetch.TransportError{Collection: collection, Err: err}
		}
		out = append(out, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, &fetch.TransportError{Collection: collection, Err: err}
	}

	return out, nil
}

// buildSelect renders q as SQL. empty is true when a membership filter has
// no values, which matches nothing.
func buildSelect(collection fetch.Collection, q fetch.Query) (query string, args []any, empty bool, err error) {
	where := []string{"collection = ?"}
	args = []any{string(collection)}

	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, false, fmt.Errorf("invalid filter field %q", f.Field)
		}
		path := "$." + f.Field

		values := f.Values
		if f.Op == fetch.OpEq && len(values) > 1 {
			values = values[:1]
		}
		if len(values) == 0 {
			return "", nil, true, nil
		}

		parts := make([]string, 0, len(values))
		for _, v := range values {
			// The first comparison matches text values, the second numbers
			// and booleans ("1" against 1, "false" against 0).
			parts = append(parts, "json_extract(doc, ?) = ? OR json_extract(doc, ?) = json_extract(?, '$')")
			args = append(args, path, v, path, jsonLiteral(v))
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}

	query = "SELECT doc FROM records WHERE " + strings.Join(where, " AND ")

	var orderBy []string
	for _, term := range strings.Split(q.Order, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		field, dir, ok := strings.Cut(term, ".")
		if !ok {
			dir = "asc"
		}
		dir = strings.ToUpper(dir)
		if !fieldPattern.MatchString(field) || (dir != "ASC" && dir != "DESC") {
			return "", nil, false, fmt.Errorf("invalid order %q", q.Order)
		}
		orderBy = append(orderBy, "json_extract(doc, ?) "+dir)
		args = append(args, "$."+field)
	}
	query += " ORDER BY " + strings.Join(append(orderBy, "seq"), ", ")

	return query, args, false, nil
}

// jsonLiteral returns v as a JSON text: numbers and booleans as-is, anything
// else as a quoted string.
func jsonLiteral(v string) string {
	if json.Valid([]byte(v)) {
		return v
	}
	b, _ := json.Marshal(v)
	return string(b)
}
