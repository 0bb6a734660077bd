package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
)

// DefaultChunkSize keeps an "in.(...)" list of UUIDs comfortably below the
// URL length most proxies in front of PostgREST accept (~8 KB).
const DefaultChunkSize = 150

// Batcher splits large membership filters into several requests to the
// underlying Fetcher and concatenates the results in chunk order.
type Batcher struct {
	next      Fetcher
	chunkSize int
	logger    *slog.Logger
}

// NewBatcher wraps next. A chunkSize <= 0 disables splitting.
func NewBatcher(next Fetcher, chunkSize int) *Batcher {
	return &Batcher{next: next, chunkSize: chunkSize, logger: slog.Default()}
}

// WithLogger sets the logger used for chunking diagnostics.
func (b *Batcher) WithLogger(logger *slog.Logger) *Batcher {
	b.logger = logger
	return b
}

// Fetch implements Fetcher. Membership values are de-duplicated before
// chunking; an empty membership list matches nothing and issues no request.
func (b *Batcher) Fetch(ctx context.Context, collection Collection, q Query) ([]json.RawMessage, error) {
	idx, err := q.membership()
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return b.next.Fetch(ctx, collection, q)
	}

	values := dedupe(q.Filters[idx].Values)
	if len(values) == 0 {
		return nil, nil
	}

	chunks := Chunk(values, b.chunkSize)
	if len(chunks) > 1 {
		b.logger.Debug("Splitting membership filter",
			"collection", collection,
			"field", q.Filters[idx].Field,
			"values", len(values),
			"chunks", len(chunks),
		)
	}

	var out []json.RawMessage
	for _, chunk := range chunks {
		records, err := b.next.Fetch(ctx, collection, q.withValues(idx, chunk))
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// Chunk splits values into consecutive slices of at most size elements.
// A size <= 0 returns values as a single chunk.
func Chunk(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	if size <= 0 || len(values) <= size {
		return [][]string{values}
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
