package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/storage"
)

func docs(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func ids(t *testing.T, records []json.RawMessage) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		var doc struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(r, &doc))
		out = append(out, doc.ID)
	}
	return out
}

func newMirror(t *testing.T) *SQLiteMirror {
	t.Helper()
	m, err := New(filepath.Join(t.TempDir(), "nested", "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSQLiteMirror(t *testing.T) {
	m := newMirror(t)
	ctx := context.Background()

	run, err := m.Replace(ctx, fetch.Purchases, docs(
		`{"id":"p1","aluno_id":"d1","value":10.5,"status":false,"created_at":"2024-03-01T10:00:00Z"}`,
		`{"id":"p2","aluno_id":"d2","value":"5.00","status":true,"created_at":"2024-03-03T10:00:00Z"}`,
		`{"id":"p3","aluno_id":"d1","value":1,"status":false,"created_at":"2024-03-02T10:00:00Z"}`,
		`{"id":"p4","aluno_id":"d3","value":2,"status":false,"created_at":"2024-03-04T10:00:00Z"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 4, run.Records)
	assert.NotEmpty(t, run.ID)

	_, err = m.Replace(ctx, fetch.Relations, docs(
		`{"id":"r1","responsavel_id":"g1","aluno_id":"d1","nivel":1}`,
		`{"id":"r2","responsavel_id":"g1","aluno_id":"d2","nivel":2}`,
	))
	require.NoError(t, err)

	tests := []struct {
		name       string
		collection fetch.Collection
		query      fetch.Query
		want       []string
	}{
		{
			name:       "whole collection in insertion order",
			collection: fetch.Purchases,
			want:       []string{"p1", "p2", "p3", "p4"},
		},
		{
			name:       "boolean equality",
			collection: fetch.Purchases,
			query:      fetch.Query{Filters: []fetch.Filter{fetch.Eq("status", "false")}},
			want:       []string{"p1", "p3", "p4"},
		},
		{
			name:       "membership and equality",
			collection: fetch.Purchases,
			query: fetch.Query{Filters: []fetch.Filter{
				fetch.In("aluno_id", []string{"d1", "d2"}),
				fetch.Eq("status", "false"),
			}},
			want: []string{"p1", "p3"},
		},
		{
			name:       "order descending",
			collection: fetch.Purchases,
			query:      fetch.Query{Order: "created_at.desc"},
			want:       []string{"p4", "p2", "p3", "p1"},
		},
		{
			name:       "order on several fields",
			collection: fetch.Purchases,
			query:      fetch.Query{Order: "aluno_id.asc, id.desc"},
			want:       []string{"p3", "p1", "p2", "p4"},
		},
		{
			name:       "numeric equality",
			collection: fetch.Relations,
			query:      fetch.Query{Filters: []fetch.Filter{fetch.Eq("nivel", "1")}},
			want:       []string{"r1"},
		},
		{
			name:       "empty membership matches nothing",
			collection: fetch.Purchases,
			query:      fetch.Query{Filters: []fetch.Filter{fetch.In("aluno_id", nil)}},
			want:       []string{},
		},
		{
			name:       "unknown collection is empty",
			collection: fetch.Products,
			want:       []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Fetch(ctx, tt.collection, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(t, got))
		})
	}
}

func TestReplaceSwapsCollection(t *testing.T) {
	m := newMirror(t)
	ctx := context.Background()

	_, err := m.Replace(ctx, fetch.Guardians, docs(`{"id":"g1"}`, `{"id":"g2"}`))
	require.NoError(t, err)
	_, err = m.Replace(ctx, fetch.Products, docs(`{"id":"x"}`))
	require.NoError(t, err)
	_, err = m.Replace(ctx, fetch.Guardians, docs(`{"id":"g3"}`))
	require.NoError(t, err)

	got, err := m.Fetch(ctx, fetch.Guardians, fetch.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"g3"}, ids(t, got))

	runs, err := m.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// ordered by collection name
	assert.Equal(t, fetch.Products, runs[0].Collection)
	assert.Equal(t, fetch.Guardians, runs[1].Collection)
	assert.Equal(t, 1, runs[1].Records)

	_, err = m.Replace(ctx, fetch.Guardians, docs(`[1,2]`))
	assert.Error(t, err)
	got, err = m.Fetch(ctx, fetch.Guardians, fetch.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"g3"}, ids(t, got), "a rejected replace keeps the old records")
}

func TestFetchRejectsUnsafeFields(t *testing.T) {
	m := newMirror(t)
	ctx := context.Background()

	_, err := m.Fetch(ctx, fetch.Guardians, fetch.Query{Filters: []fetch.Filter{fetch.Eq("id') OR 1=1 --", "x")}})
	assert.Error(t, err)

	_, err = m.Fetch(ctx, fetch.Guardians, fetch.Query{Order: "nome.sideways"})
	assert.Error(t, err)
}

func TestMirrorAll(t *testing.T) {
	src := fetch.FetcherFunc(func(_ context.Context, c fetch.Collection, q fetch.Query) ([]json.RawMessage, error) {
		return docs(`{"id":"` + string(c) + `-1"}`), nil
	})
	m := newMirror(t)

	runs, err := storage.MirrorAll(context.Background(), src, m, nil)
	require.NoError(t, err)
	assert.Len(t, runs, len(fetch.AllCollections))

	got, err := m.Fetch(context.Background(), fetch.LineItems, fetch.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"produtos_comprados-1"}, ids(t, got))

	failing := fetch.FetcherFunc(func(_ context.Context, c fetch.Collection, _ fetch.Query) ([]json.RawMessage, error) {
		return nil, &fetch.TransportError{Collection: c, StatusCode: 500}
	})
	_, err = storage.MirrorAll(context.Background(), failing, m, nil)
	assert.True(t, fetch.IsTransport(err))
}
