package allowlist

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/cantina/internal/models"
)

func record(first, last string) models.DebtRecord {
	return models.DebtRecord{
		Guardian:  models.Guardian{ID: strings.ToLower(first), FirstName: first, LastName: last},
		TotalOwed: decimal.NewFromInt(10),
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Maria Silva", "maria silva"},
		{"  maria   silva ", "maria silva"},
		{"MARIA\tSILVA", "maria silva"},
		{"JOÃO  Souza", "joão souza"},
		{"Joa\u0303o Souza", "joão souza"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFilter(t *testing.T) {
	records := []models.DebtRecord{
		record("Maria", "Silva"),
		record("Pedro", "Alves"),
		record("João", "Souza"),
	}
	allow := New([]string{"  maria silva ", "JOÃO SOUZA", "Ana Lima"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kept, skipped, err := Filter(records, allow, logger)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "maria", kept[0].Guardian.ID)
	assert.Equal(t, "joão", kept[1].Guardian.ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "pedro", skipped[0].Guardian.ID)
	assert.Len(t, records, 3, "input must not be modified")

	again, _, err := Filter(kept, allow, logger)
	require.NoError(t, err)
	assert.Equal(t, kept, again)

	assert.Equal(t, []string{"Ana Lima"}, allow.Unmatched(records))
}

func TestFilterEmptyAllowList(t *testing.T) {
	for _, allow := range []*AllowList{nil, New(nil), New([]string{"", "  "})} {
		_, _, err := Filter([]models.DebtRecord{record("Maria", "Silva")}, allow, nil)
		require.Error(t, err)
		assert.True(t, IsEmptyAllowList(err))
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		want    []string
		wantErr bool
	}{
		{
			name: "nome column",
			csv:  "Nome,Telefone\nMaria Silva,(84) 99695-2876\n  ,\nJoão Souza,\nmaria  SILVA,\n",
			want: []string{"Maria Silva", "João Souza"},
		},
		{
			name: "name column with BOM and other case",
			csv:  "\ufeffID,NAME\n1,Ana Lima\n",
			want: []string{"Ana Lima"},
		},
		{
			name: "header only",
			csv:  "Nome\n",
			want: []string{},
		},
		{
			name: "empty file",
			csv:  "",
			want: []string{},
		},
		{
			name:    "no name column",
			csv:     "Telefone\n123\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Load(strings.NewReader(tt.csv))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Names())
			assert.Equal(t, len(tt.want), a.Len())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autorizados.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nome\n"), 0o600))

	a, err := LoadFile(path)
	require.NoError(t, err)

	err = a.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
