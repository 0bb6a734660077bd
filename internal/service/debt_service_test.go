package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/cantina/internal/allowlist"
	"github.com/mmynk/cantina/internal/auth"
	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setupDebtTestServer serves a DebtService backed by the seeded memFetcher
// and returns a client carrying a valid token.
func setupDebtTestServer(t *testing.T, m *memFetcher, allow AllowListSource) (*DebtServiceClient, *DebtServiceClient) {
	t.Helper()

	jwtManager := auth.NewJWTManager(testSecret, time.Hour)
	svc := NewDebtService(newTestEngine(m), allow)
	path, handler := NewDebtServiceHandler(svc, connect.WithInterceptors(
		middleware.LoggingInterceptor(quietLogger()),
		middleware.RequireAuth(jwtManager),
	))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	token, err := jwtManager.Generate("invoicer")
	require.NoError(t, err)

	authed := NewDebtServiceClient(server.Client(), server.URL, connect.WithInterceptors(bearer(token)))
	anonymous := NewDebtServiceClient(server.Client(), server.URL)
	return authed, anonymous
}

func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func TestListDebts(t *testing.T) {
	m := newMemFetcher()
	seed(m)
	client, _ := setupDebtTestServer(t, m, nil)

	resp, err := client.ListDebts(context.Background(), connect.NewRequest(&ListDebtsRequest{}))
	require.NoError(t, err)

	msg := resp.Msg
	assert.NotEmpty(t, msg.RunID)
	assert.True(t, decimal.RequireFromString("35").Equal(msg.TotalOwed))
	require.Len(t, msg.Guardians, 1)
	g := msg.Guardians[0]
	assert.Equal(t, "Maria Silva", g.Name)
	assert.Equal(t, "(84) 99695-2876", g.Contact)
	assert.Equal(t, 2, g.DependentCount)
	require.Len(t, g.Dependents, 2)
	assert.Equal(t, "Lucas Silva", g.Dependents[0].Name)
	require.Len(t, g.Dependents[0].Purchases, 2)
	assert.Equal(t, "2x Juice + Chips", g.Dependents[0].Purchases[1].Description)
	assert.Equal(t, time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC), g.Dependents[0].Purchases[1].Date.UTC())
}

func TestListDebtsAuthorizedOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autorizados.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nome\nJOÃO SOUZA\nmaria silva\n"), 0o600))

	m := newMemFetcher()
	seed(m)
	client, _ := setupDebtTestServer(t, m, AllowListFile(path))

	resp, err := client.ListDebts(context.Background(), connect.NewRequest(&ListDebtsRequest{AuthorizedOnly: true}))
	require.NoError(t, err)
	require.Len(t, resp.Msg.Guardians, 1)
	assert.Equal(t, "Maria Silva", resp.Msg.Guardians[0].Name)
	assert.Empty(t, resp.Msg.Skipped)
}

func TestListDebtsErrors(t *testing.T) {
	emptyList := func() (*allowlist.AllowList, error) { return allowlist.New(nil), nil }
	brokenList := func() (*allowlist.AllowList, error) { return nil, errors.New("disk gone") }

	tests := []struct {
		name     string
		allow    AllowListSource
		setup    func(m *memFetcher)
		req      *ListDebtsRequest
		wantCode connect.Code
	}{
		{
			name:     "no allow-list configured",
			req:      &ListDebtsRequest{AuthorizedOnly: true},
			wantCode: connect.CodeFailedPrecondition,
		},
		{
			name:     "empty allow-list",
			allow:    emptyList,
			req:      &ListDebtsRequest{AuthorizedOnly: true},
			wantCode: connect.CodeFailedPrecondition,
		},
		{
			name:     "unreadable allow-list",
			allow:    brokenList,
			req:      &ListDebtsRequest{AuthorizedOnly: true},
			wantCode: connect.CodeFailedPrecondition,
		},
		{
			name: "store unavailable",
			setup: func(m *memFetcher) {
				m.fail[fetch.Relations] = &fetch.TransportError{Collection: fetch.Relations, StatusCode: 502}
			},
			req:      &ListDebtsRequest{},
			wantCode: connect.CodeUnavailable,
		},
		{
			name: "malformed response",
			setup: func(m *memFetcher) {
				m.add(fetch.Guardians, `{"nome":"Sem Id"}`)
			},
			req:      &ListDebtsRequest{},
			wantCode: connect.CodeDataLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemFetcher()
			seed(m)
			if tt.setup != nil {
				tt.setup(m)
			}
			client, _ := setupDebtTestServer(t, m, tt.allow)

			_, err := client.ListDebts(context.Background(), connect.NewRequest(tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))
		})
	}
}

func TestDebtServiceRequiresToken(t *testing.T) {
	m := newMemFetcher()
	seed(m)
	_, anonymous := setupDebtTestServer(t, m, nil)

	_, err := anonymous.ListDebts(context.Background(), connect.NewRequest(&ListDebtsRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = anonymous.InvalidateCache(context.Background(), connect.NewRequest(&InvalidateCacheRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.Zero(t, m.totalCalls())
}

func TestInvalidateCacheRPC(t *testing.T) {
	m := newMemFetcher()
	seed(m)
	client, _ := setupDebtTestServer(t, m, nil)
	ctx := context.Background()

	_, err := client.ListDebts(ctx, connect.NewRequest(&ListDebtsRequest{}))
	require.NoError(t, err)
	_, err = client.ListDebts(ctx, connect.NewRequest(&ListDebtsRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 1, m.callsTo(fetch.Guardians))

	resp, err := client.InvalidateCache(ctx, connect.NewRequest(&InvalidateCacheRequest{}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.InvalidatedAt.IsZero())

	_, err = client.ListDebts(ctx, connect.NewRequest(&ListDebtsRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 2, m.callsTo(fetch.Guardians))
}
