package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cantina/internal/allowlist"
	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/middleware"
	"github.com/mmynk/cantina/internal/report"
)

const (
	// DebtServiceName is the fully-qualified name of the DebtService.
	DebtServiceName = "cantina.v1.DebtService"

	// ListDebtsProcedure runs the engine and returns guardian summaries.
	ListDebtsProcedure = "/" + DebtServiceName + "/ListDebts"

	// InvalidateCacheProcedure drops the engine's cached collections.
	InvalidateCacheProcedure = "/" + DebtServiceName + "/InvalidateCache"
)

// ListDebtsRequest selects between every guardian and the authorized ones.
type ListDebtsRequest struct {
	AuthorizedOnly bool `json:"authorized_only"`
}

// Warning is a data-integrity warning as sent over the wire.
type Warning struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id"`
	Detail   string `json:"detail"`
}

// ListDebtsResponse carries one summary per billed guardian.
type ListDebtsResponse struct {
	RunID       string                   `json:"run_id"`
	GeneratedAt time.Time                `json:"generated_at"`
	TotalOwed   decimal.Decimal          `json:"total_owed"`
	Guardians   []report.GuardianSummary `json:"guardians"`
	Skipped     []string                 `json:"skipped,omitempty"`
	Warnings    []Warning                `json:"warnings,omitempty"`
}

// InvalidateCacheRequest has no fields.
type InvalidateCacheRequest struct{}

// InvalidateCacheResponse reports when the cache was cleared.
type InvalidateCacheResponse struct {
	InvalidatedAt time.Time `json:"invalidated_at"`
}

// AllowListSource returns the current allow-list. It is called on every
// authorized request so edits to the underlying file take effect without a
// restart.
type AllowListSource func() (*allowlist.AllowList, error)

// AllowListFile reads the allow-list CSV at path on every call.
func AllowListFile(path string) AllowListSource {
	return func() (*allowlist.AllowList, error) {
		return allowlist.LoadFile(path)
	}
}

// DebtService exposes the engine over Connect.
type DebtService struct {
	engine *DebtEngine
	allow  AllowListSource
}

// NewDebtService creates a DebtService. allow may be nil, in which case
// authorized requests fail with FailedPrecondition.
func NewDebtService(engine *DebtEngine, allow AllowListSource) *DebtService {
	return &DebtService{engine: engine, allow: allow}
}

// ListDebts runs the engine once and returns the guardian summaries.
func (s *DebtService) ListDebts(ctx context.Context, req *connect.Request[ListDebtsRequest]) (*connect.Response[ListDebtsResponse], error) {
	var (
		rep *Report
		err error
	)
	if req.Msg.AuthorizedOnly {
		var allow *allowlist.AllowList
		if s.allow != nil {
			allow, err = s.allow()
			if err != nil {
				slog.Error("ListDebts: failed to load allow-list", "error", err)
				return nil, connect.NewError(connect.CodeFailedPrecondition, err)
			}
		}
		rep, err = s.engine.RunAuthorized(ctx, allow)
	} else {
		rep, err = s.engine.Run(ctx)
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &ListDebtsResponse{
		RunID:       rep.RunID,
		GeneratedAt: rep.GeneratedAt,
		TotalOwed:   rep.TotalOwed,
		Guardians:   report.Summarize(rep.Records),
	}
	for _, rec := range rep.Skipped {
		resp.Skipped = append(resp.Skipped, rec.Guardian.FullName())
	}
	for _, w := range rep.Warnings {
		resp.Warnings = append(resp.Warnings, Warning{Kind: string(w.Kind), EntityID: w.EntityID, Detail: w.Detail})
	}

	slog.Debug("ListDebts served",
		"client", middleware.GetClient(ctx),
		"run_id", rep.RunID,
		"guardians", len(resp.Guardians),
	)
	return connect.NewResponse(resp), nil
}

// InvalidateCache clears the engine cache.
func (s *DebtService) InvalidateCache(ctx context.Context, _ *connect.Request[InvalidateCacheRequest]) (*connect.Response[InvalidateCacheResponse], error) {
	s.engine.InvalidateCache()
	slog.Info("Cache invalidated over RPC", "client", middleware.GetClient(ctx))
	return connect.NewResponse(&InvalidateCacheResponse{InvalidatedAt: time.Now().UTC()}), nil
}

// toConnectError maps engine failures to Connect codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case allowlist.IsEmptyAllowList(err):
		code = connect.CodeFailedPrecondition
	case fetch.IsTransport(err):
		code = connect.CodeUnavailable
	case fetch.IsMalformed(err):
		code = connect.CodeDataLoss
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}

// NewDebtServiceHandler builds an HTTP handler serving every DebtService
// procedure. It returns the path prefix to mount it on.
func NewDebtServiceHandler(svc *DebtService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	listDebts := connect.NewUnaryHandler(ListDebtsProcedure, svc.ListDebts, opts...)
	invalidate := connect.NewUnaryHandler(InvalidateCacheProcedure, svc.InvalidateCache, opts...)

	return "/" + DebtServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ListDebtsProcedure:
			listDebts.ServeHTTP(w, r)
		case InvalidateCacheProcedure:
			invalidate.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// DebtServiceClient calls a remote DebtService.
type DebtServiceClient struct {
	listDebts  *connect.Client[ListDebtsRequest, ListDebtsResponse]
	invalidate *connect.Client[InvalidateCacheRequest, InvalidateCacheResponse]
}

// NewDebtServiceClient creates a client for the service at baseURL.
func NewDebtServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DebtServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &DebtServiceClient{
		listDebts:  connect.NewClient[ListDebtsRequest, ListDebtsResponse](httpClient, baseURL+ListDebtsProcedure, opts...),
		invalidate: connect.NewClient[InvalidateCacheRequest, InvalidateCacheResponse](httpClient, baseURL+InvalidateCacheProcedure, opts...),
	}
}

// ListDebts calls DebtService.ListDebts.
func (c *DebtServiceClient) ListDebts(ctx context.Context, req *connect.Request[ListDebtsRequest]) (*connect.Response[ListDebtsResponse], error) {
	return c.listDebts.CallUnary(ctx, req)
}

// InvalidateCache calls DebtService.InvalidateCache.
func (c *DebtServiceClient) InvalidateCache(ctx context.Context, req *connect.Request[InvalidateCacheRequest]) (*connect.Response[InvalidateCacheResponse], error) {
	return c.invalidate.CallUnary(ctx, req)
}
