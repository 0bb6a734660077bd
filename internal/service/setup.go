package service

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/mmynk/cantina/internal/cache"
	"github.com/mmynk/cantina/internal/calculator"
	"github.com/mmynk/cantina/internal/config"
	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/fetch/postgrest"
	"github.com/mmynk/cantina/internal/metrics"
	"github.com/mmynk/cantina/internal/storage/sqlite"
)

// Backend is the configured source of records along with its typed view.
type Backend struct {
	// Source is the raw fetcher, before chunking and instrumentation.
	Source fetch.Fetcher

	// Store reads through the chunked, instrumented Source.
	Store *fetch.Store

	closer io.Closer
}

// Close releases the backend.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// OpenBackend connects to the store selected by cfg.Store.Backend.
func OpenBackend(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		mirror, err := sqlite.New(cfg.Store.MirrorPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open mirror: %w", err)
		}
		b.Source, b.closer = mirror, mirror
	default:
		b.Source = postgrest.New(cfg.Store.URL, cfg.Store.Key,
			postgrest.WithTimeout(cfg.Store.Timeout),
			postgrest.WithPageSize(cfg.Store.PageSize),
			postgrest.WithLogger(logger),
		)
	}

	chunked := fetch.NewBatcher(b.Source, cfg.Store.ChunkSize).WithLogger(logger)
	b.Store = fetch.NewStore(fetch.NewInstrumented(chunked, m, logger))
	return b, nil
}

// NewEngineFromConfig builds a DebtEngine over store using cfg's level,
// TTLs and purchase order.
func NewEngineFromConfig(cfg *config.Config, store *fetch.Store, m *metrics.Metrics, logger *slog.Logger) *DebtEngine {
	order := calculator.NewestFirst
	if cfg.Engine.PurchaseOrder == "oldest" {
		order = calculator.OldestFirst
	}

	c := cache.New(cache.WithMetrics(m), cache.WithLogger(logger))
	return NewDebtEngine(store, c,
		WithRelationLevel(cfg.Engine.Level),
		WithGuardianTTL(cfg.Cache.GuardianTTL),
		WithCatalogTTL(cfg.Cache.CatalogTTL),
		WithAggregator(calculator.NewAggregator(
			calculator.WithPurchaseOrder(order),
			calculator.WithAggregatorLogger(logger),
		)),
		WithMetrics(m),
		WithLogger(logger),
	)
}
