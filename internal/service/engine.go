package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/cantina/internal/allowlist"
	"github.com/mmynk/cantina/internal/cache"
	"github.com/mmynk/cantina/internal/calculator"
	"github.com/mmynk/cantina/internal/fetch"
	"github.com/mmynk/cantina/internal/metrics"
	"github.com/mmynk/cantina/internal/models"
)

// Cache keys of the collections the engine caches between runs.
const (
	CacheKeyGuardians = "guardians"
	CacheKeyRelations = "relations"
	CacheKeyProducts  = "products"
)

const (
	// DefaultGuardianTTL applies to guardians and relations.
	DefaultGuardianTTL = 30 * time.Second

	// DefaultCatalogTTL applies to the product catalog.
	DefaultCatalogTTL = 5 * time.Minute
)

// Report is the outcome of one aggregation run.
type Report struct {
	RunID       string
	GeneratedAt time.Time

	// Records holds one entry per billed guardian, in guardian order.
	Records []models.DebtRecord

	// Warnings are the data-integrity problems tolerated during the run.
	Warnings []calculator.DataIntegrityWarning

	// Skipped holds the records dropped by the allow-list, if one was used.
	Skipped []models.DebtRecord

	// TotalOwed is the sum over Records.
	TotalOwed decimal.Decimal
}

// DebtEngine runs the fetch, index, aggregate and filter pipeline.
type DebtEngine struct {
	store       *fetch.Store
	cache       *cache.Cache
	level       int
	guardianTTL time.Duration
	catalogTTL  time.Duration
	aggregator  *calculator.Aggregator
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// EngineOption configures a DebtEngine.
type EngineOption func(*DebtEngine)

// WithRelationLevel sets the relation level that is billed.
func WithRelationLevel(level int) EngineOption {
	return func(e *DebtEngine) {
		e.level = level
	}
}

// WithGuardianTTL sets the cache TTL of guardians and relations.
func WithGuardianTTL(ttl time.Duration) EngineOption {
	return func(e *DebtEngine) {
		e.guardianTTL = ttl
	}
}

// WithCatalogTTL sets the cache TTL of the product catalog.
func WithCatalogTTL(ttl time.Duration) EngineOption {
	return func(e *DebtEngine) {
		e.catalogTTL = ttl
	}
}

// WithAggregator replaces the default aggregator.
func WithAggregator(a *calculator.Aggregator) EngineOption {
	return func(e *DebtEngine) {
		e.aggregator = a
	}
}

// WithMetrics reports runs to m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *DebtEngine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *DebtEngine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *DebtEngine) {
		e.now = now
	}
}

// NewDebtEngine creates an engine reading through store. c may be shared
// with other engines reading the same store.
func NewDebtEngine(store *fetch.Store, c *cache.Cache, opts ...EngineOption) *DebtEngine {
	e := &DebtEngine{
		store:       store,
		cache:       c,
		level:       models.BillingLevel,
		guardianTTL: DefaultGuardianTTL,
		catalogTTL:  DefaultCatalogTTL,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New(cache.WithMetrics(e.metrics), cache.WithLogger(e.logger))
	}
	if e.aggregator == nil {
		e.aggregator = calculator.NewAggregator(calculator.WithAggregatorLogger(e.logger))
	}
	return e
}

// Run aggregates the debt of every guardian.
func (e *DebtEngine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep, err := e.run(ctx)
	e.observe(start, rep, err)
	return rep, err
}

// RunAuthorized aggregates and keeps only the guardians on allow. An empty
// allow-list fails with *allowlist.EmptyAllowListError before anything is
// fetched.
func (e *DebtEngine) RunAuthorized(ctx context.Context, allow *allowlist.AllowList) (*Report, error) {
	start := time.Now()
	if err := allow.Check(); err != nil {
		e.observe(start, nil, err)
		return nil, err
	}

	rep, err := e.run(ctx)
	if err == nil {
		var kept, skipped []models.DebtRecord
		kept, skipped, err = allowlist.Filter(rep.Records, allow, e.logger.With("run_id", rep.RunID))
		if err == nil {
			rep.Records, rep.Skipped = kept, skipped
			rep.TotalOwed = calculator.Result{Records: kept}.TotalOwed()
			e.logger.Info("Allow-list applied",
				"run_id", rep.RunID,
				"kept", len(kept),
				"skipped", len(skipped),
				"unmatched", len(allow.Unmatched(kept)),
			)
		}
	}
	if err != nil {
		rep = nil
	}
	e.observe(start, rep, err)
	return rep, err
}

// InvalidateCache drops every cached collection so the next run reads fresh
// data.
func (e *DebtEngine) InvalidateCache() {
	e.cache.Invalidate(CacheKeyGuardians, CacheKeyRelations, CacheKeyProducts)
	e.logger.Info("Engine cache invalidated")
}

func (e *DebtEngine) run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), GeneratedAt: e.now()}
	logger := e.logger.With("run_id", rep.RunID)
	logger.Debug("Run started", "level", e.level)

	// Whole collections, possibly cached
	var (
		guardians []models.Guardian
		relations []models.Relation
		products  []models.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		guardians, err = cache.GetOrFetch(gctx, e.cache, CacheKeyGuardians, e.guardianTTL, e.store.Guardians)
		return err
	})
	g.Go(func() (err error) {
		relations, err = cache.GetOrFetch(gctx, e.cache, CacheKeyRelations, e.guardianTTL, e.store.Relations)
		return err
	})
	g.Go(func() (err error) {
		products, err = cache.GetOrFetch(gctx, e.cache, CacheKeyProducts, e.catalogTTL, e.store.Products)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read collections: %w", err)
	}

	index := calculator.BuildRelationIndex(relations, e.level, logger, calculator.WithKnownGuardians(guardians))
	dependentIDs := index.DependentIDs()

	// Only what the billed dependents need, always fresh
	var (
		dependents []models.Dependent
		purchases  []models.Purchase
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dependents, err = e.store.Dependents(gctx, dependentIDs)
		return err
	})
	g.Go(func() (err error) {
		purchases, err = e.store.UnpaidPurchases(gctx, dependentIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read dependents and purchases: %w", err)
	}

	purchaseIDs := make([]string, len(purchases))
	for i, p := range purchases {
		purchaseIDs[i] = p.ID
	}
	lineItems, err := e.store.LineItems(ctx, purchaseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read line items: %w", err)
	}

	catalog := calculator.BuildCatalogIndex(products, lineItems, logger)
	result := e.aggregator.Aggregate(guardians, dependents, index, purchases, catalog)

	rep.Records = result.Records
	rep.TotalOwed = result.TotalOwed()
	rep.Warnings = append(rep.Warnings, index.Warnings()...)
	rep.Warnings = append(rep.Warnings, catalog.Warnings()...)
	rep.Warnings = append(rep.Warnings, result.Warnings...)

	logger.Info("Run complete",
		"guardians", len(guardians),
		"billed", len(rep.Records),
		"dependents", len(dependentIDs),
		"purchases", len(purchases),
		"total_owed", rep.TotalOwed.StringFixed(2),
		"warnings", len(rep.Warnings),
	)
	return rep, nil
}

func (e *DebtEngine) observe(start time.Time, rep *Report, err error) {
	d := time.Since(start)
	if err != nil {
		outcome := "error"
		switch {
		case allowlist.IsEmptyAllowList(err):
			outcome = "rejected"
		case fetch.IsTransport(err):
			outcome = "transport_error"
		case fetch.IsMalformed(err):
			outcome = "malformed"
		}
		e.logger.Error("Run failed", "outcome", outcome, "error", err, "duration_ms", d.Milliseconds())
		e.metrics.ObserveRun(outcome, d, 0, 0)
		return
	}

	for _, w := range rep.Warnings {
		e.metrics.IntegrityWarning(string(w.Kind))
	}
	e.metrics.ObserveRun("ok", d, len(rep.Records), rep.TotalOwed.InexactFloat64())
}
