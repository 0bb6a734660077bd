package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/cantina/internal/metrics"
)

// Instrumented records metrics and debug logs for every read of the wrapped
// Fetcher.
type Instrumented struct {
	next    Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInstrumented wraps next. m may be nil.
func NewInstrumented(next Fetcher, m *metrics.Metrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{next: next, metrics: m, logger: logger}
}

// Fetch implements Fetcher.
func (i *Instrumented) Fetch(ctx context.Context, collection Collection, q Query) ([]json.RawMessage, error) {
	start := time.Now()
	records, err := i.next.Fetch(ctx, collection, q)
	elapsed := time.Since(start)

	outcome := outcomeOf(err)
	i.metrics.ObserveFetch(string(collection), outcome, elapsed, len(records))

	if err != nil {
		i.logger.Warn("Fetch failed",
			"collection", collection,
			"outcome", outcome,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	i.logger.Debug("Fetch ok",
		"collection", collection,
		"filters", len(q.Filters),
		"records", len(records),
		"duration_ms", elapsed.Milliseconds(),
	)
	return records, nil
}

func outcomeOf(err error) string {
	var te *TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te) && te.Timeout:
		return "timeout"
	case errors.As(err, &te):
		return "transport_error"
	case IsMalformed(err):
		return "malformed"
	default:
		return "error"
	}
}
