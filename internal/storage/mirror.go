package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/cantina/internal/fetch"
)

// MirrorAll copies every collection from src into dst. Collections are
// copied one at a time; a failure leaves earlier collections replaced and
// later ones untouched.
func MirrorAll(ctx context.Context, src fetch.Fetcher, dst Mirror, logger *slog.Logger) ([]MirrorRun, error) {
	if logger == nil {
		logger = slog.Default()
	}

	runs := make([]MirrorRun, 0, len(fetch.AllCollections))
	for _, collection := range fetch.AllCollections {
		docs, err := src.Fetch(ctx, collection, fetch.Query{})
		if err != nil {
			return runs, fmt.Errorf("failed to read %s: %w", collection, err)
		}

		run, err := dst.Replace(ctx, collection, docs)
		if err != nil {
			return runs, fmt.Errorf("failed to store %s: %w", collection, err)
		}
		logger.Info("Collection mirrored", "collection", collection, "records", run.Records, "run_id", run.ID)
		runs = append(runs, *run)
	}
	return runs, nil
}
