package listings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// IngestReport counts what happened to the postings of one ingestion run.
type IngestReport struct {
	Fetched int
	Stored  int
	Dropped int
	// Failed names the sources whose fetch failed.
	Failed []string
}

// Ingest fetches every source, normalizes the postings and writes them in one
// batch per source. Postings that fail normalization are dropped and logged. A
// failing source does not stop the others; its error is included in the returned
// error.
func Ingest(ctx context.Context, sources []Source, q SourceQuery, w Writer, logger *zap.Logger) (IngestReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		report IngestReport
		errs   []error
	)
	for _, src := range sources {
		log := logger.With(zap.String("source", src.Name()))

		raw, err := src.Fetch(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Warn("source fetch failed", zap.Error(err))
			report.Failed = append(report.Failed, src.Name())
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name(), err))
			continue
		}
		report.Fetched += len(raw)

		now := time.Now()
		seen := make(map[string]struct{}, len(raw))
		batch := make([]types.JobListing, 0, len(raw))
		for _, posting := range raw {
			listing, err := Normalize(src.Name(), posting, now)
			if err != nil {
				report.Dropped++
				log.Debug("posting dropped", zap.Error(err))
				continue
			}
			if _, dup := seen[listing.ID]; dup {
				report.Dropped++
				continue
			}
			seen[listing.ID] = struct{}{}
			batch = append(batch, listing)
		}

		if len(batch) == 0 {
			continue
		}
		stored, err := w.UpsertListings(ctx, batch)
		if err != nil {
			return report, fmt.Errorf("failed to store listings from %s: %w", src.Name(), err)
		}
		report.Stored += stored
		log.Info("source ingested",
			zap.Int("fetched", len(raw)),
			zap.Int("stored", stored))
	}

	return report, errors.Join(errs...)
}
