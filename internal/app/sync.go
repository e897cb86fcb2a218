package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"listing_sync/internal/domain"
)

const recordRunTimeout = 5 * time.Second

// SyncObserver receives the outcome of every finished cycle (metrics).
type SyncObserver func(result string, dur time.Duration, counts map[string]int)

type SyncDeps struct {
	Tokens    domain.TokenSource
	Catalog   domain.CatalogClient
	Sanitizer *Sanitizer
	Engine    *Engine

	// Optional.
	Runs    domain.RunLog
	Cache   domain.Cache
	Observe SyncObserver
}

// SyncService runs full sync cycles: token, fetch, clean, apply. At most one
// cycle runs at a time per service.
type SyncService struct {
	d       SyncDeps
	running sync.Mutex
	now     func() time.Time
}

func NewSyncService(d SyncDeps) *SyncService {
	if d.Sanitizer == nil {
		d.Sanitizer = NewSanitizer()
	}
	return &SyncService{d: d, now: time.Now}
}

// RunSyncCycle returns domain.ErrSyncInProgress without doing anything when
// another cycle is running. Token and fetch failures abort the cycle before
// the store is touched; the returned report is then marked Aborted.
func (s *SyncService) RunSyncCycle(ctx context.Context) (domain.SyncReport, error) {
	if !s.running.TryLock() {
		return domain.SyncReport{}, domain.ErrSyncInProgress
	}
	defer s.running.Unlock()

	rep := domain.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		DryRun:    s.d.Engine.DryRun(),
	}
	logger := log.With().Str("run_id", rep.RunID).Logger()
	logger.Info().Bool("dry_run", rep.DryRun).Msg("sync started")

	token, err := s.d.Tokens.Token(ctx)
	if err != nil {
		return s.abort(ctx, logger, rep, fmt.Errorf("token: %w", err))
	}

	raw, err := s.d.Catalog.FetchListings(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			s.d.Tokens.Invalidate(ctx)
		}
		return s.abort(ctx, logger, rep, err)
	}

	listings, dropped := s.d.Sanitizer.Clean(raw)
	for _, d := range dropped {
		logger.Warn().Int("index", d.Index).Str("external_id", d.ExternalID).Str("reason", d.Reason).Msg("entry dropped")
	}

	applied, applyErr := s.d.Engine.Apply(ctx, listings)
	applied.RunID = rep.RunID
	applied.StartedAt = rep.StartedAt
	applied.Fetched = len(raw)
	applied.Skipped = len(dropped)
	applied.Problems = append(describeDrops(dropped), applied.Problems...)
	rep = applied

	invalidate(ctx, s.d.Cache, rep.Touched)
	s.finish(ctx, logger, &rep, applyErr)
	return rep, applyErr
}

func (s *SyncService) abort(ctx context.Context, logger zerolog.Logger, rep domain.SyncReport, err error) (domain.SyncReport, error) {
	rep.Aborted = true
	rep.AbortReason = err.Error()
	s.finish(ctx, logger, &rep, err)
	return rep, err
}

func (s *SyncService) finish(ctx context.Context, logger zerolog.Logger, rep *domain.SyncReport, err error) {
	rep.FinishedAt = s.now().UTC()
	dur := rep.FinishedAt.Sub(rep.StartedAt)

	result := "ok"
	switch {
	case rep.Aborted:
		result = "aborted"
	case err != nil:
		result = "error"
	case len(rep.Problems) > 0:
		result = "partial"
	}

	if s.d.Runs != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordRunTimeout)
		if rerr := s.d.Runs.RecordRun(rctx, *rep); rerr != nil {
			logger.Error().Err(rerr).Msg("record sync run failed")
		}
		cancel()
	}
	if s.d.Observe != nil {
		s.d.Observe(result, dur, map[string]int{
			"created":     rep.Created,
			"updated":     rep.Updated,
			"unchanged":   rep.Unchanged,
			"reactivated": rep.Reactivated,
			"retired":     rep.Retired,
			"skipped":     rep.Skipped,
			"failed":      rep.Failed,
		})
	}

	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	} else if len(rep.Problems) > 0 {
		ev = logger.Warn()
	}
	ev.Str("result", result).
		Dur("duration", dur).
		Int("fetched", rep.Fetched).
		Int("created", rep.Created).
		Int("updated", rep.Updated).
		Int("unchanged", rep.Unchanged).
		Int("reactivated", rep.Reactivated).
		Int("retired", rep.Retired).
		Int("skipped", rep.Skipped).
		Int("failed", rep.Failed).
		Int("problems", len(rep.Problems)).
		Msg("sync finished")
}
