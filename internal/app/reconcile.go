package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"listing_sync/internal/domain"
)

type EngineOptions struct {
	// Workers bounds concurrent per-record work. Values below 1 mean 1.
	Workers int
	// DryRun computes the report without writing to the store or caching images.
	DryRun bool
	// RetireLimit skips the retirement step when more records would be
	// retired. 0 disables the check.
	RetireLimit int
}

// Engine aligns the local store with one sanitized snapshot of the remote catalog.
type Engine struct {
	store domain.LocalStore
	opts  EngineOptions
}

func NewEngine(store domain.LocalStore, opts EngineOptions) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Engine{store: store, opts: opts}
}

func (e *Engine) DryRun() bool { return e.opts.DryRun }

type action int

const (
	actCreated action = iota
	actUpdated
	actUnchanged
	actReactivated
	actFailed
)

type outcome struct {
	externalID string
	act        action
	problems   []domain.Problem
}

// Apply upserts every listing and then retires active records that are absent
// from listings. The snapshot must come from a successful fetch: an empty
// slice retires everything.
//
// Per-record failures are reported and do not stop the cycle. A cancelled
// context or a failed ListActive skips retirement and returns an error.
func (e *Engine) Apply(ctx context.Context, listings []domain.Listing) (domain.SyncReport, error) {
	rep := domain.SyncReport{DryRun: e.opts.DryRun}

	remote := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		remote[l.ExternalID] = struct{}{}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(e.opts.Workers))
	)
	for _, l := range listings {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(l domain.Listing) {
			defer wg.Done()
			defer sem.Release(1)
			out := e.upsert(ctx, l)
			mu.Lock()
			e.record(&rep, out)
			mu.Unlock()
		}(l)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("reconcile interrupted before retirement: %w", err)
	}
	if err := e.retireMissing(ctx, remote, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (e *Engine) upsert(ctx context.Context, l domain.Listing) outcome {
	rec, err := e.store.FindByExternalID(ctx, l.ExternalID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return e.create(ctx, l)
	case err != nil:
		return failed(l.ExternalID, fmt.Errorf("find: %w", err))
	}
	return e.overwrite(ctx, rec, l)
}

// overwrite replaces the mutable fields of an existing record. The featured
// image is never touched here.
func (e *Engine) overwrite(ctx context.Context, rec domain.PropertyRecord, l domain.Listing) outcome {
	f := l.Fields()
	if !rec.IsActive() {
		if !e.opts.DryRun {
			if err := e.store.Reactivate(ctx, rec.ID, f); err != nil {
				return failed(l.ExternalID, fmt.Errorf("reactivate: %w", err))
			}
		}
		return outcome{externalID: l.ExternalID, act: actReactivated}
	}
	if rec.Fields().SameContent(f) {
		return outcome{externalID: l.ExternalID, act: actUnchanged}
	}
	if !e.opts.DryRun {
		if err := e.store.Update(ctx, rec.ID, f); err != nil {
			return failed(l.ExternalID, fmt.Errorf("update: %w", err))
		}
	}
	return outcome{externalID: l.ExternalID, act: actUpdated}
}

func (e *Engine) create(ctx context.Context, l domain.Listing) outcome {
	if e.opts.DryRun {
		return outcome{externalID: l.ExternalID, act: actCreated}
	}

	out := outcome{externalID: l.ExternalID, act: actCreated}
	f := l.Fields()
	if photo, ok := l.PrimaryPhoto(); ok {
		ref, err := e.store.CacheImage(ctx, photo)
		if err != nil {
			log.Warn().Err(err).Str("external_id", l.ExternalID).Msg("featured image not cached")
			out.problems = append(out.problems, domain.Problem{
				Kind:       domain.ProblemAssetCache,
				ExternalID: l.ExternalID,
				Detail:     err.Error(),
			})
		} else {
			f.FeaturedImage = &ref
		}
	}

	_, err := e.store.Create(ctx, f)
	if errors.Is(err, domain.ErrDuplicate) {
		// created concurrently by someone else; treat as a resighting
		rec, ferr := e.store.FindByExternalID(ctx, l.ExternalID)
		if ferr != nil {
			return failed(l.ExternalID, fmt.Errorf("create: %w", err))
		}
		o := e.overwrite(ctx, rec, l)
		o.problems = append(out.problems, o.problems...)
		return o
	}
	if err != nil {
		o := failed(l.ExternalID, fmt.Errorf("create: %w", err))
		o.problems = append(out.problems, o.problems...)
		if f.FeaturedImage != nil {
			// object keys derive from the photo URL, so the next create reuses it
			log.Warn().Str("external_id", l.ExternalID).Str("asset", string(*f.FeaturedImage)).
				Msg("cached image left unreferenced")
			o.problems = append(o.problems, domain.Problem{
				Kind:       domain.ProblemAssetCache,
				ExternalID: l.ExternalID,
				Detail:     fmt.Sprintf("cached image %s unreferenced: record not created", *f.FeaturedImage),
			})
		}
		return o
	}
	return out
}

func (e *Engine) retireMissing(ctx context.Context, remote map[string]struct{}, rep *domain.SyncReport) error {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		rep.AddProblem(domain.ProblemStore, "", "list active: "+err.Error())
		return fmt.Errorf("list active records: %w", err)
	}

	var orphans []domain.PropertyRecord
	for _, r := range active {
		if _, ok := remote[r.ExternalID]; !ok {
			orphans = append(orphans, r)
		}
	}
	if e.opts.RetireLimit > 0 && len(orphans) > e.opts.RetireLimit {
		log.Warn().Int("orphans", len(orphans)).Int("limit", e.opts.RetireLimit).Msg("retirement skipped: limit exceeded")
		rep.AddProblem(domain.ProblemGuard, "",
			fmt.Sprintf("%d records would be retired, limit is %d; retirement skipped", len(orphans), e.opts.RetireLimit))
		return nil
	}

	for _, r := range orphans {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retirement interrupted: %w", err)
		}
		if !e.opts.DryRun {
			if err := e.store.Retire(ctx, r.ID); err != nil {
				rep.Failed++
				rep.AddProblem(domain.ProblemStore, r.ExternalID, "retire: "+err.Error())
				continue
			}
			rep.Touched = append(rep.Touched, r.ExternalID)
		}
		rep.Retired++
	}
	return nil
}

func (e *Engine) record(rep *domain.SyncReport, o outcome) {
	rep.Problems = append(rep.Problems, o.problems...)
	switch o.act {
	case actCreated:
		rep.Created++
	case actUpdated:
		rep.Updated++
	case actUnchanged:
		rep.Unchanged++
		return
	case actReactivated:
		rep.Reactivated++
	case actFailed:
		rep.Failed++
		return
	}
	if !e.opts.DryRun {
		rep.Touched = append(rep.Touched, o.externalID)
	}
}

func failed(externalID string, err error) outcome {
	return outcome{
		externalID: externalID,
		act:        actFailed,
		problems:   []domain.Problem{{Kind: domain.ProblemStore, ExternalID: externalID, Detail: err.Error()}},
	}
}
