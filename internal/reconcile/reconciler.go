package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/detect"
	"github.com/mschirtzinger/tasksync/internal/placement"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Config wires a Reconciler. Poller, Mappings and Materializer are required.
type Config struct {
	Poller       Poller
	Mappings     MappingStore
	Materializer Materializer

	// Placer is optional; without it new tasks are not added to lists.
	Placer Placer

	// Status is optional; without it source status is not written back.
	Status StatusRecorder

	Refreshers []ViewRefresher

	// OnPhase, when set, is called on every phase change.
	OnPhase func(sourceID string, p Phase)

	Now    func() time.Time
	Logger zerolog.Logger
}

// Reconciler runs reconciliation passes. It holds no per-pass state and is
// safe for concurrent use on different source accounts.
type Reconciler struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Poller == nil {
		return nil, errors.New("reconcile: poller is required")
	}
	if cfg.Mappings == nil {
		return nil, errors.New("reconcile: mapping store is required")
	}
	if cfg.Materializer == nil {
		return nil, errors.New("reconcile: materializer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "reconcile").Logger(),
	}, nil
}

// AddRefresher registers another view refresher. Not safe to call while a
// pass is running.
func (r *Reconciler) AddRefresher(v ViewRefresher) {
	r.cfg.Refreshers = append(r.cfg.Refreshers, v)
}

// Reconcile runs one pass for acct.
//
// The returned error is non-nil only when the pass itself failed (poll or
// mapping read). Per-item failures are in Run.Outcomes. The Run is always
// returned.
func (r *Reconciler) Reconcile(ctx context.Context, acct schema.SourceAccount) (*Run, error) {
	run := &Run{
		SourceAccountID: acct.ID,
		Owner:           acct.Owner,
		Phase:           Idle,
		StartedAt:       r.cfg.Now(),
	}
	log := r.logger.With().
		Str("source", acct.ID).
		Str("source_type", string(acct.Type)).
		Logger()

	err := r.execute(ctx, acct, run, log)
	run.FinishedAt = r.cfg.Now()
	if err != nil {
		run.Err = err
		r.setPhase(run, Failed)
		log.Error().Err(err).Msg("reconciliation failed")
	} else {
		r.setPhase(run, Done)
		s := run.Summary()
		log.Info().
			Int("polled", run.Polled).
			Int("new", s.New).
			Int("updated", s.Updated).
			Int("unchanged", s.Unchanged).
			Int("failed", s.Failed).
			Dur("took", run.Duration()).
			Msg("reconciliation complete")
	}

	r.recordStatus(ctx, acct, run, log)
	if err != nil {
		// Views still hear about a failed pass so they can show it.
		r.refresh(context.WithoutCancel(ctx), acct.Owner, run, log)
	}
	return run, err
}

func (r *Reconciler) execute(ctx context.Context, acct schema.SourceAccount, run *Run, log zerolog.Logger) error {
	r.setPhase(run, Polling)
	raws, err := r.cfg.Poller.Poll(ctx, acct)
	if err != nil {
		return fmt.Errorf("poll %s: %w", acct.ID, err)
	}
	run.Polled = len(raws)

	valid := make([]schema.RawAssignment, 0, len(raws))
	for _, raw := range raws {
		if err := raw.Validate(); err != nil {
			run.Outcomes = append(run.Outcomes, Outcome{
				ExternalID: raw.ExternalID,
				Malformed:  true,
				Err:        fmt.Errorf("malformed assignment: %w", err),
			})
			continue
		}
		valid = append(valid, raw)
	}

	r.setPhase(run, Detecting)
	mappings, err := r.cfg.Mappings.MappingsForSource(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("read mappings for %s: %w", acct.ID, err)
	}
	run.Decisions = detect.Classify(acct.ID, valid, mappings)

	r.setPhase(run, Processing)
	for _, d := range run.Decisions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reconciliation interrupted: %w", err)
		}
		out := r.process(ctx, acct, run, d)
		if out.Err != nil {
			log.Warn().Err(out.Err).
				Str("external_id", out.ExternalID).
				Str("kind", out.Kind.String()).
				Msg("assignment failed")
		}
		run.Outcomes = append(run.Outcomes, out)
	}

	r.setPhase(run, RefreshingViews)
	r.refresh(ctx, acct.Owner, run, log)
	return nil
}

func (r *Reconciler) refresh(ctx context.Context, owner string, run *Run, log zerolog.Logger) {
	for _, v := range r.cfg.Refreshers {
		if err := v.Refresh(ctx, owner, run); err != nil {
			log.Warn().Err(err).Msg("view refresh failed")
		}
	}
}

// process handles one decision. It never returns an error; failures go into
// the outcome.
func (r *Reconciler) process(ctx context.Context, acct schema.SourceAccount, run *Run, d detect.Decision) Outcome {
	out := Outcome{
		ExternalID: d.Assignment.ExternalID,
		Kind:       d.Kind,
		TaskID:     d.InternalTaskID,
	}
	if d.Kind == detect.Unchanged {
		return out
	}

	res, err := r.cfg.Materializer.Materialize(ctx, acct.Owner, d)
	if err != nil {
		out.Err = err
		return out
	}
	out.TaskID = res.TaskID

	// The task exists now. Placement and the mapping must land even if the
	// pass is cancelled, or the next poll would create the task again.
	commitCtx := context.WithoutCancel(ctx)

	if d.Kind == detect.New {
		r.place(commitCtx, acct.Owner, res.TaskID, res.DueAt, &out)
	}

	r.setPhase(run, RecordingMapping)
	err = r.cfg.Mappings.RecordMapping(commitCtx, schema.SyncMapping{
		SourceAccountID:    acct.ID,
		ExternalID:         d.Assignment.ExternalID,
		InternalTaskID:     res.TaskID,
		ExternalModifiedAt: d.Assignment.ModifiedAt,
	})
	r.setPhase(run, Processing)
	if err != nil {
		out.Err = fmt.Errorf("task %s saved but mapping not recorded: %w", res.TaskID, err)
	}
	return out
}

// place adds a new task to its lists. Overdue tasks are left out; placement
// problems become warnings.
func (r *Reconciler) place(ctx context.Context, owner, taskID string, dueAt time.Time, out *Outcome) {
	if r.cfg.Placer == nil {
		return
	}
	if dueAt.Before(r.cfg.Now()) {
		return
	}

	res, err := r.cfg.Placer.Place(ctx, owner, taskID, dueAt)
	if errors.Is(err, placement.ErrOverdue) {
		return
	}
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("placement skipped: %v", err))
		return
	}
	out.PlacedLists = res.Placed

	failed := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		out.Warnings = append(out.Warnings, fmt.Sprintf("list %s: %v", id, res.Failed[id]))
	}
}

func (r *Reconciler) recordStatus(ctx context.Context, acct schema.SourceAccount, run *Run, log zerolog.Logger) {
	if r.cfg.Status == nil {
		return
	}

	status := schema.StatusConnected
	lastErr := ""
	switch {
	case run.Err != nil:
		status = schema.StatusError
		lastErr = run.Err.Error()
	default:
		if n := run.Summary().Failed; n > 0 {
			lastErr = fmt.Sprintf("%d of %d assignments failed", n, len(run.Outcomes))
		}
	}

	// The caller's context may already be cancelled; the status still needs
	// to land.
	if err := r.cfg.Status.UpdateSourceStatus(context.WithoutCancel(ctx), acct.ID, status, lastErr, run.FinishedAt); err != nil {
		log.Warn().Err(err).Msg("failed to record source status")
	}
}

func (r *Reconciler) setPhase(run *Run, p Phase) {
	run.Phase = p
	if r.cfg.OnPhase != nil {
		r.cfg.OnPhase(run.SourceAccountID, p)
	}
}
