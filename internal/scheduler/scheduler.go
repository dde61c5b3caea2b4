// Package scheduler drives periodic reconciliation of a user's sources.
//
// The scheduler:
//  1. Runs one ticker loop per session; a second Start replaces the first
//  2. On each tick reconciles every source of the owner, one after another
//  3. Serializes runs per source account, so a manual SyncNow and a tick for
//     the same account never overlap
//  4. Stops deterministically: once Stop returns no further tick fires
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// DefaultInterval is the default period between passes.
const DefaultInterval = time.Hour

// Reconciler runs one pass for one source account.
type Reconciler interface {
	Reconcile(ctx context.Context, acct schema.SourceAccount) (*reconcile.Run, error)
}

// SourceLister reads source accounts.
type SourceLister interface {
	ListSources(ctx context.Context, owner string) ([]*schema.SourceAccount, error)
	GetSource(ctx context.Context, id string) (*schema.SourceAccount, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Owner whose sources are reconciled.
	Owner string

	// Interval is the period between passes.
	Interval time.Duration

	// RunOnStart runs a pass immediately instead of waiting one interval.
	RunOnStart bool

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults for owner.
func DefaultConfig(owner string) Config {
	return Config{
		Owner:    owner,
		Interval: DefaultInterval,
		Logger:   zerolog.Nop(),
	}
}

// Scheduler periodically reconciles every source of one owner.
type Scheduler struct {
	cfg     Config
	rec     Reconciler
	sources SourceLister
	logger  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	loops atomic.Int32
}

// New creates a Scheduler. It does nothing until Start is called.
func New(rec Reconciler, sources SourceLister, cfg Config) (*Scheduler, error) {
	if rec == nil {
		return nil, errors.New("reconciler cannot be nil")
	}
	if sources == nil {
		return nil, errors.New("source lister cannot be nil")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner cannot be empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		cfg:     cfg,
		rec:     rec,
		sources: sources,
		logger:  cfg.Logger.With().Str("component", "scheduler").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Start begins the ticker loop. A loop that is already running is stopped
// first, so there is never more than one. The loop ends when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.loops.Add(1)
	go s.loop(loopCtx, done)

	s.logger.Info().
		Str("owner", s.cfg.Owner).
		Dur("interval", s.cfg.Interval).
		Msg("scheduler started")
}

// Stop ends the ticker loop and waits for it to exit. A pass in progress
// finishes the source it is on first. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		s.logger.Info().Msg("scheduler stopped")
	}
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	return true
}

// Running reports whether a ticker loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ActiveLoops is the number of ticker goroutines currently alive.
func (s *Scheduler) ActiveLoops() int {
	return int(s.loops.Load())
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.loops.Add(-1)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.runPass(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if _, err := s.SyncAll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("scheduled sync failed")
	}
}

// SyncAll reconciles every source of the owner, strictly one after another.
// A failing source is logged and the next one still runs. Cancelling ctx
// stops before the next source; the current one is allowed to finish.
//
// The returned error is non-nil only when the sources could not be listed.
func (s *Scheduler) SyncAll(ctx context.Context) ([]*reconcile.Run, error) {
	accounts, err := s.sources.ListSources(ctx, s.cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	runs := make([]*reconcile.Run, 0, len(accounts))
	for _, acct := range accounts {
		if ctx.Err() != nil {
			break
		}
		run, err := s.reconcile(context.WithoutCancel(ctx), acct.ID)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("source", acct.ID).
				Str("source_name", acct.Name).
				Msg("source sync failed")
		}
		if run != nil {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

// SyncNow reconciles one source immediately, waiting for any run already in
// progress for the same account.
func (s *Scheduler) SyncNow(ctx context.Context, sourceID string) (*reconcile.Run, error) {
	return s.reconcile(ctx, sourceID)
}

// Exclusive runs fn while holding the lock of sourceID: no pass for that
// account is in flight and none starts until fn returns.
func (s *Scheduler) Exclusive(sourceID string, fn func() error) error {
	lock := s.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	return fn()
}

// reconcile loads the account under its lock; an account removed while the
// pass waited is reported as a load failure.
func (s *Scheduler) reconcile(ctx context.Context, sourceID string) (*reconcile.Run, error) {
	lock := s.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	if acct.Owner != s.cfg.Owner {
		return nil, fmt.Errorf("source %s does not belong to %s", sourceID, s.cfg.Owner)
	}
	return s.rec.Reconcile(ctx, *acct)
}

func (s *Scheduler) lockFor(sourceID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceID] = l
	}
	return l
}
