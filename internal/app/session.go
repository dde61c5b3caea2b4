// Package app wires stores, sources, the reconciler and the scheduler into a
// Session that the CLI drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/backend"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/materialize"
	"github.com/mschirtzinger/tasksync/internal/placement"
	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/scheduler"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/sources"
	"github.com/mschirtzinger/tasksync/internal/sources/filesrc"
	"github.com/mschirtzinger/tasksync/internal/sources/gcal"
	"github.com/mschirtzinger/tasksync/internal/sources/lms"
)

// ErrListItemsUnsupported is returned by ListItems when the store cannot
// enumerate list items.
var ErrListItemsUnsupported = errors.New("list items are not available from this store")

// Store holds tasks and lists. Both db.DB and backend.Client implement it.
type Store interface {
	materialize.TaskStore
	placement.ListStore
	PrioritizedTasks(ctx context.Context, owner string) ([]*schema.Task, error)
	CompleteTask(ctx context.Context, id string) error
	SnoozeTask(ctx context.Context, id string, until time.Time) (*schema.Task, error)
	ActiveLists(ctx context.Context, owner string, at time.Time) ([]schema.TodoList, error)
	CreateList(ctx context.Context, l *schema.TodoList) error
}

// ItemLister is implemented by stores that can list the items of a list.
type ItemLister interface {
	GetList(ctx context.Context, id string) (*schema.TodoList, error)
	ItemsForList(ctx context.Context, listID string) ([]schema.ListItem, error)
}

var (
	_ Store      = (*db.DB)(nil)
	_ Store      = (*backend.Client)(nil)
	_ ItemLister = (*db.DB)(nil)
)

// Options configures Open.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Registry overrides the built-in source adapters.
	Registry *sources.Registry

	// Store overrides the store chosen by Config.Store.Backend.
	Store Store

	// RunOnStart makes the scheduler run a pass as soon as it starts.
	RunOnStart bool

	Now func() time.Time
}

// Session is everything one owner's commands and daemon share. Sources and
// mappings always live in the local database; tasks and lists live in Store.
type Session struct {
	cfg    *config.Config
	owner  string
	db     *db.DB
	store  Store
	now    func() time.Time
	logger zerolog.Logger

	registry   *sources.Registry
	reconciler *reconcile.Reconciler
	scheduler  *scheduler.Scheduler
	errors     *ErrorBoard
}

// Open opens the local database and wires a Session.
func Open(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	board := NewErrorBoard()

	store := opts.Store
	if store == nil {
		store, err = newStore(cfg, database, board, logger)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	mcfg := materialize.DefaultConfig()
	if cfg.Sync.DefaultDueOffset > 0 {
		mcfg.DueOffset = cfg.Sync.DefaultDueOffset
	}
	mcfg.Now = now

	rec, err := reconcile.New(reconcile.Config{
		Poller:       registry,
		Mappings:     database,
		Materializer: materialize.New(store, mcfg),
		Placer: placement.New(store, placement.Config{
			ListNames: cfg.Placement.DefaultListNames,
			Now:       now,
			Logger:    logger,
		}),
		Status: database,
		Now:    now,
		Logger: logger,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	scfg := scheduler.DefaultConfig(cfg.Owner)
	if cfg.Sync.Interval > 0 {
		scfg.Interval = cfg.Sync.Interval
	}
	scfg.RunOnStart = opts.RunOnStart
	scfg.Logger = logger

	sched, err := scheduler.New(rec, database, scfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	return &Session{
		cfg:        cfg,
		owner:      cfg.Owner,
		db:         database,
		store:      store,
		now:        now,
		logger:     logger.With().Str("component", "app").Logger(),
		registry:   registry,
		reconciler: rec,
		scheduler:  sched,
		errors:     board,
	}, nil
}

func newStore(cfg *config.Config, database *db.DB, board *ErrorBoard, logger zerolog.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRemote:
		if strings.TrimSpace(cfg.Store.SessionToken) == "" {
			board.Set(DomainAuth, errors.New("no session token configured for the remote store"))
		}
		client, err := backend.New(backend.Config{
			BaseURL:      cfg.Store.BaseURL,
			SessionToken: cfg.Store.SessionToken,
			Timeout:      cfg.Store.Timeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create backend client: %w", err)
		}
		return client, nil
	default:
		return database, nil
	}
}

// DefaultRegistry returns the built-in calendar, LMS and file adapters.
func DefaultRegistry() *sources.Registry {
	return sources.NewRegistry(gcal.New(), lms.New(), filesrc.New())
}

// Close stops the scheduler and closes the database.
func (s *Session) Close() error {
	s.scheduler.Stop()
	return s.db.Close()
}

func (s *Session) Owner() string { return s.owner }
func (s *Session) Config() *config.Config { return s.cfg }
func (s *Session) Errors() *ErrorBoard { return s.errors }
func (s *Session) Scheduler() *scheduler.Scheduler { return s.scheduler }
func (s *Session) Registry() *sources.Registry { return s.registry }
func (s *Session) AddRefresher(v reconcile.ViewRefresher) { s.reconciler.AddRefresher(v) }
