package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

type fakeSources struct {
	mu       sync.Mutex
	accounts []*schema.SourceAccount
	err      error
}

func (f *fakeSources) ListSources(context.Context, string) ([]*schema.SourceAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*schema.SourceAccount(nil), f.accounts...), f.err
}

func (f *fakeSources) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.accounts[:0]
	for _, a := range f.accounts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	f.accounts = kept
}

func (f *fakeSources) GetSource(_ context.Context, id string) (*schema.SourceAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New("not found")
}

// fakeReconciler records calls and can block or fail per source.
type fakeReconciler struct {
	mu       sync.Mutex
	calls    []string
	failFor  map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxPar   atomic.Int32
	passes   atomic.Int32
}

func (f *fakeReconciler) Reconcile(_ context.Context, acct schema.SourceAccount) (*reconcile.Run, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxPar.Load()
		if n <= cur || f.maxPar.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, acct.ID)
	f.mu.Unlock()
	f.passes.Add(1)

	run := &reconcile.Run{SourceAccountID: acct.ID, Phase: reconcile.Done}
	if f.failFor[acct.ID] {
		run.Phase = reconcile.Failed
		run.Err = errors.New("poll failed")
		return run, run.Err
	}
	return run, nil
}

func (f *fakeReconciler) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func accounts(ids ...string) []*schema.SourceAccount {
	out := make([]*schema.SourceAccount, 0, len(ids))
	for _, id := range ids {
		out = append(out, &schema.SourceAccount{ID: id, Owner: "alice", Name: id, Type: schema.SourceTypeFile, Status: schema.StatusConnected})
	}
	return out
}

func newScheduler(t *testing.T, rec Reconciler, src SourceLister, interval time.Duration) *Scheduler {
	t.Helper()
	s, err := New(rec, src, Config{Owner: "alice", Interval: interval, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeSources{}, Config{Owner: "a"})
	assert.Error(t, err)
	_, err = New(&fakeReconciler{}, nil, Config{Owner: "a"})
	assert.Error(t, err)
	_, err = New(&fakeReconciler{}, &fakeSources{}, Config{})
	assert.Error(t, err)

	s, err := New(&fakeReconciler{}, &fakeSources{}, Config{Owner: "a"})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.cfg.Interval)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("alice")
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, "alice", cfg.Owner)
}

func TestSyncAll_SequentialAndContinuesAfterFailure(t *testing.T) {
	rec := &fakeReconciler{failFor: map[string]bool{"b": true}}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a", "b", "c")}, time.Hour)

	runs, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.callList())
	require.Len(t, runs, 3)
	assert.Equal(t, reconcile.Failed, runs[1].Phase)
	assert.Equal(t, int32(1), rec.maxPar.Load(), "sources must run one at a time")
}

func TestSyncAll_ListError(t *testing.T) {
	s := newScheduler(t, &fakeReconciler{}, &fakeSources{err: errors.New("db gone")}, time.Hour)
	_, err := s.SyncAll(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

func TestSyncAll_CancelledBeforeStart(t *testing.T) {
	rec := &fakeReconciler{}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a", "b")}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runs, err := s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, rec.callList())
}

func TestStart_Ticks(t *testing.T) {
	rec := &fakeReconciler{}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a")}, 10*time.Millisecond)

	s.Start(context.Background())
	assert.True(t, s.Running())

	require.Eventually(t, func() bool { return rec.passes.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_TwiceLeavesOneLoop(t *testing.T) {
	rec := &fakeReconciler{}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a")}, 10*time.Millisecond)

	s.Start(context.Background())
	s.Start(context.Background())
	s.Start(context.Background())

	assert.Equal(t, 1, s.ActiveLoops())
	assert.True(t, s.Running())
}

func TestStop_NoFurtherTicks(t *testing.T) {
	rec := &fakeReconciler{}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a")}, 5*time.Millisecond)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return rec.passes.Load() >= 1 }, 2*time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.ActiveLoops())

	after := rec.passes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.passes.Load(), "no pass may run after Stop returns")

	s.Stop()
	s.Stop()
}

func TestStop_LetsCurrentSourceFinish(t *testing.T) {
	rec := &fakeReconciler{delay: 50 * time.Millisecond}
	s, err := New(rec, &fakeSources{accounts: accounts("a", "b", "c")},
		Config{Owner: "alice", Interval: time.Hour, RunOnStart: true, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return rec.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	s.Stop()

	calls := rec.callList()
	require.NotEmpty(t, calls, "the in-flight source completes")
	assert.Less(t, len(calls), 3, "sources after Stop are skipped")
}

func TestStart_ParentContextCancel(t *testing.T) {
	s := newScheduler(t, &fakeReconciler{}, &fakeSources{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.ActiveLoops())
}

func TestSyncNow(t *testing.T) {
	rec := &fakeReconciler{}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a", "b")}, time.Hour)

	run, err := s.SyncNow(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", run.SourceAccountID)
	assert.Equal(t, []string{"b"}, rec.callList())

	_, err = s.SyncNow(context.Background(), "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestSyncNow_RejectsOtherOwner(t *testing.T) {
	other := &schema.SourceAccount{ID: "x", Owner: "bob", Name: "x", Type: schema.SourceTypeFile}
	s := newScheduler(t, &fakeReconciler{}, &fakeSources{accounts: []*schema.SourceAccount{other}}, time.Hour)

	_, err := s.SyncNow(context.Background(), "x")
	assert.ErrorContains(t, err, "does not belong")
}

func TestSyncNow_SerializesWithScheduledRun(t *testing.T) {
	rec := &fakeReconciler{delay: 20 * time.Millisecond}
	s := newScheduler(t, rec, &fakeSources{accounts: accounts("a")}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SyncNow(context.Background(), "a")
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.SyncAll(context.Background())
	}()
	wg.Wait()

	assert.Len(t, rec.callList(), 5)
	assert.Equal(t, int32(1), rec.maxPar.Load(), "runs for one account never overlap")
}

func TestExclusive_WaitsForRunningPass(t *testing.T) {
	rec := &fakeReconciler{delay: 50 * time.Millisecond}
	src := &fakeSources{accounts: accounts("a")}
	s := newScheduler(t, rec, src, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.SyncNow(context.Background(), "a")
	}()
	require.Eventually(t, func() bool { return rec.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	err := s.Exclusive("a", func() error {
		assert.Equal(t, int32(0), rec.inFlight.Load(), "no pass runs while the lock is held")
		src.remove("a")
		return nil
	})
	require.NoError(t, err)
	<-done

	_, err = s.SyncNow(context.Background(), "a")
	assert.ErrorContains(t, err, "failed to load source a")
	assert.Equal(t, []string{"a"}, rec.callList(), "a removed account is not reconciled")
}

func TestExclusive_ReturnsError(t *testing.T) {
	s := newScheduler(t, &fakeReconciler{}, &fakeSources{}, time.Hour)
	err := s.Exclusive("a", func() error { return errors.New("delete failed") })
	assert.EqualError(t, err, "delete failed")
}

func TestSyncAll_SkipsSourceRemovedDuringPass(t *testing.T) {
	rec := &fakeReconciler{delay: 30 * time.Millisecond}
	src := &fakeSources{accounts: accounts("a", "b")}
	s := newScheduler(t, rec, src, time.Hour)

	done := make(chan struct{})
	var runs []*reconcile.Run
	go func() {
		defer close(done)
		runs, _ = s.SyncAll(context.Background())
	}()
	require.Eventually(t, func() bool { return rec.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Exclusive("b", func() error {
		src.remove("b")
		return nil
	}))
	<-done

	assert.Equal(t, []string{"a"}, rec.callList())
	require.Len(t, runs, 1)
}
