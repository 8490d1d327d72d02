package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gamezone/internal/app/session"
	"gamezone/internal/providers/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls   atomic.Int32
	grace   time.Duration
	block   chan struct{}
	entered chan struct{}
	mu      sync.Mutex
}

func (f *fakeSweeper) SweepOverdueSessions(_ context.Context, grace time.Duration) (*session.SweepResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.grace = grace
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return &session.SweepResult{Candidates: 1, RolledOver: 1}, nil
}

type fakeStore struct {
	calls atomic.Int32
}

func (f *fakeStore) DeleteOlderThan(context.Context, string, time.Duration) (int, error) {
	f.calls.Add(1)
	return 0, nil
}

func newTestScheduler(t *testing.T, sweeper Sweeper, opts Options) *Scheduler {
	t.Helper()
	s, err := New(sweeper, nil, nil, opts, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRunOncePassesGrace(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(t, sweeper, Options{Grace: 5 * time.Minute})

	res, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.RolledOver)
	assert.Equal(t, 5*time.Minute, sweeper.grace)
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := newTestScheduler(t, sweeper, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-sweeper.entered

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, session.ErrSweepInFlight)

	close(sweeper.block)
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestRunOnceHonoursRemoteLock(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(t, sweeper, Options{})

	s.lock = func(context.Context, string, time.Duration) (func(context.Context) error, error) {
		return nil, redis.ErrLockHeld
	}
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, session.ErrSweepInFlight)
	assert.Zero(t, sweeper.calls.Load())

	var released bool
	s.lock = func(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
		assert.Equal(t, SweepLockKey, key)
		return func(context.Context) error { released = true; return nil }, nil
	}
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRunOnceProceedsWhenLockStoreDown(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(t, sweeper, Options{})
	s.lock = func(context.Context, string, time.Duration) (func(context.Context) error, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestStartRunsSweepOnInterval(t *testing.T) {
	sweeper := &fakeSweeper{}
	store := &fakeStore{}
	s, err := New(sweeper, nil, store, Options{Interval: 20 * time.Millisecond, ExportRetention: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown() })

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, s.sched.Jobs(), 2)
}

func TestStartWithZeroIntervalSkipsSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{}
	store := &fakeStore{}
	s, err := New(sweeper, nil, store, Options{Interval: 0, ExportRetention: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown() })

	jobs := s.sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "prune-exports", jobs[0].Name())

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
