package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gamezone/internal/app/session"
	"gamezone/internal/providers/minio"
	"gamezone/internal/providers/redis"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	SweepLockKey = "sweep:lock"
	lockTTL      = time.Minute
)

type Sweeper interface {
	SweepOverdueSessions(ctx context.Context, grace time.Duration) (*session.SweepResult, error)
}

type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, prefix string, maxAge time.Duration) (int, error)
}

// lockFunc takes the cross-instance lease; the returned func releases it.
type lockFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)

type Options struct {
	Interval        time.Duration
	Grace           time.Duration
	ExportRetention time.Duration
}

type Scheduler struct {
	sweeper Sweeper
	store   RetentionStore
	lock    lockFunc
	opts    Options
	running sync.Mutex
	sched   gocron.Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.SugaredLogger
}

// New accepts a nil redis provider or store; the sweep then runs without the
// cross-instance lock and exports are never pruned.
func New(sweeper Sweeper, redisP *redis.RedisProvider, store RetentionStore, opts Options, logger *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		sweeper: sweeper,
		store:   store,
		opts:    opts,
		sched:   sched,
		logger:  logger.Sugar(),
	}
	if redisP != nil {
		s.lock = func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
			l, err := redisP.AcquireLock(ctx, key, ttl)
			if err != nil {
				return nil, err
			}
			return l.Release, nil
		}
	}
	return s, nil
}

// RunOnce performs one sweep. Overlapping runs, in this process or another instance,
// get session.ErrSweepInFlight.
func (s *Scheduler) RunOnce(ctx context.Context) (*session.SweepResult, error) {
	if !s.running.TryLock() {
		return nil, session.ErrSweepInFlight
	}
	defer s.running.Unlock()

	if s.lock != nil {
		release, err := s.lock(ctx, SweepLockKey, lockTTL)
		switch {
		case errors.Is(err, redis.ErrLockHeld):
			return nil, session.ErrSweepInFlight
		case err != nil:
			// conditional updates keep a concurrent sweep safe
			s.logger.Warnw("Sweep lock unavailable, continuing without it", "error", err)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warnw("Failed to release sweep lock", "error", err)
				}
			}()
		}
	}

	return s.sweeper.SweepOverdueSessions(ctx, s.opts.Grace)
}

func (s *Scheduler) pruneExports(ctx context.Context) {
	removed, err := s.store.DeleteOlderThan(ctx, minio.ExportPrefix, s.opts.ExportRetention)
	if err != nil {
		s.logger.Warnw("Failed to prune exports", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Infow("Pruned exports", "removed", removed)
	}
}

// Start registers the periodic jobs. A non-positive sweep interval leaves sweeping to
// the cron endpoint and cmd/sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.Interval > 0 {
		_, err := s.sched.NewJob(
			gocron.DurationJob(s.opts.Interval),
			gocron.NewTask(func() {
				if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, session.ErrSweepInFlight) {
					s.logger.Errorw("Scheduled sweep failed", "error", err)
				}
			}),
			gocron.WithName("sweep-overdue-sessions"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register sweep job: %w", err)
		}
	} else {
		s.logger.Info("SWEEP_INTERVAL is 0, in-process sweep disabled")
	}

	if s.store != nil && s.opts.ExportRetention > 0 {
		_, err := s.sched.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(func() { s.pruneExports(s.ctx) }),
			gocron.WithName("prune-exports"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register retention job: %w", err)
		}
	}

	s.sched.Start()
	s.logger.Infow("Scheduler started", "sweep_interval", s.opts.Interval, "grace", s.opts.Grace)
	return nil
}

func (s *Scheduler) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.sched.Shutdown()
}
