// Package scheduler fires the deferred abandon checks of game sessions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
)

// Config holds the polling settings
type Config struct {
	PollInterval   time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"1s"`
	BatchSize      int           `env:"SCHEDULER_BATCH_SIZE" envDefault:"100"`
	RetryDelay     time.Duration `env:"SCHEDULER_RETRY_DELAY" envDefault:"30s"`
	ResyncInterval time.Duration `env:"SCHEDULER_RESYNC_INTERVAL" envDefault:"10m"`
}

// Queue is the durable index of armed checks.
type Queue interface {
	game.ExpiryScheduler
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Expirer runs the checks against persisted session state.
type Expirer interface {
	Expire(ctx context.Context, hash string) (game.ExpiryResult, error)
	RescheduleLive(ctx context.Context) (int, error)
}

// Runner polls the queue and fires due checks.
type Runner struct {
	queue   Queue
	expirer Expirer
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner creates a runner.
func NewRunner(queue Queue, expirer Expirer, cfg Config, logger *zap.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:   queue,
		expirer: expirer,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "scheduler")),
		now:     time.Now,
	}
}

// Run rebuilds the queue from persisted state, then fires due checks until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Resync(ctx); err != nil {
		return err
	}

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var resync <-chan time.Time
	if r.cfg.ResyncInterval > 0 {
		t := time.NewTicker(r.cfg.ResyncInterval)
		defer t.Stop()
		resync = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			for {
				n, err := r.Tick(ctx)
				if err != nil {
					r.logger.Warn("expiry poll failed", zap.Error(err))
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		case <-resync:
			if err := r.Resync(ctx); err != nil {
				r.logger.Warn("expiry resync failed", zap.Error(err))
			}
		}
	}
}

// Resync re-arms every live session from the database.
func (r *Runner) Resync(ctx context.Context) error {
	n, err := r.expirer.RescheduleLive(ctx)
	if err != nil {
		return fmt.Errorf("failed to resync expiry queue: %w", err)
	}
	r.logger.Info("expiry queue resynced", zap.Int("sessions", n))
	return nil
}

// Tick claims one batch of due checks and fires them. It returns how many were claimed.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.queue.ClaimDue(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, hash := range due {
		res, err := r.expirer.Expire(ctx, hash)
		switch {
		case err == nil:
			r.logger.Debug("expiry check fired", zap.String("session", hash), zap.String("outcome", string(res.Outcome)))
		case errors.Is(err, game.ErrNotFound), errors.Is(err, game.ErrInvalidArgument):
			r.logger.Warn("dropping expiry check", zap.String("session", hash), zap.Error(err))
		default:
			retryAt := now.Add(r.cfg.RetryDelay)
			r.logger.Warn("expiry check failed, retrying",
				zap.String("session", hash),
				zap.Time("retry_at", retryAt),
				zap.Error(err),
			)
			if err := r.queue.Schedule(ctx, hash, retryAt); err != nil {
				r.logger.Error("failed to re-arm expiry check", zap.String("session", hash), zap.Error(err))
			}
		}
	}
	return len(due), nil
}
