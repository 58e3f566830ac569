package game

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/metrics"
	"github.com/omega-realm/bossdrop/internal/models"
)

// ExpiryOutcome describes what a fired abandon check did.
type ExpiryOutcome string

const (
	// ExpiryDeferred means paused time was consumed and the check re-armed.
	ExpiryDeferred ExpiryOutcome = "deferred"
	// ExpiryEarly means the check fired before the persisted fire time and was re-armed.
	ExpiryEarly ExpiryOutcome = "early"
	// ExpiryAbandoned means the live session was force-abandoned.
	ExpiryAbandoned ExpiryOutcome = "abandoned"
	// ExpirySkipped means the session was already terminal.
	ExpirySkipped ExpiryOutcome = "skipped"
)

// ExpiryResult is returned by Expire. NextAt is set when the check was re-armed.
type ExpiryResult struct {
	Outcome ExpiryOutcome
	NextAt  time.Time
}

// Expire runs the abandon check of a session against its current persisted state.
//
// Paused seconds accumulated since the check was armed push the check back by
// exactly that long, once, and are cleared. With nothing to consume, a live
// session is abandoned and a terminal one is left untouched.
func (s *Service) Expire(ctx context.Context, hash string) (ExpiryResult, error) {
	if err := ValidateHash(hash); err != nil {
		return ExpiryResult{}, err
	}
	now := s.now().UTC()

	var result ExpiryResult
	_, err := s.store.UpdateSession(ctx, hash, func(sess *models.Session) error {
		result = ExpiryResult{}
		if sess.Status.Terminal() {
			result.Outcome = ExpirySkipped
			return ErrUnchanged
		}
		if now.Before(sess.ExpiresAt) {
			result = ExpiryResult{Outcome: ExpiryEarly, NextAt: sess.ExpiresAt}
			return ErrUnchanged
		}
		if sess.PausedSeconds > 0 {
			sess.ExpiresAt = now.Add(time.Duration(sess.PausedSeconds) * time.Second)
			sess.PausedSeconds = 0
			result = ExpiryResult{Outcome: ExpiryDeferred, NextAt: sess.ExpiresAt}
			return nil
		}
		next, err := s.machine.Next(sess.Status, EventExpire)
		if err != nil {
			return err
		}
		closePause(sess, now)
		sess.Status = next
		result.Outcome = ExpiryAbandoned
		return nil
	})
	if err != nil {
		return ExpiryResult{}, err
	}

	metrics.ExpiryChecks.WithLabelValues(string(result.Outcome)).Inc()
	switch result.Outcome {
	case ExpiryDeferred, ExpiryEarly:
		if s.scheduler != nil {
			if err := s.scheduler.Schedule(ctx, hash, result.NextAt); err != nil {
				return result, fmt.Errorf("failed to re-arm expiry check: %w", err)
			}
		}
		s.logger.Debug("expiry check re-armed",
			zap.String("session", hash),
			zap.String("outcome", string(result.Outcome)),
			zap.Time("next", result.NextAt),
		)
	case ExpiryAbandoned:
		metrics.SessionTransitions.WithLabelValues(string(EventExpire)).Inc()
		s.logger.Info("session expired", zap.String("session", hash))
	}
	return result, nil
}

// RescheduleLive re-arms the abandon check of every live session from its
// persisted fire time. It is how the schedule survives a restart.
func (s *Service) RescheduleLive(ctx context.Context) (int, error) {
	if s.scheduler == nil {
		return 0, nil
	}
	live, err := s.store.ExpiringSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list live sessions: %w", err)
	}
	for _, sess := range live {
		if err := s.scheduler.Schedule(ctx, sess.Hash, sess.ExpiresAt); err != nil {
			return 0, fmt.Errorf("failed to schedule session %s: %w", sess.Hash, err)
		}
	}
	return len(live), nil
}
