package game

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/metrics"
	"github.com/omega-realm/bossdrop/internal/models"
	"github.com/omega-realm/bossdrop/internal/random"
)

// Config holds the game core settings
type Config struct {
	ExpiryTimeout      time.Duration `env:"GAME_EXPIRY_TIMEOUT" envDefault:"1h"`
	AllowEndFromPaused bool          `env:"GAME_ALLOW_END_FROM_PAUSED" envDefault:"false"`
	TransferTimeout    time.Duration `env:"GAME_TRANSFER_TIMEOUT" envDefault:"60s"`
	IssuerAddress      string        `env:"GAME_ISSUER_ADDRESS"`
}

const (
	defaultExpiryTimeout   = time.Hour
	defaultTransferTimeout = 60 * time.Second
	startAttempts          = 3
)

func (c Config) normalized() Config {
	if c.ExpiryTimeout <= 0 {
		c.ExpiryTimeout = defaultExpiryTimeout
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = defaultTransferTimeout
	}
	return c
}

// Service drives the session lifecycle.
type Service struct {
	store     Store
	scheduler ExpiryScheduler
	board     ScoreBoard
	machine   *Machine
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	newRand   func() (Rand, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand replaces the per-allocation random source.
func WithRand(newRand func() (Rand, error)) Option {
	return func(s *Service) { s.newRand = newRand }
}

// WithScoreBoard records final scores of ended sessions.
func WithScoreBoard(board ScoreBoard) Option {
	return func(s *Service) { s.board = board }
}

// NewService creates the session service.
func NewService(store Store, scheduler ExpiryScheduler, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	cfg = cfg.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		scheduler: scheduler,
		machine:   NewMachine(cfg.AllowEndFromPaused),
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "game")),
		now:       time.Now,
		newRand: func() (Rand, error) {
			return random.New()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResult is the outcome of Start.
type StartResult struct {
	Session   *models.Session `json:"session"`
	Drops     []models.Drop   `json:"drops"`
	Abandoned []string        `json:"abandoned,omitempty"`
}

// NewSessionHash returns a fresh 32-character hex session identifier.
func NewSessionHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateHash checks the shape of a client-echoed session hash.
func ValidateHash(hash string) error {
	if len(hash) != 32 {
		return InvalidArgument("session hash must be 32 hex characters")
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return InvalidArgument("session hash must be 32 hex characters")
	}
	return nil
}

// Start creates a new session for the player, abandoning any live one, and
// fixes its loot up front.
func (s *Service) Start(ctx context.Context, address string) (*StartResult, error) {
	player, err := verifiedPlayer(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	rng, err := s.newRand()
	if err != nil {
		return nil, fmt.Errorf("failed to seed allocator: %w", err)
	}

	for attempt := 0; attempt < startAttempts; attempt++ {
		now := s.now().UTC()
		owner := player.Address
		session := &models.Session{
			Hash:          NewSessionHash(),
			PlayerAddress: &owner,
			Status:        models.StatusCreated,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.cfg.ExpiryTimeout),
		}
		drops := Allocate(rng, session.Hash, catalog)

		abandoned, err := s.store.StartSession(ctx, session, drops)
		if errors.Is(err, ErrMultiplicityConflict) {
			metrics.MultiplicityConflicts.Inc()
			result, err := s.collapse(ctx, player.Address, rng, catalog)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			// the concurrent winner is already gone; try again
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}

		metrics.SessionsStarted.Inc()
		metrics.DropsAllocated.Add(float64(len(drops)))
		metrics.SessionsSuperseded.Add(float64(len(abandoned)))
		s.schedule(ctx, session.Hash, session.ExpiresAt)

		s.logger.Info("session started",
			zap.String("session", session.Hash),
			zap.String("player", player.Address),
			zap.Int("drops", len(drops)),
			zap.Strings("abandoned", abandoned),
		)
		return &StartResult{Session: session, Drops: drops, Abandoned: abandoned}, nil
	}
	return nil, fmt.Errorf("failed to start session after %d attempts: %w", startAttempts, ErrMultiplicityConflict)
}

// collapse keeps exactly one live session for the player, deterministically the
// oldest, and re-runs allocation for it. It returns nil when no live session remains.
func (s *Service) collapse(ctx context.Context, address string, rng Rand, catalog models.Catalog) (*StartResult, error) {
	live, err := s.store.LiveSessions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	if len(live) == 0 {
		return nil, nil
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		}
		return live[i].Hash < live[j].Hash
	})
	keep := live[0]
	drops, err := s.store.CollapseLiveSessions(ctx, address, keep.Hash, Allocate(rng, keep.Hash, catalog))
	if err != nil {
		return nil, fmt.Errorf("failed to collapse duplicate sessions: %w", err)
	}
	s.schedule(ctx, keep.Hash, keep.ExpiresAt)

	s.logger.Warn("duplicate live sessions collapsed",
		zap.String("player", address),
		zap.String("kept", keep.Hash),
		zap.Int("discarded", len(live)-1),
	)
	return &StartResult{Session: &keep, Drops: drops}, nil
}

// Pause suspends an active session.
func (s *Service) Pause(ctx context.Context, address, hash string) (*models.Session, error) {
	return s.transition(ctx, address, hash, EventPause, func(sess *models.Session, now time.Time) error {
		sess.PauseStartedAt = &now
		return nil
	})
}

// Unpause resumes a paused session and accounts the paused time.
func (s *Service) Unpause(ctx context.Context, address, hash string) (*models.Session, error) {
	return s.transition(ctx, address, hash, EventUnpause, func(sess *models.Session, now time.Time) error {
		closePause(sess, now)
		return nil
	})
}

// End finishes a session with the client's telemetry.
func (s *Service) End(ctx context.Context, address, hash string, telemetry models.Telemetry) (*models.Session, error) {
	telemetry.FavouriteWeapon = strings.TrimSpace(telemetry.FavouriteWeapon)
	if err := validateTelemetry(telemetry); err != nil {
		return nil, err
	}
	sess, err := s.transition(ctx, address, hash, EventEnd, func(sess *models.Session, now time.Time) error {
		closePause(sess, now)
		report := telemetry
		sess.Telemetry = &report
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.board != nil {
		if err := s.board.RecordScore(ctx, address, telemetry.Score); err != nil {
			s.logger.Warn("failed to record score", zap.String("session", hash), zap.Error(err))
		}
	}
	return sess, nil
}

// KillBoss records that the player defeated a boss in an active session.
// Repeated kills of the same boss leave a single killed drop.
func (s *Service) KillBoss(ctx context.Context, address, hash string, bossID int64) (*models.Drop, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	if bossID <= 0 {
		return nil, InvalidArgument("boss id must be positive")
	}
	drop, err := s.store.KillBoss(ctx, hash, bossID, func(sess *models.Session) error {
		if err := checkOwner(sess, address); err != nil {
			return err
		}
		if sess.Status != models.StatusCreated {
			return StateConflict("bosses can only be killed in an active session, session is %s", sess.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.BossKills.Inc()
	s.logger.Debug("boss killed", zap.String("session", hash), zap.Int64("boss", bossID))
	return drop, nil
}

// Session returns one of the player's sessions.
func (s *Service) Session(ctx context.Context, address, hash string) (*models.Session, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	sess, err := s.store.Session(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(sess, address); err != nil {
		return nil, err
	}
	return sess, nil
}

// ActiveSession returns the player's live session, or nil when there is none.
func (s *Service) ActiveSession(ctx context.Context, address string) (*models.Session, error) {
	live, err := s.store.LiveSessions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	if len(live) == 0 {
		return nil, nil
	}
	return &live[0], nil
}

// PlayerDrops lists every drop recorded for the player.
func (s *Service) PlayerDrops(ctx context.Context, address string) ([]models.Drop, error) {
	return s.store.PlayerDrops(ctx, address)
}

// PlayerStats aggregates the player's finished games.
func (s *Service) PlayerStats(ctx context.Context, address string) (*models.PlayerStats, error) {
	if _, err := s.store.PlayerByAddress(ctx, address); err != nil {
		return nil, err
	}
	return s.store.PlayerStats(ctx, address)
}

func (s *Service) transition(ctx context.Context, address, hash string, event Event, apply func(*models.Session, time.Time) error) (*models.Session, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updated, err := s.store.UpdateSession(ctx, hash, func(sess *models.Session) error {
		if err := checkOwner(sess, address); err != nil {
			return err
		}
		next, err := s.machine.Next(sess.Status, event)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(sess, now); err != nil {
				return err
			}
		}
		sess.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(event)).Inc()
	s.logger.Info("session transition",
		zap.String("session", hash),
		zap.String("event", string(event)),
		zap.Stringer("status", updated.Status),
	)
	return updated, nil
}

func (s *Service) schedule(ctx context.Context, hash string, at time.Time) {
	if s.scheduler == nil {
		return
	}
	// expires_at is persisted, the scheduler resync picks up anything missed here
	if err := s.scheduler.Schedule(ctx, hash, at); err != nil {
		s.logger.Warn("failed to schedule expiry check", zap.String("session", hash), zap.Error(err))
	}
}

func closePause(sess *models.Session, now time.Time) {
	if sess.PauseStartedAt == nil {
		return
	}
	sess.PausedSeconds += pausedSeconds(*sess.PauseStartedAt, now)
	sess.PauseStartedAt = nil
}

// pausedSeconds floors the elapsed pause to whole seconds.
func pausedSeconds(start, now time.Time) int64 {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Second)
}

func validateTelemetry(t models.Telemetry) error {
	if t.Score < 0 {
		return InvalidArgument("score must not be negative")
	}
	if t.FavouriteWeapon == "" {
		return InvalidArgument("favourite weapon is required")
	}
	if len(t.FavouriteWeapon) > 64 {
		return InvalidArgument("favourite weapon must not exceed 64 characters")
	}
	if t.ShotsFired < 0 {
		return InvalidArgument("shots fired must not be negative")
	}
	if t.MobsKilled < 0 {
		return InvalidArgument("mobs killed must not be negative")
	}
	return nil
}

// checkOwner hides sessions of other players. An empty address is a system caller.
func checkOwner(sess *models.Session, address string) error {
	if address == "" || sess.OwnedBy(address) {
		return nil
	}
	return NotFound("session %s not found", sess.Hash)
}

func verifiedPlayer(ctx context.Context, players Players, address string) (*models.Player, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, InvalidArgument("player address is required")
	}
	player, err := players.PlayerByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if !player.SuccessSign {
		return nil, &Error{Code: CodeUnverifiedPlayer, Message: fmt.Sprintf("player %s has not signed the payload", address)}
	}
	return player, nil
}
