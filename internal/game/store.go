package game

import (
	"context"
	"time"

	"github.com/omega-realm/bossdrop/internal/models"
)

// Players reads player identities owned by the identity subsystem.
type Players interface {
	// PlayerByAddress returns a NotFound error for unknown addresses.
	PlayerByAddress(ctx context.Context, address string) (*models.Player, error)
}

// CatalogReader returns a consistent snapshot of bosses and tokens.
type CatalogReader interface {
	Catalog(ctx context.Context) (models.Catalog, error)
}

// Sessions persists sessions. Every mutating call is a single transaction.
type Sessions interface {
	// StartSession abandons the player's live sessions and inserts s together
	// with its drops. It fills in s.ID and the drop IDs and returns the hashes
	// it abandoned. ErrMultiplicityConflict is returned when another live
	// session for the player was committed concurrently.
	StartSession(ctx context.Context, s *models.Session, drops []models.Drop) ([]string, error)

	// LiveSessions lists the player's Created or Paused sessions.
	LiveSessions(ctx context.Context, address string) ([]models.Session, error)

	// CollapseLiveSessions deletes every live session of the player other than
	// keep, along with their drops, and replaces keep's drops. Kills already
	// recorded on keep are carried over with CarryKills. It returns the drops
	// as stored.
	CollapseLiveSessions(ctx context.Context, address, keep string, drops []models.Drop) ([]models.Drop, error)

	Session(ctx context.Context, hash string) (*models.Session, error)

	// UpdateSession locks the session row, applies fn and writes the result.
	// When fn returns ErrUnchanged nothing is written. Any other error from fn
	// aborts the transaction and is returned unchanged.
	UpdateSession(ctx context.Context, hash string, fn func(*models.Session) error) (*models.Session, error)

	// KillBoss locks the session row, runs check, then upserts the (session, boss)
	// drop with boss_killed set. Unknown bosses yield a NotFound error.
	KillBoss(ctx context.Context, hash string, bossID int64, check func(*models.Session) error) (*models.Drop, error)

	// ExpiringSessions lists live sessions with their persisted expiry time.
	ExpiringSessions(ctx context.Context) ([]models.Session, error)

	PlayerStats(ctx context.Context, address string) (*models.PlayerStats, error)
}

// Ledger is the drop ledger.
type Ledger interface {
	SessionDrops(ctx context.Context, hash string) ([]models.Drop, error)
	PlayerDrops(ctx context.Context, address string) ([]models.Drop, error)

	// EligibleDrops returns drops of finished sessions whose boss was killed,
	// that carry a token and have not been transferred.
	EligibleDrops(ctx context.Context, address string) ([]models.Drop, error)

	// MarkTransferred stamps all ids in one update. It fails without changes
	// unless every id is still untransferred.
	MarkTransferred(ctx context.Context, ids []int64, at time.Time) error
}

// Store is everything the game core needs from persistence.
type Store interface {
	Players
	CatalogReader
	Sessions
	Ledger
}

// ExpiryScheduler arms the deferred abandon check of a session.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, hash string, at time.Time) error
}

// ScoreBoard records finished-game scores.
type ScoreBoard interface {
	RecordScore(ctx context.Context, address string, score int64) error
}

// Locker provides a mutual-exclusion lease shared by every process.
type Locker interface {
	// Acquire returns ok=false when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// TransferItem is one line of an outbound token transfer.
type TransferItem struct {
	To      string `json:"to_"`
	TokenID int64  `json:"token_id"`
	Amount  int64  `json:"amount"`
}

// TransferRequest is a single logical transfer operation.
type TransferRequest struct {
	From  string         `json:"from_"`
	Nonce string         `json:"nonce"`
	Items []TransferItem `json:"txs"`
}

// Confirmation is the transactor's answer for a submitted transfer.
type Confirmation struct {
	Reference   string
	Confirmed   bool
	ConfirmedAt time.Time
}

// Transactor signs and broadcasts transfers on chain.
type Transactor interface {
	Submit(ctx context.Context, req TransferRequest) (Confirmation, error)
}
