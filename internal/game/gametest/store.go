// Package gametest provides in-memory implementations of the game ports for tests.
package gametest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

// Store is an in-memory game.Store. A single mutex stands in for row locks.
type Store struct {
	mu       sync.Mutex
	players  map[string]models.Player
	catalog  models.Catalog
	sessions map[string]*models.Session
	drops    []*models.Drop
	nextID   int64

	writes       int
	conflictNext bool
	markErr      error
}

var _ game.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		players:  make(map[string]models.Player),
		sessions: make(map[string]*models.Session),
	}
}

// AddPlayer registers a player. verified sets the signature flag.
func (s *Store) AddPlayer(address string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.players[address] = models.Player{ID: s.nextID, Address: address, SuccessSign: verified}
}

// SetCatalog replaces the boss and token catalogs.
func (s *Store) SetCatalog(catalog models.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
}

// InsertSession stores a session as-is, bypassing the live-session rule.
func (s *Store) InsertSession(sess models.Session, drops ...models.Drop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(&sess, drops)
}

// ConflictOnNextStart makes the next StartSession fail as if a concurrent
// start had won the live-session slot.
func (s *Store) ConflictOnNextStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictNext = true
}

// FailMarkTransferred makes MarkTransferred return err until reset with nil.
func (s *Store) FailMarkTransferred(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markErr = err
}

// Writes counts the session rows written by UpdateSession.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// AllSessions returns every stored session of the player.
func (s *Store) AllSessions(address string) []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.OwnedBy(address) {
			out = append(out, copySession(sess))
		}
	}
	sortSessions(out)
	return out
}

func (s *Store) PlayerByAddress(_ context.Context, address string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[address]
	if !ok {
		return nil, game.NotFound("player %s not found", address)
	}
	return &p, nil
}

func (s *Store) Catalog(context.Context) (models.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Catalog{
		Bosses: append([]models.Boss(nil), s.catalog.Bosses...),
		Tokens: append([]models.Token(nil), s.catalog.Tokens...),
	}, nil
}

func (s *Store) StartSession(_ context.Context, sess *models.Session, drops []models.Drop) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictNext {
		s.conflictNext = false
		return nil, game.ErrMultiplicityConflict
	}
	var abandoned []string
	for _, live := range s.liveLocked(*sess.PlayerAddress) {
		live.Status = models.StatusAbandoned
		live.PauseStartedAt = nil
		abandoned = append(abandoned, live.Hash)
	}
	sort.Strings(abandoned)
	s.insertLocked(sess, drops)
	for i := range drops {
		drops[i].ID = s.drops[len(s.drops)-len(drops)+i].ID
		drops[i].SessionID = sess.ID
	}
	return abandoned, nil
}

func (s *Store) LiveSessions(_ context.Context, address string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.liveLocked(address) {
		out = append(out, copySession(sess))
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) CollapseLiveSessions(_ context.Context, address, keep string, drops []models.Drop) ([]models.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept, ok := s.sessions[keep]
	if !ok {
		return nil, game.NotFound("session %s not found", keep)
	}
	var killed []int64
	for _, d := range s.drops {
		if d.SessionHash == keep && d.BossKilled {
			killed = append(killed, d.BossID)
		}
	}
	drops = game.CarryKills(drops, killed)
	removed := map[string]bool{keep: true}
	for _, live := range s.liveLocked(address) {
		if live.Hash != keep {
			removed[live.Hash] = true
			delete(s.sessions, live.Hash)
		}
	}
	remaining := s.drops[:0]
	for _, d := range s.drops {
		if !removed[d.SessionHash] {
			remaining = append(remaining, d)
		}
	}
	s.drops = remaining
	for i := range drops {
		s.nextID++
		drops[i].ID = s.nextID
		drops[i].SessionID = kept.ID
		drops[i].SessionHash = keep
		s.drops = append(s.drops, copyDrop(&drops[i]))
	}
	return drops, nil
}

func (s *Store) Session(_ context.Context, hash string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, game.NotFound("session %s not found", hash)
	}
	out := copySession(sess)
	return &out, nil
}

func (s *Store) UpdateSession(_ context.Context, hash string, fn func(*models.Session) error) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, game.NotFound("session %s not found", hash)
	}
	working := copySession(sess)
	if err := fn(&working); err != nil {
		if errors.Is(err, game.ErrUnchanged) {
			out := copySession(sess)
			return &out, nil
		}
		return nil, err
	}
	stored := copySession(&working)
	s.sessions[hash] = &stored
	s.writes++
	return &working, nil
}

func (s *Store) KillBoss(_ context.Context, hash string, bossID int64, check func(*models.Session) error) (*models.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, game.NotFound("session %s not found", hash)
	}
	view := copySession(sess)
	if err := check(&view); err != nil {
		return nil, err
	}
	known := false
	for _, b := range s.catalog.Bosses {
		if b.ID == bossID {
			known = true
			break
		}
	}
	if !known {
		return nil, game.NotFound("boss %d not found", bossID)
	}
	for _, d := range s.drops {
		if d.SessionHash == hash && d.BossID == bossID {
			d.BossKilled = true
			return copyDrop(d), nil
		}
	}
	s.nextID++
	d := &models.Drop{ID: s.nextID, SessionID: sess.ID, SessionHash: hash, BossID: bossID, BossKilled: true}
	s.drops = append(s.drops, d)
	return copyDrop(d), nil
}

func (s *Store) ExpiringSessions(context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.Status.Live() {
			out = append(out, copySession(sess))
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) PlayerStats(_ context.Context, address string) (*models.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.PlayerStats{Address: address}
	weapons := make(map[string]int)
	for _, sess := range s.sessions {
		if !sess.OwnedBy(address) || sess.Status != models.StatusEnded || sess.Telemetry == nil {
			continue
		}
		stats.GamesPlayed++
		stats.TotalScore += sess.Telemetry.Score
		stats.ShotsFired += sess.Telemetry.ShotsFired
		stats.MobsKilled += sess.Telemetry.MobsKilled
		if sess.Telemetry.Score > stats.BestScore {
			stats.BestScore = sess.Telemetry.Score
		}
		weapons[sess.Telemetry.FavouriteWeapon]++
	}
	best := 0
	for weapon, n := range weapons {
		if n > best || (n == best && weapon < stats.FavouriteWeapon) {
			best, stats.FavouriteWeapon = n, weapon
		}
	}
	for _, d := range s.drops {
		sess, ok := s.sessions[d.SessionHash]
		if !ok || !sess.OwnedBy(address) || !d.BossKilled {
			continue
		}
		stats.BossesKilled++
		if d.Token != nil && sess.Status.Terminal() {
			stats.TokensEarned++
			if d.Transferred() {
				stats.TokensTransferred++
			}
		}
	}
	return stats, nil
}

func (s *Store) SessionDrops(_ context.Context, hash string) ([]models.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Drop
	for _, d := range s.drops {
		if d.SessionHash == hash {
			out = append(out, *copyDrop(d))
		}
	}
	return out, nil
}

func (s *Store) PlayerDrops(_ context.Context, address string) ([]models.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Drop
	for _, d := range s.drops {
		if sess, ok := s.sessions[d.SessionHash]; ok && sess.OwnedBy(address) {
			out = append(out, *copyDrop(d))
		}
	}
	return out, nil
}

func (s *Store) EligibleDrops(_ context.Context, address string) ([]models.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Drop
	for _, d := range s.drops {
		sess, ok := s.sessions[d.SessionHash]
		if !ok || !sess.OwnedBy(address) || !sess.Status.Terminal() {
			continue
		}
		if d.BossKilled && d.Token != nil && !d.Transferred() {
			out = append(out, *copyDrop(d))
		}
	}
	return out, nil
}

func (s *Store) MarkTransferred(_ context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	pending := make([]*models.Drop, 0, len(ids))
	for _, id := range ids {
		for _, d := range s.drops {
			if d.ID == id && !d.Transferred() {
				pending = append(pending, d)
			}
		}
	}
	if len(pending) != len(ids) {
		return game.StateConflict("only %d of %d drops are still untransferred", len(pending), len(ids))
	}
	for _, d := range pending {
		stamp := at
		d.TransferredAt = &stamp
	}
	return nil
}

func (s *Store) insertLocked(sess *models.Session, drops []models.Drop) {
	s.nextID++
	sess.ID = s.nextID
	stored := copySession(sess)
	s.sessions[sess.Hash] = &stored
	for _, d := range drops {
		s.nextID++
		d.ID = s.nextID
		d.SessionID = sess.ID
		d.SessionHash = sess.Hash
		s.drops = append(s.drops, copyDrop(&d))
	}
}

func (s *Store) liveLocked(address string) []*models.Session {
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.OwnedBy(address) && sess.Status.Live() {
			out = append(out, sess)
		}
	}
	return out
}

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].Hash < sessions[j].Hash
	})
}

func copySession(sess *models.Session) models.Session {
	out := *sess
	if sess.PlayerAddress != nil {
		addr := *sess.PlayerAddress
		out.PlayerAddress = &addr
	}
	if sess.PauseStartedAt != nil {
		t := *sess.PauseStartedAt
		out.PauseStartedAt = &t
	}
	if sess.Telemetry != nil {
		t := *sess.Telemetry
		out.Telemetry = &t
	}
	return out
}

func copyDrop(d *models.Drop) *models.Drop {
	out := *d
	if d.Token != nil {
		t := *d.Token
		out.Token = &t
	}
	if d.TransferredAt != nil {
		t := *d.TransferredAt
		out.TransferredAt = &t
	}
	return &out
}
