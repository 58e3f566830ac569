package gametest

import (
	"context"
	"sync"
	"time"

	"github.com/omega-realm/bossdrop/internal/game"
)

// Scheduler records the latest fire time per session.
type Scheduler struct {
	mu    sync.Mutex
	armed map[string]time.Time
	calls int
}

var _ game.ExpiryScheduler = (*Scheduler)(nil)

func NewScheduler() *Scheduler {
	return &Scheduler{armed: make(map[string]time.Time)}
}

func (s *Scheduler) Schedule(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[hash] = at
	s.calls++
	return nil
}

// FireTime returns the armed time of a session.
func (s *Scheduler) FireTime(hash string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.armed[hash]
	return at, ok
}

// Calls returns how many times Schedule ran.
func (s *Scheduler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Locker is a process-local game.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ game.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

func (l *Locker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

// Hold takes key as another process would.
func (l *Locker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

// Transactor answers submissions with SubmitFunc and keeps every request.
type Transactor struct {
	mu         sync.Mutex
	SubmitFunc func(ctx context.Context, req game.TransferRequest) (game.Confirmation, error)
	requests   []game.TransferRequest
}

var _ game.Transactor = (*Transactor)(nil)

// ConfirmingTransactor confirms every submission with the given reference.
func ConfirmingTransactor(reference string, at time.Time) *Transactor {
	return &Transactor{
		SubmitFunc: func(context.Context, game.TransferRequest) (game.Confirmation, error) {
			return game.Confirmation{Reference: reference, Confirmed: true, ConfirmedAt: at}, nil
		},
	}
}

func (t *Transactor) Submit(ctx context.Context, req game.TransferRequest) (game.Confirmation, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	submit := t.SubmitFunc
	t.mu.Unlock()
	return submit(ctx, req)
}

// Requests returns the submitted transfers.
func (t *Transactor) Requests() []game.TransferRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]game.TransferRequest(nil), t.requests...)
}
