package game

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/metrics"
	"github.com/omega-realm/bossdrop/internal/models"
)

// lockGrace keeps the reconcile lease alive past the submit deadline while the
// batch is being marked.
const lockGrace = 10 * time.Second

// ReconcileResult is the outcome of a reconciliation.
type ReconcileResult struct {
	Count     int    `json:"count"`
	Reference string `json:"reference,omitempty"`
}

// Reconciler settles a player's eligible drops on chain.
type Reconciler struct {
	store      Store
	locker     Locker
	transactor Transactor
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewReconciler creates a transfer reconciler.
func NewReconciler(store Store, locker Locker, transactor Transactor, cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:      store,
		locker:     locker,
		transactor: transactor,
		cfg:        cfg.normalized(),
		logger:     logger.With(zap.String("component", "reconciler")),
		now:        time.Now,
	}
}

// Reconcile transfers every eligible drop of the player in one batch. Drops are
// marked transferred only after the transactor confirms the batch; on any
// failure the eligible set is left as it was and the call may be retried.
func (r *Reconciler) Reconcile(ctx context.Context, address string) (*ReconcileResult, error) {
	player, err := verifiedPlayer(ctx, r.store, address)
	if err != nil {
		return nil, err
	}

	release, ok, err := r.locker.Acquire(ctx, "reconcile:"+player.Address, r.cfg.TransferTimeout+lockGrace)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	if !ok {
		metrics.Transfers.WithLabelValues("busy").Inc()
		return nil, &Error{Code: CodeTransferInProgress, Message: fmt.Sprintf("a transfer for %s is already running", player.Address)}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release reconcile lock", zap.String("player", player.Address), zap.Error(err))
		}
	}()

	drops, err := r.store.EligibleDrops(ctx, player.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible drops: %w", err)
	}
	if len(drops) == 0 {
		metrics.Transfers.WithLabelValues("empty").Inc()
		return &ReconcileResult{}, nil
	}

	// settlement outlives the caller; submit bounds it by TransferTimeout
	settleCtx := context.WithoutCancel(ctx)

	req := BuildTransfer(r.cfg.IssuerAddress, player.Address, drops)
	conf, err := r.submit(settleCtx, req)
	if err != nil {
		metrics.Transfers.WithLabelValues("failed").Inc()
		r.logger.Warn("token transfer failed",
			zap.String("player", player.Address),
			zap.String("nonce", req.Nonce),
			zap.Int("drops", len(drops)),
			zap.Error(err),
		)
		return nil, err
	}

	at := conf.ConfirmedAt
	if at.IsZero() {
		at = r.now()
	}
	if err := r.store.MarkTransferred(settleCtx, dropIDs(drops), at.UTC()); err != nil {
		// the chain has the transfer; the nonce lets a retry be recognised as a replay
		r.logger.Error("confirmed transfer could not be recorded",
			zap.String("player", player.Address),
			zap.String("reference", conf.Reference),
			zap.String("nonce", req.Nonce),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to mark drops transferred: %w", err)
	}

	metrics.Transfers.WithLabelValues("confirmed").Inc()
	metrics.TokensTransferred.Add(float64(len(drops)))
	r.logger.Info("tokens transferred",
		zap.String("player", player.Address),
		zap.String("reference", conf.Reference),
		zap.Int("drops", len(drops)),
	)
	return &ReconcileResult{Count: len(drops), Reference: conf.Reference}, nil
}

func (r *Reconciler) submit(ctx context.Context, req TransferRequest) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TransferTimeout)
	defer cancel()

	type outcome struct {
		conf Confirmation
		err  error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		conf, err := r.transactor.Submit(ctx, req)
		done <- outcome{conf, err}
	}()

	select {
	case out := <-done:
		metrics.TransferDuration.Observe(time.Since(start).Seconds())
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return Confirmation{}, TransferFailed("token transfer timed out", out.err)
			}
			return Confirmation{}, TransferFailed("token transfer was rejected", out.err)
		}
		if !out.conf.Confirmed {
			return Confirmation{}, TransferFailed("token transfer was not confirmed", nil)
		}
		return out.conf, nil
	case <-ctx.Done():
		metrics.TransferDuration.Observe(time.Since(start).Seconds())
		return Confirmation{}, TransferFailed("token transfer timed out", ctx.Err())
	}
}

// BuildTransfer turns a set of drops into one transfer with a line item per drop.
// The nonce depends only on the drop ids, so a retried batch carries the same nonce.
func BuildTransfer(from, to string, drops []models.Drop) TransferRequest {
	items := make([]TransferItem, 0, len(drops))
	for _, d := range drops {
		if d.Token == nil {
			continue
		}
		items = append(items, TransferItem{To: to, TokenID: d.Token.ExternalID, Amount: 1})
	}
	return TransferRequest{From: from, Nonce: batchNonce(dropIDs(drops)), Items: items}
}

func batchNonce(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(strconv.FormatInt(id, 10)))
		h.Write([]byte{','})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func dropIDs(drops []models.Drop) []int64 {
	ids := make([]int64, len(drops))
	for i, d := range drops {
		ids[i] = d.ID
	}
	return ids
}
