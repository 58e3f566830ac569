// Package transactor submits token transfers to a CometBFT chain.
package transactor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cometbft/cometbft/mempool"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
)

// Config holds the chain RPC settings
type Config struct {
	RPCAddr string        `env:"TRANSACTOR_RPC_ADDR" envDefault:"http://localhost:26657"`
	Timeout time.Duration `env:"TRANSACTOR_RPC_TIMEOUT" envDefault:"60s"`
}

// Broadcaster is the part of the CometBFT RPC client used here
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*cmtrpctypes.ResultTx, error)
}

// Transactor submits transfers as transactions and waits for their commit
type Transactor struct {
	client Broadcaster
	logger *zap.Logger
	now    func() time.Time
}

var _ game.Transactor = (*Transactor)(nil)

// Dial connects to a CometBFT node over HTTP
func Dial(cfg Config, logger *zap.Logger) (*Transactor, error) {
	client, err := cmthttp.NewWithClient(cfg.RPCAddr, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT client: %w", err)
	}
	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("failed to start CometBFT client: %w", err)
	}
	return New(client, logger), nil
}

// New wraps an existing broadcaster
func New(client Broadcaster, logger *zap.Logger) *Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{
		client: client,
		logger: logger.With(zap.String("component", "transactor")),
		now:    time.Now,
	}
}

// Submit broadcasts the transfer and reports it confirmed once the block commits it.
// The transaction bytes depend only on the request, so a retried batch is the same
// transaction. When the node refuses it as a duplicate, the committed original is
// looked up by hash and reported instead.
func (t *Transactor) Submit(ctx context.Context, req game.TransferRequest) (game.Confirmation, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return game.Confirmation{}, fmt.Errorf("failed to encode transfer: %w", err)
	}
	tx := cmttypes.Tx(payload)

	result, err := t.client.BroadcastTxCommit(ctx, tx)
	if err != nil {
		if isDuplicate(err) {
			if conf, ok := t.committed(ctx, tx, req.Nonce); ok {
				return conf, nil
			}
		}
		return game.Confirmation{}, fmt.Errorf("failed to broadcast transfer: %w", err)
	}
	if result.CheckTx.Code != 0 {
		// a cache-evicted replay reaches the app, which refuses the spent nonce
		if conf, ok := t.committed(ctx, tx, req.Nonce); ok {
			return conf, nil
		}
		return game.Confirmation{}, fmt.Errorf("transfer rejected by CheckTx with code %d: %s", result.CheckTx.Code, result.CheckTx.Log)
	}

	reference := hex.EncodeToString(result.Hash)
	if result.TxResult.Code != 0 {
		t.logger.Warn("transfer failed in block",
			zap.String("reference", reference),
			zap.Int64("height", result.Height),
			zap.Uint32("code", result.TxResult.Code),
		)
		return game.Confirmation{Reference: reference}, nil
	}

	t.logger.Info("transfer committed",
		zap.String("reference", reference),
		zap.Int64("height", result.Height),
		zap.Int("items", len(req.Items)),
	)
	return game.Confirmation{
		Reference:   reference,
		Confirmed:   true,
		ConfirmedAt: t.now().UTC(),
	}, nil
}

// committed looks up a transaction the chain may already hold. ok is false
// when it is not in a block yet.
func (t *Transactor) committed(ctx context.Context, tx cmttypes.Tx, nonce string) (game.Confirmation, bool) {
	res, err := t.client.Tx(ctx, tx.Hash(), false)
	if err != nil || res == nil {
		t.logger.Debug("transfer not found on chain", zap.String("nonce", nonce), zap.Error(err))
		return game.Confirmation{}, false
	}

	reference := hex.EncodeToString(res.Hash)
	if res.TxResult.Code != 0 {
		return game.Confirmation{Reference: reference}, true
	}
	t.logger.Info("transfer already committed",
		zap.String("reference", reference),
		zap.Int64("height", res.Height),
		zap.String("nonce", nonce),
	)
	return game.Confirmation{
		Reference:   reference,
		Confirmed:   true,
		ConfirmedAt: t.now().UTC(),
	}, true
}

func isDuplicate(err error) bool {
	return strings.Contains(err.Error(), mempool.ErrTxInCache.Error())
}
