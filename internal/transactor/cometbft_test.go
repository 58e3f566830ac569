package transactor

import (
	"context"
	"encoding/json"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
)

type fakeBroadcaster struct {
	result *cmtrpctypes.ResultBroadcastTxCommit
	err    error
	txs    []cmttypes.Tx

	// committed holds transactions already in a block, by hash
	committed map[string]*cmtrpctypes.ResultTx
	lookups   int
}

func (f *fakeBroadcaster) BroadcastTxCommit(_ context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
	f.txs = append(f.txs, tx)
	return f.result, f.err
}

func (f *fakeBroadcaster) Tx(_ context.Context, hash []byte, _ bool) (*cmtrpctypes.ResultTx, error) {
	f.lookups++
	if res, ok := f.committed[string(hash)]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("tx (%X) not found", hash)
}

// commit records the transaction of req as already applied in a block.
func (f *fakeBroadcaster) commit(t *testing.T, req game.TransferRequest, code uint32) cmttypes.Tx {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	tx := cmttypes.Tx(payload)
	if f.committed == nil {
		f.committed = make(map[string]*cmtrpctypes.ResultTx)
	}
	f.committed[string(tx.Hash())] = &cmtrpctypes.ResultTx{
		Hash:     tx.Hash(),
		Height:   40,
		TxResult: abci.ExecTxResult{Code: code},
		Tx:       tx,
	}
	return tx
}

var request = game.TransferRequest{
	From:  "tz1issuer",
	Nonce: "abc",
	Items: []game.TransferItem{{To: "tz1player", TokenID: 7, Amount: 1}},
}

func TestSubmitConfirmed(t *testing.T) {
	fake := &fakeBroadcaster{result: &cmtrpctypes.ResultBroadcastTxCommit{
		Hash:   []byte{0xde, 0xad},
		Height: 12,
	}}
	tr := New(fake, zap.NewNop())

	conf, err := tr.Submit(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, conf.Confirmed)
	assert.Equal(t, "dead", conf.Reference)
	assert.False(t, conf.ConfirmedAt.IsZero())

	require.Len(t, fake.txs, 1)
	var sent game.TransferRequest
	require.NoError(t, json.Unmarshal(fake.txs[0], &sent))
	assert.Equal(t, request, sent)
	assert.Contains(t, string(fake.txs[0]), `"to_":"tz1player"`)
}

func TestSubmitRejectedByCheckTx(t *testing.T) {
	fake := &fakeBroadcaster{result: &cmtrpctypes.ResultBroadcastTxCommit{
		CheckTx: abci.CheckTxResponse{Code: 5, Log: "insufficient balance"},
	}}
	_, err := New(fake, nil).Submit(context.Background(), request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestSubmitFailedInBlockIsUnconfirmed(t *testing.T) {
	fake := &fakeBroadcaster{result: &cmtrpctypes.ResultBroadcastTxCommit{
		TxResult: abci.ExecTxResult{Code: 1},
		Hash:     []byte{0x01},
	}}
	conf, err := New(fake, nil).Submit(context.Background(), request)
	require.NoError(t, err)
	assert.False(t, conf.Confirmed)
	assert.Equal(t, "01", conf.Reference)
}

func TestSubmitBroadcastError(t *testing.T) {
	fake := &fakeBroadcaster{err: errors.New("connection refused")}
	_, err := New(fake, nil).Submit(context.Background(), request)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSubmitDuplicateReportsCommittedOriginal(t *testing.T) {
	fake := &fakeBroadcaster{err: errors.New("error on broadcastTxCommit: tx already exists in cache")}
	tx := fake.commit(t, request, 0)

	conf, err := New(fake, nil).Submit(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, conf.Confirmed)
	assert.Equal(t, hex.EncodeToString(tx.Hash()), conf.Reference)
	assert.Equal(t, 1, fake.lookups)
}

func TestSubmitDuplicateStillPendingFails(t *testing.T) {
	fake := &fakeBroadcaster{err: errors.New("error on broadcastTxCommit: tx already exists in cache")}

	_, err := New(fake, nil).Submit(context.Background(), request)
	assert.ErrorContains(t, err, "already exists in cache")
	assert.Equal(t, 1, fake.lookups)
}

func TestSubmitReplayRefusedByAppReportsCommittedOriginal(t *testing.T) {
	fake := &fakeBroadcaster{result: &cmtrpctypes.ResultBroadcastTxCommit{
		CheckTx: abci.CheckTxResponse{Code: 9, Log: "nonce already used"},
	}}
	fake.commit(t, request, 0)

	conf, err := New(fake, nil).Submit(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, conf.Confirmed)
}

func TestSubmitReplayOfFailedTxStaysUnconfirmed(t *testing.T) {
	fake := &fakeBroadcaster{err: errors.New("tx already exists in cache")}
	fake.commit(t, request, 3)

	conf, err := New(fake, nil).Submit(context.Background(), request)
	require.NoError(t, err)
	assert.False(t, conf.Confirmed)
	assert.NotEmpty(t, conf.Reference)
}

func TestSubmitOtherBroadcastErrorsSkipLookup(t *testing.T) {
	fake := &fakeBroadcaster{err: errors.New("connection refused")}
	fake.commit(t, request, 0)

	_, err := New(fake, nil).Submit(context.Background(), request)
	require.Error(t, err)
	assert.Zero(t, fake.lookups)
}
