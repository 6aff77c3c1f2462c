package txmonitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/chain/chaintest"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/txmonitor"
)

type fixture struct {
	ctx      context.Context
	store    *custodystore.MemoryStore
	eth      *chaintest.Adapter
	recorder *events.Recorder
	monitor  *txmonitor.Monitor
}

func newFixture(t *testing.T, cfg txmonitor.Config) *fixture {
	t.Helper()
	store := custodystore.NewMemoryStore()
	eth := chaintest.NewAdapter(chain.ETH)
	adapters := chain.NewRegistry(eth)
	recorder := &events.Recorder{}
	journal := treasury.NewService(store, adapters, zap.NewNop())
	return &fixture{
		ctx:      context.Background(),
		store:    store,
		eth:      eth,
		recorder: recorder,
		monitor:  txmonitor.New(cfg, store, journal, adapters, recorder, zap.NewNop()),
	}
}

// broadcastWithdrawal funds alice, debits value and marks the row broadcast.
func (f *fixture) broadcastWithdrawal(t *testing.T, value, hash string) string {
	t.Helper()
	require.NoError(t, f.store.Adjust(f.ctx, "alice", chain.ETH, amount.MustParse("1000"), "seed-"+hash))
	txID := uuid.NewString()
	require.NoError(t, f.store.DebitForWithdrawal(f.ctx, ledger.WithdrawalDebit{
		TxID:        txID,
		UserID:      "alice",
		Chain:       chain.ETH,
		FromAddress: "eth-addr-0",
		ToAddress:   "0xdest",
		Amount:      amount.MustParse(value),
	}))
	require.NoError(t, f.store.MarkBroadcasted(f.ctx, txID, hash))
	return txID
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()
	b, err := f.store.GetBalance(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	return b.Balance.String()
}

func TestMonitor_ConfirmsWithdrawal(t *testing.T) {
	f := newFixture(t, txmonitor.Config{})
	txID := f.broadcastWithdrawal(t, "400", "0xout")
	f.eth.SetStatus("0xout", chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 77})

	require.NoError(t, f.monitor.RunPass(f.ctx))

	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusConfirmed, tx.Status)
	require.NotNil(t, tx.BlockNumber)
	assert.Equal(t, uint64(77), *tx.BlockNumber)
	assert.Equal(t, "600", f.balance(t))

	confirmed := f.recorder.OfType(events.WithdrawalConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, txID, confirmed[0].Reference)

	// Confirmed rows leave the in-flight set.
	require.NoError(t, f.monitor.RunPass(f.ctx))
	assert.Len(t, f.recorder.OfType(events.WithdrawalConfirmed), 1)
}

func TestMonitor_FailedWithdrawalRefundsOnce(t *testing.T) {
	f := newFixture(t, txmonitor.Config{})
	txID := f.broadcastWithdrawal(t, "400", "0xreverted")
	f.eth.SetStatus("0xreverted", chain.TxStatus{State: chain.TxFailed})

	require.NoError(t, f.monitor.RunPass(f.ctx))
	require.NoError(t, f.monitor.RunPass(f.ctx))

	assert.Equal(t, "1000", f.balance(t))
	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)

	refunds := f.recorder.OfType(events.WithdrawalRefunded)
	require.Len(t, refunds, 1)
	assert.Equal(t, ledger.RefundReference(txID), refunds[0].Reference)

	rebuilt, err := f.store.ReconstructBalance(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "1000", rebuilt.String())
}

func TestMonitor_DropsStaleWithdrawal(t *testing.T) {
	f := newFixture(t, txmonitor.Config{DropTimeout: time.Nanosecond})
	txID := f.broadcastWithdrawal(t, "250", "0xlost")
	time.Sleep(time.Millisecond)

	require.NoError(t, f.monitor.RunPass(f.ctx))

	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Contains(t, tx.Error, "not confirmed after")
	assert.Equal(t, "1000", f.balance(t))
}

func TestMonitor_ShallowTransactionsOutliveDropTimeout(t *testing.T) {
	f := newFixture(t, txmonitor.Config{DropTimeout: time.Nanosecond})
	w, err := f.store.AllocateIndex(f.ctx, "bob", chain.ETH)
	require.NoError(t, err)
	require.NoError(t, f.store.FinalizeWallet(f.ctx, w.ID, "eth-addr-1", amount.Zero()))

	deposit := transaction.NewInbound("bob", chain.ETH, "eth-addr-1", "0xshallow-in", amount.MustParse("300"), transaction.StatusBroadcasted)
	_, err = f.store.RecordInbound(f.ctx, deposit)
	require.NoError(t, err)
	f.eth.SetStatus("0xshallow-in", chain.TxStatus{State: chain.TxPending, Confirmations: 1, BlockNumber: 800_000})

	withdrawalID := f.broadcastWithdrawal(t, "250", "0xshallow-out")
	f.eth.SetStatus("0xshallow-out", chain.TxStatus{State: chain.TxPending, Confirmations: 2})
	time.Sleep(time.Millisecond)

	require.NoError(t, f.monitor.RunPass(f.ctx))

	in, err := f.store.GetTransaction(f.ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBroadcasted, in.Status)

	out, err := f.store.GetTransaction(f.ctx, withdrawalID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBroadcasted, out.Status)
	assert.Equal(t, "750", f.balance(t), "a mined withdrawal is never refunded")
	assert.Empty(t, f.recorder.OfType(events.WithdrawalRefunded))
}

func TestMonitor_StatusErrorKeepsTransactionInFlight(t *testing.T) {
	f := newFixture(t, txmonitor.Config{})
	txID := f.broadcastWithdrawal(t, "250", "0xslow")
	f.eth.StatusErr = assert.AnError

	require.NoError(t, f.monitor.RunPass(f.ctx))

	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBroadcasted, tx.Status)
	assert.Equal(t, "750", f.balance(t))
}

func TestMonitor_CreditsConfirmedDeposit(t *testing.T) {
	f := newFixture(t, txmonitor.Config{UpgradeWindow: time.Hour})
	w, err := f.store.AllocateIndex(f.ctx, "bob", chain.ETH)
	require.NoError(t, err)
	require.NoError(t, f.store.FinalizeWallet(f.ctx, w.ID, "eth-addr-1", amount.Zero()))

	seen := transaction.NewInbound("bob", chain.ETH, "eth-addr-1", "0xin", amount.MustParse("300"), transaction.StatusBroadcasted)
	_, err = f.store.RecordInbound(f.ctx, seen)
	require.NoError(t, err)

	// Still pending: nothing credited yet.
	require.NoError(t, f.monitor.RunPass(f.ctx))
	_, err = f.store.GetBalance(f.ctx, "bob", chain.ETH)
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	f.eth.SetStatus("0xin", chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 9})
	require.NoError(t, f.monitor.RunPass(f.ctx))
	require.NoError(t, f.monitor.RunPass(f.ctx))

	b, err := f.store.GetBalance(f.ctx, "bob", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "300", b.Balance.String())
	assert.Len(t, f.recorder.OfType(events.DepositCredited), 1)

	got, err := f.store.GetWallet(f.ctx, "bob", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "300", got.LastKnownBalance.String())

	tx, err := f.store.GetTransaction(f.ctx, seen.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusConfirmed, tx.Status)
}

func TestMonitor_FailedDepositIsNotCredited(t *testing.T) {
	f := newFixture(t, txmonitor.Config{})
	w, err := f.store.AllocateIndex(f.ctx, "bob", chain.ETH)
	require.NoError(t, err)
	require.NoError(t, f.store.FinalizeWallet(f.ctx, w.ID, "eth-addr-1", amount.Zero()))

	seen := transaction.NewInbound("bob", chain.ETH, "eth-addr-1", "0xbad", amount.MustParse("300"), transaction.StatusBroadcasted)
	_, err = f.store.RecordInbound(f.ctx, seen)
	require.NoError(t, err)
	f.eth.SetStatus("0xbad", chain.TxStatus{State: chain.TxFailed})

	require.NoError(t, f.monitor.RunPass(f.ctx))

	tx, err := f.store.GetTransaction(f.ctx, seen.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Empty(t, f.recorder.Events())
}

func TestMonitor_StartStop(t *testing.T) {
	f := newFixture(t, txmonitor.Config{Interval: 5 * time.Millisecond})
	txID := f.broadcastWithdrawal(t, "100", "0xloop")
	f.eth.SetStatus("0xloop", chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 1})

	f.monitor.Start(f.ctx)
	assert.Eventually(t, func() bool {
		tx, err := f.store.GetTransaction(f.ctx, txID)
		return err == nil && tx.Status == transaction.StatusConfirmed
	}, time.Second, 5*time.Millisecond)
	f.monitor.Stop()
}
