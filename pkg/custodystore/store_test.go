package custodystore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/deposit"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

// storeFactory returns a fresh, empty Store.
type storeFactory func(t *testing.T) (context.Context, Store)

// runStoreSuite exercises the behavior every Store implementation shares.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("AllocateIndex", func(t *testing.T) { testAllocateIndex(t, newStore) })
	t.Run("PolledDepositDedup", func(t *testing.T) { testPolledDepositDedup(t, newStore) })
	t.Run("ScannedDepositOnce", func(t *testing.T) { testScannedDepositOnce(t, newStore) })
	t.Run("ScannedUpgradesPolled", func(t *testing.T) { testScannedUpgradesPolled(t, newStore) })
	t.Run("DefaultWindowBoundaries", func(t *testing.T) { testDefaultWindowBoundaries(t, newStore) })
	t.Run("SlowConfirmationUpgradesPolled", func(t *testing.T) { testSlowConfirmationUpgradesPolled(t, newStore) })
	t.Run("WithdrawalRefund", func(t *testing.T) { testWithdrawalRefund(t, newStore) })
	t.Run("RefundAfterConfirm", func(t *testing.T) { testRefundAfterConfirm(t, newStore) })
	t.Run("Adjust", func(t *testing.T) { testAdjust(t, newStore) })
	t.Run("RecordInbound", func(t *testing.T) { testRecordInbound(t, newStore) })
	t.Run("Cursor", func(t *testing.T) { testCursor(t, newStore) })
	t.Run("TreasuryLock", func(t *testing.T) { testTreasuryLock(t, newStore) })
	t.Run("TreasurySums", func(t *testing.T) { testTreasurySums(t, newStore) })
	t.Run("Sweeps", func(t *testing.T) { testSweeps(t, newStore) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, newStore) })
}

func eth(s string) amount.Amount {
	return amount.MustParse(s)
}

func finalizedWallet(ctx context.Context, t *testing.T, s Store, userID string, c chain.Chain, address, baseline string) *wallet.Wallet {
	t.Helper()
	w, err := s.AllocateIndex(ctx, userID, c)
	require.NoError(t, err)
	require.NoError(t, s.FinalizeWallet(ctx, w.ID, address, eth(baseline)))
	w, err = s.GetWallet(ctx, userID, c)
	require.NoError(t, err)
	return w
}

func requireBalance(ctx context.Context, t *testing.T, s Store, userID string, c chain.Chain, want string) {
	t.Helper()
	b, err := s.GetBalance(ctx, userID, c)
	require.NoError(t, err)
	assert.Equal(t, want, b.Balance.String())

	rebuilt, err := s.ReconstructBalance(ctx, userID, c)
	require.NoError(t, err)
	assert.Equal(t, want, rebuilt.String(), "balance must equal the sum of its entries")
}

func testAllocateIndex(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	w1, err := s.AllocateIndex(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), w1.DerivationIndex)
	assert.False(t, w1.IsFinalized())

	w2, err := s.AllocateIndex(ctx, "bob", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), w2.DerivationIndex)

	again, err := s.AllocateIndex(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, w1.ID, again.ID)

	other, err := s.AllocateIndex(ctx, "alice", chain.BSC)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), other.DerivationIndex)

	require.NoError(t, s.FinalizeWallet(ctx, w1.ID, "0xalice", eth("7")))
	got, err := s.GetWallet(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "0xalice", got.Address)
	assert.Equal(t, "7", got.LastKnownBalance.String())
	assert.True(t, got.IsFinalized())

	_, err = s.GetWallet(ctx, "carol", chain.ETH)
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)

	list, err := s.ListWallets(ctx, chain.ETH)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testPolledDepositDedup(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "0")
	now := time.Now().UTC()

	// 0.02 ETH lands on a fresh wallet.
	outcome, err := s.CreditPolledDeposit(ctx, ledger.PolledDeposit{
		WalletID: w.ID,
		UserID:   "alice",
		Chain:    chain.ETH,
		Amount:   eth("20000000000000000"),
		Observed: eth("20000000000000000"),
		Window:   time.Minute,
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Credited, outcome)
	requireBalance(ctx, t, s, "alice", chain.ETH, "20000000000000000")

	// The same delta seen again within the window only rebases.
	outcome, err = s.CreditPolledDeposit(ctx, ledger.PolledDeposit{
		WalletID: w.ID,
		UserID:   "alice",
		Chain:    chain.ETH,
		Amount:   eth("20000000000000000"),
		Observed: eth("40000000000000000"),
		Window:   time.Minute,
		Now:      now.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Rebased, outcome)
	requireBalance(ctx, t, s, "alice", chain.ETH, "20000000000000000")

	got, err := s.GetWallet(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "40000000000000000", got.LastKnownBalance.String())

	entries, err := s.ListEntries(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.PollingReference, entries[0].ReferenceID)

	_, err = s.CreditPolledDeposit(ctx, ledger.PolledDeposit{WalletID: w.ID, UserID: "alice", Chain: chain.ETH, Amount: amount.Zero(), Now: now})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntryAmount)
}

func testScannedDepositOnce(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "100")

	dep := ledger.ScannedDeposit{
		WalletID:        w.ID,
		UserID:          "alice",
		Chain:           chain.ETH,
		TxHash:          "0xhash1",
		Amount:          eth("500"),
		UpgradeWindow:   time.Hour,
		Now:             time.Now().UTC(),
		AdvanceBaseline: true,
	}
	outcome, err := s.CreditScannedDeposit(ctx, dep)
	require.NoError(t, err)
	assert.Equal(t, ledger.Credited, outcome)

	outcome, err = s.CreditScannedDeposit(ctx, dep)
	require.NoError(t, err)
	assert.Equal(t, ledger.Duplicate, outcome)

	requireBalance(ctx, t, s, "alice", chain.ETH, "500")

	got, err := s.GetWallet(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "600", got.LastKnownBalance.String())
}

func testScannedUpgradesPolled(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "0")
	now := time.Now().UTC()

	_, err := s.CreditPolledDeposit(ctx, ledger.PolledDeposit{
		WalletID: w.ID,
		UserID:   "alice",
		Chain:    chain.ETH,
		Amount:   eth("250"),
		Observed: eth("250"),
		Window:   time.Minute,
		Now:      now,
	})
	require.NoError(t, err)

	outcome, err := s.CreditScannedDeposit(ctx, ledger.ScannedDeposit{
		WalletID:        w.ID,
		UserID:          "alice",
		Chain:           chain.ETH,
		TxHash:          "0xreal",
		Amount:          eth("250"),
		UpgradeWindow:   time.Hour,
		Now:             now.Add(30 * time.Second),
		AdvanceBaseline: true,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Upgraded, outcome)

	requireBalance(ctx, t, s, "alice", chain.ETH, "250")
	entries, err := s.ListEntries(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xreal", entries[0].ReferenceID)

	// Baseline is not advanced on an upgrade; polling already moved it.
	got, err := s.GetWallet(ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "250", got.LastKnownBalance.String())
}

func testDefaultWindowBoundaries(t *testing.T, newStore storeFactory) {
	cfg := deposit.DefaultConfig()
	// Postgres keeps microseconds.
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	polled := func(ctx context.Context, s Store, w *wallet.Wallet, observed string, at time.Time) ledger.Outcome {
		t.Helper()
		outcome, err := s.CreditPolledDeposit(ctx, ledger.PolledDeposit{
			WalletID: w.ID,
			UserID:   w.UserID,
			Chain:    chain.ETH,
			Amount:   eth("100000"),
			Observed: eth(observed),
			Window:   cfg.PollingWindow,
			Now:      at,
		})
		require.NoError(t, err)
		return outcome
	}
	scanned := func(ctx context.Context, s Store, w *wallet.Wallet, hash string, at time.Time) ledger.Outcome {
		t.Helper()
		outcome, err := s.CreditScannedDeposit(ctx, ledger.ScannedDeposit{
			WalletID:        w.ID,
			UserID:          w.UserID,
			Chain:           chain.ETH,
			TxHash:          hash,
			Amount:          eth("100000"),
			UpgradeWindow:   cfg.UpgradeWindow,
			Now:             at,
			AdvanceBaseline: true,
		})
		require.NoError(t, err)
		return outcome
	}

	t.Run("upgrade at the window edge", func(t *testing.T) {
		ctx, s := newStore(t)
		w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "0")
		require.Equal(t, ledger.Credited, polled(ctx, s, w, "100000", t0))
		assert.Equal(t, ledger.Upgraded, scanned(ctx, s, w, "0xedge", t0.Add(cfg.UpgradeWindow)))
		requireBalance(ctx, t, s, "alice", chain.ETH, "100000")
	})

	t.Run("aged-out polled entry is not upgraded", func(t *testing.T) {
		ctx, s := newStore(t)
		w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "0")
		require.Equal(t, ledger.Credited, polled(ctx, s, w, "100000", t0))
		assert.Equal(t, ledger.Credited, scanned(ctx, s, w, "0xlate", t0.Add(cfg.UpgradeWindow+time.Second)))
		requireBalance(ctx, t, s, "alice", chain.ETH, "200000")

		entries, err := s.ListEntries(ctx, "alice", chain.ETH)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("polling window edge", func(t *testing.T) {
		ctx, s := newStore(t)
		w := finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "0")
		require.Equal(t, ledger.Credited, polled(ctx, s, w, "100000", t0))
		assert.Equal(t, ledger.Rebased, polled(ctx, s, w, "200000", t0.Add(cfg.PollingWindow)))
		assert.Equal(t, ledger.Credited, polled(ctx, s, w, "300000", t0.Add(cfg.PollingWindow+time.Second)))
		requireBalance(ctx, t, s, "alice", chain.ETH, "200000")
	})
}

// testSlowConfirmationUpgradesPolled covers a deposit first recorded while
// unconfirmed, polled right after, and confirmed long past the upgrade window.
func testSlowConfirmationUpgradesPolled(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	cfg := deposit.DefaultConfig()
	w := finalizedWallet(ctx, t, s, "alice", chain.BTC, "bc1qalice", "0")
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	seen := transaction.NewInbound("alice", chain.BTC, "bc1qalice", "btc-slow", eth("100000"), transaction.StatusBroadcasted)
	seen.CreatedAt = t0
	_, err := s.RecordInbound(ctx, seen)
	require.NoError(t, err)

	outcome, err := s.CreditPolledDeposit(ctx, ledger.PolledDeposit{
		WalletID: w.ID,
		UserID:   "alice",
		Chain:    chain.BTC,
		Amount:   eth("100000"),
		Observed: eth("100000"),
		Window:   cfg.PollingWindow,
		Now:      t0.Add(time.Second),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.Credited, outcome)

	outcome, err = s.CreditScannedDeposit(ctx, ledger.ScannedDeposit{
		WalletID:        w.ID,
		UserID:          "alice",
		Chain:           chain.BTC,
		TxHash:          "btc-slow",
		Amount:          eth("100000"),
		UpgradeWindow:   cfg.UpgradeWindow,
		Now:             t0.Add(40 * time.Minute),
		AdvanceBaseline: true,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Upgraded, outcome)

	requireBalance(ctx, t, s, "alice", chain.BTC, "100000")
	entries, err := s.ListEntries(ctx, "alice", chain.BTC)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "btc-slow", entries[0].ReferenceID)
}

func testWithdrawalRefund(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	require.NoError(t, s.Adjust(ctx, "alice", chain.ETH, eth("1000"), "seed"))

	txID := uuid.NewString()
	w := ledger.WithdrawalDebit{
		TxID:        txID,
		UserID:      "alice",
		Chain:       chain.ETH,
		FromAddress: "0xhot",
		ToAddress:   "0xdest",
		Amount:      eth("400"),
	}

	over := w
	over.TxID = uuid.NewString()
	over.Amount = eth("5000")
	assert.ErrorIs(t, s.DebitForWithdrawal(ctx, over), ledger.ErrInsufficientBalance)

	require.NoError(t, s.DebitForWithdrawal(ctx, w))
	requireBalance(ctx, t, s, "alice", chain.ETH, "600")

	tx, err := s.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, chain.Outbound, tx.Direction)

	inflight, err := s.ListInFlight(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, inflight, "pending rows are not in flight")

	require.NoError(t, s.MarkBroadcasted(ctx, txID, "0xwithdraw"))
	assert.ErrorIs(t, s.MarkBroadcasted(ctx, txID, "0xother"), transaction.ErrTransactionNotFound)

	inflight, err = s.ListInFlight(ctx, 10)
	require.NoError(t, err)
	require.Len(t, inflight, 1)
	assert.Equal(t, "0xwithdraw", inflight[0].TxHash)

	refunded, err := s.RefundWithdrawal(ctx, txID, "dropped")
	require.NoError(t, err)
	assert.True(t, refunded)

	refunded, err = s.RefundWithdrawal(ctx, txID, "dropped again")
	require.NoError(t, err)
	assert.False(t, refunded)

	requireBalance(ctx, t, s, "alice", chain.ETH, "1000")
	tx, err = s.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)

	_, err = s.RefundWithdrawal(ctx, uuid.NewString(), "missing")
	assert.ErrorIs(t, err, transaction.ErrTransactionNotFound)
}

func testRefundAfterConfirm(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	require.NoError(t, s.Adjust(ctx, "alice", chain.ETH, eth("100"), "seed"))

	txID := uuid.NewString()
	require.NoError(t, s.DebitForWithdrawal(ctx, ledger.WithdrawalDebit{
		TxID: txID, UserID: "alice", Chain: chain.ETH, FromAddress: "0xhot", ToAddress: "0xdest", Amount: eth("100"),
	}))
	require.NoError(t, s.MarkBroadcasted(ctx, txID, "0xdone"))
	require.NoError(t, s.MarkConfirmed(ctx, txID, 42, time.Now().UTC()))

	_, err := s.RefundWithdrawal(ctx, txID, "late")
	assert.ErrorIs(t, err, transaction.ErrTransactionSettled)

	// A confirmed row is never failed afterwards.
	require.NoError(t, s.MarkFailed(ctx, txID, "late"))
	tx, err := s.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusConfirmed, tx.Status)
	require.NotNil(t, tx.BlockNumber)
	assert.Equal(t, uint64(42), *tx.BlockNumber)

	requireBalance(ctx, t, s, "alice", chain.ETH, "0")
}

func testAdjust(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	require.NoError(t, s.Adjust(ctx, "alice", chain.SOL, eth("50"), "bonus-1"))
	assert.ErrorIs(t, s.Adjust(ctx, "alice", chain.SOL, eth("50"), "bonus-1"), ledger.ErrDuplicateEntry)
	assert.ErrorIs(t, s.Adjust(ctx, "alice", chain.SOL, eth("-60"), "clawback-1"), ledger.ErrInsufficientBalance)
	require.NoError(t, s.Adjust(ctx, "alice", chain.SOL, eth("-20"), "clawback-2"))
	assert.ErrorIs(t, s.Adjust(ctx, "alice", chain.SOL, amount.Zero(), "noop"), ledger.ErrInvalidEntryAmount)

	requireBalance(ctx, t, s, "alice", chain.SOL, "30")

	_, err := s.GetBalance(ctx, "bob", chain.SOL)
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)
}

func testRecordInbound(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	seen := transaction.NewInbound("alice", chain.BTC, "bc1alice", "btc-hash", eth("1000"), transaction.StatusBroadcasted)
	written, err := s.RecordInbound(ctx, seen)
	require.NoError(t, err)
	assert.True(t, written)

	again := transaction.NewInbound("alice", chain.BTC, "bc1alice", "btc-hash", eth("1000"), transaction.StatusBroadcasted)
	written, err = s.RecordInbound(ctx, again)
	require.NoError(t, err)
	assert.False(t, written)

	confirmedAt := time.Now().UTC()
	block := uint64(800000)
	confirmed := transaction.NewInbound("alice", chain.BTC, "bc1alice", "btc-hash", eth("1000"), transaction.StatusConfirmed)
	confirmed.ConfirmedAt = &confirmedAt
	confirmed.BlockNumber = &block
	written, err = s.RecordInbound(ctx, confirmed)
	require.NoError(t, err)
	assert.True(t, written)

	tx, err := s.GetTransaction(ctx, seen.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusConfirmed, tx.Status)
	require.NotNil(t, tx.BlockNumber)
	assert.Equal(t, block, *tx.BlockNumber)

	inflight, err := s.ListInFlight(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, inflight)
}

func testCursor(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	cursor, err := s.GetCursor(ctx, chain.ETH)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, s.SaveCursor(ctx, chain.ETH, "100"))
	require.NoError(t, s.SaveCursor(ctx, chain.ETH, "120"))
	cursor, err = s.GetCursor(ctx, chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "120", cursor)
}

func testTreasuryLock(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)
	now := time.Now().UTC()

	_, err := s.GetState(ctx, chain.ETH)
	assert.ErrorIs(t, err, treasury.ErrStateNotFound)

	ok, err := s.AcquireLock(ctx, chain.ETH, "sweeper", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, chain.ETH, "other", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertFigures(ctx, &treasury.State{
		Chain:                chain.ETH,
		TotalOnchainBalance:  eth("900"),
		TotalUserLiabilities: eth("400"),
		SweepableBalance:     eth("500"),
		UpdatedAt:            now,
	}))

	st, err := s.GetState(ctx, chain.ETH)
	require.NoError(t, err)
	assert.True(t, st.Locked, "figures upsert must leave the lock alone")
	assert.Equal(t, "sweeper", st.LockedBy)
	assert.Equal(t, "500", st.SweepableBalance.String())

	require.NoError(t, s.ReleaseLock(ctx, chain.ETH))
	ok, err = s.AcquireLock(ctx, chain.ETH, "other", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testTreasurySums(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	finalizedWallet(ctx, t, s, "alice", chain.ETH, "0xalice", "300")
	finalizedWallet(ctx, t, s, "bob", chain.ETH, "0xbob", "200")
	_, err := s.AllocateIndex(ctx, "carol", chain.ETH)
	require.NoError(t, err)
	finalizedWallet(ctx, t, s, "dave", chain.BSC, "0xdave", "999")

	total, err := s.SumWalletBaselines(ctx, chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "500", total.String())

	require.NoError(t, s.Adjust(ctx, "alice", chain.ETH, eth("120"), "a"))
	require.NoError(t, s.Adjust(ctx, "bob", chain.ETH, eth("80"), "b"))
	require.NoError(t, s.Adjust(ctx, "bob", chain.BSC, eth("5"), "c"))

	liabilities, err := s.SumLiabilities(ctx, chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "200", liabilities.String())

	empty, err := s.SumLiabilities(ctx, chain.XRP)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func testSweeps(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	sw := &sweep.Sweep{
		ID:          uuid.NewString(),
		Chain:       chain.ETH,
		Amount:      "0.1",
		AmountRaw:   eth("100000000000000000"),
		FromWallet:  "0xdeposit",
		ToWallet:    "0xhot",
		Status:      sweep.StatusBroadcasting,
		InitiatedBy: "ops",
	}
	require.NoError(t, s.CreateSweep(ctx, sw))

	sw.Status = sweep.StatusConfirmed
	sw.TxHash = "0xsweep"
	require.NoError(t, s.UpdateSweep(ctx, sw))

	got, err := s.GetSweep(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, sweep.StatusConfirmed, got.Status)
	assert.Equal(t, "0xsweep", got.TxHash)
	assert.Equal(t, "100000000000000000", got.AmountRaw.String())

	_, err = s.GetSweep(ctx, uuid.NewString())
	assert.ErrorIs(t, err, sweep.ErrSweepNotFound)

	missing := *sw
	missing.ID = uuid.NewString()
	assert.ErrorIs(t, s.UpdateSweep(ctx, &missing), sweep.ErrSweepNotFound)

	list, err := s.ListSweeps(ctx, chain.ETH, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testJournal(t *testing.T, newStore storeFactory) {
	ctx, s := newStore(t)

	require.NoError(t, s.EnsureAccounts(ctx, "ETH", "ETH", treasury.AccountNames()))
	require.NoError(t, s.EnsureAccounts(ctx, "ETH", "ETH", treasury.AccountNames()))

	hot, err := s.GetAccount(ctx, treasury.AccountHotWallet, "ETH", "ETH")
	require.NoError(t, err)
	users, err := s.GetAccount(ctx, treasury.AccountUserBalances, "ETH", "ETH")
	require.NoError(t, err)
	_, err = s.GetAccount(ctx, treasury.AccountHotWallet, "BTC", "BTC")
	assert.ErrorIs(t, err, treasury.ErrAccountNotFound)

	l := &treasury.Ledger{ID: uuid.NewString(), Reference: "ref-1", Description: "deposit", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateLedger(ctx, l))

	debit := &treasury.Entry{LedgerID: l.ID, AccountID: hot.ID, Debit: eth("10"), Credit: amount.Zero()}
	require.NoError(t, s.InsertEntry(ctx, debit))
	assert.ErrorIs(t, s.LockLedger(ctx, l.ID, time.Now().UTC()), treasury.ErrUnbalancedLedger)

	credit := &treasury.Entry{LedgerID: l.ID, AccountID: users.ID, Debit: amount.Zero(), Credit: eth("9")}
	require.NoError(t, s.InsertEntry(ctx, credit))
	assert.ErrorIs(t, s.LockLedger(ctx, l.ID, time.Now().UTC()), treasury.ErrUnbalancedLedger)

	credit.Credit = eth("10")
	require.NoError(t, s.UpdateEntry(ctx, credit))
	require.NoError(t, s.LockLedger(ctx, l.ID, time.Now().UTC()))

	got, err := s.GetLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	require.NotNil(t, got.LockedAt)

	extra := &treasury.Entry{LedgerID: l.ID, AccountID: hot.ID, Debit: eth("1"), Credit: amount.Zero()}
	assert.ErrorIs(t, s.InsertEntry(ctx, extra), treasury.ErrLedgerLocked)
	credit.Credit = eth("11")
	assert.ErrorIs(t, s.UpdateEntry(ctx, credit), treasury.ErrLedgerLocked)
	assert.ErrorIs(t, s.DeleteEntry(ctx, debit.ID), treasury.ErrLedgerLocked)
	assert.ErrorIs(t, s.DeleteLedger(ctx, l.ID), treasury.ErrLedgerLocked)

	entries, err := s.ListLedgerEntries(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10", entries[1].Credit.String())

	bad := &treasury.Entry{LedgerID: l.ID, AccountID: hot.ID, Debit: eth("1"), Credit: eth("1")}
	assert.ErrorIs(t, s.InsertEntry(ctx, bad), treasury.ErrInvalidEntry)

	orphan := &treasury.Ledger{ID: uuid.NewString(), Reference: "ref-2", Description: "orphan", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateLedger(ctx, orphan))
	require.NoError(t, s.InsertEntry(ctx, &treasury.Entry{LedgerID: orphan.ID, AccountID: hot.ID, Debit: eth("3"), Credit: amount.Zero()}))
	require.NoError(t, s.DeleteLedger(ctx, orphan.ID))
	_, err = s.GetLedger(ctx, orphan.ID)
	assert.ErrorIs(t, err, treasury.ErrLedgerNotFound)
}
