package deposit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/chain/chaintest"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore"
	"github.com/JPCompany544/arbix-sub001/pkg/deposit"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

// twoCents is 0.02 ETH in wei.
const twoCents = "20000000000000000"

type fixture struct {
	ctx      context.Context
	store    *custodystore.MemoryStore
	eth      *chaintest.Adapter
	xrp      *chaintest.Adapter
	recorder *events.Recorder
	monitor  *deposit.Monitor
}

func testConfig() deposit.Config {
	return deposit.Config{
		Pulse:         10 * time.Millisecond,
		PollingWindow: time.Minute,
		UpgradeWindow: time.Hour,
		ClockSkew:     2 * time.Minute,
		Cooldown:      10 * time.Millisecond,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := custodystore.NewMemoryStore()
	eth := chaintest.NewAdapter(chain.ETH)
	xrp := chaintest.NewAdapter(chain.XRP)
	adapters := chain.NewRegistry(eth, xrp)
	recorder := &events.Recorder{}
	journal := treasury.NewService(store, adapters, zap.NewNop())
	return &fixture{
		ctx:      context.Background(),
		store:    store,
		eth:      eth,
		xrp:      xrp,
		recorder: recorder,
		monitor:  deposit.NewMonitor(testConfig(), store, journal, adapters, recorder, zap.NewNop()),
	}
}

func (f *fixture) wallet(t *testing.T, userID string, adapter *chaintest.Adapter) *wallet.Wallet {
	t.Helper()
	w, err := f.store.AllocateIndex(f.ctx, userID, adapter.Chain())
	require.NoError(t, err)
	address, err := adapter.DeriveAddress(w.DerivationIndex)
	require.NoError(t, err)
	require.NoError(t, f.store.FinalizeWallet(f.ctx, w.ID, address, amount.Zero()))
	w, err = f.store.GetWallet(f.ctx, userID, adapter.Chain())
	require.NoError(t, err)
	return w
}

func (f *fixture) balance(t *testing.T, userID string, c chain.Chain) string {
	t.Helper()
	b, err := f.store.GetBalance(f.ctx, userID, c)
	if err != nil {
		require.ErrorIs(t, err, ledger.ErrBalanceNotFound)
		return "0"
	}
	return b.Balance.String()
}

func TestMonitor_PolledThenScannedCreditsOnce(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)

	f.eth.SetBalance(w.Address, amount.MustParse(twoCents))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
	assert.Equal(t, twoCents, f.balance(t, "alice", chain.ETH))

	f.eth.QueueDeposits(chain.Deposit{
		TxHash:      "0xdeposit",
		To:          w.Address,
		Amount:      amount.MustParse(twoCents),
		BlockNumber: 100,
		Timestamp:   time.Now(),
		Confirmed:   true,
	})
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, twoCents, f.balance(t, "alice", chain.ETH))
	entries, err := f.store.ListEntries(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xdeposit", entries[0].ReferenceID)

	assert.Len(t, f.recorder.OfType(events.DepositCredited), 1)
	assert.Len(t, f.recorder.OfType(events.DepositUpgraded), 1)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// newClockedFixture runs the monitor with production windows on a clock the
// test moves by hand.
func newClockedFixture(t *testing.T) (*fixture, *fakeClock, deposit.Config) {
	t.Helper()
	f := newFixture(t)
	cfg := deposit.DefaultConfig()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.store.SetClock(clock.Now)
	adapters := chain.NewRegistry(f.eth, f.xrp)
	f.monitor = deposit.NewMonitor(cfg, f.store, treasury.NewService(f.store, adapters, zap.NewNop()), adapters, f.recorder, zap.NewNop())
	f.monitor.SetClock(clock.Now)
	return f, clock, cfg
}

func TestMonitor_DefaultUpgradeWindow(t *testing.T) {
	const value = "100000"
	confirmed := func(hash, to string) chain.Deposit {
		return chain.Deposit{TxHash: hash, To: to, Amount: amount.MustParse(value), Confirmed: true}
	}

	t.Run("scan just inside the window upgrades", func(t *testing.T) {
		f, clock, cfg := newClockedFixture(t)
		w := f.wallet(t, "alice", f.eth)

		f.eth.SetBalance(w.Address, amount.MustParse(value))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

		clock.Advance(cfg.UpgradeWindow - time.Second)
		f.eth.QueueDeposits(confirmed("0xinside", w.Address))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

		assert.Equal(t, value, f.balance(t, "alice", chain.ETH))
		assert.Len(t, f.recorder.OfType(events.DepositUpgraded), 1)
	})

	t.Run("scan past the window is a distinct deposit", func(t *testing.T) {
		f, clock, cfg := newClockedFixture(t)
		w := f.wallet(t, "alice", f.eth)

		f.eth.SetBalance(w.Address, amount.MustParse(value))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

		clock.Advance(cfg.UpgradeWindow + time.Second)
		f.eth.QueueDeposits(confirmed("0xoutside", w.Address))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

		assert.Equal(t, "200000", f.balance(t, "alice", chain.ETH))
		assert.Empty(t, f.recorder.OfType(events.DepositUpgraded))
	})

	t.Run("polling window", func(t *testing.T) {
		f, clock, cfg := newClockedFixture(t)
		w := f.wallet(t, "alice", f.eth)

		f.eth.SetBalance(w.Address, amount.MustParse(value))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

		clock.Advance(cfg.PollingWindow - time.Second)
		f.eth.SetBalance(w.Address, amount.MustParse("200000"))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
		assert.Equal(t, value, f.balance(t, "alice", chain.ETH), "same delta inside the window only rebases")

		clock.Advance(cfg.PollingWindow + time.Second)
		f.eth.SetBalance(w.Address, amount.MustParse("300000"))
		require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
		assert.Equal(t, "200000", f.balance(t, "alice", chain.ETH))
	})
}

func TestMonitor_SlowConfirmationCreditsOnce(t *testing.T) {
	f, clock, _ := newClockedFixture(t)
	w := f.wallet(t, "alice", f.eth)

	// Seen in the mempool first.
	f.eth.QueueDeposits(chain.Deposit{TxHash: "0xslow", To: w.Address, Amount: amount.MustParse("100000")})
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	// One block deep: the balance moves and polling credits it.
	clock.Advance(time.Minute)
	f.eth.SetBalance(w.Address, amount.MustParse("100000"))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
	assert.Equal(t, "100000", f.balance(t, "alice", chain.ETH))

	// Confirmation depth reached long after the upgrade window.
	clock.Advance(40 * time.Minute)
	f.eth.QueueDeposits(chain.Deposit{TxHash: "0xslow", To: w.Address, Amount: amount.MustParse("100000"), BlockNumber: 800_002, Confirmed: true})
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, "100000", f.balance(t, "alice", chain.ETH))
	entries, err := f.store.ListEntries(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xslow", entries[0].ReferenceID)
	assert.Len(t, f.recorder.OfType(events.DepositUpgraded), 1)
}

func TestMonitor_ScannedThenPolledCreditsOnce(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)

	f.eth.QueueDeposits(chain.Deposit{
		TxHash:    "0xdeposit",
		To:        w.Address,
		Amount:    amount.MustParse(twoCents),
		Timestamp: time.Now(),
		Confirmed: true,
	})
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
	assert.Equal(t, twoCents, f.balance(t, "alice", chain.ETH))

	// The node now reports the funds; the baseline already covers them.
	f.eth.SetBalance(w.Address, amount.MustParse(twoCents))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, twoCents, f.balance(t, "alice", chain.ETH))
	assert.Len(t, f.recorder.OfType(events.DepositCredited), 1)

	rebuilt, err := f.store.ReconstructBalance(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, twoCents, rebuilt.String())
}

func TestMonitor_OutflowRebasesWithoutDebit(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)

	f.eth.SetBalance(w.Address, amount.MustParse("1000"))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	f.eth.SetBalance(w.Address, amount.MustParse("100"))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, "1000", f.balance(t, "alice", chain.ETH))
	got, err := f.store.GetWallet(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "100", got.LastKnownBalance.String())

	// A later inflow is measured from the lowered baseline.
	f.eth.SetBalance(w.Address, amount.MustParse("150"))
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
	assert.Equal(t, "1050", f.balance(t, "alice", chain.ETH))
}

func TestMonitor_SharedAddressResolvesByTag(t *testing.T) {
	f := newFixture(t)
	alice := f.wallet(t, "alice", f.xrp)
	bob := f.wallet(t, "bob", f.xrp)
	assert.Equal(t, chaintest.SharedAddress, bob.Address)

	bobTag := bob.DerivationIndex
	unknown := uint32(999)
	f.xrp.QueueDeposits(
		chain.Deposit{TxHash: "XRP1", To: chaintest.SharedAddress, DestinationTag: &bobTag, Amount: amount.MustParse("25000000"), Timestamp: time.Now(), Confirmed: true},
		chain.Deposit{TxHash: "XRP2", To: chaintest.SharedAddress, DestinationTag: &unknown, Amount: amount.MustParse("1"), Timestamp: time.Now(), Confirmed: true},
		chain.Deposit{TxHash: "XRP3", To: chaintest.SharedAddress, Amount: amount.MustParse("2"), Timestamp: time.Now(), Confirmed: true},
	)
	f.xrp.SetScanCursor("ledger-500")

	require.NoError(t, f.monitor.RunPass(f.ctx, chain.XRP))

	assert.Equal(t, "25000000", f.balance(t, "bob", chain.XRP))
	assert.Equal(t, "0", f.balance(t, alice.UserID, chain.XRP))

	// Shared wallets keep their baseline; the system address is measured live.
	got, err := f.store.GetWallet(f.ctx, "bob", chain.XRP)
	require.NoError(t, err)
	assert.True(t, got.LastKnownBalance.IsZero())

	cursor, err := f.store.GetCursor(f.ctx, chain.XRP)
	require.NoError(t, err)
	assert.Equal(t, "ledger-500", cursor)
}

func TestMonitor_IgnoresTransfersOlderThanWallet(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)

	f.eth.QueueDeposits(
		chain.Deposit{TxHash: "0xold", To: w.Address, Amount: amount.MustParse("5"), Timestamp: w.CreatedAt.Add(-time.Hour), Confirmed: true},
		chain.Deposit{TxHash: "0xskewed", To: w.Address, Amount: amount.MustParse("7"), Timestamp: w.CreatedAt.Add(-time.Minute), Confirmed: true},
	)
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, "7", f.balance(t, "alice", chain.ETH))
}

func TestMonitor_UnconfirmedDepositIsTrackedNotCredited(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)

	f.eth.QueueDeposits(chain.Deposit{TxHash: "0xmempool", To: w.Address, Amount: amount.MustParse("9"), Timestamp: time.Now()})
	f.eth.SetScanCursor("120")
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))

	assert.Equal(t, "0", f.balance(t, "alice", chain.ETH))
	inflight, err := f.store.ListInFlight(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, inflight, 1)
	assert.Equal(t, "0xmempool", inflight[0].TxHash)
	assert.Equal(t, transaction.StatusBroadcasted, inflight[0].Status)
	assert.Equal(t, chain.Inbound, inflight[0].Direction)

	cursor, err := f.store.GetCursor(f.ctx, chain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "120", cursor)
}

func TestMonitor_RateLimitAbortsPolling(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, "alice", f.eth)
	f.wallet(t, "bob", f.eth)
	f.eth.BalanceErr = chain.ErrRateLimited

	err := f.monitor.RunPass(f.ctx, chain.ETH)
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrRateLimited)
}

func TestMonitor_ScanFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, "alice", f.eth)
	f.eth.ScanErr = assert.AnError

	err := f.monitor.RunPass(f.ctx, chain.ETH)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMonitor_PlaceholderWalletsAreSkipped(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AllocateIndex(f.ctx, "alice", chain.ETH)
	require.NoError(t, err)
	f.eth.BalanceErr = chain.ErrRateLimited

	// Nothing finalized means nothing to poll or scan.
	require.NoError(t, f.monitor.RunPass(f.ctx, chain.ETH))
}

func TestMonitor_StartStop(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "alice", f.eth)
	f.eth.SetBalance(w.Address, amount.MustParse("42"))

	f.monitor.Start(f.ctx)
	assert.Eventually(t, func() bool {
		return f.balance(t, "alice", chain.ETH) == "42"
	}, time.Second, 5*time.Millisecond)
	f.monitor.Stop()
}
