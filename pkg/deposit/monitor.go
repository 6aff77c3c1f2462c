// Package deposit detects inbound transfers to user wallets and credits the
// internal ledger exactly once per deposit.
//
// Two detection paths run on every pass. Polling compares each HD wallet's
// live balance with its cached baseline and credits the delta under the
// POLLING_DETECTED reference. Scanning walks the chain for transfers with a
// hash and credits them, upgrading a matching polled entry instead of
// crediting twice.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/internal/metrics"
	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

const (
	pathPolling  = "polling"
	pathScanning = "scanning"
)

// Store is the persistence the monitor needs. Each credit operation is
// atomic on its own.
type Store interface {
	ListWallets(ctx context.Context, c chain.Chain) ([]*wallet.Wallet, error)
	CreditPolledDeposit(ctx context.Context, d ledger.PolledDeposit) (ledger.Outcome, error)
	CreditScannedDeposit(ctx context.Context, d ledger.ScannedDeposit) (ledger.Outcome, error)
	RebaseWallet(ctx context.Context, walletID int64, balance amount.Amount) error
	// RecordInbound inserts an INBOUND transaction unless (chain, direction,
	// hash) already exists. It reports whether a row was written.
	RecordInbound(ctx context.Context, tx *transaction.Tx) (bool, error)
	GetCursor(ctx context.Context, c chain.Chain) (string, error)
	SaveCursor(ctx context.Context, c chain.Chain, cursor string) error
}

// Journal records credited deposits in the treasury book.
type Journal interface {
	RecordDeposit(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
}

// Config tunes detection timing.
type Config struct {
	Pulse            time.Duration
	InterChainDelay  time.Duration
	BalanceCallDelay time.Duration
	Cooldown         time.Duration
	PollingWindow    time.Duration
	UpgradeWindow    time.Duration
	ClockSkew        time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Pulse:            30 * time.Second,
		InterChainDelay:  2 * time.Second,
		BalanceCallDelay: 200 * time.Millisecond,
		Cooldown:         60 * time.Second,
		PollingWindow:    5 * time.Minute,
		UpgradeWindow:    10 * time.Minute,
		ClockSkew:        2 * time.Minute,
	}
}

// Monitor runs one detection loop per registered chain.
type Monitor struct {
	cfg       Config
	store     Store
	journal   Journal
	adapters  *chain.Registry
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a new deposit monitor
func NewMonitor(cfg Config, store Store, journal Journal, adapters *chain.Registry, publisher events.Publisher, logger *zap.Logger) *Monitor {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Monitor{
		cfg:       cfg,
		store:     store,
		journal:   journal,
		adapters:  adapters,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// SetClock replaces the clock stamped on credits.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Start launches one loop per chain, staggered by InterChainDelay.
func (m *Monitor) Start(ctx context.Context) {
	for i, c := range m.adapters.Chains() {
		m.wg.Add(1)
		go m.loop(ctx, c, time.Duration(i)*m.cfg.InterChainDelay)
	}
	m.logger.Info("Deposit monitor started",
		zap.Int("chains", len(m.adapters.Chains())),
		zap.Duration("pulse", m.cfg.Pulse))
}

// Stop stops every loop and waits for in-progress passes.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Deposit monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, c chain.Chain, offset time.Duration) {
	defer m.wg.Done()

	if !m.wait(ctx, offset) {
		return
	}

	for {
		next := m.cfg.Pulse
		if err := m.RunPass(ctx, c); err != nil {
			m.logger.Error("Deposit pass failed, cooling down",
				zap.String("chain", c.String()),
				zap.Duration("cooldown", m.cfg.Cooldown),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("deposit", "pass").Inc()
			next = m.cfg.Cooldown
		}
		if !m.wait(ctx, next) {
			return
		}
	}
}

// wait sleeps for d and reports false when the monitor is stopping.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-m.stopCh:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-m.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// RunPass runs polling (HD chains) followed by scanning for c.
func (m *Monitor) RunPass(ctx context.Context, c chain.Chain) error {
	adapter, err := m.adapters.Get(c)
	if err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.DepositPassDuration.WithLabelValues(c.String()).Observe(time.Since(start).Seconds())
	}()

	all, err := m.store.ListWallets(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}
	wallets := make([]*wallet.Wallet, 0, len(all))
	for _, w := range all {
		if w.IsFinalized() {
			wallets = append(wallets, w)
		}
	}

	if adapter.Mode() == chain.ModeHD && len(wallets) > 0 {
		if err := m.poll(ctx, adapter, wallets); err != nil {
			return err
		}
	}
	return m.scan(ctx, adapter, wallets)
}

func (m *Monitor) poll(ctx context.Context, adapter chain.Adapter, wallets []*wallet.Wallet) error {
	c := adapter.Chain()

	if batcher, ok := adapter.(chain.BalanceBatcher); ok {
		addresses := make([]string, len(wallets))
		for i, w := range wallets {
			addresses[i] = w.Address
		}
		balances, err := batcher.GetBalances(ctx, addresses)
		if err != nil {
			return fmt.Errorf("failed to fetch balances: %w", err)
		}
		for _, w := range wallets {
			current, ok := balances[w.Address]
			if !ok {
				continue
			}
			m.observe(ctx, adapter, w, current)
		}
		return nil
	}

	for i, w := range wallets {
		if i > 0 && !m.wait(ctx, m.cfg.BalanceCallDelay) {
			return ctx.Err()
		}
		current, err := adapter.GetBalance(ctx, w.Address)
		if err != nil {
			if errors.Is(err, chain.ErrRateLimited) {
				return fmt.Errorf("polling aborted after %d of %d wallets: %w", i, len(wallets), err)
			}
			m.logger.Warn("Balance query failed",
				zap.String("chain", c.String()),
				zap.String("address", w.Address),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("deposit", "balance").Inc()
			continue
		}
		m.observe(ctx, adapter, w, current)
	}
	return nil
}

// observe applies one polled balance to its wallet.
func (m *Monitor) observe(ctx context.Context, adapter chain.Adapter, w *wallet.Wallet, current amount.Amount) {
	c := adapter.Chain()

	switch current.Cmp(w.LastKnownBalance) {
	case 0:
		return
	case -1:
		// Outflow (sweep, fee): move the baseline down, never debit a user.
		if err := m.store.RebaseWallet(ctx, w.ID, current); err != nil {
			m.logger.Error("Failed to rebase wallet",
				zap.String("chain", c.String()),
				zap.String("address", w.Address),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("deposit", "rebase").Inc()
		}
		return
	}

	delta := current.Sub(w.LastKnownBalance)
	outcome, err := m.store.CreditPolledDeposit(ctx, ledger.PolledDeposit{
		WalletID: w.ID,
		UserID:   w.UserID,
		Chain:    c,
		Amount:   delta,
		Observed: current,
		Window:   m.cfg.PollingWindow,
		Now:      m.now(),
	})
	if err != nil {
		m.logger.Error("Failed to credit polled deposit",
			zap.String("chain", c.String()),
			zap.String("user_id", w.UserID),
			zap.String("amount", adapter.Units().Format(delta)),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("deposit", "credit").Inc()
		return
	}
	metrics.DepositsTotal.WithLabelValues(c.String(), pathPolling, outcome.String()).Inc()
	w.LastKnownBalance = current

	if outcome != ledger.Credited {
		return
	}
	m.logger.Info("Deposit credited from balance change",
		zap.String("chain", c.String()),
		zap.String("user_id", w.UserID),
		zap.String("address", w.Address),
		zap.String("amount", adapter.Units().Format(delta)))
	m.settle(ctx, c, w.UserID, delta, "", ledger.PollingReference)
}

func (m *Monitor) scan(ctx context.Context, adapter chain.Adapter, wallets []*wallet.Wallet) error {
	c := adapter.Chain()

	byAddress := make(map[string]*wallet.Wallet, len(wallets))
	byTag := make(map[uint32]*wallet.Wallet, len(wallets))
	var watched []string
	for _, w := range wallets {
		byAddress[w.Address] = w
		byTag[w.DerivationIndex] = w
	}
	if adapter.Mode() == chain.ModeShared {
		system, err := adapter.DeriveAddress(chain.HotWalletIndex)
		if err != nil {
			return fmt.Errorf("failed to derive system address: %w", err)
		}
		watched = []string{system}
	} else {
		for address := range byAddress {
			watched = append(watched, address)
		}
		if len(watched) == 0 {
			return nil
		}
	}

	cursor, err := m.store.GetCursor(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to load scan cursor: %w", err)
	}

	res, err := adapter.Scan(ctx, chain.ScanRequest{Addresses: watched, Cursor: cursor})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	for _, dep := range res.Deposits {
		w := m.resolve(adapter, dep, byAddress, byTag)
		if w == nil {
			continue
		}
		if !dep.Timestamp.IsZero() && dep.Timestamp.Before(w.CreatedAt.Add(-m.cfg.ClockSkew)) {
			m.logger.Debug("Ignoring transfer older than wallet",
				zap.String("chain", c.String()),
				zap.String("tx_hash", dep.TxHash),
				zap.Time("tx_time", dep.Timestamp),
				zap.Time("wallet_created", w.CreatedAt))
			continue
		}
		m.apply(ctx, adapter, w, dep)
	}

	if res.Cursor != "" && res.Cursor != cursor {
		if err := m.store.SaveCursor(ctx, c, res.Cursor); err != nil {
			return fmt.Errorf("failed to save scan cursor: %w", err)
		}
		if block, err := strconv.ParseUint(res.Cursor, 10, 64); err == nil {
			metrics.LastScannedBlock.WithLabelValues(c.String()).Set(float64(block))
		}
	}
	return nil
}

func (m *Monitor) resolve(adapter chain.Adapter, dep chain.Deposit, byAddress map[string]*wallet.Wallet, byTag map[uint32]*wallet.Wallet) *wallet.Wallet {
	if adapter.Mode() == chain.ModeShared {
		if dep.DestinationTag == nil {
			return nil
		}
		return byTag[*dep.DestinationTag]
	}
	return byAddress[dep.To]
}

func (m *Monitor) apply(ctx context.Context, adapter chain.Adapter, w *wallet.Wallet, dep chain.Deposit) {
	c := adapter.Chain()

	status := transaction.StatusBroadcasted
	if dep.Confirmed {
		status = transaction.StatusConfirmed
	}
	tx := transaction.NewInbound(w.UserID, c, dep.To, dep.TxHash, dep.Amount, status)
	if dep.BlockNumber > 0 {
		block := dep.BlockNumber
		tx.BlockNumber = &block
	}

	if !dep.Confirmed {
		// The status monitor credits it once the chain confirms.
		if _, err := m.store.RecordInbound(ctx, tx); err != nil {
			m.logger.Error("Failed to record unconfirmed deposit",
				zap.String("chain", c.String()),
				zap.String("tx_hash", dep.TxHash),
				zap.Error(err))
		}
		return
	}

	outcome, err := m.store.CreditScannedDeposit(ctx, ledger.ScannedDeposit{
		WalletID:        w.ID,
		UserID:          w.UserID,
		Chain:           c,
		TxHash:          dep.TxHash,
		Amount:          dep.Amount,
		UpgradeWindow:   m.cfg.UpgradeWindow,
		Now:             m.now(),
		AdvanceBaseline: adapter.Mode() == chain.ModeHD,
	})
	if err != nil {
		m.logger.Error("Failed to credit scanned deposit",
			zap.String("chain", c.String()),
			zap.String("tx_hash", dep.TxHash),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("deposit", "credit").Inc()
		return
	}
	metrics.DepositsTotal.WithLabelValues(c.String(), pathScanning, outcome.String()).Inc()

	now := m.now()
	tx.ConfirmedAt = &now
	if _, err := m.store.RecordInbound(ctx, tx); err != nil {
		m.logger.Error("Failed to record deposit transaction",
			zap.String("chain", c.String()),
			zap.String("tx_hash", dep.TxHash),
			zap.Error(err))
	}

	switch outcome {
	case ledger.Credited:
		if adapter.Mode() == chain.ModeHD {
			w.LastKnownBalance = w.LastKnownBalance.Add(dep.Amount)
		}
		m.logger.Info("Deposit credited",
			zap.String("chain", c.String()),
			zap.String("user_id", w.UserID),
			zap.String("tx_hash", dep.TxHash),
			zap.String("amount", adapter.Units().Format(dep.Amount)))
		m.settle(ctx, c, w.UserID, dep.Amount, dep.TxHash, dep.TxHash)
	case ledger.Upgraded:
		m.logger.Info("Polled deposit matched to transaction",
			zap.String("chain", c.String()),
			zap.String("user_id", w.UserID),
			zap.String("tx_hash", dep.TxHash))
		m.publisher.Publish(ctx, events.Event{
			Type:   events.DepositUpgraded,
			Chain:  c,
			UserID: w.UserID,
			Amount: dep.Amount.String(),
			TxHash: dep.TxHash,
		})
	}
}

// settle journals a fresh credit and announces it.
func (m *Monitor) settle(ctx context.Context, c chain.Chain, userID string, value amount.Amount, txHash, reference string) {
	if err := m.journal.RecordDeposit(ctx, c, value, reference); err != nil {
		m.logger.Error("Failed to journal deposit",
			zap.String("chain", c.String()),
			zap.String("user_id", userID),
			zap.Error(err))
	}
	m.publisher.Publish(ctx, events.Event{
		Type:      events.DepositCredited,
		Chain:     c,
		UserID:    userID,
		Amount:    value.String(),
		TxHash:    txHash,
		Reference: reference,
	})
}
