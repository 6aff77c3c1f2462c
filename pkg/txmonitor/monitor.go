// Package txmonitor drives broadcast transactions to a terminal state.
package txmonitor

import (
	"context"
	"errors"
	"fmt"
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
	defaultInterval    = 15 * time.Second
	defaultDropTimeout = 30 * time.Minute
	defaultBatchSize   = 100
)

// Store is the persistence the monitor needs.
type Store interface {
	// ListInFlight returns BROADCASTED transactions, oldest first. PENDING
	// rows are never returned: their broadcast outcome is unknown.
	ListInFlight(ctx context.Context, limit int) ([]*transaction.Tx, error)
	MarkConfirmed(ctx context.Context, id string, blockNumber uint64, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	RefundWithdrawal(ctx context.Context, txID, reason string) (bool, error)
	GetWallet(ctx context.Context, userID string, c chain.Chain) (*wallet.Wallet, error)
	CreditScannedDeposit(ctx context.Context, d ledger.ScannedDeposit) (ledger.Outcome, error)
}

// Journal records settled movements in the treasury book.
type Journal interface {
	RecordDeposit(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
	RecordWithdrawal(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
}

// Config tunes the monitor. Zero values fall back to defaults.
type Config struct {
	Interval      time.Duration
	DropTimeout   time.Duration
	BatchSize     int
	UpgradeWindow time.Duration
}

// Monitor polls the status of in-flight transactions.
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

// New creates a new transaction status monitor
func New(cfg Config, store Store, journal Journal, adapters *chain.Registry, publisher events.Publisher, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.DropTimeout <= 0 {
		cfg.DropTimeout = defaultDropTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
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

// Start launches the polling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.Info("Transaction monitor started", zap.Duration("interval", m.cfg.Interval))
}

// Stop stops the loop and waits for the current pass to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Transaction monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.RunPass(ctx); err != nil {
				m.logger.Error("Transaction monitor pass failed", zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("txmonitor", "pass").Inc()
			}
		}
	}
}

// RunPass checks every in-flight transaction once.
func (m *Monitor) RunPass(ctx context.Context) error {
	txs, err := m.store.ListInFlight(ctx, m.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list in-flight transactions: %w", err)
	}

	inflight := make(map[chain.Chain]int)
	for _, c := range m.adapters.Chains() {
		inflight[c] = 0
	}

	for _, tx := range txs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resolved, err := m.check(ctx, tx)
		if err != nil {
			m.logger.Warn("Transaction status check failed",
				zap.String("tx_id", tx.ID),
				zap.String("chain", tx.Chain.String()),
				zap.String("tx_hash", tx.TxHash),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("txmonitor", "status").Inc()
		}
		if !resolved {
			inflight[tx.Chain]++
		}
	}

	for c, n := range inflight {
		metrics.InFlightTransactions.WithLabelValues(c.String()).Set(float64(n))
	}
	return nil
}

// check queries one transaction and applies its outcome. It reports whether
// the transaction reached a terminal state.
func (m *Monitor) check(ctx context.Context, tx *transaction.Tx) (bool, error) {
	adapter, err := m.adapters.Get(tx.Chain)
	if err != nil {
		return false, err
	}

	status, err := adapter.GetTransactionStatus(ctx, tx.TxHash, tx.Direction)
	if err != nil {
		if tx.Age(m.now()) < m.cfg.DropTimeout {
			return false, err
		}
		status = chain.TxStatus{State: chain.TxNotFound}
	}

	switch status.State {
	case chain.TxConfirmed:
		return true, m.confirm(ctx, adapter, tx, status)
	case chain.TxFailed:
		return true, m.fail(ctx, tx, "transaction failed on chain")
	default:
		// A mined transaction short of its confirmation depth is never dropped,
		// however slowly its chain buries it.
		if status.Included() {
			return false, nil
		}
		if tx.Age(m.now()) >= m.cfg.DropTimeout {
			return true, m.fail(ctx, tx, fmt.Sprintf("transaction not confirmed after %s", m.cfg.DropTimeout))
		}
		return false, nil
	}
}

func (m *Monitor) confirm(ctx context.Context, adapter chain.Adapter, tx *transaction.Tx, status chain.TxStatus) error {
	if tx.Direction == chain.Inbound {
		if err := m.creditInbound(ctx, adapter, tx); err != nil {
			return err
		}
	}

	if err := m.store.MarkConfirmed(ctx, tx.ID, status.BlockNumber, m.now()); err != nil {
		return fmt.Errorf("failed to mark transaction confirmed: %w", err)
	}
	metrics.TransactionsResolved.WithLabelValues(tx.Chain.String(), string(tx.Direction), string(transaction.StatusConfirmed)).Inc()

	if tx.Direction == chain.Outbound {
		if err := m.journal.RecordWithdrawal(ctx, tx.Chain, tx.Amount, tx.TxHash); err != nil {
			m.logger.Error("Failed to journal withdrawal", zap.String("tx_id", tx.ID), zap.Error(err))
		}
		metrics.WithdrawalsTotal.WithLabelValues(tx.Chain.String(), "confirmed").Inc()
		m.publisher.Publish(ctx, events.Event{
			Type:      events.WithdrawalConfirmed,
			Chain:     tx.Chain,
			UserID:    tx.UserID,
			Amount:    tx.Amount.String(),
			TxHash:    tx.TxHash,
			Reference: tx.ID,
		})
	}

	m.logger.Info("Transaction confirmed",
		zap.String("tx_id", tx.ID),
		zap.String("chain", tx.Chain.String()),
		zap.String("direction", string(tx.Direction)),
		zap.String("tx_hash", tx.TxHash),
		zap.Uint64("block", status.BlockNumber))
	return nil
}

func (m *Monitor) creditInbound(ctx context.Context, adapter chain.Adapter, tx *transaction.Tx) error {
	w, err := m.store.GetWallet(ctx, tx.UserID, tx.Chain)
	if err != nil {
		return fmt.Errorf("failed to resolve deposit wallet: %w", err)
	}

	outcome, err := m.store.CreditScannedDeposit(ctx, ledger.ScannedDeposit{
		WalletID:        w.ID,
		UserID:          tx.UserID,
		Chain:           tx.Chain,
		TxHash:          tx.TxHash,
		Amount:          tx.Amount,
		UpgradeWindow:   m.cfg.UpgradeWindow,
		Now:             m.now(),
		AdvanceBaseline: adapter.Mode() == chain.ModeHD,
	})
	if err != nil {
		return fmt.Errorf("failed to credit deposit: %w", err)
	}
	metrics.DepositsTotal.WithLabelValues(tx.Chain.String(), "status", outcome.String()).Inc()

	switch outcome {
	case ledger.Credited:
		if err := m.journal.RecordDeposit(ctx, tx.Chain, tx.Amount, tx.TxHash); err != nil {
			m.logger.Error("Failed to journal deposit", zap.String("tx_hash", tx.TxHash), zap.Error(err))
		}
		m.publisher.Publish(ctx, events.Event{
			Type:   events.DepositCredited,
			Chain:  tx.Chain,
			UserID: tx.UserID,
			Amount: tx.Amount.String(),
			TxHash: tx.TxHash,
		})
	case ledger.Upgraded:
		m.publisher.Publish(ctx, events.Event{
			Type:   events.DepositUpgraded,
			Chain:  tx.Chain,
			UserID: tx.UserID,
			Amount: tx.Amount.String(),
			TxHash: tx.TxHash,
		})
	}
	return nil
}

func (m *Monitor) fail(ctx context.Context, tx *transaction.Tx, reason string) error {
	metrics.TransactionsResolved.WithLabelValues(tx.Chain.String(), string(tx.Direction), string(transaction.StatusFailed)).Inc()

	if tx.Direction == chain.Inbound {
		if err := m.store.MarkFailed(ctx, tx.ID, reason); err != nil {
			return fmt.Errorf("failed to mark deposit failed: %w", err)
		}
		m.logger.Warn("Inbound transaction failed",
			zap.String("tx_id", tx.ID),
			zap.String("chain", tx.Chain.String()),
			zap.String("tx_hash", tx.TxHash),
			zap.String("reason", reason))
		return nil
	}

	refunded, err := m.store.RefundWithdrawal(ctx, tx.ID, reason)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to refund withdrawal: %w", err)
	}
	metrics.WithdrawalsTotal.WithLabelValues(tx.Chain.String(), "failed").Inc()
	if !refunded {
		return nil
	}

	metrics.RefundsTotal.WithLabelValues(tx.Chain.String()).Inc()
	m.publisher.Publish(ctx, events.Event{
		Type:      events.WithdrawalRefunded,
		Chain:     tx.Chain,
		UserID:    tx.UserID,
		Amount:    tx.Amount.String(),
		TxHash:    tx.TxHash,
		Reference: ledger.RefundReference(tx.ID),
	})
	m.logger.Warn("Withdrawal refunded",
		zap.String("tx_id", tx.ID),
		zap.String("chain", tx.Chain.String()),
		zap.String("user_id", tx.UserID),
		zap.String("tx_hash", tx.TxHash),
		zap.String("reason", reason))
	return nil
}
