package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/internal/metrics"
	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

var (
	ErrStateNotFound = errors.New("treasury state not found")
	ErrLockHeld      = errors.New("treasury lock already held")
)

// StateStore persists TreasuryState and the figures it is computed from.
type StateStore interface {
	// SumWalletBaselines sums lastKnownBalance over distinct user wallet addresses.
	SumWalletBaselines(ctx context.Context, c chain.Chain) (amount.Amount, error)
	SumLiabilities(ctx context.Context, c chain.Chain) (amount.Amount, error)
	GetState(ctx context.Context, c chain.Chain) (*State, error)
	// UpsertFigures writes the three figures without touching the lock columns.
	UpsertFigures(ctx context.Context, st *State) error
	// AcquireLock flips locked from false to true; false means someone else holds it.
	AcquireLock(ctx context.Context, c chain.Chain, by string, at time.Time) (bool, error)
	ReleaseLock(ctx context.Context, c chain.Chain) error
}

// Syncer recomputes TreasuryState.
type Syncer struct {
	store    StateStore
	adapters *chain.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncer creates a new treasury state syncer
func NewSyncer(store StateStore, adapters *chain.Registry, logger *zap.Logger) *Syncer {
	return &Syncer{
		store:    store,
		adapters: adapters,
		logger:   logger,
		now:      time.Now,
	}
}

// Sync recomputes onchain, liabilities and sweepable for c. The result is
// idempotent and safe to run before every sweep.
func (s *Syncer) Sync(ctx context.Context, c chain.Chain) (*State, error) {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.GetState(ctx, c)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return nil, fmt.Errorf("failed to get treasury state: %w", err)
	}

	onchain, err := s.onchain(ctx, adapter, prev)
	if err != nil {
		return nil, err
	}

	liabilities, err := s.store.SumLiabilities(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to sum liabilities: %w", err)
	}

	st := &State{
		Chain:                c,
		TotalOnchainBalance:  onchain,
		TotalUserLiabilities: liabilities,
		SweepableBalance:     Sweepable(onchain, liabilities),
		UpdatedAt:            s.now(),
	}
	if prev != nil {
		st.Locked = prev.Locked
		st.LockedAt = prev.LockedAt
		st.LockedBy = prev.LockedBy
	}
	if err := s.store.UpsertFigures(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save treasury state: %w", err)
	}

	metrics.TreasuryOnchain.WithLabelValues(c.String()).Set(onchain.Float64())
	metrics.TreasuryLiabilities.WithLabelValues(c.String()).Set(liabilities.Float64())
	metrics.TreasurySweepable.WithLabelValues(c.String()).Set(st.SweepableBalance.Float64())

	s.logger.Debug("Treasury state synced",
		zap.String("chain", c.String()),
		zap.String("onchain", onchain.String()),
		zap.String("liabilities", liabilities.String()),
		zap.String("sweepable", st.SweepableBalance.String()))

	return st, nil
}

// onchain sums cached baselines for HD chains. Shared chains query the
// system address live and fall back to the cached figure when the node fails.
func (s *Syncer) onchain(ctx context.Context, adapter chain.Adapter, prev *State) (amount.Amount, error) {
	c := adapter.Chain()
	if adapter.Mode() == chain.ModeHD {
		total, err := s.store.SumWalletBaselines(ctx, c)
		if err != nil {
			return amount.Zero(), fmt.Errorf("failed to sum wallet balances: %w", err)
		}
		return total, nil
	}

	address, err := adapter.DeriveAddress(chain.HotWalletIndex)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to derive system address: %w", err)
	}
	live, err := adapter.GetBalance(ctx, address)
	if err == nil {
		return live, nil
	}

	s.logger.Warn("System wallet balance query failed, using cached figure",
		zap.String("chain", c.String()),
		zap.Error(err))
	metrics.ErrorsTotal.WithLabelValues("treasury", "balance_query").Inc()
	if prev != nil {
		return prev.TotalOnchainBalance, nil
	}
	return amount.Zero(), nil
}

// SyncAll runs Sync for every registered chain, logging failures.
func (s *Syncer) SyncAll(ctx context.Context) {
	for _, c := range s.adapters.Chains() {
		if _, err := s.Sync(ctx, c); err != nil {
			s.logger.Error("Treasury sync failed", zap.String("chain", c.String()), zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("treasury", "sync").Inc()
		}
	}
}

// AcquireLock takes the per-chain sweep lock or returns ErrLockHeld.
func (s *Syncer) AcquireLock(ctx context.Context, c chain.Chain, by string) error {
	ok, err := s.store.AcquireLock(ctx, c, by, s.now())
	if err != nil {
		return fmt.Errorf("failed to acquire treasury lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// ReleaseLock clears the per-chain sweep lock.
func (s *Syncer) ReleaseLock(ctx context.Context, c chain.Chain) error {
	if err := s.store.ReleaseLock(ctx, c); err != nil {
		return fmt.Errorf("failed to release treasury lock: %w", err)
	}
	return nil
}
