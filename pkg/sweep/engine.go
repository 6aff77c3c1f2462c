package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/internal/metrics"
	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

// Store is the data access the engine needs.
type Store interface {
	ListWallets(ctx context.Context, c chain.Chain) ([]*wallet.Wallet, error)
	GetBalance(ctx context.Context, userID string, c chain.Chain) (*ledger.Balance, error)
	RebaseWallet(ctx context.Context, walletID int64, balance amount.Amount) error
	CreateSweep(ctx context.Context, s *Sweep) error
	UpdateSweep(ctx context.Context, s *Sweep) error
}

// Treasury is the state syncer and per-chain lock.
type Treasury interface {
	Sync(ctx context.Context, c chain.Chain) (*treasury.State, error)
	AcquireLock(ctx context.Context, c chain.Chain, by string) error
	ReleaseLock(ctx context.Context, c chain.Chain) error
}

// Journal records completed sweeps in the treasury book.
type Journal interface {
	RecordSweep(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
}

// Service runs treasury sweeps.
type Service interface {
	Sweep(ctx context.Context, req Request) (*Sweep, error)
	SweepWallets(ctx context.Context, c chain.Chain, initiatedBy string) ([]*Sweep, error)
}

// Engine is the solvency-bounded sweep executor.
type Engine struct {
	store        Store
	treasury     Treasury
	journal      Journal
	adapters     *chain.Registry
	destinations map[chain.Chain]string
	publisher    events.Publisher
	logger       *zap.Logger
}

// NewEngine creates a sweep engine. destinations maps a chain to the treasury
// address sweeps are sent to; a missing entry uses the chain's hot wallet.
func NewEngine(
	store Store,
	treasury Treasury,
	journal Journal,
	adapters *chain.Registry,
	destinations map[chain.Chain]string,
	publisher events.Publisher,
	logger *zap.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		store:        store,
		treasury:     treasury,
		journal:      journal,
		adapters:     adapters,
		destinations: destinations,
		publisher:    publisher,
		logger:       logger,
	}
}

type source struct {
	wallet  *wallet.Wallet // nil for the system wallet of a shared chain
	index   uint32
	address string
	live    amount.Amount
}

// Sweep moves the requested amount, or the full sweepable balance, from one
// wallet that can cover it on its own.
//
// The steps are:
//  1. Resync treasury state
//  2. Reject when the chain is locked
//  3. Resolve and bound the target by the sweepable balance
//  4. Find a single wallet whose live balance covers the target
//  5. Take the per-chain lock
//  6. Record the sweep, send, mark CONFIRMED or FAILED
//  7. Refresh the source baseline, journal and resync
//  8. Release the lock whatever happened
func (e *Engine) Sweep(ctx context.Context, req Request) (*Sweep, error) {
	adapter, err := e.adapters.Get(req.Chain)
	if err != nil {
		return nil, apperrors.NotSupportedError(err, "chain not supported")
	}

	st, err := e.treasury.Sync(ctx, req.Chain)
	if err != nil {
		return nil, apperrors.DependencyError(err, "treasury sync failed")
	}
	if st.Locked {
		return nil, apperrors.LockedError(ErrSweepInProgress, "a sweep is already running for this chain")
	}

	target, err := resolveTarget(st.SweepableBalance, req.Amount, adapter.Units())
	if err != nil {
		return nil, err
	}

	src, err := e.findSource(ctx, adapter, target)
	if err != nil {
		return nil, err
	}
	dest, err := e.destination(adapter, src.address)
	if err != nil {
		return nil, err
	}

	if err := e.treasury.AcquireLock(ctx, req.Chain, req.InitiatedBy); err != nil {
		if errors.Is(err, treasury.ErrLockHeld) {
			return nil, apperrors.LockedError(ErrSweepInProgress, "a sweep is already running for this chain")
		}
		return nil, err
	}
	defer e.release(ctx, req.Chain)

	sw, err := e.execute(ctx, adapter, src, dest, target, req.InitiatedBy)
	if err != nil {
		return sw, err
	}

	if _, err := e.treasury.Sync(ctx, req.Chain); err != nil {
		e.logger.Warn("Post-sweep treasury resync failed", zap.String("chain", req.Chain.String()), zap.Error(err))
	}
	return sw, nil
}

// SweepWallets is the per-wallet batch variant. Each wallet gives up
// min(owner's credited balance, live - fee, remaining sweepable budget), so the
// batch as a whole never exceeds the chain-wide sweepable balance.
func (e *Engine) SweepWallets(ctx context.Context, c chain.Chain, initiatedBy string) ([]*Sweep, error) {
	adapter, err := e.adapters.Get(c)
	if err != nil {
		return nil, apperrors.NotSupportedError(err, "chain not supported")
	}
	if adapter.Mode() == chain.ModeShared {
		return nil, apperrors.NotSupportedError(nil, "per-wallet sweeps need per-user addresses")
	}

	st, err := e.treasury.Sync(ctx, c)
	if err != nil {
		return nil, apperrors.DependencyError(err, "treasury sync failed")
	}
	if st.Locked {
		return nil, apperrors.LockedError(ErrSweepInProgress, "a sweep is already running for this chain")
	}
	if st.SweepableBalance.Sign() <= 0 {
		return nil, apperrors.BadRequestError(ErrNoSweepableBalance, "nothing to sweep: on-chain reserve does not exceed user liabilities")
	}

	wallets, err := e.store.ListWallets(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	if err := e.treasury.AcquireLock(ctx, c, initiatedBy); err != nil {
		if errors.Is(err, treasury.ErrLockHeld) {
			return nil, apperrors.LockedError(ErrSweepInProgress, "a sweep is already running for this chain")
		}
		return nil, err
	}
	defer e.release(ctx, c)

	budget := st.SweepableBalance
	var out []*Sweep
	for _, w := range wallets {
		if budget.Sign() <= 0 {
			break
		}
		if !w.IsFinalized() {
			continue
		}

		value, live, err := e.walletAllowance(ctx, adapter, w, budget)
		if err != nil {
			e.logger.Warn("Skipping wallet in batch sweep",
				zap.String("chain", c.String()),
				zap.String("address", w.Address),
				zap.Error(err))
			continue
		}
		if value.Sign() <= 0 {
			continue
		}

		dest, err := e.destination(adapter, w.Address)
		if err != nil {
			return out, err
		}
		src := source{wallet: w, index: w.DerivationIndex, address: w.Address, live: live}
		sw, err := e.execute(ctx, adapter, src, dest, value, initiatedBy)
		if sw != nil {
			out = append(out, sw)
		}
		if err != nil {
			continue
		}
		budget = budget.Sub(value)
	}

	if _, err := e.treasury.Sync(ctx, c); err != nil {
		e.logger.Warn("Post-sweep treasury resync failed", zap.String("chain", c.String()), zap.Error(err))
	}
	return out, nil
}

func (e *Engine) walletAllowance(ctx context.Context, adapter chain.Adapter, w *wallet.Wallet, budget amount.Amount) (amount.Amount, amount.Amount, error) {
	owed := amount.Zero()
	bal, err := e.store.GetBalance(ctx, w.UserID, w.Chain)
	switch {
	case err == nil:
		owed = bal.Balance
	case errors.Is(err, ledger.ErrBalanceNotFound):
	default:
		return amount.Zero(), amount.Zero(), fmt.Errorf("failed to get owner balance: %w", err)
	}

	live, err := adapter.GetBalance(ctx, w.Address)
	if err != nil {
		return amount.Zero(), amount.Zero(), fmt.Errorf("failed to get live balance: %w", err)
	}
	fee, err := adapter.EstimateFee(ctx, chain.FeeRequest{From: w.Address, Value: live})
	if err != nil {
		return amount.Zero(), amount.Zero(), fmt.Errorf("failed to estimate fee: %w", err)
	}

	return amount.Min(owed, live.Sub(fee), budget).ClampZero(), live, nil
}

func resolveTarget(sweepable amount.Amount, requested *amount.Amount, units amount.Units) (amount.Amount, error) {
	if sweepable.Sign() <= 0 {
		return amount.Zero(), apperrors.BadRequestError(ErrNoSweepableBalance,
			"nothing to sweep: on-chain reserve does not exceed user liabilities")
	}
	if requested == nil {
		return sweepable, nil
	}
	if requested.Sign() <= 0 {
		return amount.Zero(), apperrors.BadRequestError(nil, "sweep amount must be positive")
	}
	if requested.Cmp(sweepable) > 0 {
		return amount.Zero(), apperrors.BadRequestError(ErrExceedsSweepable,
			fmt.Sprintf("requested %s but only %s is sweepable", units.Format(*requested), units.Format(sweepable)))
	}
	return *requested, nil
}

// findSource returns the first wallet, largest cached balance first, whose
// live balance covers target. Shared chains always use the system wallet.
func (e *Engine) findSource(ctx context.Context, adapter chain.Adapter, target amount.Amount) (source, error) {
	c := adapter.Chain()
	if adapter.Mode() == chain.ModeShared {
		address, err := adapter.DeriveAddress(chain.HotWalletIndex)
		if err != nil {
			return source{}, fmt.Errorf("failed to derive system address: %w", err)
		}
		live, err := adapter.GetBalance(ctx, address)
		if err != nil {
			return source{}, apperrors.DependencyError(err, "failed to query system wallet balance")
		}
		if live.Cmp(target) < 0 {
			return source{}, apperrors.ConflictError(ErrConsolidationRequired, "system wallet balance is below the sweep amount")
		}
		return source{index: chain.HotWalletIndex, address: address, live: live}, nil
	}

	wallets, err := e.store.ListWallets(ctx, c)
	if err != nil {
		return source{}, fmt.Errorf("failed to list wallets: %w", err)
	}
	sort.SliceStable(wallets, func(i, j int) bool {
		return wallets[i].LastKnownBalance.Cmp(wallets[j].LastKnownBalance) > 0
	})

	for _, w := range wallets {
		if !w.IsFinalized() {
			continue
		}
		live, err := adapter.GetBalance(ctx, w.Address)
		if err != nil {
			e.logger.Warn("Live balance query failed while choosing sweep source",
				zap.String("chain", c.String()),
				zap.String("address", w.Address),
				zap.Error(err))
			continue
		}
		if live.Cmp(target) >= 0 {
			return source{wallet: w, index: w.DerivationIndex, address: w.Address, live: live}, nil
		}
	}
	return source{}, apperrors.ConflictError(ErrConsolidationRequired,
		fmt.Sprintf("no single %s wallet holds %s", c, adapter.Units().Format(target)))
}

func (e *Engine) destination(adapter chain.Adapter, from string) (string, error) {
	dest := e.destinations[adapter.Chain()]
	if dest == "" {
		hot, err := adapter.DeriveAddress(chain.HotWalletIndex)
		if err != nil {
			return "", fmt.Errorf("failed to derive hot wallet address: %w", err)
		}
		dest = hot
	}
	if dest == from {
		return "", apperrors.BadRequestError(ErrNoDestination, "configure a sweep destination distinct from the source wallet")
	}
	return dest, nil
}

func (e *Engine) execute(
	ctx context.Context,
	adapter chain.Adapter,
	src source,
	dest string,
	value amount.Amount,
	by string,
) (*Sweep, error) {
	c := adapter.Chain()
	sw := newSweep(c, adapter.Units(), value, src.address, dest, by)
	if err := e.store.CreateSweep(ctx, sw); err != nil {
		return nil, fmt.Errorf("failed to record sweep: %w", err)
	}

	hash, sendErr := adapter.Send(ctx, chain.SendRequest{
		FromIndex:    src.index,
		ExpectedFrom: src.address,
		To:           dest,
		Value:        value,
	})
	// The transfer may be on the wire from here on; finish the bookkeeping
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if !chain.MaybeBroadcast(hash, sendErr) {
		sw.Status = StatusFailed
		sw.Error = sendErr.Error()
		if err := e.store.UpdateSweep(ctx, sw); err != nil {
			e.logger.Error("Failed to mark sweep failed", zap.String("sweep_id", sw.ID), zap.Error(err))
		}
		metrics.SweepsTotal.WithLabelValues(c.String(), string(StatusFailed)).Inc()
		e.publisher.Publish(ctx, events.Event{Type: events.SweepFailed, Chain: c, Amount: value.String(), Reference: sw.ID})
		e.logger.Error("Sweep failed",
			zap.String("chain", c.String()),
			zap.String("sweep_id", sw.ID),
			zap.String("from", src.address),
			zap.String("amount", adapter.Units().Format(value)),
			zap.Error(sendErr))
		return sw, apperrors.DependencyError(sendErr, "sweep transfer failed")
	}
	if sendErr != nil {
		// Neither journaled nor rebased: if it lands, polling sees the outflow
		// and moves the baseline down.
		sw.Status = StatusBroadcasting
		sw.TxHash = hash
		sw.Error = sendErr.Error()
		if err := e.store.UpdateSweep(ctx, sw); err != nil {
			e.logger.Error("Failed to record sweep hash", zap.String("sweep_id", sw.ID), zap.Error(err))
		}
		metrics.SweepsTotal.WithLabelValues(c.String(), string(StatusBroadcasting)).Inc()
		e.logger.Error("Sweep broadcast outcome unknown, reconcile by hash",
			zap.String("chain", c.String()),
			zap.String("sweep_id", sw.ID),
			zap.String("from", src.address),
			zap.String("amount", adapter.Units().Format(value)),
			zap.String("tx_hash", hash),
			zap.Error(sendErr))
		return sw, nil
	}

	sw.Status = StatusConfirmed
	sw.TxHash = hash
	if err := e.store.UpdateSweep(ctx, sw); err != nil {
		e.logger.Error("Failed to mark sweep confirmed",
			zap.String("sweep_id", sw.ID),
			zap.String("tx_hash", hash),
			zap.Error(err))
	}
	metrics.SweepsTotal.WithLabelValues(c.String(), string(StatusConfirmed)).Inc()

	if src.wallet != nil {
		e.refreshBaseline(ctx, adapter, src, value)
	}
	if err := e.journal.RecordSweep(ctx, c, value, hash); err != nil {
		e.logger.Error("Failed to journal sweep", zap.String("sweep_id", sw.ID), zap.Error(err))
	}
	e.publisher.Publish(ctx, events.Event{Type: events.SweepCompleted, Chain: c, Amount: value.String(), TxHash: hash, Reference: sw.ID})

	e.logger.Info("Sweep broadcast",
		zap.String("chain", c.String()),
		zap.String("sweep_id", sw.ID),
		zap.String("from", src.address),
		zap.String("to", dest),
		zap.String("amount", adapter.Units().Format(value)),
		zap.String("tx_hash", hash))
	return sw, nil
}

// refreshBaseline re-reads the source balance so the next polling pass does
// not see the sweep as a change. When the node lags, live minus value is used.
func (e *Engine) refreshBaseline(ctx context.Context, adapter chain.Adapter, src source, value amount.Amount) {
	next := src.live.Sub(value).ClampZero()
	if live, err := adapter.GetBalance(ctx, src.address); err == nil && live.Cmp(next) < 0 {
		next = live
	}
	if err := e.store.RebaseWallet(ctx, src.wallet.ID, next); err != nil {
		e.logger.Error("Failed to refresh wallet baseline after sweep",
			zap.String("address", src.address),
			zap.Error(err))
	}
}

func (e *Engine) release(ctx context.Context, c chain.Chain) {
	if err := e.treasury.ReleaseLock(context.WithoutCancel(ctx), c); err != nil {
		e.logger.Error("Failed to release treasury lock", zap.String("chain", c.String()), zap.Error(err))
	}
}

var _ Service = (*Engine)(nil)
