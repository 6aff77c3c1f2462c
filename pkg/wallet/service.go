package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const (
	maxAllocationAttempts  = 5
	minAllocationJitter    = 5 * time.Millisecond
	maxAllocationJitter    = 50 * time.Millisecond
	defaultBaselineTimeout = 5 * time.Second
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrIndexConflict        = errors.New("derivation index already taken")
	ErrAllocationExhausted  = errors.New("derivation index allocation retries exhausted")
	ErrDerivedAddressFailed = errors.New("address derivation failed")
)

// Store is the narrow data-access interface for index allocation.
//
//go:generate mockery --name Store --output mocks --outpkg mocks --filename mock_store.go --with-expecter
type Store interface {
	GetWallet(ctx context.Context, userID string, c chain.Chain) (*Wallet, error)
	// AllocateIndex runs one serializable attempt: it returns the existing row
	// for (userID, c) or inserts max(index)+1 with a placeholder address.
	// A lost race surfaces as ErrIndexConflict.
	AllocateIndex(ctx context.Context, userID string, c chain.Chain) (*Wallet, error)
	FinalizeWallet(ctx context.Context, id int64, address string, baseline amount.Amount) error
}

// Service allocates derivation indexes and hands out deposit addresses.
//
//go:generate mockery --name Service --output mocks --outpkg mocks --filename mock_service.go --with-expecter
type Service interface {
	GenerateAddress(ctx context.Context, userID string, c chain.Chain) (*Address, error)
}

type walletService struct {
	store           Store
	adapters        *chain.Registry
	baselineTimeout time.Duration
	logger          *zap.Logger
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewService creates the deposit address service. A non-positive
// baselineTimeout uses five seconds.
func NewService(store Store, adapters *chain.Registry, baselineTimeout time.Duration, logger *zap.Logger) Service {
	if baselineTimeout <= 0 {
		baselineTimeout = defaultBaselineTimeout
	}
	return &walletService{
		store:           store,
		adapters:        adapters,
		baselineTimeout: baselineTimeout,
		logger:          logger,
		sleep:           sleepCtx,
	}
}

// GenerateAddress returns the user's deposit address on c, allocating and
// deriving it on first request.
//
// The steps are:
//  1. Return the finalized wallet when one exists
//  2. Allocate an index, retrying lost races with jitter
//  3. Derive the address for the index
//  4. Baseline lastKnownBalance with a bounded live query (0 on failure)
//  5. Persist address and baseline
func (s *walletService) GenerateAddress(ctx context.Context, userID string, c chain.Chain) (*Address, error) {
	if userID == "" {
		return nil, apperrors.BadRequestError(nil, "user id is required")
	}
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return nil, apperrors.NotSupportedError(err, "chain not supported")
	}

	existing, err := s.store.GetWallet(ctx, userID, c)
	if err != nil && !errors.Is(err, ErrWalletNotFound) {
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}
	if existing != nil && existing.IsFinalized() {
		return toAddress(existing, adapter.Mode()), nil
	}

	w := existing
	if w == nil {
		w, err = s.allocate(ctx, userID, c)
		if err != nil {
			return nil, err
		}
		if w.IsFinalized() {
			return toAddress(w, adapter.Mode()), nil
		}
	}

	address, err := adapter.DeriveAddress(w.DerivationIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivedAddressFailed, err)
	}

	baseline := s.baseline(ctx, adapter, address)
	if err := s.store.FinalizeWallet(ctx, w.ID, address, baseline); err != nil {
		return nil, fmt.Errorf("failed to finalize wallet: %w", err)
	}
	w.Address = address
	w.LastKnownBalance = baseline

	s.logger.Info("Deposit address generated",
		zap.String("user_id", userID),
		zap.String("chain", c.String()),
		zap.Uint32("index", w.DerivationIndex),
		zap.String("address", address),
		zap.String("baseline", baseline.String()))

	return toAddress(w, adapter.Mode()), nil
}

func (s *walletService) allocate(ctx context.Context, userID string, c chain.Chain) (*Wallet, error) {
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		w, err := s.store.AllocateIndex(ctx, userID, c)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ErrIndexConflict) {
			return nil, fmt.Errorf("failed to allocate derivation index: %w", err)
		}

		s.logger.Debug("Derivation index conflict, retrying",
			zap.String("user_id", userID),
			zap.String("chain", c.String()),
			zap.Int("attempt", attempt))

		if attempt == maxAllocationAttempts {
			break
		}
		if err := s.sleep(ctx, jitter()); err != nil {
			return nil, err
		}
	}
	return nil, apperrors.ConflictError(ErrAllocationExhausted, "could not allocate a deposit address, try again")
}

func (s *walletService) baseline(ctx context.Context, adapter chain.Adapter, address string) amount.Amount {
	if adapter.Mode() == chain.ModeShared {
		return amount.Zero()
	}
	ctx, cancel := context.WithTimeout(ctx, s.baselineTimeout)
	defer cancel()

	bal, err := adapter.GetBalance(ctx, address)
	if err != nil {
		s.logger.Warn("Baseline balance query failed, defaulting to zero",
			zap.String("chain", adapter.Chain().String()),
			zap.String("address", address),
			zap.Error(err))
		return amount.Zero()
	}
	return bal
}

func toAddress(w *Wallet, mode chain.AddressMode) *Address {
	out := &Address{
		UserID:          w.UserID,
		Chain:           w.Chain,
		Address:         w.Address,
		DerivationIndex: w.DerivationIndex,
	}
	if mode == chain.ModeShared {
		tag := w.DerivationIndex
		out.DestinationTag = &tag
	}
	return out
}

func jitter() time.Duration {
	span := int64(maxAllocationJitter - minAllocationJitter)
	return minAllocationJitter + time.Duration(rand.Int64N(span+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
