// Package withdrawal executes user withdrawals: internal debit first, then a
// serialized send from the hot wallet, with a compensating refund on failure.
package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/internal/metrics"
	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
)

// Store is the ledger side of a withdrawal.
//
//go:generate mockery --name Store --output mocks --outpkg mocks --filename mock_store.go --with-expecter
type Store interface {
	// DebitForWithdrawal checks and debits the balance, writes the WITHDRAWAL
	// entry and inserts the PENDING outbound transaction, atomically.
	DebitForWithdrawal(ctx context.Context, w ledger.WithdrawalDebit) error
	MarkBroadcasted(ctx context.Context, txID, txHash string) error
	// RefundWithdrawal credits the debit back once per transaction. It returns
	// false when the refund already happened.
	RefundWithdrawal(ctx context.Context, txID, reason string) (bool, error)
}

// Request is a user withdrawal in the chain's smallest unit.
type Request struct {
	UserID         string
	Chain          chain.Chain
	To             string
	Amount         amount.Amount
	DestinationTag *uint32
}

// Result identifies the broadcast withdrawal.
type Result struct {
	TxID   string
	TxHash string
}

// Service executes withdrawals.
type Service interface {
	Withdraw(ctx context.Context, req Request) (*Result, error)
}

type withdrawalService struct {
	store     Store
	adapters  *chain.Registry
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates the withdrawal service
func NewService(store Store, adapters *chain.Registry, publisher events.Publisher, logger *zap.Logger) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &withdrawalService{
		store:     store,
		adapters:  adapters,
		publisher: publisher,
		logger:    logger,
	}
}

// Withdraw debits the user, then sends from the hot wallet. A send that
// cannot have reached the chain is refunded with an ADJUSTMENT entry
// referencing the transaction id. Anything else is left to the status monitor.
func (s *withdrawalService) Withdraw(ctx context.Context, req Request) (*Result, error) {
	adapter, err := s.adapters.Get(req.Chain)
	if err != nil {
		return nil, apperrors.NotSupportedError(err, "chain not supported")
	}
	if req.UserID == "" {
		return nil, apperrors.BadRequestError(nil, "user id is required")
	}
	if req.Amount.Sign() <= 0 {
		return nil, apperrors.BadRequestError(nil, "withdrawal amount must be positive")
	}
	if !adapter.IsValidAddress(req.To) {
		return nil, apperrors.BadRequestError(chain.ErrInvalidAddress, fmt.Sprintf("invalid %s address", req.Chain))
	}

	hot, err := adapter.DeriveAddress(chain.HotWalletIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to derive hot wallet address: %w", err)
	}
	if req.To == hot {
		return nil, apperrors.BadRequestError(nil, "cannot withdraw to the custody hot wallet")
	}

	tx := transaction.NewOutbound(req.UserID, req.Chain, hot, req.To, req.Amount)
	err = s.store.DebitForWithdrawal(ctx, ledger.WithdrawalDebit{
		TxID:        tx.ID,
		UserID:      req.UserID,
		Chain:       req.Chain,
		FromAddress: hot,
		ToAddress:   req.To,
		Amount:      req.Amount,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return nil, apperrors.BadRequestError(err,
				fmt.Sprintf("insufficient balance for withdrawal of %s", adapter.Units().Format(req.Amount)))
		}
		return nil, fmt.Errorf("failed to debit withdrawal: %w", err)
	}

	hash, sendErr := adapter.Send(ctx, chain.SendRequest{
		FromIndex:      chain.HotWalletIndex,
		ExpectedFrom:   hot,
		To:             req.To,
		Value:          req.Amount,
		DestinationTag: req.DestinationTag,
	})
	if !chain.MaybeBroadcast(hash, sendErr) {
		s.refund(ctx, tx, sendErr)
		metrics.WithdrawalsTotal.WithLabelValues(req.Chain.String(), "failed").Inc()
		return nil, apperrors.DependencyError(sendErr, "withdrawal broadcast failed, balance refunded")
	}
	if sendErr != nil {
		// The node may hold the transfer. The status monitor settles it by
		// hash and refunds only once the chain shows it never landed.
		s.logger.Warn("Withdrawal broadcast outcome unknown, tracking by hash",
			zap.String("tx_id", tx.ID),
			zap.String("tx_hash", hash),
			zap.Error(sendErr))
	}

	if err := s.store.MarkBroadcasted(context.WithoutCancel(ctx), tx.ID, hash); err != nil {
		// The transfer is on the wire; leaving the row PENDING keeps it out of
		// automatic refunds until someone reconciles it.
		s.logger.Error("Failed to record broadcast hash",
			zap.String("tx_id", tx.ID),
			zap.String("tx_hash", hash),
			zap.Error(err))
	}

	metrics.WithdrawalsTotal.WithLabelValues(req.Chain.String(), "broadcasted").Inc()
	s.publisher.Publish(ctx, events.Event{
		Type:      events.WithdrawalBroadcast,
		Chain:     req.Chain,
		UserID:    req.UserID,
		Amount:    req.Amount.String(),
		TxHash:    hash,
		Reference: tx.ID,
	})
	return &Result{TxID: tx.ID, TxHash: hash}, nil
}

func (s *withdrawalService) refund(ctx context.Context, tx *transaction.Tx, cause error) {
	refunded, err := s.store.RefundWithdrawal(context.WithoutCancel(ctx), tx.ID, cause.Error())
	if err != nil {
		s.logger.Error("Failed to refund withdrawal",
			zap.String("tx_id", tx.ID),
			zap.String("user_id", tx.UserID),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("withdrawal", "refund").Inc()
		return
	}
	if !refunded {
		return
	}
	metrics.RefundsTotal.WithLabelValues(tx.Chain.String()).Inc()
	s.publisher.Publish(ctx, events.Event{
		Type:      events.WithdrawalRefunded,
		Chain:     tx.Chain,
		UserID:    tx.UserID,
		Amount:    tx.Amount.String(),
		Reference: ledger.RefundReference(tx.ID),
	})
}
