package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// AuditStore reads balances and the entries behind them.
type AuditStore interface {
	GetBalance(ctx context.Context, userID string, c chain.Chain) (*Balance, error)
	ListEntries(ctx context.Context, userID string, c chain.Chain) ([]Entry, error)
}

// Audit compares a stored balance with the sum of its entries.
type Audit struct {
	UserID        string
	Chain         chain.Chain
	Stored        amount.Amount
	Reconstructed amount.Amount
}

// Consistent reports whether the stored balance matches its entries.
func (a Audit) Consistent() bool {
	return a.Stored.Equal(a.Reconstructed)
}

// Auditor verifies the balance invariant for a (user, chain) pair.
type Auditor struct {
	store  AuditStore
	logger *zap.Logger
}

// NewAuditor creates a new auditor
func NewAuditor(store AuditStore, logger *zap.Logger) *Auditor {
	return &Auditor{store: store, logger: logger}
}

// Verify reconstructs the balance from entries and compares it with the
// stored one. A missing balance row counts as zero.
func (a *Auditor) Verify(ctx context.Context, userID string, c chain.Chain) (Audit, error) {
	out := Audit{UserID: userID, Chain: c, Stored: amount.Zero()}

	bal, err := a.store.GetBalance(ctx, userID, c)
	switch {
	case err == nil:
		out.Stored = bal.Balance
	case errors.Is(err, ErrBalanceNotFound):
	default:
		return out, fmt.Errorf("failed to get balance: %w", err)
	}

	entries, err := a.store.ListEntries(ctx, userID, c)
	if err != nil {
		return out, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	out.Reconstructed = Reconstruct(entries)

	if !out.Consistent() {
		a.logger.Error("Ledger balance mismatch",
			zap.String("user_id", userID),
			zap.String("chain", c.String()),
			zap.String("stored", out.Stored.String()),
			zap.String("reconstructed", out.Reconstructed.String()),
			zap.Int("entries", len(entries)))
	}
	return out, nil
}
