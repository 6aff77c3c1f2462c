// Package transaction models broadcast records tracked to a terminal state.
package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// Status is the lifecycle state of a ChainTransaction.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusBroadcasted Status = "BROADCASTED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusFailed      Status = "FAILED"
)

// Terminal reports whether s is CONFIRMED or FAILED.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionSettled  = errors.New("transaction already confirmed")
)

// Tx is a ChainTransaction. OUTBOUND rows are created before broadcast,
// INBOUND rows when a deposit is first seen.
type Tx struct {
	ID          string
	UserID      string
	Chain       chain.Chain
	FromAddress string
	ToAddress   string
	Amount      amount.Amount
	TxHash      string
	Status      Status
	Direction   chain.Direction
	BlockNumber *uint64
	ConfirmedAt *time.Time
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutbound returns a PENDING withdrawal record with a fresh id.
func NewOutbound(userID string, c chain.Chain, from, to string, value amount.Amount) *Tx {
	return &Tx{
		ID:          uuid.NewString(),
		UserID:      userID,
		Chain:       c,
		FromAddress: from,
		ToAddress:   to,
		Amount:      value,
		Status:      StatusPending,
		Direction:   chain.Outbound,
	}
}

// NewInbound returns a deposit record for a transfer seen on chain.
func NewInbound(userID string, c chain.Chain, to, txHash string, value amount.Amount, status Status) *Tx {
	return &Tx{
		ID:        uuid.NewString(),
		UserID:    userID,
		Chain:     c,
		ToAddress: to,
		Amount:    value,
		TxHash:    txHash,
		Status:    status,
		Direction: chain.Inbound,
	}
}

// Age is how long the record has existed at now.
func (t *Tx) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}
