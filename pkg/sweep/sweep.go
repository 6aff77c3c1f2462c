// Package sweep consolidates deposit-wallet funds into the treasury without
// ever moving more than the on-chain surplus over user liabilities.
package sweep

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// Status of a sweep attempt.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusBroadcasting Status = "BROADCASTING"
	StatusConfirmed    Status = "CONFIRMED"
	StatusFailed       Status = "FAILED"
)

var (
	ErrNoSweepableBalance    = errors.New("no sweepable balance")
	ErrExceedsSweepable      = errors.New("requested amount exceeds sweepable balance")
	ErrSweepInProgress       = errors.New("sweep already in progress for chain")
	ErrConsolidationRequired = errors.New("no single wallet holds the sweep amount, consolidation required")
	ErrNoDestination         = errors.New("sweep destination equals the source wallet")
	ErrSweepNotFound         = errors.New("sweep not found")
)

// Sweep is one sweep attempt.
type Sweep struct {
	ID    string
	Chain chain.Chain
	// Amount is the human-readable decimal of AmountRaw.
	Amount      string
	AmountRaw   amount.Amount
	FromWallet  string
	ToWallet    string
	TxHash      string
	Status      Status
	InitiatedBy string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Request asks for a chain-wide sweep. A nil Amount sweeps the full sweepable balance.
type Request struct {
	Chain       chain.Chain
	Amount      *amount.Amount
	InitiatedBy string
}

func newSweep(c chain.Chain, units amount.Units, value amount.Amount, from, to, by string) *Sweep {
	return &Sweep{
		ID:          uuid.NewString(),
		Chain:       c,
		Amount:      units.ToHuman(value),
		AmountRaw:   value,
		FromWallet:  from,
		ToWallet:    to,
		Status:      StatusBroadcasting,
		InitiatedBy: by,
	}
}
