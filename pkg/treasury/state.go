// Package treasury tracks per-chain reserves against user liabilities and
// keeps the double-entry treasury book.
package treasury

import (
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// State is the per-chain treasury singleton.
type State struct {
	Chain                chain.Chain
	TotalOnchainBalance  amount.Amount
	TotalUserLiabilities amount.Amount
	SweepableBalance     amount.Amount
	Locked               bool
	LockedAt             *time.Time
	LockedBy             string
	UpdatedAt            time.Time
}

// Sweepable is max(0, onchain - liabilities).
func Sweepable(onchain, liabilities amount.Amount) amount.Amount {
	return onchain.Sub(liabilities).ClampZero()
}
