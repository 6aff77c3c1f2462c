// Package wallet models per-user deposit wallets and owns derivation index
// allocation.
package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const placeholderPrefix = "pending:"

// Wallet is a user's deposit endpoint on one chain.
type Wallet struct {
	ID               int64
	UserID           string
	Chain            chain.Chain
	DerivationIndex  uint32
	Address          string
	LastKnownBalance amount.Amount
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsFinalized reports whether the derived address has been written.
func (w *Wallet) IsFinalized() bool {
	return w.Address != "" && !strings.HasPrefix(w.Address, placeholderPrefix)
}

// PlaceholderAddress is the unique address a freshly allocated row carries
// until derivation completes.
func PlaceholderAddress(c chain.Chain, index uint32) string {
	return fmt.Sprintf("%s%s:%d", placeholderPrefix, c, index)
}

// Address is what GenerateAddress hands back to callers.
type Address struct {
	UserID          string      `json:"user_id"`
	Chain           chain.Chain `json:"chain"`
	Address         string      `json:"address"`
	DerivationIndex uint32      `json:"derivation_index"`
	// DestinationTag is set on shared-address chains and must accompany every deposit.
	DestinationTag *uint32 `json:"destination_tag,omitempty"`
}
