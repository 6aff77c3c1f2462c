// Package ledger holds the internal liability ledger: per-user balances and
// the append-only entries they are reconstructed from.
package ledger

import (
	"errors"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	Deposit    EntryType = "DEPOSIT"
	Withdrawal EntryType = "WITHDRAWAL"
	Adjustment EntryType = "ADJUSTMENT"
	Transfer   EntryType = "TRANSFER"
	Earning    EntryType = "EARNING"
)

// PollingReference marks a deposit credited from a balance delta, before
// the transaction hash is known.
const PollingReference = "POLLING_DETECTED"

const refundPrefix = "REFUND:"

// RefundReference is the dedup key of the refund for a failed withdrawal.
func RefundReference(txID string) string {
	return refundPrefix + txID
}

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrInvalidEntryAmount  = errors.New("ledger entry amount must be positive")
	ErrDuplicateEntry      = errors.New("ledger entry with this reference already exists")
)

// Balance is the platform's liability to one user on one chain.
type Balance struct {
	UserID    string
	Chain     chain.Chain
	Balance   amount.Amount
	UpdatedAt time.Time
}

// Entry is one balance-affecting event.
//
// DEPOSIT and WITHDRAWAL amounts are stored positive and take their sign
// from the type. ADJUSTMENT, TRANSFER and EARNING amounts carry their own sign.
type Entry struct {
	ID          int64
	UserID      string
	Chain       chain.Chain
	Amount      amount.Amount
	Type        EntryType
	ReferenceID string
	CreatedAt   time.Time
}

// Delta is the signed effect of e on the owner's balance.
func (e Entry) Delta() amount.Amount {
	if e.Type == Withdrawal {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Reconstruct sums the signed effect of entries.
func Reconstruct(entries []Entry) amount.Amount {
	total := amount.Zero()
	for _, e := range entries {
		total = total.Add(e.Delta())
	}
	return total
}

// Outcome reports what a credit attempt did.
type Outcome int

const (
	// Credited means a new DEPOSIT entry was written and the balance increased.
	Credited Outcome = iota
	// Duplicate means the deposit was already recorded; nothing changed.
	Duplicate
	// Upgraded means a POLLING_DETECTED entry was rewritten to the real hash.
	Upgraded
	// Rebased means only the wallet baseline moved.
	Rebased
)

func (o Outcome) String() string {
	switch o {
	case Credited:
		return "credited"
	case Duplicate:
		return "duplicate"
	case Upgraded:
		return "upgraded"
	case Rebased:
		return "rebased"
	}
	return "unknown"
}

// PolledDeposit is a balance increase observed by polling a wallet.
type PolledDeposit struct {
	WalletID int64
	UserID   string
	Chain    chain.Chain
	// Amount is Observed minus the wallet's previous baseline.
	Amount   amount.Amount
	Observed amount.Amount
	// Window is how far back a DEPOSIT of the same amount counts as this one.
	Window time.Duration
	Now    time.Time
}

// ScannedDeposit is a confirmed transfer found with its hash.
type ScannedDeposit struct {
	WalletID int64
	UserID   string
	Chain    chain.Chain
	TxHash   string
	Amount   amount.Amount
	// UpgradeWindow bounds the POLLING_DETECTED entries eligible for upgrade.
	UpgradeWindow time.Duration
	Now           time.Time
	// AdvanceBaseline adds Amount to the wallet baseline on a fresh credit so
	// polling does not see the same funds again. Off for shared addresses.
	AdvanceBaseline bool
}

// UpgradeSince returns the oldest POLLING_DETECTED entry time d may take over.
// sighted is when the hash was first recorded as inbound, if seen: a deposit
// noticed long before it confirmed keeps the window it was first seen in.
func UpgradeSince(d ScannedDeposit, sighted time.Time, seen bool) time.Time {
	from := d.Now
	if seen && sighted.Before(from) {
		from = sighted
	}
	return from.Add(-d.UpgradeWindow)
}

// WithdrawalDebit is the internal debit that precedes an outbound transfer.
type WithdrawalDebit struct {
	TxID        string
	UserID      string
	Chain       chain.Chain
	FromAddress string
	ToAddress   string
	Amount      amount.Amount
}
