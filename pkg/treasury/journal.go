package treasury

import (
	"errors"
	"fmt"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
)

// Account names of the treasury book. Each exists once per (currency, network).
const (
	AccountHotWallet          = "Hot Wallet"
	AccountColdWallet         = "Cold Wallet"
	AccountDepositWallets     = "Deposit Wallets"
	AccountUserBalances       = "User Balances"
	AccountPendingWithdrawals = "Pending Withdrawals"
	AccountEquity             = "Equity"
	AccountFeeRevenue         = "Fee Revenue"
)

// AccountNames lists every account EnsureAccounts seeds.
func AccountNames() []string {
	return []string{
		AccountHotWallet,
		AccountColdWallet,
		AccountDepositWallets,
		AccountUserBalances,
		AccountPendingWithdrawals,
		AccountEquity,
		AccountFeeRevenue,
	}
}

var (
	ErrLedgerLocked     = errors.New("treasury ledger is locked")
	ErrUnbalancedLedger = errors.New("treasury ledger is unbalanced")
	ErrInvalidEntry     = errors.New("invalid treasury entry")
	ErrAccountNotFound  = errors.New("treasury account not found")
	ErrLedgerNotFound   = errors.New("treasury ledger not found")
)

// Account is one book in the treasury ledger.
type Account struct {
	ID       int64
	Name     string
	Currency string
	Network  string
}

// Ledger groups balanced entries. Once Locked it is immutable.
type Ledger struct {
	ID          string
	Reference   string
	Description string
	Locked      bool
	CreatedAt   time.Time
	LockedAt    *time.Time
}

// Entry is one side of a posting. Exactly one of Debit and Credit is positive.
type Entry struct {
	ID        int64
	LedgerID  string
	AccountID int64
	Debit     amount.Amount
	Credit    amount.Amount
	CreatedAt time.Time
}

// Validate checks the per-entry rules: both sides non-negative and exactly
// one of them positive.
func (e Entry) Validate() error {
	if e.Debit.Sign() < 0 || e.Credit.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidEntry)
	}
	if e.Debit.Sign() > 0 == (e.Credit.Sign() > 0) {
		return fmt.Errorf("%w: exactly one of debit and credit must be positive", ErrInvalidEntry)
	}
	return nil
}

// CheckBalanced enforces the lock rule: at least two entries and equal
// debit and credit totals.
func CheckBalanced(entries []Entry) error {
	if len(entries) < 2 {
		return fmt.Errorf("%w: %d entries, need at least 2", ErrUnbalancedLedger, len(entries))
	}
	debit, credit := amount.Zero(), amount.Zero()
	for _, e := range entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s != credit %s", ErrUnbalancedLedger, debit, credit)
	}
	return nil
}

// Line is one posting of a Journal against a named account.
type Line struct {
	Account string
	Debit   amount.Amount
	Credit  amount.Amount
}

// Journal is a money movement to record. All lines share Currency and Network.
type Journal struct {
	Reference   string
	Description string
	Currency    string
	Network     string
	Lines       []Line
}

// Transfer is the two-line journal debiting one account and crediting another.
func Transfer(reference, description, currency, network, debit, credit string, value amount.Amount) Journal {
	return Journal{
		Reference:   reference,
		Description: description,
		Currency:    currency,
		Network:     network,
		Lines: []Line{
			{Account: debit, Debit: value, Credit: amount.Zero()},
			{Account: credit, Debit: amount.Zero(), Credit: value},
		},
	}
}
