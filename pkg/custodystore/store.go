// Package custodystore persists wallets, the liability ledger, tracked
// transactions, treasury state, sweeps and the treasury book.
//
// Every multi-row operation runs in one database transaction so a crash
// leaves either all of its writes or none.
package custodystore

import (
	"context"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

// WalletStore covers user_wallets.
type WalletStore interface {
	GetWallet(ctx context.Context, userID string, c chain.Chain) (*wallet.Wallet, error)
	AllocateIndex(ctx context.Context, userID string, c chain.Chain) (*wallet.Wallet, error)
	FinalizeWallet(ctx context.Context, id int64, address string, baseline amount.Amount) error
	ListWallets(ctx context.Context, c chain.Chain) ([]*wallet.Wallet, error)
	RebaseWallet(ctx context.Context, walletID int64, balance amount.Amount) error
}

// LedgerStore covers user_balances and ledger_entries.
type LedgerStore interface {
	GetBalance(ctx context.Context, userID string, c chain.Chain) (*ledger.Balance, error)
	ListEntries(ctx context.Context, userID string, c chain.Chain) ([]ledger.Entry, error)
	ReconstructBalance(ctx context.Context, userID string, c chain.Chain) (amount.Amount, error)
	CreditPolledDeposit(ctx context.Context, d ledger.PolledDeposit) (ledger.Outcome, error)
	CreditScannedDeposit(ctx context.Context, d ledger.ScannedDeposit) (ledger.Outcome, error)
	DebitForWithdrawal(ctx context.Context, w ledger.WithdrawalDebit) error
	RefundWithdrawal(ctx context.Context, txID, reason string) (bool, error)
	// Adjust applies a signed manual ADJUSTMENT. The balance may not go negative.
	Adjust(ctx context.Context, userID string, c chain.Chain, delta amount.Amount, reference string) error
}

// TransactionStore covers chain_transactions and chain_state.
type TransactionStore interface {
	RecordInbound(ctx context.Context, tx *transaction.Tx) (bool, error)
	GetTransaction(ctx context.Context, id string) (*transaction.Tx, error)
	MarkBroadcasted(ctx context.Context, txID, txHash string) error
	MarkConfirmed(ctx context.Context, id string, blockNumber uint64, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListInFlight(ctx context.Context, limit int) ([]*transaction.Tx, error)
	GetCursor(ctx context.Context, c chain.Chain) (string, error)
	SaveCursor(ctx context.Context, c chain.Chain, cursor string) error
}

// SweepStore covers sweeps.
type SweepStore interface {
	CreateSweep(ctx context.Context, s *sweep.Sweep) error
	UpdateSweep(ctx context.Context, s *sweep.Sweep) error
	GetSweep(ctx context.Context, id string) (*sweep.Sweep, error)
	ListSweeps(ctx context.Context, c chain.Chain, limit int) ([]*sweep.Sweep, error)
}

// Store is the full custody persistence contract.
type Store interface {
	WalletStore
	LedgerStore
	TransactionStore
	SweepStore
	treasury.StateStore
	treasury.JournalStore
}

var (
	_ Store = (*pgStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
