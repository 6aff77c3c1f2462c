package treasury

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// JournalStore is the single choke point for treasury book writes. Every
// mutation of a ledger or its entries checks the ledger's locked flag in the
// same transaction and fails with ErrLedgerLocked once it is set.
type JournalStore interface {
	EnsureAccounts(ctx context.Context, currency, network string, names []string) error
	GetAccount(ctx context.Context, name, currency, network string) (*Account, error)
	CreateLedger(ctx context.Context, l *Ledger) error
	GetLedger(ctx context.Context, id string) (*Ledger, error)
	InsertEntry(ctx context.Context, e *Entry) error
	ListLedgerEntries(ctx context.Context, ledgerID string) ([]Entry, error)
	// LockLedger commits the ledger. It requires CheckBalanced to pass.
	LockLedger(ctx context.Context, ledgerID string, at time.Time) error
	UpdateEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, id int64) error
	DeleteLedger(ctx context.Context, id string) error
}

// Service journals money movements as balanced, locked ledgers.
type Service interface {
	Post(ctx context.Context, j Journal) (*Ledger, error)
	RecordDeposit(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
	RecordWithdrawal(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
	RecordSweep(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
	RecordColdTransfer(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
	RecordFeeRevenue(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error
}

type journalService struct {
	store    JournalStore
	adapters *chain.Registry
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	ensured map[string]bool
}

// NewService creates the treasury journal service
func NewService(store JournalStore, adapters *chain.Registry, logger *zap.Logger) Service {
	return &journalService{
		store:    store,
		adapters: adapters,
		logger:   logger,
		now:      time.Now,
		ensured:  make(map[string]bool),
	}
}

// Post validates j, writes its ledger and entries and locks the ledger.
//
// A ledger that fails to lock stays unlocked as an orphan for manual review;
// locked ledgers can never be deleted, unlocked ones are left untouched.
func (s *journalService) Post(ctx context.Context, j Journal) (*Ledger, error) {
	if j.Currency == "" || j.Network == "" {
		return nil, fmt.Errorf("%w: currency and network are required", ErrInvalidEntry)
	}
	if len(j.Lines) == 0 {
		return nil, fmt.Errorf("%w: journal has no lines", ErrInvalidEntry)
	}
	if err := s.ensureAccounts(ctx, j.Currency, j.Network); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(j.Lines))
	for _, line := range j.Lines {
		acc, err := s.store.GetAccount(ctx, line.Account, j.Currency, j.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account %q: %w", line.Account, err)
		}
		if acc.Currency != j.Currency || acc.Network != j.Network {
			return nil, fmt.Errorf("%w: account %q is %s/%s, journal is %s/%s",
				ErrInvalidEntry, acc.Name, acc.Currency, acc.Network, j.Currency, j.Network)
		}
		e := Entry{AccountID: acc.ID, Debit: line.Debit, Credit: line.Credit}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("account %q: %w", line.Account, err)
		}
		entries = append(entries, e)
	}

	l := &Ledger{
		ID:          uuid.NewString(),
		Reference:   j.Reference,
		Description: j.Description,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateLedger(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create treasury ledger: %w", err)
	}

	for i := range entries {
		entries[i].LedgerID = l.ID
		if err := s.store.InsertEntry(ctx, &entries[i]); err != nil {
			return nil, fmt.Errorf("failed to insert treasury entry: %w", err)
		}
	}

	lockedAt := s.now()
	if err := s.store.LockLedger(ctx, l.ID, lockedAt); err != nil {
		if errors.Is(err, ErrUnbalancedLedger) {
			s.logger.Error("Treasury ledger left unlocked for review",
				zap.String("ledger_id", l.ID),
				zap.String("reference", j.Reference),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to lock treasury ledger: %w", err)
	}
	l.Locked = true
	l.LockedAt = &lockedAt

	s.logger.Debug("Treasury ledger posted",
		zap.String("ledger_id", l.ID),
		zap.String("reference", j.Reference),
		zap.String("currency", j.Currency),
		zap.String("network", j.Network))
	return l, nil
}

func (s *journalService) ensureAccounts(ctx context.Context, currency, network string) error {
	key := currency + "/" + network
	s.mu.Lock()
	done := s.ensured[key]
	s.mu.Unlock()
	if done {
		return nil
	}
	if err := s.store.EnsureAccounts(ctx, currency, network, AccountNames()); err != nil {
		return fmt.Errorf("failed to ensure treasury accounts: %w", err)
	}
	s.mu.Lock()
	s.ensured[key] = true
	s.mu.Unlock()
	return nil
}

// RecordDeposit debits the account holding the funds and credits User Balances.
// HD deposits land in deposit wallets, shared-address deposits in the hot wallet.
func (s *journalService) RecordDeposit(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return err
	}
	debit := AccountDepositWallets
	if adapter.Mode() == chain.ModeShared {
		debit = AccountHotWallet
	}
	return s.record(ctx, adapter, "deposit", debit, AccountUserBalances, value, reference)
}

// RecordWithdrawal debits User Balances and credits the Hot Wallet that paid out.
func (s *journalService) RecordWithdrawal(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return err
	}
	return s.record(ctx, adapter, "withdrawal", AccountUserBalances, AccountHotWallet, value, reference)
}

// RecordSweep debits the Hot Wallet and credits Deposit Wallets.
func (s *journalService) RecordSweep(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return err
	}
	return s.record(ctx, adapter, "sweep", AccountHotWallet, AccountDepositWallets, value, reference)
}

// RecordColdTransfer debits the Cold Wallet and credits the Hot Wallet.
func (s *journalService) RecordColdTransfer(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return err
	}
	return s.record(ctx, adapter, "cold transfer", AccountColdWallet, AccountHotWallet, value, reference)
}

// RecordFeeRevenue debits User Balances and credits Fee Revenue.
func (s *journalService) RecordFeeRevenue(ctx context.Context, c chain.Chain, value amount.Amount, reference string) error {
	adapter, err := s.adapters.Get(c)
	if err != nil {
		return err
	}
	return s.record(ctx, adapter, "fee revenue", AccountUserBalances, AccountFeeRevenue, value, reference)
}

func (s *journalService) record(ctx context.Context, adapter chain.Adapter, kind, debit, credit string, value amount.Amount, reference string) error {
	if value.Sign() <= 0 {
		return fmt.Errorf("%w: %s amount must be positive", ErrInvalidEntry, kind)
	}
	description := fmt.Sprintf("%s of %s", kind, adapter.Units().Format(value))
	j := Transfer(reference, description, adapter.Symbol(), adapter.Chain().String(), debit, credit, value)
	_, err := s.Post(ctx, j)
	return err
}
