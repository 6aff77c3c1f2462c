package custodystore

import (
	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore/dao"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

// numeric reads a numeric(78,0) column. Postgres only ever hands back
// base-10 integers for these columns.
func numeric(s string) amount.Amount {
	return amount.MustParse(s)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toWallet(d *dao.WalletDao) *wallet.Wallet {
	return &wallet.Wallet{
		ID:               d.ID,
		UserID:           d.UserID,
		Chain:            chain.Chain(d.Chain),
		DerivationIndex:  uint32(d.DerivationIndex),
		Address:          d.Address,
		LastKnownBalance: numeric(d.LastKnownBalance),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func toBalance(d *dao.BalanceDao) *ledger.Balance {
	return &ledger.Balance{
		UserID:    d.UserID,
		Chain:     chain.Chain(d.Chain),
		Balance:   numeric(d.Balance),
		UpdatedAt: d.UpdatedAt,
	}
}

func toLedgerEntry(d *dao.LedgerEntryDao) ledger.Entry {
	return ledger.Entry{
		ID:          d.ID,
		UserID:      d.UserID,
		Chain:       chain.Chain(d.Chain),
		Amount:      numeric(d.Amount),
		Type:        ledger.EntryType(d.Type),
		ReferenceID: d.ReferenceID,
		CreatedAt:   d.CreatedAt,
	}
}

func toTransactionDao(tx *transaction.Tx) *dao.ChainTransactionDao {
	d := &dao.ChainTransactionDao{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Chain:       tx.Chain.String(),
		FromAddress: optString(tx.FromAddress),
		ToAddress:   tx.ToAddress,
		Amount:      tx.Amount.String(),
		TxHash:      optString(tx.TxHash),
		Status:      string(tx.Status),
		Direction:   string(tx.Direction),
		ConfirmedAt: tx.ConfirmedAt,
		Error:       optString(tx.Error),
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.BlockNumber != nil {
		block := int64(*tx.BlockNumber)
		d.BlockNumber = &block
	}
	return d
}

func toTransaction(d *dao.ChainTransactionDao) *transaction.Tx {
	tx := &transaction.Tx{
		ID:          d.ID,
		UserID:      d.UserID,
		Chain:       chain.Chain(d.Chain),
		FromAddress: derefString(d.FromAddress),
		ToAddress:   d.ToAddress,
		Amount:      numeric(d.Amount),
		TxHash:      derefString(d.TxHash),
		Status:      transaction.Status(d.Status),
		Direction:   chain.Direction(d.Direction),
		ConfirmedAt: d.ConfirmedAt,
		Error:       derefString(d.Error),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.BlockNumber != nil {
		block := uint64(*d.BlockNumber)
		tx.BlockNumber = &block
	}
	return tx
}

func toState(d *dao.TreasuryStateDao) *treasury.State {
	return &treasury.State{
		Chain:                chain.Chain(d.Chain),
		TotalOnchainBalance:  numeric(d.TotalOnchainBalance),
		TotalUserLiabilities: numeric(d.TotalUserLiabilities),
		SweepableBalance:     numeric(d.SweepableBalance),
		Locked:               d.Locked,
		LockedAt:             d.LockedAt,
		LockedBy:             derefString(d.LockedBy),
		UpdatedAt:            d.UpdatedAt,
	}
}

func toSweepDao(s *sweep.Sweep) *dao.SweepDao {
	return &dao.SweepDao{
		ID:          s.ID,
		Chain:       s.Chain.String(),
		Amount:      s.Amount,
		AmountRaw:   s.AmountRaw.String(),
		FromWallet:  s.FromWallet,
		ToWallet:    s.ToWallet,
		TxHash:      optString(s.TxHash),
		Status:      string(s.Status),
		InitiatedBy: s.InitiatedBy,
		Error:       optString(s.Error),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toSweep(d *dao.SweepDao) *sweep.Sweep {
	return &sweep.Sweep{
		ID:          d.ID,
		Chain:       chain.Chain(d.Chain),
		Amount:      d.Amount,
		AmountRaw:   numeric(d.AmountRaw),
		FromWallet:  d.FromWallet,
		ToWallet:    d.ToWallet,
		TxHash:      derefString(d.TxHash),
		Status:      sweep.Status(d.Status),
		InitiatedBy: d.InitiatedBy,
		Error:       derefString(d.Error),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toAccount(d *dao.TreasuryAccountDao) *treasury.Account {
	return &treasury.Account{
		ID:       d.ID,
		Name:     d.Name,
		Currency: d.Currency,
		Network:  d.Network,
	}
}

func toLedgerDao(l *treasury.Ledger) *dao.TreasuryLedgerDao {
	return &dao.TreasuryLedgerDao{
		ID:          l.ID,
		Reference:   l.Reference,
		Description: l.Description,
		Locked:      l.Locked,
		CreatedAt:   l.CreatedAt,
		LockedAt:    l.LockedAt,
	}
}

func toLedger(d *dao.TreasuryLedgerDao) *treasury.Ledger {
	return &treasury.Ledger{
		ID:          d.ID,
		Reference:   d.Reference,
		Description: d.Description,
		Locked:      d.Locked,
		CreatedAt:   d.CreatedAt,
		LockedAt:    d.LockedAt,
	}
}

func toEntryDao(e *treasury.Entry) *dao.TreasuryEntryDao {
	return &dao.TreasuryEntryDao{
		ID:        e.ID,
		LedgerID:  e.LedgerID,
		AccountID: e.AccountID,
		Debit:     e.Debit.String(),
		Credit:    e.Credit.String(),
		CreatedAt: e.CreatedAt,
	}
}

func toEntry(d *dao.TreasuryEntryDao) treasury.Entry {
	return treasury.Entry{
		ID:        d.ID,
		LedgerID:  d.LedgerID,
		AccountID: d.AccountID,
		Debit:     numeric(d.Debit),
		Credit:    numeric(d.Credit),
		CreatedAt: d.CreatedAt,
	}
}
