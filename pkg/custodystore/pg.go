package custodystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore/dao"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
)

type pgStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewStore creates a new postgres implementation of the custody store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func sqlState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == sqlStateUniqueViolation
}

// ---------------------------------------------------------------------------
// Wallets

func (s *pgStore) GetWallet(ctx context.Context, userID string, c chain.Chain) (*wallet.Wallet, error) {
	row := new(dao.WalletDao)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Where("chain = ?", c.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return toWallet(row), nil
}

// AllocateIndex runs one serializable attempt at inserting max(index)+1.
// Index 0 is never handed out: max over an empty chain is 0.
func (s *pgStore) AllocateIndex(ctx context.Context, userID string, c chain.Chain) (*wallet.Wallet, error) {
	var out *wallet.Wallet
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		existing := new(dao.WalletDao)
		err := tx.NewSelect().
			Model(existing).
			Where("user_id = ?", userID).
			Where("chain = ?", c.String()).
			Scan(ctx)
		if err == nil {
			out = toWallet(existing)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var maxIndex int64
		err = tx.NewSelect().
			Model((*dao.WalletDao)(nil)).
			ColumnExpr("COALESCE(MAX(derivation_index), 0)").
			Where("chain = ?", c.String()).
			Scan(ctx, &maxIndex)
		if err != nil {
			return err
		}

		next := uint32(maxIndex + 1)
		now := s.now()
		row := &dao.WalletDao{
			UserID:           userID,
			Chain:            c.String(),
			DerivationIndex:  int64(next),
			Address:          wallet.PlaceholderAddress(c, next),
			LastKnownBalance: "0",
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}
		out = toWallet(row)
		return nil
	})
	if err != nil {
		switch sqlState(err) {
		case sqlStateUniqueViolation, sqlStateSerializationFailure:
			return nil, wallet.ErrIndexConflict
		}
		return nil, fmt.Errorf("failed to allocate derivation index: %w", err)
	}
	return out, nil
}

func (s *pgStore) FinalizeWallet(ctx context.Context, id int64, address string, baseline amount.Amount) error {
	_, err := s.db.NewUpdate().
		Model((*dao.WalletDao)(nil)).
		Set("address = ?", address).
		Set("last_known_balance = ?", baseline.String()).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to finalize wallet: %w", err)
	}
	return nil
}

func (s *pgStore) ListWallets(ctx context.Context, c chain.Chain) ([]*wallet.Wallet, error) {
	var rows []dao.WalletDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("chain = ?", c.String()).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	out := make([]*wallet.Wallet, len(rows))
	for i := range rows {
		out[i] = toWallet(&rows[i])
	}
	return out, nil
}

func (s *pgStore) RebaseWallet(ctx context.Context, walletID int64, balance amount.Amount) error {
	return rebaseWallet(ctx, s.db, walletID, balance, s.now())
}

func rebaseWallet(ctx context.Context, db bun.IDB, walletID int64, balance amount.Amount, now time.Time) error {
	_, err := db.NewUpdate().
		Model((*dao.WalletDao)(nil)).
		Set("last_known_balance = ?", balance.String()).
		Set("updated_at = ?", now).
		Where("id = ?", walletID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebase wallet: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ledger

func (s *pgStore) GetBalance(ctx context.Context, userID string, c chain.Chain) (*ledger.Balance, error) {
	row := new(dao.BalanceDao)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Where("chain = ?", c.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return toBalance(row), nil
}

func (s *pgStore) ListEntries(ctx context.Context, userID string, c chain.Chain) ([]ledger.Entry, error) {
	var rows []dao.LedgerEntryDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("chain = ?", c.String()).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	out := make([]ledger.Entry, len(rows))
	for i := range rows {
		out[i] = toLedgerEntry(&rows[i])
	}
	return out, nil
}

func (s *pgStore) ReconstructBalance(ctx context.Context, userID string, c chain.Chain) (amount.Amount, error) {
	entries, err := s.ListEntries(ctx, userID, c)
	if err != nil {
		return amount.Zero(), err
	}
	return ledger.Reconstruct(entries), nil
}

// creditBalance adds value to the user's balance, creating the row on first credit.
func creditBalance(ctx context.Context, tx bun.Tx, userID string, c chain.Chain, value amount.Amount, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, chain, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, chain)
		DO UPDATE SET balance = user_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		userID, c.String(), value.String(), now)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx bun.Tx, e ledger.Entry) error {
	row := &dao.LedgerEntryDao{
		UserID:      e.UserID,
		Chain:       e.Chain.String(),
		Amount:      e.Amount.String(),
		Type:        string(e.Type),
		ReferenceID: e.ReferenceID,
		CreatedAt:   e.CreatedAt,
	}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return err
	}
	return nil
}

// lockWallet serializes credits for one wallet. Both credit paths check for
// an existing entry before writing, which READ COMMITTED alone does not make
// atomic.
func lockWallet(ctx context.Context, tx bun.Tx, walletID int64) error {
	var id int64
	err := tx.NewSelect().
		Model((*dao.WalletDao)(nil)).
		Column("id").
		Where("id = ?", walletID).
		For("UPDATE").
		Scan(ctx, &id)
	if err != nil {
		return fmt.Errorf("failed to lock wallet %d: %w", walletID, err)
	}
	return nil
}

// upgradeSince is the earliest POLLING_DETECTED entry a scanned deposit may
// take over. The window runs back from the first inbound record of the hash
// when that is older than d.Now.
func upgradeSince(ctx context.Context, tx bun.Tx, d ledger.ScannedDeposit) (time.Time, error) {
	var sighted sql.NullTime
	err := tx.NewSelect().
		Model((*dao.ChainTransactionDao)(nil)).
		ColumnExpr("MIN(created_at)").
		Where("chain = ?", d.Chain.String()).
		Where("direction = ?", string(chain.Inbound)).
		Where("tx_hash = ?", d.TxHash).
		Where("user_id = ?", d.UserID).
		Scan(ctx, &sighted)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to look up inbound record: %w", err)
	}
	return ledger.UpgradeSince(d, sighted.Time, sighted.Valid), nil
}

// CreditPolledDeposit credits a balance delta unless a DEPOSIT of the same
// amount landed within the window, in which case only the baseline moves.
func (s *pgStore) CreditPolledDeposit(ctx context.Context, d ledger.PolledDeposit) (ledger.Outcome, error) {
	if d.Amount.Sign() <= 0 {
		return ledger.Rebased, ledger.ErrInvalidEntryAmount
	}
	outcome := ledger.Credited
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockWallet(ctx, tx, d.WalletID); err != nil {
			return err
		}
		recent, err := tx.NewSelect().
			Model((*dao.LedgerEntryDao)(nil)).
			Where("user_id = ?", d.UserID).
			Where("chain = ?", d.Chain.String()).
			Where("type = ?", string(ledger.Deposit)).
			Where("amount = ?", d.Amount.String()).
			Where("created_at >= ?", d.Now.Add(-d.Window)).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check recent deposits: %w", err)
		}

		if recent {
			outcome = ledger.Rebased
		} else {
			if err := creditBalance(ctx, tx, d.UserID, d.Chain, d.Amount, d.Now); err != nil {
				return err
			}
			err := insertEntry(ctx, tx, ledger.Entry{
				UserID:      d.UserID,
				Chain:       d.Chain,
				Amount:      d.Amount,
				Type:        ledger.Deposit,
				ReferenceID: ledger.PollingReference,
				CreatedAt:   d.Now,
			})
			if err != nil {
				return fmt.Errorf("failed to insert deposit entry: %w", err)
			}
		}
		return rebaseWallet(ctx, tx, d.WalletID, d.Observed, d.Now)
	})
	if err != nil {
		return outcome, fmt.Errorf("failed to credit polled deposit: %w", err)
	}
	return outcome, nil
}

// CreditScannedDeposit credits a deposit identified by its hash exactly once.
// A POLLING_DETECTED entry of the same amount inside the upgrade window is
// taken over instead of crediting again.
func (s *pgStore) CreditScannedDeposit(ctx context.Context, d ledger.ScannedDeposit) (ledger.Outcome, error) {
	if d.Amount.Sign() <= 0 {
		return ledger.Duplicate, ledger.ErrInvalidEntryAmount
	}
	outcome := ledger.Credited
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockWallet(ctx, tx, d.WalletID); err != nil {
			return err
		}
		seen, err := tx.NewSelect().
			Model((*dao.LedgerEntryDao)(nil)).
			Where("user_id = ?", d.UserID).
			Where("chain = ?", d.Chain.String()).
			Where("type = ?", string(ledger.Deposit)).
			Where("reference_id = ?", d.TxHash).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check deposit reference: %w", err)
		}
		if seen {
			outcome = ledger.Duplicate
			return nil
		}

		since, err := upgradeSince(ctx, tx, d)
		if err != nil {
			return err
		}
		polled := new(dao.LedgerEntryDao)
		err = tx.NewSelect().
			Model(polled).
			Where("user_id = ?", d.UserID).
			Where("chain = ?", d.Chain.String()).
			Where("type = ?", string(ledger.Deposit)).
			Where("reference_id = ?", ledger.PollingReference).
			Where("amount = ?", d.Amount.String()).
			Where("created_at >= ?", since).
			Order("created_at DESC").
			Limit(1).
			For("UPDATE").
			Scan(ctx)
		switch {
		case err == nil:
			_, err = tx.NewUpdate().
				Model((*dao.LedgerEntryDao)(nil)).
				Set("reference_id = ?", d.TxHash).
				Where("id = ?", polled.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to upgrade polled entry: %w", err)
			}
			outcome = ledger.Upgraded
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up polled entry: %w", err)
		}

		if err := creditBalance(ctx, tx, d.UserID, d.Chain, d.Amount, d.Now); err != nil {
			return err
		}
		err = insertEntry(ctx, tx, ledger.Entry{
			UserID:      d.UserID,
			Chain:       d.Chain,
			Amount:      d.Amount,
			Type:        ledger.Deposit,
			ReferenceID: d.TxHash,
			CreatedAt:   d.Now,
		})
		if err != nil {
			return err
		}
		if d.AdvanceBaseline {
			_, err = tx.NewUpdate().
				Model((*dao.WalletDao)(nil)).
				Set("last_known_balance = last_known_balance + ?", d.Amount.String()).
				Set("updated_at = ?", d.Now).
				Where("id = ?", d.WalletID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to advance wallet baseline: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Duplicate, nil
		}
		return outcome, fmt.Errorf("failed to credit scanned deposit: %w", err)
	}
	return outcome, nil
}

// DebitForWithdrawal debits the balance, records the WITHDRAWAL entry and the
// PENDING outbound transaction together.
func (s *pgStore) DebitForWithdrawal(ctx context.Context, w ledger.WithdrawalDebit) error {
	if w.Amount.Sign() <= 0 {
		return ledger.ErrInvalidEntryAmount
	}
	now := s.now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*dao.BalanceDao)(nil)).
			Set("balance = balance - ?", w.Amount.String()).
			Set("updated_at = ?", now).
			Where("user_id = ?", w.UserID).
			Where("chain = ?", w.Chain.String()).
			Where("balance >= ?", w.Amount.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrInsufficientBalance
		}

		err = insertEntry(ctx, tx, ledger.Entry{
			UserID:      w.UserID,
			Chain:       w.Chain,
			Amount:      w.Amount,
			Type:        ledger.Withdrawal,
			ReferenceID: w.TxID,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal entry: %w", err)
		}

		out := transaction.NewOutbound(w.UserID, w.Chain, w.FromAddress, w.ToAddress, w.Amount)
		out.ID = w.TxID
		out.CreatedAt = now
		out.UpdatedAt = now
		if _, err := tx.NewInsert().Model(toTransactionDao(out)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert withdrawal transaction: %w", err)
		}
		return nil
	})
}

// RefundWithdrawal reverses a withdrawal debit at most once, guarded by the
// REFUND:<txID> reference, and marks the transaction FAILED.
func (s *pgStore) RefundWithdrawal(ctx context.Context, txID, reason string) (bool, error) {
	refunded := false
	now := s.now()
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(dao.ChainTransactionDao)
		err := tx.NewSelect().
			Model(row).
			Where("id = ?", txID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return transaction.ErrTransactionNotFound
			}
			return fmt.Errorf("failed to load transaction: %w", err)
		}
		if row.Direction != string(chain.Outbound) {
			return fmt.Errorf("transaction %s is not a withdrawal", txID)
		}
		if row.Status == string(transaction.StatusConfirmed) {
			return transaction.ErrTransactionSettled
		}

		reference := ledger.RefundReference(txID)
		done, err := tx.NewSelect().
			Model((*dao.LedgerEntryDao)(nil)).
			Where("user_id = ?", row.UserID).
			Where("chain = ?", row.Chain).
			Where("type = ?", string(ledger.Adjustment)).
			Where("reference_id = ?", reference).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check refund reference: %w", err)
		}

		if !done {
			value := numeric(row.Amount)
			c := chain.Chain(row.Chain)
			if err := creditBalance(ctx, tx, row.UserID, c, value, now); err != nil {
				return err
			}
			err = insertEntry(ctx, tx, ledger.Entry{
				UserID:      row.UserID,
				Chain:       c,
				Amount:      value,
				Type:        ledger.Adjustment,
				ReferenceID: reference,
				CreatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("failed to insert refund entry: %w", err)
			}
			refunded = true
		}

		_, err = tx.NewUpdate().
			Model((*dao.ChainTransactionDao)(nil)).
			Set("status = ?", string(transaction.StatusFailed)).
			Set("error = ?", reason).
			Set("updated_at = ?", now).
			Where("id = ?", txID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark withdrawal failed: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return refunded, nil
}

func (s *pgStore) Adjust(ctx context.Context, userID string, c chain.Chain, delta amount.Amount, reference string) error {
	if delta.IsZero() {
		return ledger.ErrInvalidEntryAmount
	}
	now := s.now()
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if delta.Sign() > 0 {
			if err := creditBalance(ctx, tx, userID, c, delta, now); err != nil {
				return err
			}
		} else {
			debit := delta.Neg()
			res, err := tx.NewUpdate().
				Model((*dao.BalanceDao)(nil)).
				Set("balance = balance - ?", debit.String()).
				Set("updated_at = ?", now).
				Where("user_id = ?", userID).
				Where("chain = ?", c.String()).
				Where("balance >= ?", debit.String()).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to debit balance: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ledger.ErrInsufficientBalance
			}
		}
		return insertEntry(ctx, tx, ledger.Entry{
			UserID:      userID,
			Chain:       c,
			Amount:      delta,
			Type:        ledger.Adjustment,
			ReferenceID: reference,
			CreatedAt:   now,
		})
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateEntry
		}
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return err
		}
		return fmt.Errorf("failed to apply adjustment: %w", err)
	}
	return nil
}
