package custodystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore/dao"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
)

// ---------------------------------------------------------------------------
// Treasury state

// SumWalletBaselines counts each finalized address once.
func (s *pgStore) SumWalletBaselines(ctx context.Context, c chain.Chain) (amount.Amount, error) {
	var total string
	err := s.db.NewRaw(`
		SELECT COALESCE(SUM(last_known_balance), 0)::text FROM (
			SELECT DISTINCT ON (address) last_known_balance
			FROM user_wallets
			WHERE chain = ? AND address NOT LIKE 'pending:%'
			ORDER BY address, updated_at DESC
		) AS distinct_wallets`, c.String()).
		Scan(ctx, &total)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to sum wallet baselines: %w", err)
	}
	return numeric(total), nil
}

func (s *pgStore) SumLiabilities(ctx context.Context, c chain.Chain) (amount.Amount, error) {
	var total string
	err := s.db.NewSelect().
		Model((*dao.BalanceDao)(nil)).
		ColumnExpr("COALESCE(SUM(balance), 0)::text").
		Where("chain = ?", c.String()).
		Scan(ctx, &total)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to sum liabilities: %w", err)
	}
	return numeric(total), nil
}

func (s *pgStore) GetState(ctx context.Context, c chain.Chain) (*treasury.State, error) {
	row := new(dao.TreasuryStateDao)
	err := s.db.NewSelect().
		Model(row).
		Where("chain = ?", c.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to get treasury state: %w", err)
	}
	return toState(row), nil
}

func (s *pgStore) UpsertFigures(ctx context.Context, st *treasury.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_state (chain, total_onchain_balance, total_user_liabilities, sweepable_balance, locked, updated_at)
		VALUES (?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (chain) DO UPDATE SET
			total_onchain_balance = EXCLUDED.total_onchain_balance,
			total_user_liabilities = EXCLUDED.total_user_liabilities,
			sweepable_balance = EXCLUDED.sweepable_balance,
			updated_at = EXCLUDED.updated_at`,
		st.Chain.String(),
		st.TotalOnchainBalance.String(),
		st.TotalUserLiabilities.String(),
		st.SweepableBalance.String(),
		st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert treasury figures: %w", err)
	}
	return nil
}

// AcquireLock flips locked to true only if it was false. The row is created
// locked when the chain has never been synced.
func (s *pgStore) AcquireLock(ctx context.Context, c chain.Chain, by string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_state (chain, locked, locked_at, locked_by, updated_at)
		VALUES (?, TRUE, ?, ?, ?)
		ON CONFLICT (chain) DO UPDATE SET
			locked = TRUE,
			locked_at = EXCLUDED.locked_at,
			locked_by = EXCLUDED.locked_by,
			updated_at = EXCLUDED.updated_at
		WHERE treasury_state.locked = FALSE`,
		c.String(), at, by, at)
	if err != nil {
		return false, fmt.Errorf("failed to acquire treasury lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lock result: %w", err)
	}
	return n == 1, nil
}

func (s *pgStore) ReleaseLock(ctx context.Context, c chain.Chain) error {
	_, err := s.db.NewUpdate().
		Model((*dao.TreasuryStateDao)(nil)).
		Set("locked = FALSE").
		Set("locked_at = NULL").
		Set("locked_by = NULL").
		Set("updated_at = ?", s.now()).
		Where("chain = ?", c.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release treasury lock: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sweeps

func (s *pgStore) CreateSweep(ctx context.Context, sw *sweep.Sweep) error {
	now := s.now()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(toSweepDao(sw)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create sweep: %w", err)
	}
	return nil
}

func (s *pgStore) UpdateSweep(ctx context.Context, sw *sweep.Sweep) error {
	sw.UpdatedAt = s.now()
	res, err := s.db.NewUpdate().
		Model((*dao.SweepDao)(nil)).
		Set("status = ?", string(sw.Status)).
		Set("tx_hash = ?", optString(sw.TxHash)).
		Set("error = ?", optString(sw.Error)).
		Set("updated_at = ?", sw.UpdatedAt).
		Where("id = ?", sw.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update sweep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sweep.ErrSweepNotFound
	}
	return nil
}

func (s *pgStore) GetSweep(ctx context.Context, id string) (*sweep.Sweep, error) {
	row := new(dao.SweepDao)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sweep.ErrSweepNotFound
		}
		return nil, fmt.Errorf("failed to get sweep: %w", err)
	}
	return toSweep(row), nil
}

// ListSweeps returns the most recent sweeps of c, newest first.
func (s *pgStore) ListSweeps(ctx context.Context, c chain.Chain, limit int) ([]*sweep.Sweep, error) {
	var rows []dao.SweepDao
	q := s.db.NewSelect().
		Model(&rows).
		Where("chain = ?", c.String()).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}
	out := make([]*sweep.Sweep, len(rows))
	for i := range rows {
		out[i] = toSweep(&rows[i])
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Treasury journal

func (s *pgStore) EnsureAccounts(ctx context.Context, currency, network string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]dao.TreasuryAccountDao, len(names))
	for i, name := range names {
		rows[i] = dao.TreasuryAccountDao{Name: name, Currency: currency, Network: network}
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (name, currency, network) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure treasury accounts: %w", err)
	}
	return nil
}

func (s *pgStore) GetAccount(ctx context.Context, name, currency, network string) (*treasury.Account, error) {
	row := new(dao.TreasuryAccountDao)
	err := s.db.NewSelect().
		Model(row).
		Where("name = ?", name).
		Where("currency = ?", currency).
		Where("network = ?", network).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get treasury account: %w", err)
	}
	return toAccount(row), nil
}

func (s *pgStore) CreateLedger(ctx context.Context, l *treasury.Ledger) error {
	if _, err := s.db.NewInsert().Model(toLedgerDao(l)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create treasury ledger: %w", err)
	}
	return nil
}

func (s *pgStore) GetLedger(ctx context.Context, id string) (*treasury.Ledger, error) {
	row := new(dao.TreasuryLedgerDao)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("failed to get treasury ledger: %w", err)
	}
	return toLedger(row), nil
}

// lockOpenLedger row-locks ledger id and fails when it is already committed.
func lockOpenLedger(ctx context.Context, tx bun.Tx, id string) (*dao.TreasuryLedgerDao, error) {
	row := new(dao.TreasuryLedgerDao)
	err := tx.NewSelect().
		Model(row).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.ErrLedgerNotFound
		}
		return nil, err
	}
	if row.Locked {
		return nil, treasury.ErrLedgerLocked
	}
	return row, nil
}

func (s *pgStore) InsertEntry(ctx context.Context, e *treasury.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := lockOpenLedger(ctx, tx, e.LedgerID); err != nil {
			return err
		}
		row := toEntryDao(e)
		if _, err := tx.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert treasury entry: %w", err)
		}
		e.ID = row.ID
		return nil
	})
}

func (s *pgStore) ListLedgerEntries(ctx context.Context, ledgerID string) ([]treasury.Entry, error) {
	return listLedgerEntries(ctx, s.db, ledgerID)
}

func listLedgerEntries(ctx context.Context, db bun.IDB, ledgerID string) ([]treasury.Entry, error) {
	var rows []dao.TreasuryEntryDao
	err := db.NewSelect().
		Model(&rows).
		Where("ledger_id = ?", ledgerID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list treasury entries: %w", err)
	}
	out := make([]treasury.Entry, len(rows))
	for i := range rows {
		out[i] = toEntry(&rows[i])
	}
	return out, nil
}

func (s *pgStore) LockLedger(ctx context.Context, ledgerID string, at time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := lockOpenLedger(ctx, tx, ledgerID); err != nil {
			return err
		}
		entries, err := listLedgerEntries(ctx, tx, ledgerID)
		if err != nil {
			return err
		}
		if err := treasury.CheckBalanced(entries); err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*dao.TreasuryLedgerDao)(nil)).
			Set("locked = TRUE").
			Set("locked_at = ?", at).
			Where("id = ?", ledgerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock treasury ledger: %w", err)
		}
		return nil
	})
}

func (s *pgStore) UpdateEntry(ctx context.Context, e *treasury.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := lockOpenLedger(ctx, tx, e.LedgerID); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*dao.TreasuryEntryDao)(nil)).
			Set("account_id = ?", e.AccountID).
			Set("debit = ?", e.Debit.String()).
			Set("credit = ?", e.Credit.String()).
			Where("id = ?", e.ID).
			Where("ledger_id = ?", e.LedgerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update treasury entry: %w", err)
		}
		return nil
	})
}

func (s *pgStore) DeleteEntry(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(dao.TreasuryEntryDao)
		err := tx.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return treasury.ErrInvalidEntry
			}
			return fmt.Errorf("failed to load treasury entry: %w", err)
		}
		if _, err := lockOpenLedger(ctx, tx, row.LedgerID); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*dao.TreasuryEntryDao)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete treasury entry: %w", err)
		}
		return nil
	})
}

// DeleteLedger removes an unlocked ledger together with its entries.
func (s *pgStore) DeleteLedger(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := lockOpenLedger(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*dao.TreasuryEntryDao)(nil)).
			Where("ledger_id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete treasury entries: %w", err)
		}
		_, err = tx.NewDelete().
			Model((*dao.TreasuryLedgerDao)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete treasury ledger: %w", err)
		}
		return nil
	})
}
