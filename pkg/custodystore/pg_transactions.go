package custodystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore/dao"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
)

// RecordInbound inserts an INBOUND row keyed by (chain, direction, tx_hash).
// When the row already exists and tx is CONFIRMED, a non-terminal row is
// promoted instead.
func (s *pgStore) RecordInbound(ctx context.Context, tx *transaction.Tx) (bool, error) {
	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	written := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
		res, err := btx.NewInsert().
			Model(toTransactionDao(tx)).
			On("CONFLICT (chain, direction, tx_hash) WHERE tx_hash IS NOT NULL DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert inbound transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written = true
			return nil
		}
		if tx.Status != transaction.StatusConfirmed {
			return nil
		}

		q := btx.NewUpdate().
			Model((*dao.ChainTransactionDao)(nil)).
			Set("status = ?", string(transaction.StatusConfirmed)).
			Set("confirmed_at = ?", tx.ConfirmedAt).
			Set("updated_at = ?", now).
			Where("chain = ?", tx.Chain.String()).
			Where("direction = ?", string(chain.Inbound)).
			Where("tx_hash = ?", tx.TxHash).
			Where("status NOT IN (?)", bun.In([]string{
				string(transaction.StatusConfirmed),
				string(transaction.StatusFailed),
			}))
		if tx.BlockNumber != nil {
			q = q.Set("block_number = ?", int64(*tx.BlockNumber))
		}
		res, err = q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to promote inbound transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

func (s *pgStore) GetTransaction(ctx context.Context, id string) (*transaction.Tx, error) {
	row := new(dao.ChainTransactionDao)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return toTransaction(row), nil
}

// MarkBroadcasted attaches the hash to a PENDING row.
func (s *pgStore) MarkBroadcasted(ctx context.Context, txID, txHash string) error {
	res, err := s.db.NewUpdate().
		Model((*dao.ChainTransactionDao)(nil)).
		Set("tx_hash = ?", txHash).
		Set("status = ?", string(transaction.StatusBroadcasted)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", txID).
		Where("status = ?", string(transaction.StatusPending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark transaction broadcasted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

func (s *pgStore) MarkConfirmed(ctx context.Context, id string, blockNumber uint64, at time.Time) error {
	q := s.db.NewUpdate().
		Model((*dao.ChainTransactionDao)(nil)).
		Set("status = ?", string(transaction.StatusConfirmed)).
		Set("confirmed_at = ?", at).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("status <> ?", string(transaction.StatusFailed))
	if blockNumber > 0 {
		q = q.Set("block_number = ?", int64(blockNumber))
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark transaction confirmed: %w", err)
	}
	return nil
}

func (s *pgStore) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.NewUpdate().
		Model((*dao.ChainTransactionDao)(nil)).
		Set("status = ?", string(transaction.StatusFailed)).
		Set("error = ?", reason).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("status <> ?", string(transaction.StatusConfirmed)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return nil
}

// ListInFlight returns BROADCASTED rows, oldest first.
func (s *pgStore) ListInFlight(ctx context.Context, limit int) ([]*transaction.Tx, error) {
	var rows []dao.ChainTransactionDao
	q := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", string(transaction.StatusBroadcasted)).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list in-flight transactions: %w", err)
	}
	out := make([]*transaction.Tx, len(rows))
	for i := range rows {
		out[i] = toTransaction(&rows[i])
	}
	return out, nil
}

// GetCursor returns the saved scan cursor, or "" when the chain was never scanned.
func (s *pgStore) GetCursor(ctx context.Context, c chain.Chain) (string, error) {
	row := new(dao.ChainStateDao)
	err := s.db.NewSelect().
		Model(row).
		Where("chain = ?", c.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get scan cursor: %w", err)
	}
	return row.Cursor, nil
}

func (s *pgStore) SaveCursor(ctx context.Context, c chain.Chain, cursor string) error {
	row := &dao.ChainStateDao{
		Chain:     c.String(),
		Cursor:    cursor,
		UpdatedAt: s.now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (chain) DO UPDATE").
		Set("cursor = EXCLUDED.cursor").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save scan cursor: %w", err)
	}
	return nil
}
