package custodydb

import (
	"context"
	"log"

	"github.com/JPCompany544/arbix-sub001/pkg/custodystore/dao"
	mghelper "github.com/JPCompany544/arbix-sub001/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating chain_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.ChainTransactionDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.ChainTransactionDao{}, "status", "user_id"); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_chain_transactions_hash
			ON chain_transactions (chain, direction, tx_hash)
			WHERE tx_hash IS NOT NULL`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping chain_transactions table...")
		return mghelper.DropTables(ctx, db, &dao.ChainTransactionDao{})
	})
}
