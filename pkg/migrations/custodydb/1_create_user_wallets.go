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
		log.Println("creating user_wallets table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.WalletDao{}); err != nil {
			return err
		}
		// One wallet per (user, chain) and one owner per derivation index.
		if err := mghelper.CreateUniqueIndex(ctx, db, "user_wallets", "idx_user_wallets_user_chain", "user_id", "chain"); err != nil {
			return err
		}
		if err := mghelper.CreateUniqueIndex(ctx, db, "user_wallets", "idx_user_wallets_chain_index", "chain", "derivation_index"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.WalletDao{}, "address"); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `
			ALTER TABLE user_wallets
			ADD CONSTRAINT chk_user_wallets_balance CHECK (last_known_balance >= 0)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping user_wallets table...")
		return mghelper.DropTables(ctx, db, &dao.WalletDao{})
	})
}
