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
		log.Println("creating user_balances table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.BalanceDao{}); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `
			ALTER TABLE user_balances
			ADD CONSTRAINT chk_user_balances_non_negative CHECK (balance >= 0)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping user_balances table...")
		return mghelper.DropTables(ctx, db, &dao.BalanceDao{})
	})
}
