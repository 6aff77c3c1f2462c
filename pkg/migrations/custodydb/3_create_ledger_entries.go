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
		log.Println("creating ledger_entries table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.LedgerEntryDao{}); err != nil {
			return err
		}
		_, err := db.NewCreateIndex().
			Model(&dao.LedgerEntryDao{}).
			Index("idx_ledger_entries_user_chain").
			Column("user_id", "chain").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		// Hash-referenced entries are unique. POLLING_DETECTED repeats by design
		// until reconciliation rewrites it.
		_, err = db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_reference
			ON ledger_entries (chain, user_id, type, reference_id)
			WHERE reference_id <> 'POLLING_DETECTED'`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger_entries table...")
		return mghelper.DropTables(ctx, db, &dao.LedgerEntryDao{})
	})
}
