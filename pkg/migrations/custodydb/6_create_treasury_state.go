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
		log.Println("creating treasury_state table...")
		return mghelper.CreateSchema(ctx, db, &dao.TreasuryStateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping treasury_state table...")
		return mghelper.DropTables(ctx, db, &dao.TreasuryStateDao{})
	})
}
