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
		log.Println("creating treasury journal tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&dao.TreasuryAccountDao{},
			&dao.TreasuryLedgerDao{},
			&dao.TreasuryEntryDao{},
		); err != nil {
			return err
		}
		if err := mghelper.CreateUniqueIndex(ctx, db, "treasury_accounts", "idx_treasury_accounts_name_currency_network",
			"name", "currency", "network"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.TreasuryLedgerDao{}, "reference"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.TreasuryEntryDao{}, "ledger_id", "account_id"); err != nil {
			return err
		}

		for _, stmt := range treasuryConstraints {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping treasury journal tables...")
		for _, fn := range []string{"treasury_entries_immutable", "treasury_ledgers_immutable"} {
			if _, err := db.ExecContext(ctx, "DROP FUNCTION IF EXISTS "+fn+"() CASCADE"); err != nil {
				return err
			}
		}
		return mghelper.DropTables(ctx, db,
			&dao.TreasuryEntryDao{},
			&dao.TreasuryLedgerDao{},
			&dao.TreasuryAccountDao{},
		)
	})
}

var treasuryConstraints = []string{
	`ALTER TABLE treasury_entries
		ADD CONSTRAINT fk_treasury_entries_ledger FOREIGN KEY (ledger_id) REFERENCES treasury_ledgers (id),
		ADD CONSTRAINT fk_treasury_entries_account FOREIGN KEY (account_id) REFERENCES treasury_accounts (id),
		ADD CONSTRAINT chk_treasury_entries_non_negative CHECK (debit >= 0 AND credit >= 0),
		ADD CONSTRAINT chk_treasury_entries_one_side CHECK ((debit > 0) <> (credit > 0))`,

	// Entries of a locked ledger can be neither added, changed nor removed.
	`CREATE OR REPLACE FUNCTION treasury_entries_immutable() RETURNS trigger AS $$
	DECLARE
		target VARCHAR(36);
	BEGIN
		IF TG_OP = 'INSERT' THEN
			target := NEW.ledger_id;
		ELSE
			target := OLD.ledger_id;
		END IF;
		IF EXISTS (SELECT 1 FROM treasury_ledgers WHERE id = target AND locked) THEN
			RAISE EXCEPTION 'treasury ledger % is locked', target;
		END IF;
		IF TG_OP = 'DELETE' THEN
			RETURN OLD;
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE TRIGGER treasury_entries_immutable
		BEFORE INSERT OR UPDATE OR DELETE ON treasury_entries
		FOR EACH ROW EXECUTE FUNCTION treasury_entries_immutable()`,

	// A locked ledger row is frozen; locking itself is the last allowed update.
	`CREATE OR REPLACE FUNCTION treasury_ledgers_immutable() RETURNS trigger AS $$
	BEGIN
		IF OLD.locked THEN
			RAISE EXCEPTION 'treasury ledger % is locked', OLD.id;
		END IF;
		IF TG_OP = 'DELETE' THEN
			RETURN OLD;
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE TRIGGER treasury_ledgers_immutable
		BEFORE UPDATE OR DELETE ON treasury_ledgers
		FOR EACH ROW EXECUTE FUNCTION treasury_ledgers_immutable()`,
}
