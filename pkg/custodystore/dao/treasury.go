package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TreasuryStateDao is a data access object that maps directly to the 'treasury_state' table in PostgreSQL.
type TreasuryStateDao struct {
	bun.BaseModel        `bun:"table:treasury_state,alias:ts"`
	Chain                string     `bun:"chain,pk,type:varchar(16)"`
	TotalOnchainBalance  string     `bun:"total_onchain_balance,notnull,type:numeric(78,0),default:0"`
	TotalUserLiabilities string     `bun:"total_user_liabilities,notnull,type:numeric(78,0),default:0"`
	SweepableBalance     string     `bun:"sweepable_balance,notnull,type:numeric(78,0),default:0"`
	Locked               bool       `bun:"locked,notnull,use_zero,default:false"`
	LockedAt             *time.Time `bun:"locked_at"`
	LockedBy             *string    `bun:"locked_by,type:varchar(128)"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// SweepDao is a data access object that maps directly to the 'sweeps' table in PostgreSQL.
type SweepDao struct {
	bun.BaseModel `bun:"table:sweeps,alias:sw"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	Chain         string    `bun:"chain,notnull,type:varchar(16)"`
	Amount        string    `bun:"amount,notnull,type:varchar(100)"`
	AmountRaw     string    `bun:"amount_raw,notnull,type:numeric(78,0)"`
	FromWallet    string    `bun:"from_wallet,notnull,type:varchar(128)"`
	ToWallet      string    `bun:"to_wallet,notnull,type:varchar(128)"`
	TxHash        *string   `bun:"tx_hash,type:varchar(128)"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	InitiatedBy   string    `bun:"initiated_by,notnull,type:varchar(128)"`
	Error         *string   `bun:"error,type:text"`
	CreatedAt     time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// TreasuryAccountDao is a data access object that maps directly to the 'treasury_accounts' table in PostgreSQL.
type TreasuryAccountDao struct {
	bun.BaseModel `bun:"table:treasury_accounts,alias:ta"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name,notnull,type:varchar(64)"`
	Currency      string `bun:"currency,notnull,type:varchar(16)"`
	Network       string `bun:"network,notnull,type:varchar(16)"`
}

// TreasuryLedgerDao is a data access object that maps directly to the 'treasury_ledgers' table in PostgreSQL.
type TreasuryLedgerDao struct {
	bun.BaseModel `bun:"table:treasury_ledgers,alias:tl"`
	ID            string     `bun:"id,pk,type:varchar(36)"`
	Reference     string     `bun:"reference,notnull,type:varchar(255)"`
	Description   string     `bun:"description,notnull,type:text"`
	Locked        bool       `bun:"locked,notnull,use_zero,default:false"`
	CreatedAt     time.Time  `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	LockedAt      *time.Time `bun:"locked_at"`
}

// TreasuryEntryDao is a data access object that maps directly to the 'treasury_entries' table in PostgreSQL.
type TreasuryEntryDao struct {
	bun.BaseModel `bun:"table:treasury_entries,alias:te"`
	ID            int64     `bun:"id,pk,autoincrement"`
	LedgerID      string    `bun:"ledger_id,notnull,type:varchar(36)"`
	AccountID     int64     `bun:"account_id,notnull"`
	Debit         string    `bun:"debit,notnull,type:numeric(78,0),default:0"`
	Credit        string    `bun:"credit,notnull,type:numeric(78,0),default:0"`
	CreatedAt     time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
