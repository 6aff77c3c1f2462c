// Package dao holds the bun models of the custody database tables.
package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// WalletDao is a data access object that maps directly to the 'user_wallets' table in PostgreSQL.
type WalletDao struct {
	bun.BaseModel    `bun:"table:user_wallets,alias:uw"`
	ID               int64     `bun:"id,pk,autoincrement"`
	UserID           string    `bun:"user_id,notnull,type:varchar(128)"`
	Chain            string    `bun:"chain,notnull,type:varchar(16)"`
	DerivationIndex  int64     `bun:"derivation_index,notnull,use_zero"`
	Address          string    `bun:"address,notnull,type:varchar(128)"`
	LastKnownBalance string    `bun:"last_known_balance,notnull,type:numeric(78,0),default:0"`
	CreatedAt        time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// BalanceDao is a data access object that maps directly to the 'user_balances' table in PostgreSQL.
type BalanceDao struct {
	bun.BaseModel `bun:"table:user_balances,alias:ub"`
	UserID        string    `bun:"user_id,pk,type:varchar(128)"`
	Chain         string    `bun:"chain,pk,type:varchar(16)"`
	Balance       string    `bun:"balance,notnull,type:numeric(78,0),default:0"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// LedgerEntryDao is a data access object that maps directly to the 'ledger_entries' table in PostgreSQL.
type LedgerEntryDao struct {
	bun.BaseModel `bun:"table:ledger_entries,alias:le"`
	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        string    `bun:"user_id,notnull,type:varchar(128)"`
	Chain         string    `bun:"chain,notnull,type:varchar(16)"`
	Amount        string    `bun:"amount,notnull,type:numeric(78,0)"`
	Type          string    `bun:"type,notnull,type:varchar(16)"`
	ReferenceID   string    `bun:"reference_id,notnull,type:varchar(255)"`
	CreatedAt     time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
