package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ChainTransactionDao is a data access object that maps directly to the 'chain_transactions' table in PostgreSQL.
type ChainTransactionDao struct {
	bun.BaseModel `bun:"table:chain_transactions,alias:ct"`
	ID            string     `bun:"id,pk,type:varchar(36)"`
	UserID        string     `bun:"user_id,notnull,type:varchar(128)"`
	Chain         string     `bun:"chain,notnull,type:varchar(16)"`
	FromAddress   *string    `bun:"from_address,type:varchar(128)"`
	ToAddress     string     `bun:"to_address,notnull,type:varchar(128)"`
	Amount        string     `bun:"amount,notnull,type:numeric(78,0)"`
	TxHash        *string    `bun:"tx_hash,type:varchar(128)"`
	Status        string     `bun:"status,notnull,type:varchar(16)"`
	Direction     string     `bun:"direction,notnull,type:varchar(16)"`
	BlockNumber   *int64     `bun:"block_number"`
	ConfirmedAt   *time.Time `bun:"confirmed_at"`
	Error         *string    `bun:"error,type:text"`
	CreatedAt     time.Time  `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// ChainStateDao is a data access object that maps directly to the 'chain_state' table in PostgreSQL.
type ChainStateDao struct {
	bun.BaseModel `bun:"table:chain_state,alias:cs"`
	Chain         string    `bun:"chain,pk,type:varchar(16)"`
	Cursor        string    `bun:"cursor,notnull,type:varchar(255)"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}
