// Package events publishes custody domain events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// Event types.
const (
	DepositCredited     = "deposit.credited"
	DepositUpgraded     = "deposit.upgraded"
	WithdrawalBroadcast = "withdrawal.broadcast"
	WithdrawalConfirmed = "withdrawal.confirmed"
	WithdrawalRefunded  = "withdrawal.refunded"
	SweepCompleted      = "sweep.completed"
	SweepFailed         = "sweep.failed"
)

// Event is the JSON payload published for each domain event. Amounts are
// smallest-unit integers encoded as strings.
type Event struct {
	Type       string      `json:"type"`
	Chain      chain.Chain `json:"chain"`
	UserID     string      `json:"user_id,omitempty"`
	Amount     string      `json:"amount,omitempty"`
	TxHash     string      `json:"tx_hash,omitempty"`
	Reference  string      `json:"reference,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher delivers events. Failures are the publisher's to log; callers
// never fail a money movement because an event could not be sent.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
