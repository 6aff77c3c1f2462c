package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsTotal counts deposit detections by chain, detection path and outcome
	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_deposits_total",
			Help: "Total number of deposit detections",
		},
		[]string{"chain", "path", "outcome"},
	)

	// DepositPassDuration tracks the duration of one detection pass
	DepositPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custody_deposit_pass_duration_seconds",
			Help:    "Deposit detection pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// WithdrawalsTotal counts withdrawals by chain and status
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_withdrawals_total",
			Help: "Total number of withdrawals",
		},
		[]string{"chain", "status"},
	)

	// RefundsTotal counts compensating refunds of failed withdrawals
	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_refunds_total",
			Help: "Total number of withdrawal refunds",
		},
		[]string{"chain"},
	)

	// SweepsTotal counts sweeps by chain and status
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_sweeps_total",
			Help: "Total number of treasury sweeps",
		},
		[]string{"chain", "status"},
	)

	// TransactionsResolved counts in-flight transactions reaching a terminal state
	TransactionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_transactions_resolved_total",
			Help: "Total number of tracked transactions resolved",
		},
		[]string{"chain", "direction", "status"},
	)

	// InFlightTransactions tracks the number of unresolved transactions
	InFlightTransactions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_inflight_transactions",
			Help: "Number of broadcast transactions awaiting a terminal state",
		},
		[]string{"chain"},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// TreasuryOnchain tracks the on-chain reserve in smallest units
	TreasuryOnchain = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_treasury_onchain_balance",
			Help: "Total on-chain balance by chain in smallest units",
		},
		[]string{"chain"},
	)

	// TreasuryLiabilities tracks the sum of user balances in smallest units
	TreasuryLiabilities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_treasury_user_liabilities",
			Help: "Total user liabilities by chain in smallest units",
		},
		[]string{"chain"},
	)

	// TreasurySweepable tracks max(0, onchain - liabilities)
	TreasurySweepable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_treasury_sweepable_balance",
			Help: "Sweepable balance by chain in smallest units",
		},
		[]string{"chain"},
	)

	// LastScannedBlock tracks the scan cursor of block based chains
	LastScannedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_last_scanned_block",
			Help: "Last scanned block number by chain",
		},
		[]string{"chain"},
	)

	// EventsPublished counts domain events by type and outcome
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"type", "status"},
	)
)
