// Package chain defines the uniform contract every supported blockchain
// implements and the types that cross it.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
)

// Chain identifies a supported network.
type Chain string

const (
	ETH Chain = "ETH"
	BSC Chain = "BSC"
	BTC Chain = "BTC"
	SOL Chain = "SOL"
	XRP Chain = "XRP"
)

// All lists every chain the engine knows about, in a stable order.
func All() []Chain {
	return []Chain{ETH, BSC, BTC, SOL, XRP}
}

// Parse resolves a case-insensitive chain identifier.
func Parse(s string) (Chain, error) {
	c := Chain(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported chain %q", s)
	}
	return c, nil
}

// Valid reports whether c is a known chain.
func (c Chain) Valid() bool {
	switch c {
	case ETH, BSC, BTC, SOL, XRP:
		return true
	}
	return false
}

func (c Chain) String() string { return string(c) }

// IsEVM reports whether c belongs to the EVM family.
func (c Chain) IsEVM() bool { return c == ETH || c == BSC }

// AddressMode describes how deposit addresses are assigned on a chain.
type AddressMode int

const (
	// ModeHD gives every user a distinct derived address.
	ModeHD AddressMode = iota
	// ModeShared routes every user to one system address, told apart by a destination tag.
	ModeShared
)

func (m AddressMode) String() string {
	if m == ModeShared {
		return "shared"
	}
	return "hd"
}

// HotWalletIndex is the derivation index reserved for the system hot wallet
// on every chain. User allocation starts above it.
const HotWalletIndex uint32 = 0

// Direction of a chain transaction relative to the custody engine.
type Direction string

const (
	Inbound  Direction = "INBOUND"
	Outbound Direction = "OUTBOUND"
)

// TxState is the on-chain lifecycle state reported by an adapter.
type TxState string

const (
	TxPending   TxState = "PENDING"
	TxConfirmed TxState = "CONFIRMED"
	TxFailed    TxState = "FAILED"
	TxNotFound  TxState = "NOT_FOUND"
)

// TxStatus is the result of a status query.
type TxStatus struct {
	State         TxState
	BlockNumber   uint64
	Confirmations uint64
}

// Included reports whether the transaction is in a block, however shallow.
func (s TxStatus) Included() bool {
	return s.BlockNumber > 0 || s.Confirmations > 0
}

// SendRequest asks an adapter to sign and broadcast a native-asset transfer
// from the key at FromIndex.
type SendRequest struct {
	FromIndex uint32
	// ExpectedFrom, when set, must equal the address derived for FromIndex.
	ExpectedFrom   string
	To             string
	Value          amount.Amount
	DestinationTag *uint32
}

// FeeRequest describes a prospective transfer for fee estimation.
type FeeRequest struct {
	From  string
	To    string
	Value amount.Amount
}

// Deposit is an inbound transfer found by scanning.
type Deposit struct {
	TxHash         string
	To             string
	DestinationTag *uint32
	Amount         amount.Amount
	BlockNumber    uint64
	Timestamp      time.Time
	Confirmed      bool
}

// ScanRequest lists what a scanning pass watches for.
type ScanRequest struct {
	Addresses []string
	Cursor    string
}

// ScanResult is the outcome of one scanning pass.
type ScanResult struct {
	Deposits []Deposit
	// Cursor is the position to resume from; empty keeps the previous one.
	Cursor string
}

// Adapter is the uniform contract over one blockchain.
//
// Implementations never expose private key material: keys are derived on
// demand inside Send and discarded afterwards.
type Adapter interface {
	Chain() Chain
	Symbol() string
	Units() amount.Units
	Mode() AddressMode

	// DeriveAddress returns the address for a derivation index. Shared-address
	// chains return the system address for every index.
	DeriveAddress(index uint32) (string, error)
	GetBalance(ctx context.Context, address string) (amount.Amount, error)
	EstimateFee(ctx context.Context, req FeeRequest) (amount.Amount, error)
	// Send signs and broadcasts a transfer and returns its hash. Once the
	// transaction is handed to the node, cancelling ctx no longer affects the
	// outcome. When the node may hold the transaction but its answer was lost,
	// Send returns the hash together with an error wrapping ErrBroadcastUnknown.
	Send(ctx context.Context, req SendRequest) (string, error)
	IsValidAddress(address string) bool
	ToSmallestUnit(human string) (amount.Amount, error)
	ToHumanUnit(a amount.Amount) string
	GetTransactionStatus(ctx context.Context, txHash string, direction Direction) (TxStatus, error)
	Scan(ctx context.Context, req ScanRequest) (ScanResult, error)
}

// BalanceBatcher is implemented by adapters that can read many balances in one call.
type BalanceBatcher interface {
	GetBalances(ctx context.Context, addresses []string) (map[string]amount.Amount, error)
}

var (
	ErrInsufficientFunds  = errors.New("insufficient on-chain funds")
	ErrChainIDMismatch    = errors.New("connected node reports an unexpected chain id")
	ErrDerivationMismatch = errors.New("derived signer address does not match the expected source")
	ErrNotBroadcast       = errors.New("transaction not visible on node after broadcast")
	ErrBroadcastUnknown   = errors.New("broadcast outcome unknown")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrRateLimited        = errors.New("rpc rate limited")
	ErrUnsupportedChain   = errors.New("chain not enabled")
)

// MaybeBroadcast reports whether a Send result may have put a transaction on
// the wire. Only a false result makes it safe to undo the transfer's debit.
func MaybeBroadcast(hash string, err error) bool {
	return err == nil || (hash != "" && errors.Is(err, ErrBroadcastUnknown))
}

// Registry maps chains to their configured adapters.
type Registry struct {
	adapters map[Chain]Adapter
	order    []Chain
}

// NewRegistry builds a registry from adapters, keyed by their Chain().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Chain]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Chain()]; !dup {
			r.order = append(r.order, a.Chain())
		}
		r.adapters[a.Chain()] = a
	}
	return r
}

// Get returns the adapter for c or ErrUnsupportedChain.
func (r *Registry) Get(c Chain) (Adapter, error) {
	a, ok := r.adapters[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	return a, nil
}

// Chains returns the registered chains in registration order.
func (r *Registry) Chains() []Chain {
	out := make([]Chain, len(r.order))
	copy(out, r.order)
	return out
}
