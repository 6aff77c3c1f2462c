// Package chaintest provides an in-memory chain.Adapter for exercising the
// custody services without a node.
package chaintest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// SharedAddress is the system address a shared-mode fake returns for every index.
const SharedAddress = "rSharedHotWallet"

var decimalsByChain = map[chain.Chain]int32{
	chain.ETH: 18,
	chain.BSC: 18,
	chain.BTC: 8,
	chain.SOL: 9,
	chain.XRP: 6,
}

// Adapter is a programmable fake. Balances move when Send succeeds.
type Adapter struct {
	mu sync.Mutex

	chain chain.Chain
	units amount.Units
	mode  chain.AddressMode

	balances   map[string]amount.Amount
	statuses   map[string]chain.TxStatus
	deposits   []chain.Deposit
	sent       []chain.SendRequest
	fee        amount.Amount
	seq        int
	scanCursor string

	BalanceErr   error
	BalanceDelay time.Duration
	SendErr      error
	ScanErr      error
	StatusErr    error

	// SendLost makes Send apply the transfer but report it with an error
	// wrapping chain.ErrBroadcastUnknown, as a lost node reply would.
	SendLost error
}

// NewAdapter returns a fake for c. XRP fakes run in shared-address mode.
func NewAdapter(c chain.Chain) *Adapter {
	mode := chain.ModeHD
	if c == chain.XRP {
		mode = chain.ModeShared
	}
	return &Adapter{
		chain:    c,
		units:    amount.Units{Symbol: string(c), Decimals: decimalsByChain[c]},
		mode:     mode,
		balances: make(map[string]amount.Amount),
		statuses: make(map[string]chain.TxStatus),
	}
}

func (a *Adapter) Chain() chain.Chain { return a.chain }
func (a *Adapter) Symbol() string { return a.units.Symbol }
func (a *Adapter) Units() amount.Units { return a.units }
func (a *Adapter) Mode() chain.AddressMode { return a.mode }
func (a *Adapter) IsValidAddress(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t")
}

func (a *Adapter) DeriveAddress(index uint32) (string, error) {
	if a.mode == chain.ModeShared {
		return SharedAddress, nil
	}
	return fmt.Sprintf("%s-addr-%d", strings.ToLower(string(a.chain)), index), nil
}

func (a *Adapter) ToSmallestUnit(human string) (amount.Amount, error) {
	return a.units.ToSmallest(human)
}

func (a *Adapter) ToHumanUnit(v amount.Amount) string { return a.units.ToHuman(v) }

// SetBalance sets the live balance reported for address.
func (a *Adapter) SetBalance(address string, v amount.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[address] = v
}

// SetFee sets the fee EstimateFee reports.
func (a *Adapter) SetFee(v amount.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fee = v
}

// SetStatus sets the status reported for txHash.
func (a *Adapter) SetStatus(txHash string, s chain.TxStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[txHash] = s
}

// QueueDeposits makes the next Scan report deps.
func (a *Adapter) QueueDeposits(deps ...chain.Deposit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits = append(a.deposits, deps...)
}

// SetScanCursor sets the cursor Scan returns.
func (a *Adapter) SetScanCursor(c string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanCursor = c
}

// Sent returns the requests that were broadcast.
func (a *Adapter) Sent() []chain.SendRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chain.SendRequest, len(a.sent))
	copy(out, a.sent)
	return out
}

func (a *Adapter) GetBalance(ctx context.Context, address string) (amount.Amount, error) {
	if a.BalanceDelay > 0 {
		select {
		case <-ctx.Done():
			return amount.Zero(), ctx.Err()
		case <-time.After(a.BalanceDelay):
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.BalanceErr != nil {
		return amount.Zero(), a.BalanceErr
	}
	return a.balances[address], nil
}

func (a *Adapter) EstimateFee(context.Context, chain.FeeRequest) (amount.Amount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fee, nil
}

func (a *Adapter) Send(_ context.Context, req chain.SendRequest) (string, error) {
	from, _ := a.DeriveAddress(req.FromIndex)
	if req.ExpectedFrom != "" && req.ExpectedFrom != from {
		return "", chain.ErrDerivationMismatch
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return "", a.SendErr
	}
	bal := a.balances[from]
	if bal.Cmp(req.Value.Add(a.fee)) < 0 {
		return "", chain.ErrInsufficientFunds
	}
	a.balances[from] = bal.Sub(req.Value).Sub(a.fee)
	a.balances[req.To] = a.balances[req.To].Add(req.Value)
	a.sent = append(a.sent, req)
	a.seq++
	hash := fmt.Sprintf("%s-tx-%d", strings.ToLower(string(a.chain)), a.seq)
	if a.SendLost != nil {
		return hash, fmt.Errorf("%w: %w", chain.ErrBroadcastUnknown, a.SendLost)
	}
	return hash, nil
}

func (a *Adapter) GetTransactionStatus(_ context.Context, txHash string, _ chain.Direction) (chain.TxStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.StatusErr != nil {
		return chain.TxStatus{}, a.StatusErr
	}
	s, ok := a.statuses[txHash]
	if !ok {
		return chain.TxStatus{State: chain.TxPending}, nil
	}
	return s, nil
}

func (a *Adapter) Scan(_ context.Context, req chain.ScanRequest) (chain.ScanResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ScanErr != nil {
		return chain.ScanResult{}, a.ScanErr
	}
	deps := a.deposits
	a.deposits = nil
	cursor := a.scanCursor
	if cursor == "" {
		cursor = req.Cursor
	}
	return chain.ScanResult{Deposits: deps, Cursor: cursor}, nil
}

var _ chain.Adapter = (*Adapter)(nil)
