// Package xrp implements chain.Adapter for the XRP Ledger with one shared hot
// wallet. Users are told apart by destination tag, not by address.
package xrp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const (
	decimals = 6
	symbol   = "XRP"

	// baseReserve is the balance an account must keep to exist.
	baseReserve = 1_000_000

	// accountTxLimit bounds one account_tx page.
	accountTxLimit = 200

	// submitTimeout bounds a submission detached from the caller.
	submitTimeout = 30 * time.Second

	// rippleEpoch is 2000-01-01T00:00:00Z in unix seconds.
	rippleEpoch = 946684800

	validatedLedger = "validated"
	currentLedger   = "current"
)

// RPC is the subset of the rippled JSON-RPC API the adapter uses.
type RPC interface {
	AccountInfo(ctx context.Context, account, ledger string) (*AccountInfo, error)
	LedgerCurrent(ctx context.Context) (uint32, error)
	AccountTx(ctx context.Context, account string, minLedger int64, limit int) (*AccountTx, error)
	Tx(ctx context.Context, hash string) (*TxResult, error)
	Submit(ctx context.Context, blob string) (*SubmitResult, error)
}

// Keys derives the signing key for a derivation index.
type Keys interface {
	XRPKey(index uint32) (*btcec.PrivateKey, error)
}

// Client is the XRP adapter.
type Client struct {
	config *config.XRPConfig
	units  amount.Units
	rpc    RPC
	keys   Keys
	queue  *nonce.Queue
	nonces *nonce.Manager
	logger *zap.Logger

	once    sync.Once
	shared  AccountID
	initErr error
}

// New creates an adapter talking to cfg.RPCURL.
func New(cfg *config.XRPConfig, keys Keys, queue *nonce.Queue, nonces *nonce.Manager, logger *zap.Logger) *Client {
	return NewClient(cfg, NewJSONRPC(cfg.RPCURL, cfg.RequestTimeout), keys, queue, nonces, logger)
}

// NewClient creates an adapter over an existing RPC client.
func NewClient(cfg *config.XRPConfig, rpc RPC, keys Keys, queue *nonce.Queue, nonces *nonce.Manager, logger *zap.Logger) *Client {
	return &Client{
		config: cfg,
		units:  amount.Units{Symbol: symbol, Decimals: decimals},
		rpc:    rpc,
		keys:   keys,
		queue:  queue,
		nonces: nonces,
		logger: logger.With(zap.String("chain", chain.XRP.String())),
	}
}

func (c *Client) Chain() chain.Chain      { return chain.XRP }
func (c *Client) Symbol() string          { return c.units.Symbol }
func (c *Client) Units() amount.Units     { return c.units }
func (c *Client) Mode() chain.AddressMode { return chain.ModeShared }

func (c *Client) ToSmallestUnit(human string) (amount.Amount, error) {
	return c.units.ToSmallest(human)
}

func (c *Client) ToHumanUnit(v amount.Amount) string { return c.units.ToHuman(v) }

func (c *Client) IsValidAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// sharedAccount derives the hot wallet account once.
func (c *Client) sharedAccount() (AccountID, error) {
	c.once.Do(func() {
		key, err := c.keys.XRPKey(chain.HotWalletIndex)
		if err != nil {
			c.initErr = fmt.Errorf("failed to derive key: %w", err)
			return
		}
		c.shared = AccountIDFromPublicKey(key.PubKey())
	})
	return c.shared, c.initErr
}

// DeriveAddress returns the shared hot wallet address for every index; the
// index itself becomes the user's destination tag.
func (c *Client) DeriveAddress(uint32) (string, error) {
	id, err := c.sharedAccount()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GetBalance returns the validated balance in drops. Unfunded accounts hold
// zero.
func (c *Client) GetBalance(ctx context.Context, address string) (amount.Amount, error) {
	if !c.IsValidAddress(address) {
		return amount.Zero(), fmt.Errorf("%w: %q", chain.ErrInvalidAddress, address)
	}
	info, err := c.rpc.AccountInfo(ctx, address, validatedLedger)
	if isRPCError(err, "actNotFound") {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to get account info: %w", err)
	}
	return amount.Parse(info.AccountData.Balance)
}

// EstimateFee returns the configured fee in drops.
func (c *Client) EstimateFee(context.Context, chain.FeeRequest) (amount.Amount, error) {
	return amount.FromInt64(c.config.FeeDrops), nil
}

// GetTransactionStatus reports validated transactions as confirmed or failed
// by their result code.
func (c *Client) GetTransactionStatus(ctx context.Context, hash string, _ chain.Direction) (chain.TxStatus, error) {
	res, err := c.rpc.Tx(ctx, hash)
	if isRPCError(err, "txnNotFound") {
		return chain.TxStatus{State: chain.TxNotFound}, nil
	}
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	if !res.Validated {
		return chain.TxStatus{State: chain.TxPending}, nil
	}

	st := chain.TxStatus{BlockNumber: uint64(res.LedgerIndex), Confirmations: 1}
	if res.Meta.TransactionResult == "tesSUCCESS" {
		st.State = chain.TxConfirmed
	} else {
		st.State = chain.TxFailed
	}
	return st, nil
}

// Scan reports validated, successful XRP payments to the shared address that
// carry a destination tag. The cursor is the last ledger index covered.
func (c *Client) Scan(ctx context.Context, req chain.ScanRequest) (chain.ScanResult, error) {
	shared, err := c.sharedAccount()
	if err != nil {
		return chain.ScanResult{}, err
	}
	address := shared.String()

	minLedger := int64(-1)
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		last, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return chain.ScanResult{}, fmt.Errorf("invalid XRP scan cursor %q: %w", cursor, err)
		}
		minLedger = last + 1
	}

	res, err := c.rpc.AccountTx(ctx, address, minLedger, accountTxLimit)
	if err != nil {
		return chain.ScanResult{}, fmt.Errorf("failed to list account transactions: %w", err)
	}

	var (
		deposits []chain.Deposit
		lastSeen int64
	)
	for _, entry := range res.Transactions {
		tx := entry.Transaction()
		if tx == nil {
			continue
		}
		lastSeen = max(lastSeen, int64(tx.LedgerIndex))
		if dep, ok := c.deposit(address, entry, tx); ok {
			deposits = append(deposits, dep)
		}
	}

	// With a marker more pages follow; resume after the last ledger seen.
	cursor := req.Cursor
	switch {
	case len(res.Marker) > 0 && string(res.Marker) != "null" && lastSeen > 0:
		cursor = strconv.FormatInt(lastSeen-1, 10)
	case res.LedgerIndexMax > 0:
		cursor = strconv.FormatInt(res.LedgerIndexMax, 10)
	}

	c.logger.Debug("Scanned account transactions",
		zap.Int64("from_ledger", minLedger),
		zap.String("cursor", cursor),
		zap.Int("transactions", len(res.Transactions)),
		zap.Int("deposits", len(deposits)))

	return chain.ScanResult{Deposits: deposits, Cursor: cursor}, nil
}

func (c *Client) deposit(address string, entry AccountTxEntry, tx *TxJSON) (chain.Deposit, bool) {
	if !entry.Validated || tx.TransactionType != "Payment" || tx.Destination != address {
		return chain.Deposit{}, false
	}
	if tx.DestinationTag == nil || entry.Meta.TransactionResult != "tesSUCCESS" {
		return chain.Deposit{}, false
	}

	// Issued currencies deliver an object; only drop strings are XRP.
	var drops string
	if err := json.Unmarshal(entry.Meta.DeliveredAmount, &drops); err != nil {
		return chain.Deposit{}, false
	}
	value, err := amount.Parse(drops)
	if err != nil || value.Sign() <= 0 {
		return chain.Deposit{}, false
	}

	tag := *tx.DestinationTag
	dep := chain.Deposit{
		TxHash:         tx.Hash,
		To:             address,
		DestinationTag: &tag,
		Amount:         value,
		BlockNumber:    uint64(tx.LedgerIndex),
		Confirmed:      true,
	}
	if tx.Date > 0 {
		dep.Timestamp = time.Unix(tx.Date+rippleEpoch, 0)
	}
	return dep, true
}

// Send signs a Payment from the shared hot wallet offline and submits it.
// Payments are serialized through the address queue; the account sequence is
// tracked by the nonce manager and reset after any failure.
func (c *Client) Send(ctx context.Context, req chain.SendRequest) (string, error) {
	dest, err := DecodeAddress(req.To)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chain.ErrInvalidAddress, err)
	}
	if req.Value.Sign() <= 0 || !req.Value.Big().IsUint64() {
		return "", fmt.Errorf("invalid transfer value %s", req.Value)
	}

	shared, err := c.sharedAccount()
	if err != nil {
		return "", err
	}
	from := shared.String()
	if req.ExpectedFrom != "" && req.ExpectedFrom != from {
		return "", fmt.Errorf("%w: hot wallet is %s, expected %s", chain.ErrDerivationMismatch, from, req.ExpectedFrom)
	}
	if dest == shared {
		return "", fmt.Errorf("%w: payment to the hot wallet itself", chain.ErrInvalidAddress)
	}

	key, err := c.keys.XRPKey(chain.HotWalletIndex)
	if err != nil {
		return "", fmt.Errorf("failed to derive signing key: %w", err)
	}

	seqKey := nonce.Key(chain.XRP.String(), from)
	return c.queue.Do(ctx, seqKey, func(ctx context.Context) (string, error) {
		hash, err := c.send(ctx, key, shared, dest, seqKey, req)
		if err != nil {
			c.nonces.Reset(seqKey)
		}
		return hash, err
	})
}

func (c *Client) send(
	ctx context.Context,
	key *btcec.PrivateKey,
	from, to AccountID,
	seqKey string,
	req chain.SendRequest,
) (string, error) {
	drops := req.Value.Big().Uint64()
	fee := uint64(c.config.FeeDrops)

	info, err := c.rpc.AccountInfo(ctx, from.String(), currentLedger)
	if err != nil {
		return "", fmt.Errorf("failed to get hot wallet info: %w", err)
	}
	balance, err := amount.Parse(info.AccountData.Balance)
	if err != nil {
		return "", fmt.Errorf("invalid hot wallet balance %q: %w", info.AccountData.Balance, err)
	}
	need := amount.FromUint64(drops + fee + baseReserve)
	if balance.Cmp(need) < 0 {
		return "", fmt.Errorf("%w: %s holds %s, payment needs %s including reserve",
			chain.ErrInsufficientFunds, from, c.units.Format(balance), c.units.Format(need))
	}

	seq, err := c.nonces.Next(ctx, seqKey, func(context.Context) (uint64, error) {
		return uint64(info.AccountData.Sequence), nil
	})
	if err != nil {
		return "", err
	}

	ledger := info.LedgerCurrentIndex
	if ledger == 0 {
		if ledger, err = c.rpc.LedgerCurrent(ctx); err != nil {
			return "", fmt.Errorf("failed to get current ledger: %w", err)
		}
	}

	payment := &Payment{
		Account:            from,
		Destination:        to,
		DestinationTag:     req.DestinationTag,
		Amount:             drops,
		Fee:                fee,
		Sequence:           uint32(seq),
		LastLedgerSequence: ledger + c.config.LedgerOffset,
	}
	if err := payment.Sign(key); err != nil {
		return "", fmt.Errorf("failed to sign payment: %w", err)
	}
	blob, err := payment.Blob()
	if err != nil {
		return "", err
	}
	hash, err := payment.Hash()
	if err != nil {
		return "", err
	}

	// The signed blob is final, so the caller's ctx no longer decides the
	// outcome of the submission.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	res, err := c.rpc.Submit(bctx, strings.ToUpper(hex.EncodeToString(blob)))
	if err != nil {
		submitErr := fmt.Errorf("failed to submit payment: %w", err)
		_, lookupErr := c.rpc.Tx(bctx, hash)
		switch {
		case isRPCError(lookupErr, "txnNotFound"):
			return "", submitErr
		case lookupErr != nil:
			c.logger.Warn("Submit failed and the node could not be asked about it",
				zap.String("tx_hash", hash),
				zap.NamedError("submit_error", err),
				zap.Error(lookupErr))
			return hash, fmt.Errorf("%w: %w", chain.ErrBroadcastUnknown, submitErr)
		}
		c.logger.Warn("Submit reported an error but the node holds the payment",
			zap.String("tx_hash", hash),
			zap.Error(err))
		return hash, nil
	}
	if !accepted(res.EngineResult) {
		return "", fmt.Errorf("payment rejected: %s: %s", res.EngineResult, res.EngineResultMessage)
	}
	if res.TxJSON.Hash != "" && !strings.EqualFold(res.TxJSON.Hash, hash) {
		c.logger.Warn("Node reports a different transaction hash",
			zap.String("local", hash),
			zap.String("node", res.TxJSON.Hash))
		hash = strings.ToUpper(res.TxJSON.Hash)
	}

	c.logger.Info("Payment submitted",
		zap.String("tx_hash", hash),
		zap.String("to", to.String()),
		zap.String("amount", c.units.Format(req.Value)),
		zap.Uint32("sequence", payment.Sequence),
		zap.String("engine_result", res.EngineResult))

	return hash, nil
}

// accepted reports whether a submit result means the payment was applied or
// queued for a later ledger.
func accepted(engineResult string) bool {
	switch engineResult {
	case "tesSUCCESS", "terQUEUED":
		return true
	}
	return false
}

var _ chain.Adapter = (*Client)(nil)
