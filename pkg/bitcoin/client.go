// Package bitcoin implements chain.Adapter for Bitcoin over an Esplora REST
// endpoint. Every user gets a BIP-84 native segwit address; withdrawals spend
// confirmed UTXOs of the source address with a fixed fee.
package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const (
	decimals = 8
	symbol   = "BTC"
)

// API is the subset of the Esplora REST API the adapter uses.
type API interface {
	Address(ctx context.Context, address string) (*AddressInfo, error)
	UTXOs(ctx context.Context, address string) ([]UTXO, error)
	TipHeight(ctx context.Context) (uint64, error)
	TxStatus(ctx context.Context, txid string) (*TxStatus, error)
	Tx(ctx context.Context, txid string) (*Tx, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// Keys derives the signing key for a derivation index.
type Keys interface {
	BitcoinKey(index uint32, params *chaincfg.Params) (*btcec.PrivateKey, error)
}

// Client is the Bitcoin adapter.
type Client struct {
	config *config.BitcoinConfig
	params *chaincfg.Params
	units  amount.Units
	api    API
	keys   Keys
	queue  *nonce.Queue
	logger *zap.Logger

	mu sync.Mutex
	// reserved holds outpoints spent by our own broadcasts that the API may
	// still list as unspent, keyed by source address.
	reserved map[string]map[wire.OutPoint]struct{}
	// change caches whether a transaction spends from an address, keyed by
	// txid and address. Its outputs back to that address are change.
	change map[string]bool
}

// maxChangeCache bounds the change cache; it is cleared when full.
const maxChangeCache = 10_000

// NetworkParams maps the configured network name to chain parameters.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", network)
}

// New creates an adapter talking to cfg.APIURL.
func New(cfg *config.BitcoinConfig, keys Keys, queue *nonce.Queue, logger *zap.Logger) (*Client, error) {
	return NewClient(cfg, NewEsplora(cfg.APIURL, cfg.RequestTimeout), keys, queue, logger)
}

// NewClient creates an adapter over an existing API client.
func NewClient(cfg *config.BitcoinConfig, api API, keys Keys, queue *nonce.Queue, logger *zap.Logger) (*Client, error) {
	params, err := NetworkParams(cfg.Network)
	if err != nil {
		return nil, err
	}
	return &Client{
		config:   cfg,
		params:   params,
		units:    amount.Units{Symbol: symbol, Decimals: decimals},
		api:      api,
		keys:     keys,
		queue:    queue,
		logger:   logger.With(zap.String("chain", chain.BTC.String())),
		reserved: make(map[string]map[wire.OutPoint]struct{}),
		change:   make(map[string]bool),
	}, nil
}

func (c *Client) Chain() chain.Chain      { return chain.BTC }
func (c *Client) Symbol() string          { return c.units.Symbol }
func (c *Client) Units() amount.Units     { return c.units }
func (c *Client) Mode() chain.AddressMode { return chain.ModeHD }

func (c *Client) ToSmallestUnit(human string) (amount.Amount, error) {
	return c.units.ToSmallest(human)
}

func (c *Client) ToHumanUnit(v amount.Amount) string { return c.units.ToHuman(v) }

// IsValidAddress accepts any address encoding valid on the configured network.
func (c *Client) IsValidAddress(s string) bool {
	_, err := c.decodeAddress(s)
	return err == nil
}

func (c *Client) decodeAddress(s string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(s, c.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", chain.ErrInvalidAddress, s, err)
	}
	if !addr.IsForNet(c.params) {
		return nil, fmt.Errorf("%w: %q is not a %s address", chain.ErrInvalidAddress, s, c.params.Name)
	}
	return addr, nil
}

// DeriveAddress returns the P2WPKH address at m/84'/coin'/0'/0/{index}.
func (c *Client) DeriveAddress(index uint32) (string, error) {
	addr, _, err := c.deriveKey(index)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (c *Client) deriveKey(index uint32) (*btcutil.AddressWitnessPubKeyHash, *btcec.PrivateKey, error) {
	key, err := c.keys.BitcoinKey(index, c.params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive key: %w", err)
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), c.params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build address: %w", err)
	}
	return addr, key, nil
}

// GetBalance returns the balance deposit detection may act on: confirmed
// funds minus incoming outputs still shallower than MinConfirmations. Change
// from the address's own spends counts at any depth, so a withdrawal never
// looks like a later deposit. Polling and scanning thus see a deposit at the
// same depth.
func (c *Client) GetBalance(ctx context.Context, address string) (amount.Amount, error) {
	if _, err := c.decodeAddress(address); err != nil {
		return amount.Zero(), err
	}
	info, err := c.api.Address(ctx, address)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to get balance: %w", err)
	}
	balance := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum

	utxos, err := c.api.UTXOs(ctx, address)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to list utxos: %w", err)
	}
	var tip uint64
	for _, u := range utxos {
		if !u.Status.Confirmed {
			continue
		}
		if tip == 0 {
			if tip, err = c.api.TipHeight(ctx); err != nil {
				return amount.Zero(), fmt.Errorf("failed to get tip height: %w", err)
			}
		}
		if depth(tip, u.Status.BlockHeight) >= c.config.MinConfirmations {
			continue
		}
		own, err := c.isChange(ctx, address, u.TxID)
		if err != nil {
			return amount.Zero(), err
		}
		if !own {
			balance -= u.Value
		}
	}
	if balance < 0 {
		balance = 0
	}
	return amount.FromInt64(balance), nil
}

// isChange reports whether txid spends from address, making its outputs to
// address change rather than deposits.
func (c *Client) isChange(ctx context.Context, address, txid string) (bool, error) {
	key := txid + ":" + address
	c.mu.Lock()
	own, ok := c.change[key]
	c.mu.Unlock()
	if ok {
		return own, nil
	}

	tx, err := c.api.Tx(ctx, txid)
	if err != nil {
		return false, fmt.Errorf("failed to get transaction %s: %w", txid, err)
	}
	own = tx.SpendsFrom(address)

	c.mu.Lock()
	if len(c.change) >= maxChangeCache {
		clear(c.change)
	}
	c.change[key] = own
	c.mu.Unlock()
	return own, nil
}

// EstimateFee returns the fixed per-transaction fee.
func (c *Client) EstimateFee(context.Context, chain.FeeRequest) (amount.Amount, error) {
	return amount.FromInt64(c.config.FeeSats), nil
}

// GetTransactionStatus reports a transaction confirmed once it is
// MinConfirmations deep.
func (c *Client) GetTransactionStatus(ctx context.Context, txid string, _ chain.Direction) (chain.TxStatus, error) {
	st, err := c.api.TxStatus(ctx, txid)
	if errors.Is(err, errNotFound) {
		return chain.TxStatus{State: chain.TxNotFound}, nil
	}
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("failed to get transaction status: %w", err)
	}
	if !st.Confirmed {
		return chain.TxStatus{State: chain.TxPending}, nil
	}

	tip, err := c.api.TipHeight(ctx)
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("failed to get tip height: %w", err)
	}
	confirmations := depth(tip, st.BlockHeight)
	state := chain.TxPending
	if confirmations >= c.config.MinConfirmations {
		state = chain.TxConfirmed
	}
	return chain.TxStatus{State: state, BlockNumber: st.BlockHeight, Confirmations: confirmations}, nil
}

// Scan reports mined outputs paying watched addresses. Outputs of one
// transaction to the same address are summed into one deposit keyed by txid.
// The cursor is informational: Esplora lists current UTXOs, not history.
func (c *Client) Scan(ctx context.Context, req chain.ScanRequest) (chain.ScanResult, error) {
	if len(req.Addresses) == 0 {
		return chain.ScanResult{Cursor: req.Cursor}, nil
	}
	tip, err := c.api.TipHeight(ctx)
	if err != nil {
		return chain.ScanResult{}, fmt.Errorf("failed to get tip height: %w", err)
	}

	var deposits []chain.Deposit
	for _, address := range req.Addresses {
		utxos, err := c.api.UTXOs(ctx, address)
		if err != nil {
			return chain.ScanResult{}, fmt.Errorf("failed to list utxos of %s: %w", address, err)
		}
		found, err := c.collect(ctx, address, tip, utxos)
		if err != nil {
			return chain.ScanResult{}, err
		}
		deposits = append(deposits, found...)
	}

	c.logger.Debug("Scanned addresses",
		zap.Int("addresses", len(req.Addresses)),
		zap.Uint64("tip", tip),
		zap.Int("deposits", len(deposits)))

	return chain.ScanResult{Deposits: deposits, Cursor: strconv.FormatUint(tip, 10)}, nil
}

// collect turns confirmed UTXOs into deposits. Change outputs of the
// address's own spends are skipped.
func (c *Client) collect(ctx context.Context, address string, tip uint64, utxos []UTXO) ([]chain.Deposit, error) {
	index := make(map[string]int)
	var out []chain.Deposit
	for _, u := range utxos {
		if !u.Status.Confirmed {
			continue
		}
		if i, ok := index[u.TxID]; ok {
			out[i].Amount = out[i].Amount.Add(amount.FromInt64(u.Value))
			continue
		}
		own, err := c.isChange(ctx, address, u.TxID)
		if err != nil {
			return nil, err
		}
		if own {
			continue
		}
		index[u.TxID] = len(out)
		out = append(out, chain.Deposit{
			TxHash:      u.TxID,
			To:          address,
			Amount:      amount.FromInt64(u.Value),
			BlockNumber: u.Status.BlockHeight,
			Timestamp:   blockTime(u.Status.BlockTime),
			Confirmed:   depth(tip, u.Status.BlockHeight) >= c.config.MinConfirmations,
		})
	}
	return out, nil
}

// depth is the number of blocks from height to tip inclusive.
func depth(tip, height uint64) uint64 {
	if height == 0 || height > tip {
		return 0
	}
	return tip - height + 1
}

var _ chain.Adapter = (*Client)(nil)
