// Package ethereum implements chain.Adapter for EVM-family networks. ETH and
// BSC are two instances of the same Client, parameterized by chain id, RPC
// endpoint and symbol.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const decimals = 18

// RPC is the subset of ethclient.Client the adapter uses.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Keys derives the signing key for a derivation index.
type Keys interface {
	EVMKey(index uint32) (*ecdsa.PrivateKey, error)
}

// Client represents an EVM chain adapter
type Client struct {
	chain  chain.Chain
	config *config.EVMConfig
	units  amount.Units
	rpc    RPC
	keys   Keys
	queue  *nonce.Queue
	nonces *nonce.Manager
	logger *zap.Logger
}

// Dial connects to the chain's RPC endpoint and checks that it serves the
// configured chain id.
func Dial(
	ctx context.Context,
	c chain.Chain,
	cfg *config.EVMConfig,
	keys Keys,
	queue *nonce.Queue,
	nonces *nonce.Manager,
	logger *zap.Logger,
) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", c, err)
	}

	client := NewClient(c, cfg, rpc, keys, queue, nonces, logger)
	if _, err := client.verifyChainID(ctx); err != nil {
		rpc.Close()
		return nil, err
	}

	logger.Info("Connected to EVM chain",
		zap.String("chain", c.String()),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL))

	return client, nil
}

// NewClient creates an adapter over an existing RPC connection
func NewClient(
	c chain.Chain,
	cfg *config.EVMConfig,
	rpc RPC,
	keys Keys,
	queue *nonce.Queue,
	nonces *nonce.Manager,
	logger *zap.Logger,
) *Client {
	symbol := cfg.Symbol
	if symbol == "" {
		symbol = c.String()
	}
	return &Client{
		chain:  c,
		config: cfg,
		units:  amount.Units{Symbol: symbol, Decimals: decimals},
		rpc:    rpc,
		keys:   keys,
		queue:  queue,
		nonces: nonces,
		logger: logger.With(zap.String("chain", c.String())),
	}
}

// Close closes the RPC client
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) Chain() chain.Chain           { return c.chain }
func (c *Client) Symbol() string               { return c.units.Symbol }
func (c *Client) Units() amount.Units          { return c.units }
func (c *Client) Mode() chain.AddressMode      { return chain.ModeHD }
func (c *Client) IsValidAddress(s string) bool { return common.IsHexAddress(s) }

func (c *Client) ToSmallestUnit(human string) (amount.Amount, error) {
	return c.units.ToSmallest(human)
}

func (c *Client) ToHumanUnit(v amount.Amount) string { return c.units.ToHuman(v) }

// DeriveAddress returns the checksummed address at m/44'/60'/0'/0/{index}.
func (c *Client) DeriveAddress(index uint32) (string, error) {
	key, err := c.keys.EVMKey(index)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// GetBalance returns the latest balance of address in wei.
func (c *Client) GetBalance(ctx context.Context, address string) (amount.Amount, error) {
	if !common.IsHexAddress(address) {
		return amount.Zero(), fmt.Errorf("%w: %q", chain.ErrInvalidAddress, address)
	}
	bal, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to get balance: %w", classify(err))
	}
	return amount.FromBig(bal), nil
}

// GetLatestBlockNumber gets the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", classify(err))
	}
	return header.Number.Uint64(), nil
}

func (c *Client) verifyChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", classify(err))
	}
	if id.Cmp(big.NewInt(c.config.ChainID)) != 0 {
		return nil, fmt.Errorf("%w: want %d, node reports %s", chain.ErrChainIDMismatch, c.config.ChainID, id)
	}
	return id, nil
}

var _ chain.Adapter = (*Client)(nil)
