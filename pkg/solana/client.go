// Package solana implements chain.Adapter for Solana native SOL transfers.
package solana

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const (
	decimals = 9
	symbol   = "SOL"

	// signatureFee is the base fee of a single-signature transaction.
	signatureFee = 5000

	// maxAccountsPerCall is the getMultipleAccounts request limit.
	maxAccountsPerCall = 100
)

// RPC is the subset of rpc.Client the adapter uses.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	Close() error
}

// Keys derives the signing key for a derivation index.
type Keys interface {
	SolanaKey(index uint32) (ed25519.PrivateKey, error)
}

// Client is the Solana adapter.
type Client struct {
	config *config.SolanaConfig
	units  amount.Units
	rpc    RPC
	keys   Keys
	queue  *nonce.Queue
	logger *zap.Logger
}

// New creates an adapter talking to cfg.RPCURL.
func New(cfg *config.SolanaConfig, keys Keys, queue *nonce.Queue, logger *zap.Logger) *Client {
	return NewClient(cfg, rpc.New(cfg.RPCURL), keys, queue, logger)
}

// NewClient creates an adapter over an existing RPC client.
func NewClient(cfg *config.SolanaConfig, client RPC, keys Keys, queue *nonce.Queue, logger *zap.Logger) *Client {
	return &Client{
		config: cfg,
		units:  amount.Units{Symbol: symbol, Decimals: decimals},
		rpc:    client,
		keys:   keys,
		queue:  queue,
		logger: logger.With(zap.String("chain", chain.SOL.String())),
	}
}

// Close closes the RPC client
func (c *Client) Close() {
	if err := c.rpc.Close(); err != nil {
		c.logger.Warn("Failed to close rpc client", zap.Error(err))
	}
}

func (c *Client) Chain() chain.Chain      { return chain.SOL }
func (c *Client) Symbol() string          { return c.units.Symbol }
func (c *Client) Units() amount.Units     { return c.units }
func (c *Client) Mode() chain.AddressMode { return chain.ModeHD }

func (c *Client) ToSmallestUnit(human string) (amount.Amount, error) {
	return c.units.ToSmallest(human)
}

func (c *Client) ToHumanUnit(v amount.Amount) string { return c.units.ToHuman(v) }

func (c *Client) IsValidAddress(s string) bool {
	_, err := parseKey(s)
	return err == nil
}

func parseKey(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q: %v", chain.ErrInvalidAddress, s, err)
	}
	return pk, nil
}

// DeriveAddress returns the base58 public key at m/44'/501'/{index}'/0'.
func (c *Client) DeriveAddress(index uint32) (string, error) {
	key, err := c.signer(index)
	if err != nil {
		return "", err
	}
	return key.PublicKey().String(), nil
}

func (c *Client) signer(index uint32) (solana.PrivateKey, error) {
	key, err := c.keys.SolanaKey(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return solana.PrivateKey(key), nil
}

// GetBalance returns the finalized lamport balance of address.
func (c *Client) GetBalance(ctx context.Context, address string) (amount.Amount, error) {
	pk, err := parseKey(address)
	if err != nil {
		return amount.Zero(), err
	}
	res, err := c.rpc.GetBalance(ctx, pk, rpc.CommitmentFinalized)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to get balance: %w", classify(err))
	}
	return amount.FromUint64(res.Value), nil
}

// GetBalances reads many balances with getMultipleAccounts. Accounts that do
// not exist yet report zero.
func (c *Client) GetBalances(ctx context.Context, addresses []string) (map[string]amount.Amount, error) {
	out := make(map[string]amount.Amount, len(addresses))
	for start := 0; start < len(addresses); start += maxAccountsPerCall {
		end := min(start+maxAccountsPerCall, len(addresses))
		batch := addresses[start:end]

		keys := make([]solana.PublicKey, len(batch))
		for i, a := range batch {
			pk, err := parseKey(a)
			if err != nil {
				return nil, err
			}
			keys[i] = pk
		}

		res, err := c.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentFinalized,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get accounts: %w", classify(err))
		}
		if len(res.Value) != len(batch) {
			return nil, fmt.Errorf("getMultipleAccounts returned %d accounts for %d keys", len(res.Value), len(batch))
		}
		for i, acct := range res.Value {
			if acct == nil {
				out[batch[i]] = amount.Zero()
				continue
			}
			out[batch[i]] = amount.FromUint64(acct.Lamports)
		}
	}
	return out, nil
}

// EstimateFee returns the base fee of a one-signature transfer.
func (c *Client) EstimateFee(context.Context, chain.FeeRequest) (amount.Amount, error) {
	return amount.FromUint64(signatureFee), nil
}

// classify maps RPC rate limiting to chain.ErrRateLimited.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") {
		return fmt.Errorf("%w: %v", chain.ErrRateLimited, err)
	}
	return err
}

var (
	_ chain.Adapter        = (*Client)(nil)
	_ chain.BalanceBatcher = (*Client)(nil)
)
