package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

// broadcastTimeout bounds the detached broadcast and visibility check.
const broadcastTimeout = 30 * time.Second

// Send signs and broadcasts a native transfer from the key at req.FromIndex.
// Sends from one address run one at a time through the address queue, so
// nonces are handed out without gaps or repeats.
func (c *Client) Send(ctx context.Context, req chain.SendRequest) (string, error) {
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("%w: %q", chain.ErrInvalidAddress, req.To)
	}
	if req.Value.Sign() <= 0 {
		return "", fmt.Errorf("transfer value must be positive, got %s", req.Value)
	}

	key, err := c.keys.EVMKey(req.FromIndex)
	if err != nil {
		return "", fmt.Errorf("failed to derive signing key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	if req.ExpectedFrom != "" && !strings.EqualFold(req.ExpectedFrom, from.Hex()) {
		return "", fmt.Errorf("%w: index %d derives %s, expected %s",
			chain.ErrDerivationMismatch, req.FromIndex, from.Hex(), req.ExpectedFrom)
	}

	nonceKey := nonce.Key(c.chain.String(), from.Hex())
	return c.queue.Do(ctx, nonceKey, func(ctx context.Context) (string, error) {
		hash, err := c.send(ctx, key, from, nonceKey, req)
		if err != nil {
			c.nonces.Reset(nonceKey)
		}
		return hash, err
	})
}

func (c *Client) send(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	from common.Address,
	nonceKey string,
	req chain.SendRequest,
) (string, error) {
	chainID, err := c.verifyChainID(ctx)
	if err != nil {
		return "", err
	}

	fees, err := c.suggestFees(ctx)
	if err != nil {
		return "", err
	}

	value := req.Value.Big()
	cost := c.maxCost(fees, value)
	balance, err := c.rpc.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get sender balance: %w", classify(err))
	}
	if balance.Cmp(cost) < 0 {
		return "", fmt.Errorf("%w: %s holds %s, transfer needs up to %s",
			chain.ErrInsufficientFunds, from.Hex(),
			c.units.Format(amount.FromBig(balance)), c.units.Format(amount.FromBig(cost)))
	}

	n, err := c.nonces.Next(ctx, nonceKey, func(ctx context.Context) (uint64, error) {
		return c.rpc.PendingNonceAt(ctx, from)
	})
	if err != nil {
		return "", classify(err)
	}

	to := common.HexToAddress(req.To)
	var data types.TxData
	if fees.Legacy {
		data = &types.LegacyTx{
			Nonce:    n,
			GasPrice: fees.FeeCap,
			Gas:      c.config.GasLimit,
			To:       &to,
			Value:    value,
		}
	} else {
		data = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     n,
			GasTipCap: fees.TipCap,
			GasFeeCap: fees.FeeCap,
			Gas:       c.config.GasLimit,
			To:        &to,
			Value:     value,
		}
	}

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), data)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	// From here on the nonce is spent on the wire, so the caller's ctx no
	// longer decides the outcome.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.PostBroadcastDelay+broadcastTimeout)
	defer cancel()

	hash := tx.Hash()
	if err := c.rpc.SendTransaction(bctx, tx); err != nil {
		sendErr := fmt.Errorf("failed to broadcast transaction: %w", classify(err))
		switch known, lookupErr := c.known(bctx, hash); {
		case lookupErr != nil:
			c.logger.Warn("Broadcast failed and the node could not be asked about it",
				zap.String("tx_hash", hash.Hex()),
				zap.NamedError("send_error", err),
				zap.Error(lookupErr))
			return hash.Hex(), fmt.Errorf("%w: %w", chain.ErrBroadcastUnknown, sendErr)
		case !known:
			return "", sendErr
		}
		c.logger.Warn("Broadcast reported an error but the node holds the transaction",
			zap.String("tx_hash", hash.Hex()),
			zap.Error(err))
	}

	c.logger.Info("Transfer broadcast",
		zap.String("tx_hash", hash.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", c.units.Format(req.Value)),
		zap.Uint64("nonce", n))

	if err := c.verifyBroadcast(bctx, hash); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// known asks the node whether it holds hash.
func (c *Client) known(ctx context.Context, hash common.Hash) (bool, error) {
	_, _, err := c.rpc.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ethereum.NotFound):
		return false, nil
	default:
		return false, err
	}
}

// verifyBroadcast re-fetches the transaction after PostBroadcastDelay. A node
// that does not know it dropped it; other lookup errors leave the outcome to
// the status monitor.
func (c *Client) verifyBroadcast(ctx context.Context, hash common.Hash) error {
	if err := sleep(ctx, c.config.PostBroadcastDelay); err != nil {
		return nil
	}

	known, err := c.known(ctx, hash)
	switch {
	case err != nil:
		c.logger.Warn("Post-broadcast lookup failed",
			zap.String("tx_hash", hash.Hex()),
			zap.Error(err))
		return nil
	case !known:
		return fmt.Errorf("%w: %s", chain.ErrNotBroadcast, hash.Hex())
	}
	return nil
}

// NextNonce exposes the cached nonce for tests and diagnostics.
func (c *Client) NextNonce(address string) (uint64, bool) {
	return c.nonces.Peek(nonce.Key(c.chain.String(), common.HexToAddress(address).Hex()))
}
