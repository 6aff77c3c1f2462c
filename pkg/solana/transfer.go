package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

// broadcastTimeout bounds the detached send and visibility check.
const broadcastTimeout = 30 * time.Second

// Send signs a system transfer with the key at req.FromIndex and submits it.
// Sends from one address are serialized so two transfers never race on the
// same balance check.
func (c *Client) Send(ctx context.Context, req chain.SendRequest) (string, error) {
	to, err := parseKey(req.To)
	if err != nil {
		return "", err
	}
	if req.Value.Sign() <= 0 || !req.Value.Big().IsUint64() {
		return "", fmt.Errorf("invalid transfer value %s", req.Value)
	}

	key, err := c.signer(req.FromIndex)
	if err != nil {
		return "", err
	}
	from := key.PublicKey()
	if req.ExpectedFrom != "" && req.ExpectedFrom != from.String() {
		return "", fmt.Errorf("%w: index %d derives %s, expected %s",
			chain.ErrDerivationMismatch, req.FromIndex, from, req.ExpectedFrom)
	}

	return c.queue.Do(ctx, nonce.Key(chain.SOL.String(), from.String()), func(ctx context.Context) (string, error) {
		return c.send(ctx, key, to, req.Value.Big().Uint64())
	})
}

func (c *Client) send(ctx context.Context, key solana.PrivateKey, to solana.PublicKey, lamports uint64) (string, error) {
	from := key.PublicKey()

	bal, err := c.rpc.GetBalance(ctx, from, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("failed to get sender balance: %w", classify(err))
	}
	if need := lamports + signatureFee; bal.Value < need {
		return "", fmt.Errorf("%w: %s holds %s, transfer needs %s",
			chain.ErrInsufficientFunds, from,
			c.units.Format(amount.FromUint64(bal.Value)), c.units.Format(amount.FromUint64(need)))
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", classify(err))
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(from) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	// The signature is fixed once signed. From here on the caller's ctx no
	// longer decides the outcome.
	sig := tx.Signatures[0]
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.PostBroadcastDelay+broadcastTimeout)
	defer cancel()

	if _, err := c.rpc.SendTransactionWithOpts(bctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	}); err != nil {
		sendErr := fmt.Errorf("failed to send transaction: %w", classify(err))
		st, lookupErr := c.signatureStatus(bctx, sig)
		switch {
		case lookupErr != nil:
			c.logger.Warn("Send failed and the cluster could not be asked about it",
				zap.String("tx_hash", sig.String()),
				zap.NamedError("send_error", err),
				zap.Error(lookupErr))
			return sig.String(), fmt.Errorf("%w: %w", chain.ErrBroadcastUnknown, sendErr)
		case st == nil:
			return "", sendErr
		}
		c.logger.Warn("Send reported an error but the cluster knows the signature",
			zap.String("tx_hash", sig.String()),
			zap.Error(err))
	}

	c.logger.Info("Transfer broadcast",
		zap.String("tx_hash", sig.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("amount", c.units.Format(amount.FromUint64(lamports))))

	if err := c.verifyBroadcast(bctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// signatureStatus returns nil when the cluster does not know sig.
func (c *Client) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// verifyBroadcast waits PostBroadcastDelay and asks the cluster for the
// signature. Unknown signatures were dropped before reaching a leader.
func (c *Client) verifyBroadcast(ctx context.Context, sig solana.Signature) error {
	if d := c.config.PostBroadcastDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}

	st, err := c.signatureStatus(ctx, sig)
	if err != nil {
		c.logger.Warn("Post-broadcast lookup failed",
			zap.String("tx_hash", sig.String()),
			zap.Error(err))
		return nil
	}
	if st == nil {
		return fmt.Errorf("%w: %s", chain.ErrNotBroadcast, sig)
	}
	if st.Err != nil {
		return fmt.Errorf("transaction %s failed: %v", sig, st.Err)
	}
	return nil
}
