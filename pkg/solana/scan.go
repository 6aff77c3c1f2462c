package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// maxTxVersion accepts legacy and v0 transactions.
var maxTxVersion uint64

// GetTransactionStatus reports finalized signatures as confirmed.
func (c *Client) GetTransactionStatus(ctx context.Context, txHash string, _ chain.Direction) (chain.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("invalid signature %q: %w", txHash, err)
	}

	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("failed to get signature status: %w", classify(err))
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return chain.TxStatus{State: chain.TxNotFound}, nil
	}

	st := res.Value[0]
	out := chain.TxStatus{BlockNumber: st.Slot}
	if st.Confirmations != nil {
		out.Confirmations = *st.Confirmations
	}
	switch {
	case st.Err != nil:
		out.State = chain.TxFailed
	case st.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
		out.State = chain.TxConfirmed
	default:
		out.State = chain.TxPending
	}
	return out, nil
}

// Scan looks at the most recent SignaturesPerScan signatures of every watched
// address and reports those that raised its lamport balance. The cursor is
// the highest slot seen.
func (c *Client) Scan(ctx context.Context, req chain.ScanRequest) (chain.ScanResult, error) {
	limit := c.config.SignaturesPerScan
	if limit <= 0 {
		limit = 10
	}

	var (
		deposits []chain.Deposit
		highest  uint64
	)
	for _, address := range req.Addresses {
		account, err := parseKey(address)
		if err != nil {
			return chain.ScanResult{}, err
		}

		sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			return chain.ScanResult{}, fmt.Errorf("failed to list signatures of %s: %w", address, classify(err))
		}

		for _, s := range sigs {
			highest = max(highest, s.Slot)
			if s.Err != nil {
				continue
			}
			dep, ok, err := c.inspect(ctx, account, s)
			if err != nil {
				return chain.ScanResult{}, err
			}
			if ok {
				dep.To = address
				deposits = append(deposits, dep)
			}
		}
	}

	c.logger.Debug("Scanned addresses",
		zap.Int("addresses", len(req.Addresses)),
		zap.Int("deposits", len(deposits)))

	cursor := req.Cursor
	if highest > 0 {
		cursor = strconv.FormatUint(highest, 10)
	}
	return chain.ScanResult{Deposits: deposits, Cursor: cursor}, nil
}

func (c *Client) inspect(ctx context.Context, account solana.PublicKey, s *rpc.TransactionSignature) (chain.Deposit, bool, error) {
	res, err := c.rpc.GetTransaction(ctx, s.Signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return chain.Deposit{}, false, nil
	}
	if err != nil {
		return chain.Deposit{}, false, fmt.Errorf("failed to get transaction %s: %w", s.Signature, classify(err))
	}

	delta, err := balanceDelta(res, account)
	if err != nil {
		c.logger.Warn("Skipping undecodable transaction",
			zap.String("tx_hash", s.Signature.String()),
			zap.Error(err))
		return chain.Deposit{}, false, nil
	}
	if delta.Sign() <= 0 {
		return chain.Deposit{}, false, nil
	}

	dep := chain.Deposit{
		TxHash:      s.Signature.String(),
		Amount:      delta,
		BlockNumber: res.Slot,
		Confirmed:   s.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
	}
	if res.BlockTime != nil {
		dep.Timestamp = res.BlockTime.Time()
	} else if s.BlockTime != nil {
		dep.Timestamp = s.BlockTime.Time()
	}
	return dep, true, nil
}

// balanceDelta is post minus pre lamports of account in a successful
// transaction; zero when the account is not among its keys.
func balanceDelta(res *rpc.GetTransactionResult, account solana.PublicKey) (amount.Amount, error) {
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return amount.Zero(), errors.New("transaction has no metadata")
	}
	if res.Meta.Err != nil {
		return amount.Zero(), nil
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	for i, k := range keys {
		if !k.Equals(account) {
			continue
		}
		if i >= len(res.Meta.PreBalances) || i >= len(res.Meta.PostBalances) {
			return amount.Zero(), fmt.Errorf("balance index %d out of range", i)
		}
		pre := amount.FromUint64(res.Meta.PreBalances[i])
		post := amount.FromUint64(res.Meta.PostBalances[i])
		return post.Sub(pre), nil
	}
	return amount.Zero(), nil
}
