package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// GetTransactionStatus maps the receipt to a chain.TxStatus. A receipt with
// fewer than Confirmations blocks on top is still pending.
func (c *Client) GetTransactionStatus(ctx context.Context, txHash string, _ chain.Direction) (chain.TxStatus, error) {
	hash := common.HexToHash(txHash)

	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		_, _, err := c.rpc.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return chain.TxStatus{State: chain.TxNotFound}, nil
		}
		if err != nil {
			return chain.TxStatus{}, fmt.Errorf("failed to get transaction: %w", classify(err))
		}
		return chain.TxStatus{State: chain.TxPending}, nil
	}
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("failed to get receipt: %w", classify(err))
	}

	block := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusFailed {
		return chain.TxStatus{State: chain.TxFailed, BlockNumber: block}, nil
	}

	head, err := c.GetLatestBlockNumber(ctx)
	if err != nil {
		return chain.TxStatus{}, err
	}
	confirmations := depth(head, block)
	state := chain.TxPending
	if confirmations >= c.config.Confirmations {
		state = chain.TxConfirmed
	}
	return chain.TxStatus{State: state, BlockNumber: block, Confirmations: confirmations}, nil
}

// Scan walks blocks after the cursor (the last block scanned) and reports
// value transfers to watched addresses. A missing or stale cursor restarts
// LookbackBlocks behind the head; one pass covers at most MaxBlocksPerPass.
func (c *Client) Scan(ctx context.Context, req chain.ScanRequest) (chain.ScanResult, error) {
	if len(req.Addresses) == 0 {
		return chain.ScanResult{Cursor: req.Cursor}, nil
	}
	watched := make(map[common.Address]struct{}, len(req.Addresses))
	for _, a := range req.Addresses {
		if common.IsHexAddress(a) {
			watched[common.HexToAddress(a)] = struct{}{}
		}
	}

	head, err := c.GetLatestBlockNumber(ctx)
	if err != nil {
		return chain.ScanResult{}, err
	}
	from, to, err := c.scanRange(req.Cursor, head)
	if err != nil {
		return chain.ScanResult{}, err
	}
	if from > to {
		return chain.ScanResult{Cursor: req.Cursor}, nil
	}

	var deposits []chain.Deposit
	for n := from; n <= to; n++ {
		block, err := c.rpc.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return chain.ScanResult{}, fmt.Errorf("failed to get block %d: %w", n, classify(err))
		}
		confirmed := depth(head, n) >= c.config.Confirmations
		at := time.Unix(int64(block.Time()), 0)

		for _, tx := range block.Transactions() {
			recipient := tx.To()
			if recipient == nil || tx.Value().Sign() <= 0 {
				continue
			}
			if _, ok := watched[*recipient]; !ok {
				continue
			}
			deposits = append(deposits, chain.Deposit{
				TxHash:      tx.Hash().Hex(),
				To:          recipient.Hex(),
				Amount:      amount.FromBig(tx.Value()),
				BlockNumber: n,
				Timestamp:   at,
				Confirmed:   confirmed,
			})
		}
	}

	c.logger.Debug("Scanned blocks",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("head", head),
		zap.Int("deposits", len(deposits)))

	return chain.ScanResult{Deposits: deposits, Cursor: strconv.FormatUint(to, 10)}, nil
}

func (c *Client) scanRange(cursor string, head uint64) (uint64, uint64, error) {
	floor := uint64(0)
	if head > c.config.LookbackBlocks {
		floor = head - c.config.LookbackBlocks
	}

	from := floor
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		last, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid %s scan cursor %q: %w", c.chain, cursor, err)
		}
		if last+1 > floor {
			from = last + 1
		}
	}

	to := head
	if limit := c.config.MaxBlocksPerPass; limit > 0 && to-from+1 > limit && from <= to {
		to = from + limit - 1
	}
	return from, to, nil
}

// depth is the number of blocks from block to head inclusive.
func depth(head, block uint64) uint64 {
	if block > head {
		return 0
	}
	return head - block + 1
}
