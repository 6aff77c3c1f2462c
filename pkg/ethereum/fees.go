package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const mainnetChainID = 1

var (
	// Mainnet floors keep transactions from being rejected as underpriced.
	minMainnetTip    = new(big.Int).Mul(big.NewInt(15), big.NewInt(params.GWei/10))
	minMainnetFeeCap = new(big.Int).Mul(big.NewInt(10), big.NewInt(params.GWei))
)

// Fees is the pricing of one transaction. Legacy chains only use FeeCap, as
// the gas price.
type Fees struct {
	TipCap *big.Int
	FeeCap *big.Int
	Legacy bool
}

// computeFees applies the inclusion policy:
//
//	tip    = suggestedTip * 1.5
//	maxFee = (2 * baseFee + tip) * 1.3
//
// with mainnet floors on both. A nil baseFee means the chain has no EIP-1559
// market and the suggested gas price is bumped by 1.3 instead.
func computeFees(chainID int64, baseFee, suggestedTip, gasPrice *big.Int) Fees {
	if baseFee == nil {
		return Fees{FeeCap: mulDiv(gasPrice, 13, 10), Legacy: true}
	}

	tip := mulDiv(suggestedTip, 3, 2)
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap = mulDiv(feeCap.Add(feeCap, tip), 13, 10)

	if chainID == mainnetChainID {
		tip = maxBig(tip, minMainnetTip)
		feeCap = maxBig(feeCap, minMainnetFeeCap)
	}
	feeCap = maxBig(feeCap, tip)
	return Fees{TipCap: tip, FeeCap: feeCap}
}

func mulDiv(v *big.Int, num, den int64) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(v, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return new(big.Int).Set(b)
}

func (c *Client) suggestFees(ctx context.Context) (Fees, error) {
	head, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return Fees{}, fmt.Errorf("failed to get latest header: %w", classify(err))
	}

	if head.BaseFee == nil {
		price, err := c.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return Fees{}, fmt.Errorf("failed to suggest gas price: %w", classify(err))
		}
		return computeFees(c.config.ChainID, nil, nil, price), nil
	}

	tip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return Fees{}, fmt.Errorf("failed to suggest gas tip: %w", classify(err))
	}
	fees := computeFees(c.config.ChainID, head.BaseFee, tip, nil)

	c.logger.Debug("Fee data",
		zap.String("base_fee", head.BaseFee.String()),
		zap.String("suggested_tip", tip.String()),
		zap.String("tip_cap", fees.TipCap.String()),
		zap.String("fee_cap", fees.FeeCap.String()))
	return fees, nil
}

// EstimateFee returns the worst-case fee of a native transfer: gas limit
// times the max fee per gas.
func (c *Client) EstimateFee(ctx context.Context, _ chain.FeeRequest) (amount.Amount, error) {
	fees, err := c.suggestFees(ctx)
	if err != nil {
		return amount.Zero(), err
	}
	return amount.FromBig(c.maxCost(fees, nil)), nil
}

// maxCost is value + gasLimit * feeCap.
func (c *Client) maxCost(fees Fees, value *big.Int) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(c.config.GasLimit), fees.FeeCap)
	if value != nil {
		cost.Add(cost, value)
	}
	return cost
}
