package custody

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/bitcoin"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/ethereum"
	"github.com/JPCompany544/arbix-sub001/pkg/keys"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
	"github.com/JPCompany544/arbix-sub001/pkg/solana"
	"github.com/JPCompany544/arbix-sub001/pkg/xrp"
)

// buildAdapters creates an adapter per enabled chain. The returned func
// closes every connection opened so far and is safe to call on error paths.
func buildAdapters(
	ctx context.Context,
	cfg *config.ChainsConfig,
	deriver *keys.Deriver,
	queue *nonce.Queue,
	nonces *nonce.Manager,
	logger *zap.Logger,
) (*chain.Registry, func(), error) {
	var (
		adapters []chain.Adapter
		closers  []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	evm := []struct {
		chain chain.Chain
		cfg   *config.EVMConfig
	}{
		{chain.ETH, &cfg.ETH},
		{chain.BSC, &cfg.BSC},
	}
	for _, e := range evm {
		if !e.cfg.Enabled {
			continue
		}
		client, err := ethereum.Dial(ctx, e.chain, e.cfg, deriver, queue, nonces, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		adapters = append(adapters, client)
		closers = append(closers, client.Close)
	}

	if cfg.BTC.Enabled {
		client, err := bitcoin.New(&cfg.BTC, deriver, queue, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("bitcoin adapter: %w", err)
		}
		adapters = append(adapters, client)
	}

	if cfg.SOL.Enabled {
		client := solana.New(&cfg.SOL, deriver, queue, logger)
		adapters = append(adapters, client)
		closers = append(closers, client.Close)
	}

	if cfg.XRP.Enabled {
		adapters = append(adapters, xrp.New(&cfg.XRP, deriver, queue, nonces, logger))
	}

	if len(adapters) == 0 {
		return nil, nil, fmt.Errorf("no chain enabled")
	}

	for _, a := range adapters {
		logger.Info("Chain adapter ready",
			zap.String("chain", a.Chain().String()),
			zap.String("symbol", a.Symbol()),
			zap.Stringer("mode", a.Mode()))
	}

	return chain.NewRegistry(adapters...), closeAll, nil
}
