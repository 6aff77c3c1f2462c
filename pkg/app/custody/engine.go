package custody

import (
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
	"github.com/JPCompany544/arbix-sub001/pkg/withdrawal"
)

// Engine bundles the caller-facing custody operations over one store and
// adapter registry.
type Engine struct {
	Adapters    *chain.Registry
	Wallets     wallet.Service
	Withdrawals withdrawal.Service
	Sweeps      sweep.Service
	Journal     treasury.Service
	Syncer      *treasury.Syncer
	Auditor     *ledger.Auditor
}

// NewEngine wires the services. Withdrawals and sweeps are wrapped with
// their logging decorators.
func NewEngine(
	cfg *config.Config,
	store custodystore.Store,
	adapters *chain.Registry,
	publisher events.Publisher,
	logger *zap.Logger,
) *Engine {
	syncer := treasury.NewSyncer(store, adapters, logger)
	journal := treasury.NewService(store, adapters, logger)

	sweeper := sweep.NewEngine(store, syncer, journal, adapters, sweepDestinations(&cfg.Chains), publisher, logger)

	return &Engine{
		Adapters:    adapters,
		Wallets:     wallet.NewService(store, adapters, cfg.Deposit.BaselineTimeout, logger),
		Withdrawals: withdrawal.NewLog(withdrawal.NewService(store, adapters, publisher, logger), logger),
		Sweeps:      sweep.NewLog(sweeper, logger),
		Journal:     journal,
		Syncer:      syncer,
		Auditor:     ledger.NewAuditor(store, logger),
	}
}

func sweepDestinations(cfg *config.ChainsConfig) map[chain.Chain]string {
	out := make(map[chain.Chain]string)
	add := func(c chain.Chain, addr string) {
		if addr != "" {
			out[c] = addr
		}
	}
	add(chain.ETH, cfg.ETH.SweepDestination)
	add(chain.BSC, cfg.BSC.SweepDestination)
	add(chain.BTC, cfg.BTC.SweepDestination)
	add(chain.SOL, cfg.SOL.SweepDestination)
	add(chain.XRP, cfg.XRP.SweepDestination)
	return out
}
