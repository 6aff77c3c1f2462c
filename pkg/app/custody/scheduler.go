package custody

import (
	"context"
	"errors"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
)

// newScheduler registers the periodic treasury resync and, when enabled, the
// batch sweep of every HD chain. Jobs never overlap with themselves.
func newScheduler(ctx context.Context, cfg *config.Config, engine *Engine, logger *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Treasury.SyncInterval),
		gocron.NewTask(func() { engine.Syncer.SyncAll(ctx) }),
		gocron.WithName("treasury-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.Sweep.ScheduleEnabled {
		return sched, nil
	}

	for _, c := range engine.Adapters.Chains() {
		adapter, err := engine.Adapters.Get(c)
		if err != nil || adapter.Mode() != chain.ModeHD {
			continue
		}
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.Sweep.Interval),
			gocron.NewTask(sweepChain, ctx, engine.Sweeps, c, cfg.Sweep.InitiatedBy, logger),
			gocron.WithName("sweep-"+c.String()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func sweepChain(ctx context.Context, sweeps sweep.Service, c chain.Chain, initiatedBy string, logger *zap.Logger) {
	done, err := sweeps.SweepWallets(ctx, c, initiatedBy)
	switch {
	case err == nil:
		logger.Info("Scheduled sweep finished", zap.String("chain", c.String()), zap.Int("sweeps", len(done)))
	case errors.Is(err, sweep.ErrNoSweepableBalance), errors.Is(err, sweep.ErrSweepInProgress):
		logger.Debug("Scheduled sweep skipped", zap.String("chain", c.String()), zap.Error(err))
	default:
		logger.Error("Scheduled sweep failed", zap.String("chain", c.String()), zap.Error(err))
	}
}
