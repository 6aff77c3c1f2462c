package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const serviceName = "SweepService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the sweep Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// Sweep wraps the service method with logging
func (ls *logService) Sweep(ctx context.Context, req Request) (resp *Sweep, err error) {
	start := time.Now()

	requested := "full"
	if req.Amount != nil {
		requested = req.Amount.String()
	}
	ls.logger.Info("Sweep started",
		zap.String("service", serviceName),
		zap.String("method", "Sweep"),
		zap.String("chain", req.Chain.String()),
		zap.String("amount", requested),
		zap.String("initiated_by", req.InitiatedBy),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Log(failureLevel(err), "Sweep failed",
				zap.String("service", serviceName),
				zap.String("method", "Sweep"),
				zap.String("chain", req.Chain.String()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("Sweep completed",
			zap.String("service", serviceName),
			zap.String("method", "Sweep"),
			zap.String("chain", req.Chain.String()),
			zap.String("sweep_id", resp.ID),
			zap.String("amount", resp.Amount),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.Sweep(ctx, req)
}

// SweepWallets wraps the service method with logging
func (ls *logService) SweepWallets(ctx context.Context, c chain.Chain, initiatedBy string) (resp []*Sweep, err error) {
	start := time.Now()

	ls.logger.Info("SweepWallets started",
		zap.String("service", serviceName),
		zap.String("method", "SweepWallets"),
		zap.String("chain", c.String()),
		zap.String("initiated_by", initiatedBy),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Log(failureLevel(err), "SweepWallets failed",
				zap.String("service", serviceName),
				zap.String("method", "SweepWallets"),
				zap.String("chain", c.String()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		confirmed := 0
		for _, s := range resp {
			if s.Status == StatusConfirmed {
				confirmed++
			}
		}
		ls.logger.Info("SweepWallets completed",
			zap.String("service", serviceName),
			zap.String("method", "SweepWallets"),
			zap.String("chain", c.String()),
			zap.Int("attempted", len(resp)),
			zap.Int("confirmed", confirmed),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.SweepWallets(ctx, c, initiatedBy)
}

// failureLevel logs rejected requests as warnings and everything else as errors.
func failureLevel(err error) zapcore.Level {
	if apperrors.IsInternalError(err) {
		return zapcore.ErrorLevel
	}
	return zapcore.WarnLevel
}
