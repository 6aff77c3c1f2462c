package withdrawal

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
)

const serviceName = "WithdrawalService"

const addressDisplaySize = 10

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the withdrawal Service.
// It logs method entry/exit, duration, errors, and abbreviated addresses.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// Withdraw wraps the service method with logging
func (ls *logService) Withdraw(ctx context.Context, req Request) (resp *Result, err error) {
	start := time.Now()

	ls.logger.Info("Withdraw started",
		zap.String("service", serviceName),
		zap.String("method", "Withdraw"),
		zap.String("user_id", req.UserID),
		zap.String("chain", req.Chain.String()),
		zap.String("to", abbreviate(req.To)),
		zap.String("amount", req.Amount.String()),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Log(failureLevel(err), "Withdraw failed",
				zap.String("service", serviceName),
				zap.String("method", "Withdraw"),
				zap.String("user_id", req.UserID),
				zap.String("chain", req.Chain.String()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("Withdraw completed",
			zap.String("service", serviceName),
			zap.String("method", "Withdraw"),
			zap.String("user_id", req.UserID),
			zap.String("chain", req.Chain.String()),
			zap.String("tx_id", resp.TxID),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.Withdraw(ctx, req)
}

func abbreviate(address string) string {
	if len(address) <= 2*addressDisplaySize {
		return address
	}
	return address[:addressDisplaySize] + "..." + address[len(address)-addressDisplaySize:]
}

// failureLevel logs rejected requests as warnings and everything else as errors.
func failureLevel(err error) zapcore.Level {
	if apperrors.IsInternalError(err) {
		return zapcore.ErrorLevel
	}
	return zapcore.WarnLevel
}
