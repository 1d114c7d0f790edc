package shutdown

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
)

// Func — функция освобождения ресурса.
type Func func(ctx context.Context) error

// GracefulShutdown выполняет fn с собственным таймаутом, не зависящим от
// (возможно, уже отменённого) контекста приложения.
func GracefulShutdown(name string, timeout time.Duration, fn Func, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("shutdown: stopping " + name)
	if err := fn(ctx); err != nil {
		log.Error("shutdown: error in "+name, zap.Error(err))
		return err
	}
	log.Info("shutdown: " + name + " stopped cleanly")
	return nil
}
