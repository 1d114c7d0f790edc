// services/dataset-api/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/dataset-api/common"
	"github.com/YaganovValera/dataset-api/common/httpserver"
	producer "github.com/YaganovValera/dataset-api/common/kafka/producer"
	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/common/middleware"
	"github.com/YaganovValera/dataset-api/common/shutdown"
	"github.com/YaganovValera/dataset-api/common/telemetry"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/audit"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/config"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/dataset"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/engine"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/metrics"
	transport "github.com/YaganovValera/dataset-api/services/dataset-api/internal/transport/http"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/usecase"
)

// Run поднимает сервис и блокируется до отмены ctx.
// Ошибка загрузки датасета возвращается сразу: сервис без данных не стартует.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	return run(ctx, cfg, log, nil)
}

// run — то же, что Run, но может слушать готовый listener (для тестов).
func run(ctx context.Context, cfg *config.Config, log *logger.Logger, ln net.Listener) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)

	// ----- Telemetry -----
	tcfg := cfg.Telemetry
	tcfg.ServiceName = cfg.ServiceName
	tcfg.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, tcfg, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		_ = shutdown.GracefulShutdown("telemetry", cfg.HTTP.ShutdownTimeout, shutdownTracer, log)
	}()

	// ----- Engine + dataset -----
	eng, err := engine.Open(cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer func() {
		_ = shutdown.GracefulShutdown("engine", cfg.HTTP.ShutdownTimeout, eng.Close, log)
	}()

	loader, err := dataset.NewLoader(cfg.Dataset, eng, log)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	rows, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	log.WithContext(ctx).Info("dataset-api: dataset ready",
		zap.String("table", cfg.Dataset.Table),
		zap.Int64("rows", rows),
	)

	// ----- Audit -----
	var (
		rec       audit.Recorder
		publisher *audit.Publisher
		readiness = eng.Ping
	)
	if cfg.Audit.Enabled {
		prod, err := producer.New(ctx, cfg.Audit.Kafka, log)
		if err != nil {
			return fmt.Errorf("audit producer: %w", err)
		}
		defer func() {
			_ = shutdown.GracefulShutdown("kafka-producer", cfg.HTTP.ShutdownTimeout,
				func(context.Context) error { return prod.Close() }, log)
		}()
		publisher = audit.NewPublisher(prod, cfg.Audit, log)
		rec = publisher
		readiness = func(ctx context.Context) error {
			if err := eng.Ping(ctx); err != nil {
				return err
			}
			return prod.Ping(ctx)
		}
	}

	// ----- HTTP -----
	svc := usecase.New(eng, cfg.Dataset.Table, cfg.Query, rec, log)
	handler, err := transport.NewHandler(svc, cfg.HTTP.MaxBodyBytes)
	if err != nil {
		return err
	}
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled() {
		limiter = middleware.NewRateLimiter(cfg.RateLimit)
	}

	srv, err := httpserver.New(cfg.HTTP.Config, readiness, log, transport.Routes(handler, limiter),
		httpserver.RecoverMiddleware(log),
		httpserver.CORSMiddleware(),
		middleware.RequestID(),
		middleware.RequestLogger(log),
	)
	if err != nil {
		return fmt.Errorf("httpserver: %w", err)
	}

	log.WithContext(ctx).Info("dataset-api: components initialized, starting run loops")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if ln != nil {
			return srv.Serve(gctx, ln)
		}
		return srv.Run(gctx)
	})
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.WithContext(ctx).Info("dataset-api exited on context cancel")
			return nil
		}
		log.WithContext(ctx).Error("dataset-api exited with error", zap.Error(err))
		return err
	}

	log.WithContext(ctx).Info("dataset-api exited cleanly")
	return nil
}
