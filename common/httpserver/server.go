// common/httpserver/server.go

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
)

// ReadyChecker returns nil if the service is ready to serve.
type ReadyChecker func(ctx context.Context) error

// Server — HTTP-сервер с /metrics, /healthz, /readyz и прикладными маршрутами.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

// New constructs a Server. app обслуживает все пути, кроме служебных;
// mws применяются только к app, в порядке перечисления (первый — внешний).
func New(cfg Config, check ReadyChecker, log *logger.Logger, app http.Handler, mws ...Middleware) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if check == nil {
		check = func(context.Context) error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc(cfg.HealthzPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc(cfg.ReadyzPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("NOT READY: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if app != nil {
		for i := len(mws) - 1; i >= 0; i-- {
			app = mws[i](app)
		}
		mux.Handle("/", app)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log.Named("http-server"),
	}, nil
}

// Handler отдаёт корневой обработчик (для httptest).
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run слушает cfg.Addr и выполняет graceful shutdown по ctx.Done().
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает уже открытый listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("http: starting server", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("httpserver: serve: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info("http: shutdown signal received")
		serveErr = ctx.Err()
	case err := <-errCh:
		serveErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http: graceful shutdown failed", zap.Error(err))
		return err
	}
	s.log.Info("http: server stopped gracefully")
	return serveErr
}
