// services/dataset-api/cmd/dataset-api/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/app"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/config"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/repl"
)

type serveFlags struct {
	configPath string
	addr       string
}

type replFlags struct {
	url     string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var sf serveFlags

	root := &cobra.Command{
		Use:           "dataset-api",
		Short:         "SQL query API over a single in-memory dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, sf)
		},
	}
	root.PersistentFlags().StringVar(&sf.configPath, "config", "", "path to YAML config (empty: defaults + DATASET_API_* env)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the dataset and serve the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, sf)
		},
	}
	bindServeFlags(serveCmd.Flags(), &sf)
	bindServeFlags(root.Flags(), &sf)

	root.AddCommand(serveCmd, newReplCmd())
	return root
}

func bindServeFlags(fs *pflag.FlagSet, sf *serveFlags) {
	fs.StringVar(&sf.addr, "addr", "", "listen address, overrides http.addr")
}

func serve(cmd *cobra.Command, sf serveFlags) error {
	// 1) Конфиг
	cfg, err := config.Load(sf.configPath)
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	if cmd.Flags().Changed("addr") {
		cfg.HTTP.Addr = sf.addr
	}

	// 2) Логгер
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	defer log.Sync()

	if cfg.Logging.DevMode {
		cfg.Print(os.Stdout)
	}

	log.Info("starting dataset-api service",
		zap.String("service.name", cfg.ServiceName),
		zap.String("service.version", cfg.ServiceVersion),
		zap.String("config.path", sf.configPath),
		zap.String("http.addr", cfg.HTTP.Addr),
	)

	// 3) Контекст с отменой по SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4) Запуск приложения
	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("application exited with error", zap.Error(err))
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func newReplCmd() *cobra.Command {
	var rf replFlags
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive SQL console against a running dataset-api",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer cancel()
			return repl.Run(ctx, repl.NewClient(rf.url, rf.timeout), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&rf.url, "url", "http://localhost:8000", "base URL of the dataset-api server")
	cmd.Flags().DurationVar(&rf.timeout, "timeout", 60*time.Second, "per-request timeout")
	return cmd
}
