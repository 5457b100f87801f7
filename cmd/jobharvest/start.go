package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/pipeline"
	"github.com/amishk599/jobharvest/internal/scheduler"
)

var metricsAddr string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling daemon",
	Long:  "Runs the pipeline immediately and then on the configured schedule; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	logger.Info("config loaded",
		"schedule", cfg.Schedule,
		"sites", len(cfg.EnabledSites()),
		"store", cfg.Store.Driver,
		"lock", cfg.Lock.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, cfg, appOptions{Metrics: metrics.New(reg)}, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	p, err := a.pipeline(setupNotifier(cfg, a.httpClient, logger))
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	daemon, err := scheduler.NewDaemon(cfg.Schedule, func(ctx context.Context) {
		if _, err := p.Run(ctx, pipeline.Phases{}); err != nil {
			logger.Error("scheduled run finished with errors", "error", err)
		}
	}, logger)
	if err != nil {
		logger.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}

	if err := daemon.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
