package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Daemon repeats a job on a cron schedule, with one immediate run on start.
// A tick that fires while the previous run is still going is skipped.
type Daemon struct {
	spec   string
	job    func(ctx context.Context)
	logger *slog.Logger
}

// NewDaemon validates spec (standard five-field cron or a descriptor such as
// "@every 6h") and returns a daemon that runs job on it.
func NewDaemon(spec string, job func(ctx context.Context), logger *slog.Logger) (*Daemon, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Daemon{spec: spec, job: job, logger: logger}, nil
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// return. It returns nil on graceful shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	cl := cronLogger{d.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(d.spec, func() { d.job(ctx) }); err != nil {
		return fmt.Errorf("scheduling run: %w", err)
	}

	d.logger.Info("starting scheduler", "schedule", d.spec)
	d.job(ctx)
	if ctx.Err() != nil {
		d.logger.Info("shutting down scheduler")
		return nil
	}

	c.Start()
	<-ctx.Done()
	d.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
