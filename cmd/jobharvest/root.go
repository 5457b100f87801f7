package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/config"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/notifier"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobharvest",
	Short: "Job posting harvester",
	Long: "jobharvest polls job boards and career sites, keeps a durable record of every posting it has seen, " +
		"and reports what is new, updated or gone since the last run.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: "+config.EnvConfigPath+" env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
func loadConfig() (*config.Config, error) {
	return config.Load(config.ResolvePath(cfgPath))
}

// setupLogger returns the stdout logger. --debug wins over log_level; cfg
// may be nil before the config is loaded.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = cfg.Level()
	}
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// mustLoad loads the config and returns it with the matching logger,
// exiting on failure.
func mustLoad() (*config.Config, *slog.Logger) {
	cfg, err := loadConfig()
	if err != nil {
		setupLogger(nil).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg, setupLogger(cfg)
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}
