package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/cyl19970726/haigo-sub001/internal/control"
	"github.com/cyl19970726/haigo-sub001/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "ingestor",
	Short: "Aptos event ingestion service",
	Long:  `Ingestor polls the Aptos indexer for account, order and staking events and keeps the BFF tables and cursors up to date.`,
	Run:   runIngestor,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file and installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	stylelog.InitDefault(&tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func logLevel(level string) slog.Level {
	if isDebug {
		return slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runIngestor(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewIngestor(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize ingestor", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("Ingestor starting", "config", cfgPath, "cursor_store", cfg.CursorStore)

	if err := app.Run(ctx); err != nil {
		slog.Error("Ingestor stopped with error", "error", err)
		app.Close()
		os.Exit(1)
	}
	slog.Info("Ingestor stopped")
}
