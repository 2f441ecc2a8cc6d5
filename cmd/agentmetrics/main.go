package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/config"
	"github.com/user/agentmetrics/internal/engine"
	"github.com/user/agentmetrics/internal/telemetry"
	"github.com/user/agentmetrics/internal/types"
)

var version = "dev"

var (
	cfgPath    string
	jsonOutput bool
	dirFlag    string

	shutdownTelemetry telemetry.Shutdown
)

var rootCmd = &cobra.Command{
	Use:           "agentmetrics",
	Short:         "Record and query coding assistant telemetry",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg.LogLevel)

		shutdown, err := telemetry.Init(cmd.Context(), telemetry.Options{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.Insecure,
			AuthToken:   cfg.Telemetry.AuthToken,
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     version,
		})
		if err != nil {
			slog.Warn("telemetry disabled", "error", err)
			return nil
		}
		shutdownTelemetry = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("flush telemetry", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "metrics directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if dirFlag != "" {
		cfg.Metrics.Dir = dirFlag
	}
	return cfg
}

func setupLogging(levelName string) {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openEngine builds an Engine over the configured metrics directory.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg := loadConfig()
	e, err := engine.New(engine.Options{
		Dir:            cfg.MetricsDir(),
		Logger:         slog.Default(),
		StartCacheSize: cfg.Metrics.StartCacheSize,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("opened event log", "dir", e.Dir())
	return e, cfg, nil
}

// periodFlag reads --period, falling back to the configured default.
func periodFlag(cmd *cobra.Command, cfg *config.Config) types.Period {
	p, _ := cmd.Flags().GetString("period")
	if p == "" {
		p = cfg.Metrics.DefaultPeriod
	}
	return types.ParsePeriod(p)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
