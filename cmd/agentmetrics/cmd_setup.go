package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/config"
	"github.com/user/agentmetrics/internal/types"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("agentmetrics setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.DataDir = prompt(scanner, "Data directory", cfg.DataDir)
		cfg.Metrics.Dir = prompt(scanner, "Event log directory (empty for <data dir>/metrics)", cfg.Metrics.Dir)
		cfg.Metrics.DefaultPeriod = string(types.ParsePeriod(
			prompt(scanner, "Default query period (day, week, month)", cfg.Metrics.DefaultPeriod)))

		limit := prompt(scanner, "Sessions listed by default", strconv.Itoa(cfg.Metrics.SessionLimit))
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			cfg.Metrics.SessionLimit = n
		}

		cfg.Telemetry.OTLPEndpoint = prompt(scanner, "OTLP collector endpoint (optional)", cfg.Telemetry.OTLPEndpoint)
		if cfg.Telemetry.OTLPEndpoint != "" {
			insecure := prompt(scanner, "Use plain HTTP for the collector (true/false)", strconv.FormatBool(cfg.Telemetry.Insecure))
			if b, err := strconv.ParseBool(insecure); err == nil {
				cfg.Telemetry.Insecure = b
			}
			cfg.Telemetry.AuthToken = prompt(scanner, "Collector auth token (optional)", cfg.Telemetry.AuthToken)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		fmt.Println("Events will be written to", cfg.MetricsDir())
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
