package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Parley %s\n", AppVersion)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Println()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println("Configuration:")
		fmt.Printf("  Server: %s\n", cfg.ServerURL)
		fmt.Printf("  Model: %s\n", cfg.ModelID)
		fmt.Printf("  Flush interval: %s\n", cfg.FlushInterval())
		if cfg.APIKey != "" {
			fmt.Println("  API key: configured")
		} else {
			fmt.Println("  API key: not set (export PARLEY_API_KEY=...)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
