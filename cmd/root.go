package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/config"
	"github.com/vindennt/outfred-gateway/internal/logger"
)

var (
	cfgFile string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "outfred-gateway",
	Short: "Backend gateway for the Outfred storefront",
	Long: `outfred-gateway serves the Outfred frontend: Supabase-backed
sessions, the navigation header model, the notification push channel and
the authenticated SMTP email relay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}

		log, err = logger.New(cfg.Logs.Level, cfg.Logs.Style)
		if err != nil {
			return fmt.Errorf("could not build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (environment variables override it)")
}
