// Package main runs the daily availability check against a deployed service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/config"
	"github.com/JakeFAU/private-sauna-availability/internal/dailycheck"
	"github.com/JakeFAU/private-sauna-availability/internal/logging"
	"github.com/JakeFAU/private-sauna-availability/internal/notify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the command. Exit status is 1 when the check finds errors.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		baseURL string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "dailycheck",
		Short: "Checks today's availability on a running service and reports problems.",
		Long: `dailycheck fetches /api/availability for today and /api/status from the
service, classifies every facility as ok, warning, or error, and posts a
Chatwork message when errors are found or sources are unhealthy.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if baseURL != "" {
				cfg.Daily.BaseURL = baseURL
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			var notifier dailycheck.Notifier
			if !dryRun {
				notifier = newNotifier(cfg, logger)
			}
			checker := dailycheck.New(dailycheck.Config{
				BaseURL:  cfg.Daily.BaseURL,
				Location: cfg.Location(),
				Timeout:  cfg.DailyTimeout(),
			}, notifier, logger)

			report, err := checker.Run(cmd.Context())
			for _, f := range report.Facilities {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %d slots (%d rooms)\n", f.Result, f.Name, f.Slots, f.Rooms)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "errors: %d, warnings: %d\n", len(report.Errors), len(report.Warnings))
			return err
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "service URL (overrides dailycheck.base_url)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without sending notifications")
	return cmd
}

func newNotifier(cfg config.Config, logger *zap.Logger) *notify.Dispatcher {
	return notify.New(notify.Config{
		Enabled:     cfg.Notify.Enabled,
		APIToken:    cfg.Notify.APIToken,
		RoomID:      cfg.Notify.RoomID,
		BaseURL:     cfg.Notify.BaseURL,
		Timeout:     cfg.NotifyTimeout(),
		Location:    cfg.NotifyLocation(),
		TitlePrefix: cfg.Notify.TitlePrefix,
	}, logger.Named("notify"))
}
