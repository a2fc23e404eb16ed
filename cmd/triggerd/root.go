package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/config"
	"github.com/danielpatrickdp/trigger-guard/internal/daemon"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "triggerd",
		Short:         "Serve the content warning pipeline over HTTP and gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			opts := cfg.LoggingOptions()
			if lvl := strings.TrimSpace(logLevel); lvl != "" {
				opts.Level = lvl
			}
			logger, err := logging.New(opts)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger.Info("configuration loaded",
				logging.String("path", path),
				logging.Bool("file_present", exists),
				logging.String("profile", cfg.Profile.Path))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
