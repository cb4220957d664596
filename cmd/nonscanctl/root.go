package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/nonscan/internal/approval"
	"github.com/danmuck/nonscan/internal/logging"
	"github.com/danmuck/nonscan/internal/observability"
	"github.com/danmuck/nonscan/internal/panel"
	"github.com/spf13/cobra"
)

const (
	appName        = "nonscanctl"
	appVersion     = "0.1.0"
	defaultCfgPath = "cmd/nonscanctl/config.toml"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Drive the HC-05 approval panel link",
		Long:          "nonscanctl owns the RFCOMM link to the approval panel and exposes it over an admin HTTP surface.",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	root.PersistentFlags().StringP("config", "c", defaultCfgPath, "panel config path")

	root.AddCommand(newRunCmd(), newProbeCmd(), newVersionCmd())
	return root
}

func loadFromFlags(cmd *cobra.Command) (panel.ServiceConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return panel.ServiceConfig{}, err
	}
	cfg, err := loadServiceConfig(path)
	if err != nil {
		return panel.ServiceConfig{}, err
	}
	observability.InitLogger(appName, cfg.PanelID)
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the panel service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			svc, err := panel.NewServiceWithConfig(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
}

func newProbeCmd() *cobra.Command {
	var (
		subject string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect, send one approval request and wait for the panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			svc, err := panel.NewServiceWithConfig(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			res, err := svc.Probe(ctx, subject)
			if res.Outcome != approval.OutcomePending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s subject=%s resolved_at=%s\n",
					res.Outcome, subject, res.ResolvedAt.Format(time.RFC3339))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "probe", "subject id sent to the panel")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "give up waiting after this long (0 waits forever)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
		},
	}
}
