package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"InterShop/internal/config"
	"InterShop/pkg/kit"
)

func reconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finalize orders whose payment went through, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(service, defaultAddr, *configPath)
			if err != nil {
				return err
			}
			log := kit.NewLogger(cfg.Service, cfg.LogLevel)
			defer func() { _ = log.Sync() }()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			n, err := a.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			log.Info("reconcile finished", zap.Int("resolved", n))
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d discrepancies\n", n)
			return nil
		},
	}
}
