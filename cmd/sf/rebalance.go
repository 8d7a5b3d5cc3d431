package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/db"
	"github.com/velomade/shopfloor/internal/rebalance"
)

func newRebalanceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Run one rebalance pass",
		Long:  "Moves queued tasks from overloaded workers to underutilized workers on the same stage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := db.Connect(cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			moved, err := rebalance.Run(gormDB, nil, out, time.Now())
			if err != nil {
				return err
			}
			if moved == 0 {
				fmt.Fprintln(out, "Nothing to rebalance")
			} else {
				fmt.Fprintf(out, "Moved %d task(s)\n", moved)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shopfloor.yaml", "path to Shopfloor config file")
	return cmd
}
