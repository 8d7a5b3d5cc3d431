package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Shopfloor database",
		Long:  "Creates the database, migrates all tables, and seeds the stage catalog from configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shopfloor.yaml", "path to Shopfloor config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for workshop %q from %s\n", cfg.Workshop, configPath)

	adminDB, err := db.ConnectAdmin(cfg.Database.User, cfg.Database.Host, cfg.Database.Port)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", cfg.Database.Host, cfg.Database.Port)

	if err := db.CreateDatabase(adminDB, cfg.Database.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Database)

	gormDB, err := db.Connect(cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Database.Database, err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedStages(gormDB, cfg.Stages); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d stages:", len(cfg.Stages))
	for _, s := range cfg.Stages {
		fmt.Fprintf(out, " %s", s.Name)
	}
	fmt.Fprintln(out)

	return nil
}

func newDBResetCmd() *cobra.Command {
	var configPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the Shopfloor database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to drop the database without --force")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			adminDB, err := db.ConnectAdmin(cfg.Database.User, cfg.Database.Host, cfg.Database.Port)
			if err != nil {
				return fmt.Errorf("connect to %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
			}
			if err := db.DropDatabase(adminDB, cfg.Database.Database); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped database %s\n", cfg.Database.Database)
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shopfloor.yaml", "path to Shopfloor config file")
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive reset")
	return cmd
}
