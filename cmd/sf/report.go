package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/db"
	"github.com/velomade/shopfloor/internal/report"
)

func newReportCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print operational reports",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shopfloor.yaml", "path to Shopfloor config file")

	cmd.AddCommand(newReportAssignmentsCmd(&configPath))
	cmd.AddCommand(newReportPerformanceCmd(&configPath))
	return cmd
}

func newReportAssignmentsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assignments",
		Short: "Show the live assignment picture",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := reportDB(*configPath)
			if err != nil {
				return err
			}
			rep, err := report.BuildAssignmentReport(gormDB)
			if err != nil {
				return err
			}
			printAssignmentReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

func newReportPerformanceCmd(configPath *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Show per-worker performance for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := reportDB(*configPath)
			if err != nil {
				return err
			}
			day := date
			if day == "" {
				day = time.Now().Format("2006-01-02")
			}
			stats, err := report.DailyPerformanceStats(gormDB, day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintf(out, "No performance data for %s\n", day)
				return nil
			}
			fmt.Fprintf(out, "Performance for %s\n", day)
			for _, s := range stats {
				fmt.Fprintf(out, "  %-20s %-16s assigned=%d completed=%d rate=%.0f%% speed=%.0f%% total=%.1f\n",
					s.WorkerID, s.StageName, s.TasksAssigned, s.TasksCompleted,
					s.CompletionRate, s.SpeedEfficiency, s.TotalScore)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to report on (YYYY-MM-DD, default today)")
	return cmd
}

func reportDB(configPath string) (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return db.Connect(cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
}

func printAssignmentReport(out io.Writer, rep *report.AssignmentReport) {
	fmt.Fprintln(out, "Order progress by status:")
	for _, status := range []string{"pending", "assigned", "in_progress", "completed", "blocked", "cancelled"} {
		if n, ok := rep.ProgressByStatus[status]; ok {
			fmt.Fprintf(out, "  %-12s %d\n", status, n)
		}
	}
	fmt.Fprintln(out, "Workers by availability:")
	for _, status := range []string{"available", "busy", "on_break", "unavailable"} {
		if n, ok := rep.WorkersByAvailability[status]; ok {
			fmt.Fprintf(out, "  %-12s %d\n", status, n)
		}
	}
	fmt.Fprintf(out, "Average efficiency rating: %.1f%%\n", rep.AvgEfficiency)
	if len(rep.TopPerformers) > 0 {
		fmt.Fprintln(out, "Top performers:")
		for i, p := range rep.TopPerformers {
			fmt.Fprintf(out, "  %2d. %-20s %-16s completed=%d efficiency=%.0f%%\n",
				i+1, p.WorkerID, p.StageName, p.CompletedTasks, p.EfficiencyRating)
		}
	}
}
