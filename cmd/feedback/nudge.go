package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/feedback-reviews/internal/notify"
	"github.com/spf13/cobra"
)

var nudgeCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Run a reminder pass against the database",
	Long: `Run a reminder pass directly, without going through the HTTP API.
The report is printed as JSON. The command fails when any delivery failed.`,
}

var nudgeDueSoonCmd = &cobra.Command{
	Use:   "due-soon",
	Short: "Remind reviewers of assignments due within the configured window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNudge(cmd, (*notify.Scheduler).RunDueSoon)
	},
}

var nudgeOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Remind reviewers of overdue assignments (configured weekday only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNudge(cmd, (*notify.Scheduler).RunOverdue)
	},
}

func init() {
	nudgeCmd.AddCommand(nudgeDueSoonCmd, nudgeOverdueCmd)
	rootCmd.AddCommand(nudgeCmd)
}

func runNudge(cmd *cobra.Command, pass func(*notify.Scheduler, context.Context) (*notify.Report, error)) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger, false, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler(cmd.Context())
	if err != nil {
		return err
	}
	report, err := pass(sched, cmd.Context())
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func printReport(cmd *cobra.Command, report *notify.Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if report.Failed > 0 {
		return fmt.Errorf("%d reminder(s) failed", report.Failed)
	}
	return nil
}
