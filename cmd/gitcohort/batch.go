package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitcohort/gitcohort-go/internal/batch"
	"github.com/gitcohort/gitcohort-go/internal/export"
	"github.com/gitcohort/gitcohort-go/internal/grading"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fetch a cohort of users, grade them, and export CSV",
	Long: `Runs the contribution pipeline for every user in a roster CSV (or a
comma-separated --users list), computes cohort-relative grades, and
writes one CSV row per user in roster order.`,
	RunE: runBatch,
}

func init() {
	today := time.Now().Format("2006-01-02")
	batchCmd.Flags().String("roster", "", "roster CSV with username[,display_name] rows")
	batchCmd.Flags().String("users", "", "comma-separated usernames (alternative to --roster)")
	batchCmd.Flags().String("from", "2020-01-01", "window start date (YYYY-MM-DD, inclusive)")
	batchCmd.Flags().String("to", today, "window end date (YYYY-MM-DD, inclusive)")
	batchCmd.Flags().StringP("out", "o", "", "output CSV path (default: stdout)")
	batchCmd.MarkFlagsMutuallyExclusive("roster", "users")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rosterPath, _ := cmd.Flags().GetString("roster")
	usersFlag, _ := cmd.Flags().GetString("users")

	var roster []models.RosterEntry
	switch {
	case rosterPath != "":
		var err error
		roster, err = export.ReadRosterFile(rosterPath)
		if err != nil {
			return err
		}
	case usersFlag != "":
		roster = export.ParseUsernameList(usersFlag)
	default:
		return fmt.Errorf("either --roster or --users is required")
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	window, err := parseWindow(from, to)
	if err != nil {
		return err
	}

	c, p, err := buildStack(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	usernames := make([]string, len(roster))
	for i, entry := range roster {
		usernames[i] = entry.Username
	}

	orchestrator := batch.New(p, c, logger, cfg.Batch.Concurrency)
	result, err := orchestrator.Run(ctx, usernames, window, func(completed, total int) {
		fmt.Fprintf(os.Stderr, "\rFetching users... %d/%d", completed, total)
		if completed == total {
			fmt.Fprintln(os.Stderr)
		}
	})
	if err != nil {
		return err
	}

	engine := grading.New(cfg.Grading.GoodThreshold, cfg.Grading.BelowThreshold)
	report := engine.Grade(result)

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output %s: %w", path, err)
		}
		defer f.Close()
		out = f
		fmt.Fprintf(os.Stderr, "Writing results to %s\n", path)
	}

	if err := export.WriteCSV(out, roster, result, report); err != nil {
		return err
	}

	if failed := result.FailedCount(); failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d users failed:\n", failed, len(result.Usernames))
		for _, username := range result.Usernames {
			if outcome := result.Outcomes[username]; !outcome.OK() {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", username, outcome.ErrKind)
			}
		}
	}
	return nil
}
