package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitcohort/gitcohort-go/internal/models"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <username>",
	Short: "Fetch one user's contribution summary for a date window",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	today := time.Now().Format("2006-01-02")
	fetchCmd.Flags().String("from", "2020-01-01", "window start date (YYYY-MM-DD, inclusive)")
	fetchCmd.Flags().String("to", today, "window end date (YYYY-MM-DD, inclusive)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

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

	summary, err := p.Run(ctx, args[0], window)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

func printSummary(s *models.ContributionSummary) {
	fmt.Printf("%s (@%s)  %s\n", s.Identity.DisplayName, s.Identity.Username,
		models.Window{Start: s.WindowStart, End: s.WindowEnd})
	fmt.Printf("  Projects:        %d personal, %d contributed\n",
		s.PersonalProjectCount, s.ContributedProjectCount)
	fmt.Printf("  Commits:         %d\n", s.CommitCount)
	fmt.Printf("  Merge requests:  %d %s\n", s.ChangeRequestCount(), formatStates(s.ChangeRequestsByState))
	fmt.Printf("  Issues:          %d %s\n", s.IssueCount(), formatStates(s.IssuesByState))
	fmt.Printf("  Comments:        %d (%d on MRs, %d on issues)\n",
		s.CommentCount(), s.ChangeRequestCommentCount, s.IssueCommentCount)
	fmt.Printf("  Total:           %d\n", s.TotalContributions())

	if s.Partial {
		fmt.Println("  Partial result:")
		for _, reason := range s.PartialReasons {
			fmt.Printf("    - %s\n", reason)
		}
	}

	if len(s.Projects) > 0 {
		fmt.Println("  Per project:")
		for _, p := range s.Projects {
			fmt.Printf("    %-40s commits=%d mrs=%d issues=%d comments=%d\n",
				p.ProjectName, p.Commits, p.ChangeRequests, p.Issues, p.CommentCount)
		}
	}
}

func formatStates(byState map[string]int) string {
	if len(byState) == 0 {
		return ""
	}
	states := make([]string, 0, len(byState))
	for state := range byState {
		states = append(states, state)
	}
	sort.Strings(states)

	out := "("
	for i, state := range states {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %d", state, byState[state])
	}
	return out + ")"
}
