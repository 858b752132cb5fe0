package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"techmatch/api/sla"
	"techmatch/cli/style"
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Count open jobs by SLA status and show service health",
	Args:  cobra.NoArgs,
	RunE:  runOverview,
}

func init() {
	rootCmd.AddCommand(overviewCmd)
}

func runOverview(cmd *cobra.Command, args []string) error {
	o, err := client.Overview()
	if err != nil {
		return fmt.Errorf("failed to fetch overview: %w", err)
	}

	sub := fmt.Sprintf("  %d open job(s)", o.Jobs)
	if o.Stale {
		sub += " (stale)"
	}
	fmt.Println(style.Banner.Render("⏱ SLA") + style.Subtitle.Render(sub))

	for _, s := range []sla.Status{sla.StatusBreached, sla.StatusWarning, sla.StatusOnTime, sla.StatusCompleted, sla.StatusNoSLA} {
		fmt.Printf("  %s %s %d\n", style.StatusDot(string(s)), style.Key.Render(string(s)), o.Counts[s])
	}

	if rep, err := client.LatestReport(); err == nil {
		fmt.Println()
		fmt.Printf("  %s %s (%d jobs, %d breaches)\n", style.Key.Render("Last report"), rep.Date, rep.Jobs, rep.Breaches)
	}

	if h, err := client.Health(); err == nil {
		fmt.Println()
		for _, svc := range h.Services {
			line := fmt.Sprintf("  %s %s", style.ServiceDot(svc.Status), style.Key.Render(svc.Name))
			if svc.Details != "" {
				line += style.DimText.Render(svc.Details)
			}
			fmt.Println(line)
		}
	}
	fmt.Println()
	return nil
}
