package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/cli/api"
	"techmatch/cli/style"
)

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Short:   "List jobs with their SLA status",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runJobs,
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a job and its stage timers",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by job status (open, in_progress, done, cancelled)")
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(jobCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	list, err := client.ListJobs(jobsStatus)
	if err != nil {
		return fmt.Errorf("failed to fetch jobs: %w", err)
	}

	if len(list.Jobs) == 0 {
		fmt.Println(style.DimText.Render("No jobs."))
		return nil
	}

	fmt.Println(style.Banner.Render("⏱ TECHMATCH") + style.Subtitle.Render(fmt.Sprintf("  %d of %d job(s)", len(list.Jobs), list.Total)))
	fmt.Println()

	header := fmt.Sprintf("  %-2s  %-10s %-28s %-10s %-12s %-10s %s",
		"", "ID", "TITLE", "PRIORITY", "STAGE", "SLA", "LEFT")
	fmt.Println(style.TableHeader.Render(header))

	for _, j := range list.Jobs {
		fmt.Println(jobRow(j))
	}
	fmt.Println()
	return nil
}

func jobRow(j api.Job) string {
	status := string(j.SLA.Status)
	title := j.Title
	if len(title) > 27 {
		title = title[:26] + "…"
	}
	stage := string(j.SLA.ActiveStage)
	if stage == "" {
		stage = "—"
	}
	left := j.SLA.Remaining
	if left == "" {
		left = "—"
	}
	return fmt.Sprintf("  %s  %s %s %s %s %s %s",
		style.StatusDot(status),
		style.DimText.Render(padRight(shortID(j.ID), 10)),
		style.Bold.Render(padRight(title, 28)),
		style.Priority(j.Priority).Render(padRight(j.Priority, 10)),
		padRight(stage, 12),
		style.ForStatus(status).Render(padRight(status, 10)),
		left,
	)
}

func runJob(cmd *cobra.Command, args []string) error {
	job, err := client.GetJob(args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	fmt.Println(renderJobCard(job))
	return nil
}

func renderJobCard(job *api.JobDetail) string {
	var b strings.Builder

	status := string(job.SLA.Status)
	b.WriteString(style.Bold.Render(job.Title))
	b.WriteString("  ")
	b.WriteString(style.Priority(job.Priority).Render(job.Priority))
	b.WriteString("  " + style.ForStatus(status).Render("● "+status))
	b.WriteString("\n\n")

	kvLine := func(k, v string) {
		b.WriteString(style.Key.Render(k))
		b.WriteString(style.Val.Render(v))
		b.WriteString("\n")
	}

	kvLine("ID", job.ID)
	kvLine("Status", string(job.Status))
	if job.Customer != "" {
		kvLine("Customer", job.Customer)
	}
	if job.Address != "" {
		kvLine("Address", job.Address)
	}
	if job.TechnicianID != "" {
		kvLine("Technician", job.TechnicianID)
	}
	kvLine("Created", job.CreatedAt.Local().Format("2006-01-02 15:04"))

	if len(job.Timers) > 0 {
		b.WriteString("\n")
		for _, t := range job.Timers {
			b.WriteString(timerLine(t, job.SLA))
			b.WriteString("\n")
		}
	}

	return style.CardStyle.BorderForeground(style.ForStatus(status).GetForeground()).Render(b.String())
}

func timerLine(t model.SLATimer, s sla.Summary) string {
	name := padRight(string(t.Stage), 12)
	target := "target " + sla.FormatMinutes(t.TargetMinutes)
	switch {
	case t.IsCompleted():
		took := sla.FormatMinutes(t.CompletedAt.Sub(t.StartedAt).Minutes())
		mark := style.Done.Render("✓ done in " + took)
		if t.Breached {
			mark = style.Breached.Render("✓ done in " + took + " (breached)")
		}
		return fmt.Sprintf("  %s %s  %s", style.DimText.Render(name), mark, style.DimText.Render(target))
	case t.Breached:
		return fmt.Sprintf("  %s %s  %s", style.Breached.Render(name), style.Breached.Render("✗ breached"), style.DimText.Render(target))
	default:
		left := sla.FormatMinutes(sla.TimeRemaining(t, s.EvaluatedAt)) + " left"
		return fmt.Sprintf("  %s %s  %s", style.ForStatus(string(s.Status)).Render(name), left, style.DimText.Render(target))
	}
}
