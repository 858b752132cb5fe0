package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/validate"
	"techmatch/cli/style"
)

var evalNow string

var evalCmd = &cobra.Command{
	Use:   "eval <file.json>",
	Short: "Evaluate a set of stage timers offline",
	Long: `Evaluate a set of stage timers without contacting the server.

The file holds either a JSON array of timers or an object
{"timers": [...], "now": "2026-03-14T09:00:00Z"}.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalNow, "now", "", "evaluation instant (RFC3339), defaults to the file's now or the current time")
	rootCmd.AddCommand(evalCmd)
}

type evalFile struct {
	Timers []model.SLATimer `json:"timers"`
	Now    *time.Time       `json:"now,omitempty"`
}

// parseEvalFile accepts a bare timer array or an object with timers and now.
func parseEvalFile(data []byte) (*evalFile, error) {
	data = bytes.TrimSpace(data)
	var f evalFile
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &f.Timers); err != nil {
			return nil, fmt.Errorf("parsing timers: %w", err)
		}
		return &f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing timers: %w", err)
	}
	return &f, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	f, err := parseEvalFile(data)
	if err != nil {
		return err
	}

	now := time.Now()
	if f.Now != nil {
		now = *f.Now
	}
	if evalNow != "" {
		now, err = time.Parse(time.RFC3339, evalNow)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
	}

	fmt.Print(renderEval(f.Timers, now))
	return nil
}

func renderEval(timers []model.SLATimer, now time.Time) string {
	s := sla.Summarize(timers, now)
	status := string(s.Status)

	out := fmt.Sprintf("%s %s\n", style.StatusDot(status), style.ForStatus(status).Render(status))
	out += fmt.Sprintf("  %s %s\n", style.Key.Render("Evaluated"), now.Format(time.RFC3339))
	if s.ActiveStage != "" {
		out += fmt.Sprintf("  %s %s (%s left of %s)\n", style.Key.Render("Active"), s.ActiveStage, s.Remaining, sla.FormatMinutes(s.TargetMinutes))
	}
	if len(timers) > 0 {
		out += "\n"
	}
	for _, t := range timers {
		out += timerLine(t, s) + "\n"
	}

	findings := validate.Timers("", timers, model.DefaultSLAPolicy()).Findings
	if len(findings) > 0 {
		out += "\n"
	}
	for _, f := range findings {
		mark := style.DimText.Render("i")
		switch f.Severity {
		case model.SeverityError:
			mark = style.Breached.Render("✗")
		case model.SeverityWarning:
			mark = style.Warning.Render("!")
		}
		out += fmt.Sprintf("  %s %s %s\n", mark, f.Message, style.DimText.Render(f.Field))
	}
	return out
}
