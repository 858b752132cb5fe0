package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"techmatch/cli/api"
	"techmatch/cli/style"
)

var completeCmd = &cobra.Command{
	Use:   "complete <job> <stage>",
	Short: "Complete a stage and start the next one",
	Args:  cobra.ExactArgs(2),
	RunE:  runComplete,
}

func init() {
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(newCompleteModel(args[0], args[1]))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	cm := finalModel.(completeModel)
	if cm.err != nil {
		return cm.err
	}
	if cm.job != nil {
		fmt.Println(renderJobCard(cm.job))
	}
	return nil
}

// --- Messages ---

type completeDone struct{ job *api.JobDetail }
type completeErr struct{ err error }

// --- Model ---

type completeModel struct {
	jobID   string
	stage   string
	spinner spinner.Model
	job     *api.JobDetail
	err     error
}

func newCompleteModel(jobID, stage string) completeModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(style.Yellow)
	return completeModel{
		jobID:   jobID,
		stage:   stage,
		spinner: s,
	}
}

func (m completeModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		doComplete(m.jobID, m.stage),
	)
}

func (m completeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case completeDone:
		m.job = msg.job
		return m, tea.Quit

	case completeErr:
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m completeModel) View() string {
	if m.err != nil {
		return style.ErrorBox.Render(fmt.Sprintf("✗ Could not complete %s: %s", m.stage, m.err)) + "\n"
	}
	if m.job != nil {
		next := "job done"
		if m.job.SLA.ActiveStage != "" {
			next = "next: " + string(m.job.SLA.ActiveStage)
		}
		return style.SuccessBox.Render(fmt.Sprintf("✓ %s completed (%s)", m.stage, next)) + "\n"
	}
	return fmt.Sprintf("  %s Completing %s on %s...\n", m.spinner.View(), style.Bold.Render(m.stage), shortID(m.jobID))
}

func doComplete(jobID, stage string) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(200 * time.Millisecond) // brief delay so spinner is visible
		job, err := client.CompleteStage(jobID, stage)
		if err != nil {
			return completeErr{err: err}
		}
		return completeDone{job: job}
	}
}
