package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"techmatch/api/hub"
	"techmatch/api/sla"
	"techmatch/cli/style"
)

var watchJob string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live SLA status changes and breaches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newWatchModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchJob, "job", "", "only show events for this job")
	rootCmd.AddCommand(watchCmd)
}

// --- Messages ---

type watchConnected struct{ ch chan tea.Msg }
type watchEvent struct {
	evt hub.Event
	at  time.Time
}
type watchClosed struct{ err error }

// --- Model ---

type watchModel struct {
	viewport viewport.Model
	lines    []string
	ready    bool
	eventCh  chan tea.Msg
	err      error
}

func newWatchModel() watchModel {
	return watchModel{lines: []string{}}
}

func (m watchModel) Init() tea.Cmd {
	return connectWatch()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 3
		m.viewport = viewport.New(msg.Width, msg.Height-headerHeight)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.ready = true
		return m, nil

	case watchConnected:
		m.eventCh = msg.ch
		return m, nextWatchEvent(m.eventCh)

	case watchEvent:
		m.lines = append(m.lines, formatWatchEvent(msg.evt, msg.at))
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		}
		return m, nextWatchEvent(m.eventCh)

	case watchClosed:
		m.err = msg.err
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return style.ErrorBox.Render(fmt.Sprintf("Error: %s", m.err))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		style.Banner.Render("⏱ WATCH"),
		"  ",
		style.DimText.Render("q to quit • ↑↓ to scroll"),
	)

	if !m.ready || m.eventCh == nil {
		return header + "\n\n" + style.DimText.Render("Connecting...")
	}
	if len(m.lines) == 0 {
		return header + "\n" + style.DimText.Render("Waiting for SLA events...")
	}
	return header + "\n" + m.viewport.View()
}

// --- Commands ---

func connectWatch() tea.Cmd {
	return func() tea.Msg {
		var h http.Header
		if apiToken != "" {
			h = http.Header{"Authorization": {"Bearer " + apiToken}}
		}
		conn, _, err := websocket.DefaultDialer.Dial(client.WebSocketURL(watchJob), h)
		if err != nil {
			return watchClosed{err: fmt.Errorf("websocket connect: %w", err)}
		}

		ch := make(chan tea.Msg, 32)
		go func() {
			defer conn.Close()
			defer close(ch)
			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					ch <- watchClosed{err: fmt.Errorf("websocket read: %w", err)}
					return
				}
				var evt hub.Event
				if err := json.Unmarshal(message, &evt); err != nil {
					continue
				}
				ch <- watchEvent{evt: evt, at: time.Now()}
			}
		}()
		return watchConnected{ch: ch}
	}
}

func nextWatchEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return watchClosed{}
		}
		return msg
	}
}

// formatWatchEvent renders one hub event as a single terminal line.
func formatWatchEvent(evt hub.Event, at time.Time) string {
	payload, _ := evt.Payload.(map[string]interface{})
	str := func(k string) string {
		s, _ := payload[k].(string)
		return s
	}
	num := func(k string) float64 {
		f, _ := payload[k].(float64)
		return f
	}

	ts := style.DimText.Render(at.Format("15:04:05"))
	job := style.DimText.Render(padRight(shortID(evt.JobID), 9))

	switch evt.Type {
	case hub.TypeSLAStatus:
		status := str("status")
		line := fmt.Sprintf("%s %s %s %s", ts, style.StatusDot(status), job, style.ForStatus(status).Render(status))
		if stage := str("activeStage"); stage != "" {
			line += fmt.Sprintf("  %s, %s left", stage, sla.FormatMinutes(num("remainingMinutes")))
		}
		return line
	case hub.TypeSLABreach:
		return fmt.Sprintf("%s %s %s %s", ts, style.Breached.Render("✗"), job,
			style.Breached.Render(fmt.Sprintf("%s breached (target %s)", str("stage"), sla.FormatMinutes(num("targetMinutes")))))
	case hub.TypeJobStage:
		return fmt.Sprintf("%s %s %s %s %s", ts, style.DimText.Render("▶"), job, str("stage"), str("action"))
	case hub.TypeJobStatus:
		return fmt.Sprintf("%s %s %s job %s → %s", ts, style.DimText.Render("◆"), job, str("from"), str("to"))
	default:
		return fmt.Sprintf("%s %s %s %s", ts, style.DimText.Render("·"), job, evt.Type)
	}
}
