package style

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary = lipgloss.Color("#0EA5E9")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Cyan    = lipgloss.Color("#06B6D4")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	Banner = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(Dim).
			Italic(true)

	Bold    = lipgloss.NewStyle().Bold(true).Foreground(White)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	OnTime   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Warning  = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	Breached = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Done     = lipgloss.NewStyle().Foreground(Cyan)

	PriorityBadge = lipgloss.NewStyle().Foreground(Cyan)
	Emergency     = lipgloss.NewStyle().Foreground(Red).Bold(true)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(1, 2).
			MarginBottom(1)

	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(Dim).
			PaddingRight(2)

	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Red).
			Foreground(Red).
			Padding(0, 1).
			MarginTop(1)

	SuccessBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Foreground(Green).
			Padding(0, 1).
			MarginTop(1)

	Key = lipgloss.NewStyle().Foreground(Dim).Width(14)
	Val = lipgloss.NewStyle().Foreground(White)
)

// ForStatus picks the text style for an SLA status string.
func ForStatus(status string) lipgloss.Style {
	switch status {
	case "on-time":
		return OnTime
	case "warning":
		return Warning
	case "breached":
		return Breached
	case "completed":
		return Done
	default:
		return DimText
	}
}

func StatusDot(status string) string {
	return ForStatus(status).Render("●")
}

func ServiceDot(status string) string {
	switch status {
	case "up":
		return OnTime.Render("●")
	case "down":
		return Breached.Render("●")
	default:
		return DimText.Render("●")
	}
}

func Priority(p string) lipgloss.Style {
	if p == "emergency" {
		return Emergency
	}
	return PriorityBadge
}
