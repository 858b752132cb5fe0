package timeline

import (
	"fmt"
	"strings"
)

// PlainFormatter renders events one per line for terminals.
type PlainFormatter struct {
	// Layout is the timestamp layout; "15:04:05" when empty.
	Layout string
}

func (f *PlainFormatter) Format(events []Event) string {
	layout := f.Layout
	if layout == "" {
		layout = "15:04:05"
	}
	var b strings.Builder
	for _, evt := range events {
		fmt.Fprintf(&b, "%s %s %s", evt.Timestamp.Format(layout), actionIcon(evt.Action), evt.Message)
		if evt.Source != "" {
			fmt.Fprintf(&b, " (%s)", evt.Source)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func actionIcon(action string) string {
	switch action {
	case ActionStageStarted:
		return "▶"
	case ActionStageCompleted:
		return "✓"
	case ActionBreached:
		return "✗"
	case ActionStatusChanged:
		return "•"
	case ActionAssigned:
		return "→"
	default:
		return "·"
	}
}
