package style

import "testing"

func TestForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"on-time", OnTime.Render("x")},
		{"warning", Warning.Render("x")},
		{"breached", Breached.Render("x")},
		{"completed", Done.Render("x")},
		{"no-sla", DimText.Render("x")},
		{"", DimText.Render("x")},
	}
	for _, tt := range tests {
		if got := ForStatus(tt.status).Render("x"); got != tt.want {
			t.Errorf("ForStatus(%q) rendered %q, want %q", tt.status, got, tt.want)
		}
	}
}
