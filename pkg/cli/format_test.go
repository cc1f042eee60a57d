package cli

import (
	"strings"
	"testing"
)

func TestStatusColors(t *testing.T) {
	if !colorEnabled {
		t.Skip("NO_COLOR set")
	}
	tests := []struct {
		status string
		code   string
	}{
		{"synced", "\033[32m"},
		{"passed", "\033[32m"},
		{"build", "\033[33m"},
		{"repaired", "\033[33m"},
		{"error", "\033[31m"},
		{"failed", "\033[31m"},
	}
	for _, tt := range tests {
		got := Status(tt.status)
		if !strings.HasPrefix(got, tt.code) || !strings.Contains(got, tt.status) {
			t.Errorf("Status(%q) = %q, want prefix %q", tt.status, got, tt.code)
		}
	}
}

func TestStatusUnknownPassesThrough(t *testing.T) {
	if got := Status("pending"); got != "pending" {
		t.Errorf("Status(pending) = %q, want unchanged", got)
	}
}
