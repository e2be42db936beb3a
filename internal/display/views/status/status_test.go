package status

import (
	"strings"
	"testing"
)

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{"connecting", Model{Width: 100}, []string{"Connecting", "No session", "0 tracked"}},
		{"live", Model{Width: 100, Connected: true, SessionName: "Spin 7h", Participants: 12, Seq: 40}, []string{"Live", "Spin 7h", "12 tracked", "seq 40"}},
		{"error", Model{Width: 100, Err: "handoff unavailable"}, []string{"handoff unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.model.View()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("View() missing %q:\n%s", w, out)
				}
			}
		})
	}
}
