package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		release string
		rev     string
		want    string
	}{
		{
			name:    "unstamped",
			release: "dev",
			rev:     "",
			want:    "agentbus dev (" + runtime.Version() + ")",
		},
		{
			name:    "short revision kept whole",
			release: "v1.0.0",
			rev:     "abc1234",
			want:    "agentbus v1.0.0 @abc1234 (" + runtime.Version() + ")",
		},
		{
			name:    "long revision truncated",
			release: "v1.0.0",
			rev:     "0123456789abcdef0123456789abcdef01234567",
			want:    "agentbus v1.0.0 @0123456789ab (" + runtime.Version() + ")",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.release, tt.rev); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringNeverEmpty(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "agentbus ") {
		t.Errorf("banner = %q, want agentbus prefix", s)
	}
	if !strings.Contains(s, runtime.Version()) {
		t.Errorf("banner = %q, want the Go runtime version", s)
	}
}
