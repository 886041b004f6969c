package redact_test

import (
	"strings"
	"testing"

	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     string
		mustDrop string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bearer", in: `request failed: Authorization: Bearer abc.def.ghi`, mustDrop: "abc.def.ghi"},
		{name: "token scheme", in: `header "Token s3cr3t" rejected`, mustDrop: "s3cr3t"},
		{name: "kv", in: "BORG_API_KEY=hunter2 missing", mustDrop: "hunter2"},
		{name: "plain", in: "  nothing to hide  ", want: "nothing to hide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redact.Secrets(tt.in)
			if tt.mustDrop != "" && strings.Contains(got, tt.mustDrop) {
				t.Fatalf("secret leaked: %q", got)
			}
			if tt.mustDrop == "" && got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := redact.Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := redact.Truncate("abc", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
