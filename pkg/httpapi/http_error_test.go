package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/shpitdev/community-landscape/pkg/pipeline/core"
)

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantContains  string
		wantAbsent    string
	}{
		{
			name:         "problem envelope",
			status:       http.StatusUnauthorized,
			body:         `{"title":"Unauthorized","type":"about:blank","status":401,"detail":"Unauthorized"}`,
			wantContains: `title="Unauthorized"`,
		},
		{
			name:         "nested errors",
			status:       http.StatusBadRequest,
			body:         `{"errors":[{"title":"Invalid Request","detail":"max_results out of range"}]}`,
			wantContains: "max_results out of range",
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"title":"Too Many Requests"}`,
			wantTransient: true,
			wantContains:  "Too Many Requests",
		},
		{
			name:          "server error snippet is redacted",
			status:        http.StatusBadGateway,
			body:          "upstream said Bearer abc123 was bad",
			wantTransient: true,
			wantContains:  "Bearer <redacted>",
			wantAbsent:    "abc123",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Status: http.StatusText(tt.status)}
			err := NewHTTPError("twitter", "following", resp, []byte(tt.body))

			var te *core.TransientError
			if got := errors.As(err, &te); got != tt.wantTransient {
				t.Fatalf("transient=%t want %t (%v)", got, tt.wantTransient, err)
			}
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected *HTTPError, got %T", err)
			}
			if he.StatusCode != tt.status {
				t.Fatalf("status: got %d want %d", he.StatusCode, tt.status)
			}
			msg := err.Error()
			if !strings.Contains(msg, tt.wantContains) {
				t.Fatalf("error %q missing %q", msg, tt.wantContains)
			}
			if tt.wantAbsent != "" && strings.Contains(msg, tt.wantAbsent) {
				t.Fatalf("error %q leaked %q", msg, tt.wantAbsent)
			}
		})
	}
}

func TestHTTPErrorUnauthorized(t *testing.T) {
	err := NewHTTPError("twitter", "lookup", &http.Response{StatusCode: 403, Status: "403 Forbidden"}, nil)
	var he *HTTPError
	if !errors.As(err, &he) || !he.Unauthorized() {
		t.Fatalf("expected unauthorized HTTPError, got %v", err)
	}
}

func TestParseBaseURL(t *testing.T) {
	u, err := ParseBaseURL("api.twitter.com/", "social")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Resolve(u, "/2/users/1/following").String(); got != "https://api.twitter.com/2/users/1/following" {
		t.Fatalf("unexpected resolved url %q", got)
	}
	if _, err := ParseBaseURL("  ", "social"); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
