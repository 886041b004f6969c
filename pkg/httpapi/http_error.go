package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/community-landscape/pkg/pipeline/core"
	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
)

// problemEnvelope covers the error bodies returned by the social-graph API
// ({"title","detail","type"}, optionally nested under "errors") and the plain
// {"error": "..."} / {"detail": "..."} shapes used by the scoring service.
type problemEnvelope struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Error  string `json:"error"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	} `json:"errors"`
}

// HTTPError is a sanitized summary of a non-2xx API response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Service    string
	Op         string
	StatusCode int
	Status     string
	Title      string
	Detail     string

	// Snippet is a redacted, truncated hint for unstructured responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	service := strings.TrimSpace(e.Service)
	if service == "" {
		service = "api"
	}
	parts := []string{
		fmt.Sprintf("%s error: op=%s status=%s", service, strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if t := strings.TrimSpace(e.Title); t != "" {
		parts = append(parts, fmt.Sprintf("title=%q", t))
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		parts = append(parts, fmt.Sprintf("detail=%q", d))
	}
	if s := strings.TrimSpace(e.Snippet); s != "" {
		parts = append(parts, "body="+s)
	}
	return strings.Join(parts, " ")
}

// Unauthorized reports a 401/403 response.
func (e *HTTPError) Unauthorized() bool {
	return e != nil && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// NewHTTPError builds a sanitized HTTPError for resp. Rate-limit and server-side
// failures are wrapped in core.TransientError so worker pools may retry them.
func NewHTTPError(service, op string, resp *http.Response, body []byte) error {
	h := &HTTPError{
		Service: service,
		Op:      op,
	}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env problemEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.Title = redact.Secrets(firstNonEmpty(env.Title, firstProblemTitle(env)))
		h.Detail = redact.Truncate(redact.Secrets(firstNonEmpty(env.Detail, env.Error, firstProblemDetail(env))), 256)
	}
	if h.Title == "" && h.Detail == "" {
		// Fallback: include a small, redacted hint only.
		h.Snippet = redactAndTruncate(body)
	}

	if h.StatusCode == http.StatusTooManyRequests || h.StatusCode/100 == 5 {
		return &core.TransientError{Err: h}
	}
	return h
}

func firstProblemTitle(env problemEnvelope) string {
	for _, e := range env.Errors {
		if strings.TrimSpace(e.Title) != "" {
			return e.Title
		}
	}
	return ""
}

func firstProblemDetail(env problemEnvelope) string {
	for _, e := range env.Errors {
		if strings.TrimSpace(e.Detail) != "" {
			return e.Detail
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
