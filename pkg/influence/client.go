// Package influence is the client for the per-account community/influence scoring service.
//
// Every call resolves to one of three outcomes: a scored Response, a NotIndexed Response
// (the service answered with its {"error": ...} marker), or an error. Errors are either an
// *httpapi.HTTPError / network failure, or ErrMalformedResponse when a body cannot be
// interpreted. Not-indexed is a business answer, never an error.
package influence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/httpapi"
)

const (
	// DefaultBaseURL is the Borg influence API.
	DefaultBaseURL = "https://api.borg.id"
	// DefaultAuthScheme prefixes the API key in the Authorization header.
	DefaultAuthScheme = "Token"
	// DefaultPlatform namespaces account IDs in the influencer path.
	DefaultPlatform = "twitter"

	serviceName = "influence"
)

// ErrMalformedResponse is returned for bodies that are neither a score payload nor the
// not-indexed marker.
var ErrMalformedResponse = errors.New("malformed scoring response")

// Kind discriminates a successful scoring call.
type Kind int

const (
	KindScored Kind = iota
	KindNotIndexed
)

func (k Kind) String() string {
	switch k {
	case KindScored:
		return "scored"
	case KindNotIndexed:
		return "not_indexed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Response is the outcome of one scoring call.
type Response struct {
	Kind     Kind
	Clusters []model.Cluster
	Scores   []model.ScoreEntry
	// Message carries the service's not-indexed explanation.
	Message string
}

// Scorer scores one account.
type Scorer interface {
	Score(ctx context.Context, accountID string) (Response, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, accountID string) (Response, error)

func (f ScorerFunc) Score(ctx context.Context, accountID string) (Response, error) {
	return f(ctx, accountID)
}

// Config configures NewClient.
type Config struct {
	BaseURL    string
	APIKey     string
	AuthScheme string
	Platform   string
	CAPath     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the scoring service. It is safe for concurrent use.
type Client struct {
	baseURL       *url.URL
	authorization string
	platform      string
	http          *http.Client
}

// NewClient constructs a scoring client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := httpapi.ParseBaseURL(raw, "influence")
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("influence API key is required")
	}
	scheme := strings.TrimSpace(cfg.AuthScheme)
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	platform := strings.TrimSpace(cfg.Platform)
	if platform == "" {
		platform = DefaultPlatform
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc, err = httpapi.NewHTTPClient(cfg.CAPath, cfg.Timeout)
		if err != nil {
			return nil, err
		}
	}
	return &Client{
		baseURL:       base,
		authorization: scheme + " " + key,
		platform:      platform,
		http:          hc,
	}, nil
}

type scoreBody struct {
	Error        json.RawMessage     `json:"error"`
	Clusters     *[]model.Cluster    `json:"clusters"`
	LatestScores *[]model.ScoreEntry `json:"latest_scores"`
}

// Score fetches the clusters and latest scores for accountID.
func (c *Client) Score(ctx context.Context, accountID string) (Response, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Response{}, fmt.Errorf("account id is required")
	}

	u := httpapi.Resolve(c.baseURL, fmt.Sprintf("influence/influencers/%s/", url.PathEscape(c.platform+":"+accountID)))
	resp, b, err := httpapi.Get(ctx, c.http, u, c.authorization)
	if err != nil {
		return Response{}, err
	}

	ok := resp.StatusCode/100 == 2
	if !ok && resp.StatusCode != http.StatusNotFound {
		return Response{}, httpapi.NewHTTPError(serviceName, "score", resp, b)
	}

	out, perr := ParseResponse(b)
	if perr != nil {
		if !ok {
			// A 404 without the not-indexed marker is a transport-level failure.
			return Response{}, httpapi.NewHTTPError(serviceName, "score", resp, b)
		}
		return Response{}, perr
	}
	if !ok && out.Kind != KindNotIndexed {
		return Response{}, httpapi.NewHTTPError(serviceName, "score", resp, b)
	}
	return out, nil
}

// ParseResponse interprets a scoring body.
func ParseResponse(body []byte) (Response, error) {
	var raw scoreBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if msg, present := errorMessage(raw.Error); present {
		return Response{Kind: KindNotIndexed, Message: msg}, nil
	}
	if raw.Clusters == nil && raw.LatestScores == nil {
		return Response{}, fmt.Errorf("%w: neither clusters nor latest_scores present", ErrMalformedResponse)
	}

	out := Response{Kind: KindScored}
	if raw.Clusters != nil {
		out.Clusters = *raw.Clusters
	}
	if raw.LatestScores != nil {
		out.Scores = *raw.LatestScores
	}
	return out, nil
}

// errorMessage reports whether the error marker is present and renders it as text.
func errorMessage(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s), true
	}
	return string(raw), true
}
