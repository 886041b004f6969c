// Package social is a minimal client for the social-graph API (Twitter API v2): username
// lookup and the paginated following listing.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/pkg/httpapi"
)

const (
	// DefaultBaseURL is the public Twitter API host.
	DefaultBaseURL = "https://api.twitter.com"

	// MaxPageSize is the largest max_results the following endpoint accepts.
	MaxPageSize = 1000

	serviceName = "social-graph"
)

// UserFields is the user.fields expansion requested on every user-returning call.
var UserFields = []string{
	"created_at",
	"description",
	"location",
	"profile_image_url",
	"protected",
	"public_metrics",
	"url",
	"verified",
}

var (
	// ErrUserNotFound is returned when the API reports the requested account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrMalformedPage is returned when a response body cannot be interpreted.
	ErrMalformedPage = errors.New("malformed response")
)

// User is the wire shape of a user record.
type User struct {
	ID              string        `json:"id"`
	Username        string        `json:"username"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Location        string        `json:"location"`
	URL             string        `json:"url"`
	ProfileImageURL string        `json:"profile_image_url"`
	Verified        bool          `json:"verified"`
	Protected       bool          `json:"protected"`
	CreatedAt       time.Time     `json:"created_at"`
	PublicMetrics   PublicMetrics `json:"public_metrics"`
}

type PublicMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	TweetCount     int64 `json:"tweet_count"`
	ListedCount    int64 `json:"listed_count"`
}

// Page is one page of the following listing. NextCursor is empty on the final page.
type Page struct {
	Users      []User
	NextCursor string
}

// Problem is one entry of the API's partial-error array.
type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

type pageResponse struct {
	Data   *[]User   `json:"data"`
	Meta   *pageMeta `json:"meta"`
	Errors []Problem `json:"errors"`
}

type pageMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token"`
}

type userResponse struct {
	Data   *User     `json:"data"`
	Errors []Problem `json:"errors"`
}

// Client is an explicitly constructed social-graph client; credentials come from Config,
// never from process state.
type Client struct {
	baseURL  *url.URL
	token    string
	pageSize int
	http     *http.Client
}

// Config configures NewClient.
type Config struct {
	BaseURL     string
	BearerToken string
	// PageSize is max_results per following page. Defaults to MaxPageSize.
	PageSize int
	// CAPath optionally points at a PEM bundle to trust for TLS.
	CAPath  string
	Timeout time.Duration
	// HTTPClient overrides the transport entirely (tests, proxies).
	HTTPClient *http.Client
}

// NewClient constructs a client for the social-graph API.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := httpapi.ParseBaseURL(raw, "social-graph")
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.BearerToken)
	if token == "" {
		return nil, fmt.Errorf("social-graph bearer token is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc, err = httpapi.NewHTTPClient(cfg.CAPath, cfg.Timeout)
		if err != nil {
			return nil, err
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Client{
		baseURL:  base,
		token:    token,
		pageSize: pageSize,
		http:     hc,
	}, nil
}

// LookupUser resolves a username to its user record.
func (c *Client) LookupUser(ctx context.Context, username string) (User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return User{}, fmt.Errorf("username is required")
	}

	u := httpapi.Resolve(c.baseURL, fmt.Sprintf("2/users/by/username/%s", url.PathEscape(username)))
	q := url.Values{}
	q.Set("user.fields", strings.Join(UserFields, ","))
	u.RawQuery = q.Encode()

	resp, b, err := httpapi.Get(ctx, c.http, u, "Bearer "+c.token)
	if err != nil {
		return User{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if resp.StatusCode/100 != 2 {
		return User{}, httpapi.NewHTTPError(serviceName, "lookupUser", resp, b)
	}

	var out userResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return User{}, fmt.Errorf("%w: lookup user: %v", ErrMalformedPage, err)
	}
	if out.Data == nil {
		if len(out.Errors) > 0 {
			return User{}, fmt.Errorf("%w: %s (%s)", ErrUserNotFound, username, describeProblems(out.Errors))
		}
		return User{}, fmt.Errorf("%w: lookup user: missing data", ErrMalformedPage)
	}
	if strings.TrimSpace(out.Data.ID) == "" {
		return User{}, fmt.Errorf("%w: lookup user: missing id", ErrMalformedPage)
	}
	return *out.Data, nil
}

// FollowingPage fetches one page of the accounts userID follows. cursor is empty for the
// first page and the previous page's NextCursor afterwards.
func (c *Client) FollowingPage(ctx context.Context, userID, cursor string) (Page, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Page{}, fmt.Errorf("user id is required")
	}

	u := httpapi.Resolve(c.baseURL, fmt.Sprintf("2/users/%s/following", url.PathEscape(userID)))
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(c.pageSize))
	q.Set("user.fields", strings.Join(UserFields, ","))
	if strings.TrimSpace(cursor) != "" {
		q.Set("pagination_token", strings.TrimSpace(cursor))
	}
	u.RawQuery = q.Encode()

	resp, b, err := httpapi.Get(ctx, c.http, u, "Bearer "+c.token)
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return Page{}, fmt.Errorf("%w: id %s", ErrUserNotFound, userID)
	}
	if resp.StatusCode/100 != 2 {
		return Page{}, httpapi.NewHTTPError(serviceName, "following", resp, b)
	}
	return parsePage(userID, b)
}

func parsePage(userID string, body []byte) (Page, error) {
	var out pageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Page{}, fmt.Errorf("%w: following page: %v", ErrMalformedPage, err)
	}
	if out.Data == nil && out.Meta == nil {
		if len(out.Errors) > 0 {
			return Page{}, fmt.Errorf("%w: id %s (%s)", ErrUserNotFound, userID, describeProblems(out.Errors))
		}
		return Page{}, fmt.Errorf("%w: following page: neither data nor meta present", ErrMalformedPage)
	}

	page := Page{}
	if out.Data != nil {
		page.Users = *out.Data
	}
	for i, usr := range page.Users {
		if strings.TrimSpace(usr.ID) == "" {
			return Page{}, fmt.Errorf("%w: following page: user %d has no id", ErrMalformedPage, i)
		}
	}
	if out.Meta != nil {
		page.NextCursor = strings.TrimSpace(out.Meta.NextToken)
	}
	return page, nil
}

func describeProblems(ps []Problem) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		msg := strings.TrimSpace(p.Detail)
		if msg == "" {
			msg = strings.TrimSpace(p.Title)
		}
		if msg != "" {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
