// Package store persists enrichment artifacts keyed by username, so a rerun for the same
// user is answered from disk instead of the remote APIs.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
)

// ErrNotFound is returned by Load when no artifact exists for a username.
var ErrNotFound = errors.New("no cached artifact")

// Artifact is everything one run produced for a username.
type Artifact struct {
	Username  string
	UserID    string
	Following []model.FollowedAccount
	Rows      []pipeline.Row
	CreatedAt time.Time
}

// Store is a username-keyed artifact cache. The cache is authoritative: callers that want
// fresh data Delete first.
type Store interface {
	Load(ctx context.Context, username string) (Artifact, error)
	Save(ctx context.Context, a Artifact) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Kind names a Store backend.
type Kind string

const (
	KindCSV    Kind = "csv"
	KindSQLite Kind = "sqlite"
)

// Open returns the backend named by kind, rooted at dir.
func Open(kind Kind, dir string) (Store, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case "", KindCSV:
		return NewCSVDir(dir)
	case KindSQLite:
		return OpenSQLite(SQLitePath(dir))
	default:
		return nil, fmt.Errorf("unknown store %q (want csv or sqlite)", kind)
	}
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// NormalizeUsername trims a leading "@" and lowercases the handle. Handles are
// case-insensitive, and the result is safe to embed in a file name.
func NormalizeUsername(username string) (string, error) {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernameRe.MatchString(u) {
		return "", fmt.Errorf("invalid username %q", username)
	}
	return strings.ToLower(u), nil
}
