// Package follow retrieves the complete follow-list of one account.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/social"
)

// ErrCursorLoop is returned when the API hands back a cursor it already served.
var ErrCursorLoop = errors.New("pagination cursor repeated")

// PageSource fetches one page of a following listing.
type PageSource interface {
	FollowingPage(ctx context.Context, userID, cursor string) (social.Page, error)
}

// Options tunes a Retriever.
type Options struct {
	// MaxPages stops retrieval with an error after this many pages. 0 means unlimited.
	MaxPages int
	// OnPage is called after each page with the running account count.
	OnPage func(page, accounts int)
	Logger *log.Logger
}

// Retriever pages through a following listing sequentially.
type Retriever struct {
	pages PageSource
	opts  Options
}

func New(pages PageSource, opts Options) *Retriever {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Retriever{pages: pages, opts: opts}
}

// Following returns everyone userID follows, in API page order, without duplicate IDs.
// Any page failure aborts the whole retrieval; there is no partial result.
func (r *Retriever) Following(ctx context.Context, userID string) ([]model.FollowedAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	var out []model.FollowedAccount
	seen := make(map[string]struct{})
	seenCursors := make(map[string]struct{})
	cursor := ""
	duplicates := 0
	for page := 1; ; page++ {
		if r.opts.MaxPages > 0 && page > r.opts.MaxPages {
			return nil, fmt.Errorf("following %s: exceeded %d pages", userID, r.opts.MaxPages)
		}
		p, err := r.pages.FollowingPage(ctx, userID, cursor)
		if err != nil {
			return nil, fmt.Errorf("following %s page %d: %w", userID, page, err)
		}
		for _, u := range p.Users {
			if _, dup := seen[u.ID]; dup {
				duplicates++
				continue
			}
			seen[u.ID] = struct{}{}
			out = append(out, FromUser(u))
		}
		if r.opts.OnPage != nil {
			r.opts.OnPage(page, len(out))
		}
		if p.NextCursor == "" {
			break
		}
		if _, loop := seenCursors[p.NextCursor]; loop {
			return nil, fmt.Errorf("following %s page %d: %w", userID, page, ErrCursorLoop)
		}
		seenCursors[p.NextCursor] = struct{}{}
		cursor = p.NextCursor
	}
	if duplicates > 0 {
		r.opts.Logger.Printf("following %s: dropped %d duplicate accounts across pages", userID, duplicates)
	}
	return out, nil
}

// FromUser converts a wire user record into a FollowedAccount.
func FromUser(u social.User) model.FollowedAccount {
	return model.FollowedAccount{
		ID:              strings.TrimSpace(u.ID),
		Username:        u.Username,
		Name:            u.Name,
		Description:     u.Description,
		Location:        u.Location,
		URL:             u.URL,
		ProfileImageURL: u.ProfileImageURL,
		Verified:        u.Verified,
		Protected:       u.Protected,
		CreatedAt:       u.CreatedAt,
		FollowersCount:  u.PublicMetrics.FollowersCount,
		FollowingCount:  u.PublicMetrics.FollowingCount,
		TweetCount:      u.PublicMetrics.TweetCount,
		ListedCount:     u.PublicMetrics.ListedCount,
	}
}
