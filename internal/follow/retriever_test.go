package follow_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/community-landscape/internal/follow"
	"github.com/shpitdev/community-landscape/pkg/mockapi"
	"github.com/shpitdev/community-landscape/pkg/social"
)

type scriptedPages struct {
	pages []social.Page
	errAt int
	calls []string
}

func (s *scriptedPages) FollowingPage(_ context.Context, _ string, cursor string) (social.Page, error) {
	s.calls = append(s.calls, cursor)
	i := len(s.calls) - 1
	if s.errAt > 0 && i == s.errAt {
		return social.Page{}, fmt.Errorf("%w: truncated body", social.ErrMalformedPage)
	}
	return s.pages[i], nil
}

func users(ids ...string) []social.User {
	out := make([]social.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, social.User{ID: id, Username: "user" + id})
	}
	return out
}

func TestFollowingExhaustsPagesInOrder(t *testing.T) {
	t.Parallel()

	src := &scriptedPages{pages: []social.Page{
		{Users: users("1", "2"), NextCursor: "c1"},
		{Users: users("3"), NextCursor: "c2"},
		{Users: users("4", "5")},
	}}
	pagesSeen := 0
	r := follow.New(src, follow.Options{OnPage: func(page, _ int) { pagesSeen = page }})

	got, err := r.Following(context.Background(), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 accounts, got %d", len(got))
	}
	for i, a := range got {
		if want := fmt.Sprint(i + 1); a.ID != want {
			t.Fatalf("account %d: got id %q want %q", i, a.ID, want)
		}
	}
	if fmt.Sprint(src.calls) != "[ c1 c2]" {
		t.Fatalf("unexpected cursors: %q", src.calls)
	}
	if pagesSeen != 3 {
		t.Fatalf("expected OnPage for 3 pages, got %d", pagesSeen)
	}
}

func TestFollowingDropsRepeatedAccounts(t *testing.T) {
	t.Parallel()

	src := &scriptedPages{pages: []social.Page{
		{Users: users("1", "2"), NextCursor: "c1"},
		{Users: users("2", "3")},
	}}
	got, err := follow.New(src, follow.Options{}).Following(context.Background(), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[2].ID != "3" {
		t.Fatalf("unexpected accounts: %#v", got)
	}
}

func TestFollowingAbortsOnPageFailure(t *testing.T) {
	t.Parallel()

	src := &scriptedPages{
		pages: []social.Page{{Users: users("1"), NextCursor: "c1"}, {}},
		errAt: 1,
	}
	got, err := follow.New(src, follow.Options{}).Following(context.Background(), "100")
	if !errors.Is(err, social.ErrMalformedPage) {
		t.Fatalf("expected ErrMalformedPage, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no partial result, got %d accounts", len(got))
	}
}

func TestFollowingDetectsCursorLoop(t *testing.T) {
	t.Parallel()

	src := &scriptedPages{pages: []social.Page{
		{Users: users("1"), NextCursor: "same"},
		{Users: users("2"), NextCursor: "same"},
	}}
	_, err := follow.New(src, follow.Options{}).Following(context.Background(), "100")
	if !errors.Is(err, follow.ErrCursorLoop) {
		t.Fatalf("expected ErrCursorLoop, got %v", err)
	}
}

func TestFollowingMaxPages(t *testing.T) {
	t.Parallel()

	src := &scriptedPages{pages: []social.Page{
		{Users: users("1"), NextCursor: "a"},
		{Users: users("2"), NextCursor: "b"},
	}}
	if _, err := follow.New(src, follow.Options{MaxPages: 1}).Following(context.Background(), "100"); err == nil {
		t.Fatalf("expected page cap error")
	}
}

func TestFollowingAgainstMockAPI(t *testing.T) {
	t.Parallel()

	srv := mockapi.New()
	srv.SetPageSize(3)
	srv.SetFollowing("100", users("1", "2", "3", "4", "5", "6", "7"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := social.NewClient(social.Config{BaseURL: ts.URL, BearerToken: "t"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := follow.New(client, follow.Options{}).Following(context.Background(), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 7 || got[0].Username != "user1" || got[6].ID != "7" {
		t.Fatalf("unexpected accounts: %#v", got)
	}

	_, err = follow.New(client, follow.Options{}).Following(context.Background(), "missing")
	if !errors.Is(err, social.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
