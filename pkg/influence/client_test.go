package influence_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/httpapi"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/mockapi"
	"github.com/shpitdev/community-landscape/pkg/pipeline/core"
)

func newClient(t *testing.T, srv *mockapi.Server) *influence.Client {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := influence.NewClient(influence.Config{BaseURL: ts.URL, APIKey: "borg-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestScore(t *testing.T) {
	t.Parallel()

	srv := mockapi.New()
	srv.RequireInfluenceKey(influence.DefaultAuthScheme, "borg-key")
	srv.SetScore("1", mockapi.Scored(
		[]model.Cluster{{ID: "10", Name: "PKM"}, {ID: "11", Name: "Dev"}},
		[]mockapi.ScoreFixture{{ClusterID: "10", Rank: 3}, {ClusterID: "11", Rank: 40}},
	))
	srv.SetScore("2", mockapi.Scored(nil, nil))
	srv.SetScore("3", mockapi.NotIndexed("user not indexed"))
	srv.SetScore("4", mockapi.Raw(http.StatusInternalServerError, "boom"))
	srv.SetScore("5", mockapi.Raw(http.StatusOK, `{"unexpected": true}`))
	srv.SetScore("6", mockapi.Raw(http.StatusNotFound, `{"error": "Influencer not found"}`))
	srv.SetScore("7", mockapi.Raw(http.StatusUnauthorized, `{"error": "bad token"}`))
	client := newClient(t, srv)
	ctx := context.Background()

	t.Run("scored", func(t *testing.T) {
		got, err := client.Score(ctx, "1")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got.Kind != influence.KindScored || len(got.Clusters) != 2 || len(got.Scores) != 2 {
			t.Fatalf("unexpected response: %#v", got)
		}
		if got.Scores[1].ClusterID != "11" || got.Scores[1].Rank.String() != "40" {
			t.Fatalf("unexpected score: %#v", got.Scores[1])
		}
	})

	t.Run("empty clusters", func(t *testing.T) {
		got, err := client.Score(ctx, "2")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got.Kind != influence.KindScored || len(got.Scores) != 0 {
			t.Fatalf("unexpected response: %#v", got)
		}
	})

	t.Run("not indexed", func(t *testing.T) {
		got, err := client.Score(ctx, "3")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got.Kind != influence.KindNotIndexed || got.Message != "user not indexed" {
			t.Fatalf("unexpected response: %#v", got)
		}
	})

	t.Run("not indexed via 404", func(t *testing.T) {
		got, err := client.Score(ctx, "6")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got.Kind != influence.KindNotIndexed {
			t.Fatalf("unexpected response: %#v", got)
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		_, err := client.Score(ctx, "4")
		var te *core.TransientError
		var he *httpapi.HTTPError
		if !errors.As(err, &te) || !errors.As(err, &he) || he.StatusCode != 500 {
			t.Fatalf("expected transient HTTPError, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := client.Score(ctx, "5")
		if !errors.Is(err, influence.ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("auth error is not mistaken for not indexed", func(t *testing.T) {
		_, err := client.Score(ctx, "7")
		var he *httpapi.HTTPError
		if !errors.As(err, &he) || !he.Unauthorized() {
			t.Fatalf("expected unauthorized HTTPError, got %v", err)
		}
	})
}

func TestScoreRejectsWrongKey(t *testing.T) {
	t.Parallel()

	srv := mockapi.New()
	srv.RequireInfluenceKey("Token", "other")
	client := newClient(t, srv)
	_, err := client.Score(context.Background(), "1")
	var he *httpapi.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    influence.Kind
		wantErr bool
	}{
		{name: "scores without clusters", body: `{"latest_scores":[{"cluster_id":1,"rank":2}]}`, want: influence.KindScored},
		{name: "null error is not a marker", body: `{"error":null,"clusters":[]}`, want: influence.KindScored},
		{name: "object error", body: `{"error":{"code":"missing"}}`, want: influence.KindNotIndexed},
		{name: "array body", body: `[]`, wantErr: true},
		{name: "empty object", body: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := influence.ParseResponse([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, influence.ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.want {
				t.Fatalf("kind: got %s want %s", got.Kind, tt.want)
			}
		})
	}
}
