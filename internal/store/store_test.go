package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/internal/store"
)

func sampleArtifact() store.Artifact {
	following := []model.FollowedAccount{
		{ID: "1", Username: "ada", Name: "Ada", FollowersCount: 120, CreatedAt: time.Date(2011, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "2", Username: "bob", Description: "builds, ships", Verified: true},
	}
	rows := []pipeline.Row{
		pipeline.PlaceholderRow(following[1]),
	}
	r := pipeline.PlaceholderRow(following[0])
	r.ScoreClusterID = "10"
	r.ScoreRank = model.Number{Value: 4, Valid: true}
	r.ClusterID = "10"
	r.ClusterName = "Tools for Thought"
	rows = append([]pipeline.Row{r}, rows...)
	return store.Artifact{
		Username:  "Ada_Lovelace",
		UserID:    "99",
		Following: following,
		Rows:      rows,
		CreatedAt: time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	csvStore, err := store.NewCSVDir(t.TempDir())
	if err != nil {
		t.Fatalf("csv store: %v", err)
	}
	sqliteStore, err := store.OpenSQLite(filepath.Join(t.TempDir(), "landscape.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = sqliteStore.Close()
	})
	return map[string]store.Store{"csv": csvStore, "sqlite": sqliteStore}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleArtifact()

			if _, err := s.Load(ctx, want.Username); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound before save, got %v", err)
			}
			if err := s.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := s.Load(ctx, "@ada_lovelace")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Username != "ada_lovelace" || got.UserID != "99" {
				t.Fatalf("unexpected identity: %q %q", got.Username, got.UserID)
			}
			if !got.CreatedAt.Equal(want.CreatedAt) {
				t.Fatalf("created_at: want %s got %s", want.CreatedAt, got.CreatedAt)
			}
			if !reflect.DeepEqual(got.Following, want.Following) {
				t.Fatalf("following changed:\nwant %#v\ngot  %#v", want.Following, got.Following)
			}
			if !reflect.DeepEqual(got.Rows, want.Rows) {
				t.Fatalf("rows changed:\nwant %#v\ngot  %#v", want.Rows, got.Rows)
			}
		})
	}
}

func TestStore_SaveReplacesAndDelete(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleArtifact()
			if err := s.Save(ctx, a); err != nil {
				t.Fatalf("save: %v", err)
			}
			a.Rows = a.Rows[:1]
			if err := s.Save(ctx, a); err != nil {
				t.Fatalf("resave: %v", err)
			}
			got, err := s.Load(ctx, a.Username)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got.Rows) != 1 {
				t.Fatalf("expected resave to replace rows, got %d", len(got.Rows))
			}

			other := sampleArtifact()
			other.Username = "bob"
			if err := s.Save(ctx, other); err != nil {
				t.Fatalf("save other: %v", err)
			}
			names, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !reflect.DeepEqual(names, []string{"ada_lovelace", "bob"}) {
				t.Fatalf("unexpected list: %v", names)
			}

			if err := s.Delete(ctx, a.Username); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Load(ctx, a.Username); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(ctx, a.Username); err != nil {
				t.Fatalf("second delete should be a no-op: %v", err)
			}
			if _, err := s.Load(ctx, "bob"); err != nil {
				t.Fatalf("delete removed the wrong artifact: %v", err)
			}
		})
	}
}

func TestCSVDir_FileLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.NewCSVDir(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Save(context.Background(), sampleArtifact()); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, name := range []string{"ada_lovelace--following.csv", "ada_lovelace--community_info.csv", "ada_lovelace--meta.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	// A follow-list without community info is an incomplete artifact.
	if err := os.Remove(filepath.Join(dir, "ada_lovelace--community_info.csv")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Load(context.Background(), "ada_lovelace"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	names, err := s.List(context.Background())
	if err != nil || len(names) != 0 {
		t.Fatalf("expected no complete artifacts, got %v (%v)", names, err)
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Jack", want: "jack"},
		{in: " @Some_User ", want: "some_user"},
		{in: "", wantErr: true},
		{in: "../etc/passwd", wantErr: true},
		{in: "has space", wantErr: true},
	}
	for _, tc := range tests {
		got, err := store.NormalizeUsername(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: want %q got %q (%v)", tc.in, tc.want, got, err)
		}
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.Open(store.KindSQLite, dir)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_ = s.Close()
	if _, err := os.Stat(store.SQLitePath(dir)); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
	if _, err := store.Open("parquet", dir); err == nil {
		t.Fatalf("expected unknown store error")
	}
}
