package model_test

import (
	"encoding/json"
	"testing"

	"github.com/shpitdev/community-landscape/internal/model"
)

func TestScoreEntryDecodesLooseTypes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantID   model.ID
		wantRank string
	}{
		{name: "numbers", in: `{"cluster_id": 42, "rank": 7}`, wantID: "42", wantRank: "7"},
		{name: "strings", in: `{"cluster_id": "pkm", "rank": "12.5"}`, wantID: "pkm", wantRank: "12.5"},
		{name: "null rank", in: `{"cluster_id": "dev", "rank": null}`, wantID: "dev", wantRank: ""},
		{name: "missing rank", in: `{"cluster_id": "dev"}`, wantID: "dev", wantRank: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.ScoreEntry
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.ClusterID != tt.wantID {
				t.Fatalf("cluster_id: got %q want %q", got.ClusterID, tt.wantID)
			}
			if got.Rank.String() != tt.wantRank {
				t.Fatalf("rank: got %q want %q", got.Rank.String(), tt.wantRank)
			}
		})
	}
}

func TestIDRejectsObjects(t *testing.T) {
	var id model.ID
	if err := json.Unmarshal([]byte(`{"nested":1}`), &id); err == nil {
		t.Fatalf("expected error, got %q", id)
	}
}

func TestParseNumberRoundTrip(t *testing.T) {
	n, err := model.ParseNumber("3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !n.Valid || n.Value != 3 || n.String() != "3" {
		t.Fatalf("unexpected number: %#v", n)
	}
	empty, err := model.ParseNumber(" ")
	if err != nil || empty.Valid {
		t.Fatalf("expected invalid empty number, got %#v err=%v", empty, err)
	}
	if _, err := model.ParseNumber("abc"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDedupeAccounts(t *testing.T) {
	in := []model.FollowedAccount{
		{ID: "1", Username: "first"},
		{ID: "2", Username: "second"},
		{ID: "1", Username: "repeat"},
	}
	got := model.DedupeAccounts(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(got))
	}
	if got[0].Username != "first" || got[1].Username != "second" {
		t.Fatalf("unexpected order or winner: %#v", got)
	}
}
