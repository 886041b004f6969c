package report_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/internal/report"
)

func row(id, username, cluster string, rank float64) pipeline.Row {
	r := pipeline.Row{ID: id, Username: username}
	if cluster != "" {
		r.ClusterID = "c-" + strings.ToLower(cluster)
		r.ScoreClusterID = r.ClusterID
		r.ClusterName = cluster
		r.ScoreRank = model.Number{Value: rank, Valid: true}
	}
	return r
}

func fixtureRows() []pipeline.Row {
	return []pipeline.Row{
		row("1", "ada", "PKM", 3),
		row("1", "ada", "Dev", 40),
		row("2", "bob", "Dev", 7),
		row("3", "cy", "", 0),
		row("4", "dee", "PKM", 1),
		row("4", "dee", "Dev", 90),
		row("4", "dee", "Design", 2),
		row("5", "eve", "", 0),
	}
}

func TestClusterCounts(t *testing.T) {
	t.Parallel()

	got := report.ClusterCounts(fixtureRows())
	want := []report.ClusterCount{{Name: "Dev", Count: 3}, {Name: "PKM", Count: 2}, {Name: "Design", Count: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestUnclusteredAndUnique(t *testing.T) {
	t.Parallel()

	rows := fixtureRows()
	if n := report.Unclustered(rows); n != 2 {
		t.Fatalf("expected 2 unclustered accounts, got %d", n)
	}
	if got := report.UniqueCommunities(rows); !reflect.DeepEqual(got, []string{"Design", "Dev", "PKM"}) {
		t.Fatalf("unexpected communities: %v", got)
	}
}

func TestCommunityMembers(t *testing.T) {
	t.Parallel()

	members := report.CommunityMembers(fixtureRows(), "dev")
	var names []string
	for _, m := range members {
		names = append(names, m.Username)
	}
	if !reflect.DeepEqual(names, []string{"bob", "ada", "dee"}) {
		t.Fatalf("expected rank order, got %v", names)
	}
	avg, ok := report.AverageRank(members)
	if !ok || avg != (7+40+90)/3.0 {
		t.Fatalf("unexpected average rank %v (%t)", avg, ok)
	}
	if members[0].ProfileURL() != "https://twitter.com/bob" {
		t.Fatalf("unexpected profile url %q", members[0].ProfileURL())
	}
	if len(report.CommunityMembers(fixtureRows(), "nope")) != 0 {
		t.Fatalf("expected no members for unknown community")
	}
}

func TestMultiCommunity(t *testing.T) {
	t.Parallel()

	got := report.MultiCommunity(fixtureRows(), 2)
	want := []report.MultiMember{
		{Username: "dee", Communities: []string{"PKM", "Design", "Dev"}},
		{Username: "ada", Communities: []string{"PKM", "Dev"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v got %#v", want, got)
	}
}

func TestUserCommunities(t *testing.T) {
	t.Parallel()

	got := report.UserCommunities(fixtureRows(), "DEE")
	if len(got) != 3 || got[0].Community != "PKM" || got[2].Community != "Dev" {
		t.Fatalf("unexpected memberships: %#v", got)
	}
}

func TestBuildAndRender(t *testing.T) {
	t.Parallel()

	s := report.Build("jack", 5, fixtureRows(), report.Options{Top: 2, Community: "PKM", MinCommunities: 3, Member: "ada"})
	if s.Unique != 3 || len(s.Communities) != 2 {
		t.Fatalf("top should trim the distribution but not the unique count: %#v", s)
	}
	s.Narrative = "Mostly note-takers."

	var buf bytes.Buffer
	if err := report.Render(&buf, s); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"@jack follows 5 accounts",
		"2 accounts are not included in any community",
		"3 unique communities",
		"Members of PKM",
		"https://twitter.com/dee",
		"Accounts in 3 or more communities",
		"Communities of @ada",
		"Mostly note-takers.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Design ") && strings.Index(out, "Design") < strings.Index(out, "Members of PKM") {
		t.Fatalf("top=2 should have dropped Design from the distribution:\n%s", out)
	}
}
