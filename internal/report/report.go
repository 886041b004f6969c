// Package report aggregates enriched rows into the community landscape of one follow-list.
package report

import (
	"sort"
	"strings"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
)

// ClusterCount is the number of followed accounts in one community.
type ClusterCount struct {
	Name  string
	Count int
}

// Member is one followed account's standing in a community.
type Member struct {
	Username  string
	Name      string
	Rank      model.Number
	Score     model.Number
	Followers int64
}

// ProfileURL links to the member's public profile.
func (m Member) ProfileURL() string {
	return "https://twitter.com/" + m.Username
}

// MultiMember is an account that belongs to several communities.
type MultiMember struct {
	Username    string
	Communities []string
}

// ClusterCounts counts rows per community name, largest first and ties by name.
func ClusterCounts(rows []pipeline.Row) []ClusterCount {
	counts := make(map[string]int)
	for _, r := range rows {
		if r.Clustered() {
			counts[r.ClusterName]++
		}
	}
	out := make([]ClusterCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, ClusterCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Unclustered counts accounts that belong to no community.
func Unclustered(rows []pipeline.Row) int {
	clustered := make(map[string]bool)
	for _, r := range rows {
		clustered[r.ID] = clustered[r.ID] || r.Clustered()
	}
	n := 0
	for _, ok := range clustered {
		if !ok {
			n++
		}
	}
	return n
}

// UniqueCommunities returns the distinct community names, sorted.
func UniqueCommunities(rows []pipeline.Row) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		if !r.Clustered() {
			continue
		}
		if _, ok := seen[r.ClusterName]; ok {
			continue
		}
		seen[r.ClusterName] = struct{}{}
		out = append(out, r.ClusterName)
	}
	sort.Strings(out)
	return out
}

// CommunityMembers lists the accounts in the named community (case-insensitive), best rank
// first. Unranked members sort last.
func CommunityMembers(rows []pipeline.Row, community string) []Member {
	var out []Member
	for _, r := range rows {
		if !r.Clustered() || !strings.EqualFold(r.ClusterName, community) {
			continue
		}
		out = append(out, Member{
			Username:  r.Username,
			Name:      r.Name,
			Rank:      r.ScoreRank,
			Score:     r.ScoreValue,
			Followers: r.FollowersCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankLess(out[i].Rank, out[j].Rank, out[i].Username, out[j].Username)
	})
	return out
}

// AverageRank is the mean rank of members that have one.
func AverageRank(members []Member) (float64, bool) {
	sum, n := 0.0, 0
	for _, m := range members {
		if m.Rank.Valid {
			sum += m.Rank.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// MultiCommunity returns accounts in at least min communities, most communities first.
// Each account's communities are ordered by rank.
func MultiCommunity(rows []pipeline.Row, min int) []MultiMember {
	byUser := make(map[string][]pipeline.Row)
	var order []string
	for _, r := range rows {
		if !r.Clustered() {
			continue
		}
		if _, ok := byUser[r.Username]; !ok {
			order = append(order, r.Username)
		}
		byUser[r.Username] = append(byUser[r.Username], r)
	}

	var out []MultiMember
	for _, u := range order {
		rs := byUser[u]
		if len(rs) < min {
			continue
		}
		out = append(out, MultiMember{Username: u, Communities: communityNames(rs)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Communities) != len(out[j].Communities) {
			return len(out[i].Communities) > len(out[j].Communities)
		}
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

// Membership is one community an account belongs to.
type Membership struct {
	Community string
	Rank      model.Number
	Score     model.Number
}

// UserCommunities lists the communities of one followed account, best rank first.
func UserCommunities(rows []pipeline.Row, username string) []Membership {
	var rs []pipeline.Row
	for _, r := range rows {
		if r.Clustered() && strings.EqualFold(r.Username, username) {
			rs = append(rs, r)
		}
	}
	sortByRank(rs)
	out := make([]Membership, len(rs))
	for i, r := range rs {
		out[i] = Membership{Community: r.ClusterName, Rank: r.ScoreRank, Score: r.ScoreValue}
	}
	return out
}

func communityNames(rs []pipeline.Row) []string {
	sortByRank(rs)
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.ClusterName
	}
	return names
}

func sortByRank(rs []pipeline.Row) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rankLess(rs[i].ScoreRank, rs[j].ScoreRank, rs[i].ClusterName, rs[j].ClusterName)
	})
}

func rankLess(a, b model.Number, ta, tb string) bool {
	if a.Valid != b.Valid {
		return a.Valid
	}
	if a.Valid && a.Value != b.Value {
		return a.Value < b.Value
	}
	return strings.ToLower(ta) < strings.ToLower(tb)
}
