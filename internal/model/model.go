// Package model holds the records exchanged between the follow-list retriever, the scoring
// client and the enrichment engine.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FollowedAccount is one account in a user's follow-list.
type FollowedAccount struct {
	ID              string
	Username        string
	Name            string
	Description     string
	Location        string
	URL             string
	ProfileImageURL string
	Verified        bool
	Protected       bool
	CreatedAt       time.Time

	FollowersCount int64
	FollowingCount int64
	TweetCount     int64
	ListedCount    int64
}

// Cluster is a community as reported by the scoring service.
type Cluster struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// ScoreEntry is one account's standing in one cluster.
type ScoreEntry struct {
	ClusterID ID     `json:"cluster_id"`
	Rank      Number `json:"rank"`
	Score     Number `json:"score"`
	CreatedAt string `json:"created_at"`
}

// ID is an opaque identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: want string or number, got %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Number is a numeric value that may arrive as a JSON number or numeric string.
// Valid is false when the field was absent or null.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*n = Number{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.String()), nil
}

// String formats the number compactly ("12", "0.5"); empty when invalid.
func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// ParseNumber is the inverse of Number.String.
func ParseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Number{}, err
	}
	return Number{Value: v, Valid: true}, nil
}

// DedupeAccounts drops repeated IDs, keeping the first occurrence and the input order.
func DedupeAccounts(in []FollowedAccount) []FollowedAccount {
	seen := make(map[string]struct{}, len(in))
	out := make([]FollowedAccount, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}
