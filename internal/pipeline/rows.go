package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/schema"
)

// Row is the stable output schema: one followed account joined to at most one
// (score entry, cluster) pair. Score and cluster fields are empty on placeholder rows.
type Row struct {
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
	FollowersCount  int64
	FollowingCount  int64
	TweetCount      int64
	ListedCount     int64

	ScoreClusterID string
	ScoreRank      model.Number
	ScoreValue     model.Number
	ScoreCreatedAt string

	ClusterID          string
	ClusterName        string
	ClusterSlug        string
	ClusterDescription string
}

// Clustered reports whether the row carries a cluster.
func (r Row) Clustered() bool {
	return r.ClusterID != ""
}

type column struct {
	field schema.Field
	get   func(Row) string
	set   func(*Row, string) error
}

func stringCol(name string, ptr func(*Row) *string) column {
	return column{
		field: schema.Field{Name: name, Type: schema.TypeString, Nullable: true},
		get:   func(r Row) string { return *ptr(&r) },
		set: func(r *Row, v string) error {
			*ptr(r) = v
			return nil
		},
	}
}

func boolCol(name string, ptr func(*Row) *bool) column {
	return column{
		field: schema.Field{Name: name, Type: schema.TypeBool},
		get:   func(r Row) string { return strconv.FormatBool(*ptr(&r)) },
		set: func(r *Row, v string) error {
			if strings.TrimSpace(v) == "" {
				*ptr(r) = false
				return nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			*ptr(r) = b
			return nil
		},
	}
}

func intCol(name string, ptr func(*Row) *int64) column {
	return column{
		field: schema.Field{Name: name, Type: schema.TypeInt},
		get:   func(r Row) string { return strconv.FormatInt(*ptr(&r), 10) },
		set: func(r *Row, v string) error {
			if strings.TrimSpace(v) == "" {
				*ptr(r) = 0
				return nil
			}
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return err
			}
			*ptr(r) = n
			return nil
		},
	}
}

func numberCol(name string, ptr func(*Row) *model.Number) column {
	return column{
		field: schema.Field{Name: name, Type: schema.TypeFloat, Nullable: true},
		get:   func(r Row) string { return ptr(&r).String() },
		set: func(r *Row, v string) error {
			n, err := model.ParseNumber(v)
			if err != nil {
				return err
			}
			*ptr(r) = n
			return nil
		},
	}
}

func timeCol(name string, ptr func(*Row) *time.Time) column {
	return column{
		field: schema.Field{Name: name, Type: schema.TypeTimestamp, Nullable: true},
		get: func(r Row) string {
			t := *ptr(&r)
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format(time.RFC3339)
		},
		set: func(r *Row, v string) error {
			if strings.TrimSpace(v) == "" {
				*ptr(r) = time.Time{}
				return nil
			}
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
			if err != nil {
				return err
			}
			*ptr(r) = t
			return nil
		},
	}
}

// columns is the single source of truth for the row schema. Score and cluster columns are
// namespaced so they can never collide with account fields.
var columns = []column{
	stringCol("id", func(r *Row) *string { return &r.ID }),
	stringCol("username", func(r *Row) *string { return &r.Username }),
	stringCol("name", func(r *Row) *string { return &r.Name }),
	stringCol("description", func(r *Row) *string { return &r.Description }),
	stringCol("location", func(r *Row) *string { return &r.Location }),
	stringCol("url", func(r *Row) *string { return &r.URL }),
	stringCol("profile_image_url", func(r *Row) *string { return &r.ProfileImageURL }),
	boolCol("verified", func(r *Row) *bool { return &r.Verified }),
	boolCol("protected", func(r *Row) *bool { return &r.Protected }),
	timeCol("created_at", func(r *Row) *time.Time { return &r.CreatedAt }),
	intCol("public_metrics.followers_count", func(r *Row) *int64 { return &r.FollowersCount }),
	intCol("public_metrics.following_count", func(r *Row) *int64 { return &r.FollowingCount }),
	intCol("public_metrics.tweet_count", func(r *Row) *int64 { return &r.TweetCount }),
	intCol("public_metrics.listed_count", func(r *Row) *int64 { return &r.ListedCount }),

	stringCol("latest_scores.cluster_id", func(r *Row) *string { return &r.ScoreClusterID }),
	numberCol("latest_scores.rank", func(r *Row) *model.Number { return &r.ScoreRank }),
	numberCol("latest_scores.score", func(r *Row) *model.Number { return &r.ScoreValue }),
	stringCol("latest_scores.created_at", func(r *Row) *string { return &r.ScoreCreatedAt }),

	stringCol("clusters.id", func(r *Row) *string { return &r.ClusterID }),
	stringCol("clusters.name", func(r *Row) *string { return &r.ClusterName }),
	stringCol("clusters.slug", func(r *Row) *string { return &r.ClusterSlug }),
	stringCol("clusters.description", func(r *Row) *string { return &r.ClusterDescription }),
}

// Header returns the stable column ordering for Row.
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.field.Name
	}
	return out
}

// Contract describes the Row schema for storage backends.
func Contract() schema.Contract {
	fields := make([]schema.Field, len(columns))
	for i, c := range columns {
		fields[i] = c.field
	}
	return schema.Contract{Name: "community_rows", Key: []string{"id", "clusters.id"}, Fields: fields}
}

// Values renders r in Header() order.
func (r Row) Values() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.get(r)
	}
	return out
}

// RowFromValues is the inverse of Row.Values. get returns the raw value for a column name
// and whether the column was present at all.
func RowFromValues(get func(name string) (string, bool)) (Row, error) {
	return fromValues(columns, get)
}

// AccountContract describes the follow-list schema: the account prefix of Contract().
func AccountContract() schema.Contract {
	fields := make([]schema.Field, len(accountColumns))
	for i, c := range accountColumns {
		fields[i] = c.field
	}
	return schema.Contract{Name: "following", Key: []string{"id"}, Fields: fields}
}

// AccountValues renders a in AccountContract() order.
func AccountValues(a model.FollowedAccount) []string {
	r := PlaceholderRow(a)
	out := make([]string, len(accountColumns))
	for i, c := range accountColumns {
		out[i] = c.get(r)
	}
	return out
}

// AccountFromValues is the inverse of AccountValues.
func AccountFromValues(get func(name string) (string, bool)) (model.FollowedAccount, error) {
	r, err := fromValues(accountColumns, get)
	if err != nil {
		return model.FollowedAccount{}, err
	}
	return r.Account(), nil
}

func fromValues(cols []column, get func(name string) (string, bool)) (Row, error) {
	var r Row
	for _, c := range cols {
		v, ok := get(c.field.Name)
		if !ok {
			continue
		}
		if err := c.set(&r, v); err != nil {
			return Row{}, fmt.Errorf("column %q: %w", c.field.Name, err)
		}
	}
	return r, nil
}

// ErrIntegrity marks a scoring response that violates the service contract.
var ErrIntegrity = errors.New("scoring data integrity fault")

// IntegrityError reports a score entry that cannot be joined to its cluster.
type IntegrityError struct {
	AccountID string
	ClusterID string
	Reason    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("account %s: cluster %q: %s", e.AccountID, e.ClusterID, e.Reason)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// PlaceholderRow is the single row emitted for an account with no cluster membership.
func PlaceholderRow(a model.FollowedAccount) Row {
	return Row{
		ID:              a.ID,
		Username:        a.Username,
		Name:            a.Name,
		Description:     a.Description,
		Location:        a.Location,
		URL:             a.URL,
		ProfileImageURL: a.ProfileImageURL,
		Verified:        a.Verified,
		Protected:       a.Protected,
		CreatedAt:       a.CreatedAt,
		FollowersCount:  a.FollowersCount,
		FollowingCount:  a.FollowingCount,
		TweetCount:      a.TweetCount,
		ListedCount:     a.ListedCount,
	}
}

// Flatten turns one account's scoring response into rows: one per score entry, or a single
// placeholder row when the account is not indexed or has no scores. Every score must
// reference a cluster listed in the same response, at most once.
func Flatten(a model.FollowedAccount, resp influence.Response) ([]Row, error) {
	base := PlaceholderRow(a)
	if resp.Kind == influence.KindNotIndexed || len(resp.Scores) == 0 {
		return []Row{base}, nil
	}

	byID := make(map[model.ID]model.Cluster, len(resp.Clusters))
	for _, c := range resp.Clusters {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
	}

	seen := make(map[model.ID]struct{}, len(resp.Scores))
	rows := make([]Row, 0, len(resp.Scores))
	for i, s := range resp.Scores {
		if s.ClusterID == "" {
			return nil, &IntegrityError{AccountID: a.ID, Reason: fmt.Sprintf("score %d has no cluster_id", i)}
		}
		c, ok := byID[s.ClusterID]
		if !ok {
			return nil, &IntegrityError{AccountID: a.ID, ClusterID: s.ClusterID.String(), Reason: "not in response cluster list"}
		}
		if _, dup := seen[s.ClusterID]; dup {
			return nil, &IntegrityError{AccountID: a.ID, ClusterID: s.ClusterID.String(), Reason: "scored more than once"}
		}
		seen[s.ClusterID] = struct{}{}

		row := base
		row.ScoreClusterID = s.ClusterID.String()
		row.ScoreRank = s.Rank
		row.ScoreValue = s.Score
		row.ScoreCreatedAt = s.CreatedAt
		row.ClusterID = c.ID.String()
		row.ClusterName = c.Name
		row.ClusterSlug = c.Slug
		row.ClusterDescription = c.Description
		rows = append(rows, row)
	}
	return rows, nil
}

// SortRows orders rows by username, account ID, then rank (unranked last) and cluster ID,
// giving persisted artifacts a deterministic layout.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if ua, ub := strings.ToLower(a.Username), strings.ToLower(b.Username); ua != ub {
			return ua < ub
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.ScoreRank.Valid != b.ScoreRank.Valid {
			return a.ScoreRank.Valid
		}
		if a.ScoreRank.Value != b.ScoreRank.Value {
			return a.ScoreRank.Value < b.ScoreRank.Value
		}
		return a.ClusterID < b.ClusterID
	})
}
