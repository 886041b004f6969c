// Package mockapi implements an in-memory stand-in for the social-graph and scoring APIs.
// It records every call and the peak number of concurrent scoring requests, which makes it
// the fixture for pipeline tests and for local runs via cmd/mock-api.
package mockapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/social"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	Query  string
}

// ScoreReply is the canned response for one account's scoring request.
type ScoreReply struct {
	Status int
	Body   []byte
	// Delay holds the response back, to exercise concurrency and timeouts.
	Delay time.Duration
}

// Scored builds a 200 reply carrying clusters and scores.
func Scored(clusters []model.Cluster, scores []ScoreFixture) ScoreReply {
	if clusters == nil {
		clusters = []model.Cluster{}
	}
	if scores == nil {
		scores = []ScoreFixture{}
	}
	b, _ := json.Marshal(map[string]any{
		"clusters":      clusters,
		"latest_scores": scores,
	})
	return ScoreReply{Status: http.StatusOK, Body: b}
}

// NotIndexed builds the scoring service's not-indexed reply.
func NotIndexed(msg string) ScoreReply {
	b, _ := json.Marshal(map[string]any{"error": msg})
	return ScoreReply{Status: http.StatusOK, Body: b}
}

// Raw builds an arbitrary reply.
func Raw(status int, body string) ScoreReply {
	return ScoreReply{Status: status, Body: []byte(body)}
}

// ScoreFixture is the wire shape of one latest_scores entry.
type ScoreFixture struct {
	ClusterID string  `json:"cluster_id" yaml:"cluster_id"`
	Rank      float64 `json:"rank" yaml:"rank"`
	Score     float64 `json:"score,omitempty" yaml:"score"`
}

// Server implements the minimal API surface used by this module.
type Server struct {
	mu    sync.Mutex
	calls []Call

	socialAuthorization    string
	influenceAuthorization string

	usersByName map[string]social.User
	following   map[string][]social.User
	scores      map[string]ScoreReply

	// pageSize caps users per following page regardless of max_results.
	pageSize int

	scoreInFlight    int
	maxScoreInFlight int
}

// New constructs an empty mock server.
func New() *Server {
	return &Server{
		usersByName: make(map[string]social.User),
		following:   make(map[string][]social.User),
		scores:      make(map[string]ScoreReply),
	}
}

// RequireSocialToken enforces "Bearer <token>" on social-graph calls. Empty disables the check.
func (s *Server) RequireSocialToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socialAuthorization = ""
	if t := strings.TrimSpace(token); t != "" {
		s.socialAuthorization = "Bearer " + t
	}
}

// RequireInfluenceKey enforces "<scheme> <key>" on scoring calls. Empty key disables the check.
func (s *Server) RequireInfluenceKey(scheme, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.influenceAuthorization = ""
	if k := strings.TrimSpace(key); k != "" {
		s.influenceAuthorization = strings.TrimSpace(scheme) + " " + k
	}
}

// SetPageSize caps the number of users per following page. Zero uses max_results.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// AddUser registers a user for username lookup.
func (s *Server) AddUser(u social.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByName[strings.ToLower(u.Username)] = u
}

// SetFollowing sets the follow-list served for userID.
func (s *Server) SetFollowing(userID string, users []social.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.following[userID] = append([]social.User(nil), users...)
}

// SetScore sets the scoring reply for accountID. Accounts without a reply get NotIndexed.
func (s *Server) SetScore(accountID string, reply ScoreReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[accountID] = reply
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/", s.handleUsers)
	mux.HandleFunc("/influence/influencers/", s.handleInfluencer)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ScoreCalls counts scoring requests received.
func (s *Server) ScoreCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c.Path, "/influence/") {
			n++
		}
	}
	return n
}

// MaxScoreInFlight is the peak number of concurrent scoring requests observed.
func (s *Server) MaxScoreInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxScoreInFlight
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"title":  "Unauthorized",
			"detail": "Unauthorized",
			"status": http.StatusUnauthorized,
		})
		return false
	}
	return true
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	s.mu.Lock()
	expected := s.socialAuthorization
	s.mu.Unlock()
	if !s.authorize(w, r, expected) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// /2/users/by/username/{username}
	// /2/users/{id}/following
	rest := strings.TrimPrefix(r.URL.Path, "/2/users/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 3 && parts[0] == "by" && parts[1] == "username":
		s.serveLookup(w, parts[2])
	case len(parts) == 2 && parts[1] == "following":
		s.serveFollowing(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveLookup(w http.ResponseWriter, username string) {
	s.mu.Lock()
	u, ok := s.usersByName[strings.ToLower(username)]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []social.Problem{{
				Title:  "Not Found Error",
				Detail: "Could not find user with username: [" + username + "].",
				Type:   "https://api.twitter.com/2/problems/resource-not-found",
				Value:  username,
			}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": u})
}

func (s *Server) serveFollowing(w http.ResponseWriter, r *http.Request, userID string) {
	s.mu.Lock()
	users, ok := s.following[userID]
	pageSize := s.pageSize
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []social.Problem{{
				Title:  "Not Found Error",
				Detail: "Could not find user with id: [" + userID + "].",
				Type:   "https://api.twitter.com/2/problems/resource-not-found",
				Value:  userID,
			}},
		})
		return
	}

	limit := social.MaxPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("max_results")); err == nil && v > 0 {
		limit = v
	}
	if pageSize > 0 && pageSize < limit {
		limit = pageSize
	}
	offset := 0
	if tok := r.URL.Query().Get("pagination_token"); tok != "" {
		v, err := strconv.Atoi(strings.TrimPrefix(tok, "p"))
		if err != nil || v < 0 || v > len(users) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"errors": []social.Problem{{Title: "Invalid Request", Detail: "invalid pagination_token"}},
			})
			return
		}
		offset = v
	}

	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	meta := map[string]any{"result_count": end - offset}
	if end < len(users) {
		meta["next_token"] = "p" + strconv.Itoa(end)
	}
	body := map[string]any{"meta": meta}
	if end > offset {
		body["data"] = users[offset:end]
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleInfluencer(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	s.mu.Lock()
	expected := s.influenceAuthorization
	s.mu.Unlock()
	if !s.authorize(w, r, expected) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// /influence/influencers/{platform}:{id}/
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/influence/influencers/"), "/")
	_, accountID, ok := strings.Cut(key, ":")
	if !ok || accountID == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	reply, found := s.scores[accountID]
	s.scoreInFlight++
	if s.scoreInFlight > s.maxScoreInFlight {
		s.maxScoreInFlight = s.scoreInFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scoreInFlight--
		s.mu.Unlock()
	}()

	if !found {
		reply = NotIndexed("influencer not found")
	}
	if reply.Delay > 0 {
		t := time.NewTimer(reply.Delay)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return
		}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(reply.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
