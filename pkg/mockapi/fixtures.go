package mockapi

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shpitdev/community-landscape/pkg/social"
	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML document served by cmd/mock-api.
//
// Example:
//
//	users:
//	  - {id: "1", username: alice, following: ["2", "3"]}
//	  - {id: "2", username: bob}
//	  - {id: "3", username: carol}
//	scores:
//	  "2":
//	    clusters: [{id: "10", name: PKM}]
//	    latest_scores: [{cluster_id: "10", rank: 4}]
//	  "3":
//	    error: not indexed
type Fixtures struct {
	Users  []FixtureUser             `yaml:"users"`
	Scores map[string]map[string]any `yaml:"scores"`
}

// FixtureUser is a user plus the IDs it follows.
type FixtureUser struct {
	ID          string   `yaml:"id"`
	Username    string   `yaml:"username"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Following   []string `yaml:"following"`
}

// LoadFixtures reads a fixtures YAML file.
func LoadFixtures(path string) (Fixtures, error) {
	b, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures YAML: %w", err)
	}
	return f, nil
}

// Apply loads the fixtures into s.
func (f Fixtures) Apply(s *Server) error {
	byID := make(map[string]social.User, len(f.Users))
	for _, fu := range f.Users {
		if strings.TrimSpace(fu.ID) == "" || strings.TrimSpace(fu.Username) == "" {
			return fmt.Errorf("fixture user needs id and username (got %+v)", fu)
		}
		u := social.User{ID: fu.ID, Username: fu.Username, Name: fu.Name, Description: fu.Description}
		byID[fu.ID] = u
		s.AddUser(u)
	}
	for _, fu := range f.Users {
		if fu.Following == nil {
			continue
		}
		list := make([]social.User, 0, len(fu.Following))
		for _, id := range fu.Following {
			u, ok := byID[id]
			if !ok {
				return fmt.Errorf("user %s follows unknown id %s", fu.Username, id)
			}
			list = append(list, u)
		}
		s.SetFollowing(fu.ID, list)
	}
	for id, body := range f.Scores {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("score fixture %s: %w", id, err)
		}
		s.SetScore(id, ScoreReply{Status: 200, Body: b})
	}
	return nil
}
