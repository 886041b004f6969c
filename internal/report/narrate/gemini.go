// Package narrate writes a short prose summary of a community landscape with Gemini.
package narrate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shpitdev/community-landscape/internal/report"
	"github.com/shpitdev/community-landscape/pkg/pipeline/core"
	"google.golang.org/genai"
)

// maxCommunities bounds how much of the distribution goes into the prompt.
const maxCommunities = 25

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Gemini narrates summaries with a Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Narrate returns a few sentences describing s.
func (g *Gemini) Narrate(ctx context.Context, s report.Summary) (string, error) {
	if len(s.Communities) == 0 {
		return "", errors.New("nothing to narrate: no communities")
	}
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(buildPrompt(s)),
		&genai.GenerateContentConfig{
			CandidateCount:  1,
			MaxOutputTokens: 512,
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func buildPrompt(s report.Summary) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
You describe what kind of content a social media user will see, based on the communities
of the accounts they follow. Community names come from a third-party classifier.

Write 3 to 5 plain sentences. Mention the dominant communities and anything unusual.
Do not invent communities or numbers that are not listed below. No markdown.
`))
	fmt.Fprintf(&b, "\n\nUser: @%s\n", s.Username)
	fmt.Fprintf(&b, "Accounts followed: %d\n", s.Following)
	fmt.Fprintf(&b, "Accounts in no community: %d\n", s.Unclustered)
	fmt.Fprintf(&b, "Unique communities: %d\n", s.Unique)
	b.WriteString("Communities by number of followed accounts:\n")
	for i, c := range s.Communities {
		if i == maxCommunities {
			break
		}
		fmt.Fprintf(&b, "- %s: %d\n", c.Name, c.Count)
	}
	return b.String()
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
