package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/mockapi"
)

func main() {
	addr := defaultString("MOCK_API_ADDR", ":8080")
	fixtures := defaultString("MOCK_API_FIXTURES", "")
	socialToken := defaultString("MOCK_API_TWITTER_TOKEN", "")
	influenceKey := defaultString("MOCK_API_BORG_API_KEY", "")
	authScheme := defaultString("MOCK_API_AUTH_SCHEME", influence.DefaultAuthScheme)
	pageSize := 0

	fs := flag.NewFlagSet("mock-api", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtures, "fixtures", fixtures, "YAML fixtures file with users, follow-lists and scores")
	fs.StringVar(&socialToken, "twitter-token", socialToken, "Require this bearer token on social-graph calls (empty disables)")
	fs.StringVar(&influenceKey, "borg-api-key", influenceKey, "Require this key on scoring calls (empty disables)")
	fs.StringVar(&authScheme, "auth-scheme", authScheme, "Authorization scheme expected on scoring calls")
	fs.IntVar(&pageSize, "page-size", pageSize, "Cap following pages at this many users (0 uses max_results)")
	_ = fs.Parse(os.Args[1:])

	srv := mockapi.New()
	srv.RequireSocialToken(socialToken)
	srv.RequireInfluenceKey(authScheme, influenceKey)
	srv.SetPageSize(pageSize)
	if strings.TrimSpace(fixtures) != "" {
		f, err := mockapi.LoadFixtures(fixtures)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixtures error: %v\n", err)
			os.Exit(2)
		}
		if err := f.Apply(srv); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixtures error: %v\n", err)
			os.Exit(2)
		}
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-api listening on %s (fixtures=%q)\n", addr, fixtures)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
