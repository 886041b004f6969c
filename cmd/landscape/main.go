package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shpitdev/community-landscape/internal/app"
	"github.com/shpitdev/community-landscape/internal/config"
	"github.com/shpitdev/community-landscape/internal/metrics"
	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/internal/report"
	"github.com/shpitdev/community-landscape/internal/report/narrate"
	"github.com/shpitdev/community-landscape/internal/store"
	"github.com/shpitdev/community-landscape/internal/version"
	"github.com/shpitdev/community-landscape/pkg/httpapi"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
	"github.com/shpitdev/community-landscape/pkg/social"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpapi.UserAgent = "community-landscape/" + version.Current

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return
	case "run":
		code = runCmd(ctx, os.Args[2:])
	case "report":
		code = reportCmd(ctx, os.Args[2:])
	case "list":
		code = listCmd(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// common holds the flags every subcommand shares.
type common struct {
	cfg        config.Config
	configPath string
}

// loadCommon resolves configuration before flag parsing so that file and env values become
// flag defaults; flags parsed afterwards win.
func loadCommon(fs *flag.FlagSet, args []string) (*common, error) {
	path := flagValue(args, "config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c := &common{cfg: cfg, configPath: path}
	fs.StringVar(&c.configPath, "config", path, "YAML config file")
	fs.StringVar(&c.cfg.Store.Kind, "store", cfg.Store.Kind, "Artifact store: csv or sqlite (env: STORE)")
	fs.StringVar(&c.cfg.Store.Dir, "data-dir", cfg.Store.Dir, "Artifact directory (env: DATA_DIR)")
	return c, nil
}

func (c *common) openStore() (store.Store, error) {
	return store.Open(store.Kind(c.cfg.Store.Kind), c.cfg.Store.Dir)
}

func runCmd(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c, err := loadCommon(fs, args)
	if err != nil {
		return configError(err)
	}
	cfg := &c.cfg

	var username string
	var refresh, retryFailed, narrateFlag bool
	var metricsAddr string
	var top int
	fs.StringVar(&username, "username", "", "Account whose follow-list to analyse")
	fs.BoolVar(&refresh, "refresh", false, "Ignore and replace any cached artifact")
	fs.BoolVar(&retryFailed, "retry-failed", false, "Re-score only cached accounts that failed last time")
	fs.IntVar(&cfg.Pipeline.Workers, "workers", cfg.Pipeline.Workers, "Concurrent scoring requests (env: WORKERS)")
	fs.IntVar(&cfg.Pipeline.MaxRetries, "max-retries", cfg.Pipeline.MaxRetries, "Retries per account for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&cfg.Pipeline.RequestTimeout, "request-timeout", cfg.Pipeline.RequestTimeout, "Per-account scoring timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&cfg.Pipeline.RateLimitRPS, "rate-limit-rps", cfg.Pipeline.RateLimitRPS, "Global scoring rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.IntVar(&cfg.Social.MaxPages, "max-pages", cfg.Social.MaxPages, "Stop following retrieval after this many pages, 0 is unlimited")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	fs.BoolVar(&narrateFlag, "narrate", false, "Add a Gemini-written summary (needs GEMINI_API_KEY and GEMINI_MODEL)")
	fs.IntVar(&top, "top", 20, "Communities shown in the distribution, 0 shows all")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(username) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --username")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	sc, err := social.NewClient(social.Config{
		BaseURL:     cfg.Social.BaseURL,
		BearerToken: cfg.Social.Token,
		PageSize:    cfg.Social.PageSize,
		CAPath:      cfg.CAPath,
	})
	if err != nil {
		return configError(fmt.Errorf("%w (env: TWITTER_TOKEN)", err))
	}
	ic, err := influence.NewClient(influence.Config{
		BaseURL:    cfg.Influence.BaseURL,
		APIKey:     cfg.Influence.APIKey,
		AuthScheme: cfg.Influence.AuthScheme,
		Platform:   cfg.Influence.Platform,
		CAPath:     cfg.CAPath,
	})
	if err != nil {
		return configError(fmt.Errorf("%w (env: BORG_API_KEY)", err))
	}
	st, err := c.openStore()
	if err != nil {
		return configError(err)
	}
	defer func() {
		_ = st.Close()
	}()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	m := metrics.New()
	if metricsAddr != "" {
		shutdown, err := serveMetrics(metricsAddr, m, logger)
		if err != nil {
			return configError(err)
		}
		defer shutdown()
	}

	out, err := app.Run(ctx, username, sc, ic, st, app.Options{
		Refresh:     refresh,
		RetryFailed: retryFailed,
		MaxPages:    cfg.Social.MaxPages,
		Pipeline: pipeline.Options{
			Workers:        cfg.Pipeline.Workers,
			MaxRetries:     cfg.Pipeline.MaxRetries,
			RequestTimeout: cfg.Pipeline.RequestTimeout,
			RateLimitRPS:   cfg.Pipeline.RateLimitRPS,
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return fatal("run failed", err)
	}

	printFailures(os.Stderr, out.Result)
	summary := report.Build(out.Artifact.Username, len(out.Artifact.Following), out.Artifact.Rows, report.Options{Top: top})
	if narrateFlag {
		summary.Narrative = narrateSummary(ctx, *cfg, summary, logger)
	}
	if err := report.Render(os.Stdout, summary); err != nil {
		return fatal("render failed", err)
	}
	if len(out.Result.Failures) > 0 {
		return 1
	}
	return 0
}

func reportCmd(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c, err := loadCommon(fs, args)
	if err != nil {
		return configError(err)
	}

	var username string
	var opts report.Options
	var narrateFlag bool
	fs.StringVar(&username, "username", "", "Cached account to report on")
	fs.StringVar(&opts.Community, "community", "", "List the followed accounts in this community")
	fs.IntVar(&opts.MinCommunities, "min-communities", 0, "List accounts in at least this many communities, 0 disables")
	fs.StringVar(&opts.Member, "member", "", "List the communities of one followed account")
	fs.IntVar(&opts.Top, "top", 20, "Communities shown in the distribution, 0 shows all")
	fs.BoolVar(&narrateFlag, "narrate", false, "Add a Gemini-written summary (needs GEMINI_API_KEY and GEMINI_MODEL)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(username) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "report requires --username")
		return 2
	}

	st, err := c.openStore()
	if err != nil {
		return configError(err)
	}
	defer func() {
		_ = st.Close()
	}()

	a, err := st.Load(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_, _ = fmt.Fprintf(os.Stderr, "no cached data for %s; run `landscape run --username %s` first\n", username, username)
		return 1
	}
	if err != nil {
		return fatal("load failed", err)
	}

	summary := report.Build(a.Username, len(a.Following), a.Rows, opts)
	if narrateFlag {
		summary.Narrative = narrateSummary(ctx, c.cfg, summary, log.New(os.Stderr, "", log.LstdFlags))
	}
	if err := report.Render(os.Stdout, summary); err != nil {
		return fatal("render failed", err)
	}
	return 0
}

func listCmd(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c, err := loadCommon(fs, args)
	if err != nil {
		return configError(err)
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	st, err := c.openStore()
	if err != nil {
		return configError(err)
	}
	defer func() {
		_ = st.Close()
	}()

	names, err := st.List(ctx)
	if err != nil {
		return fatal("list failed", err)
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(os.Stdout, n)
	}
	return 0
}

func narrateSummary(ctx context.Context, cfg config.Config, s report.Summary, logger *log.Logger) string {
	if !cfg.NarrationEnabled() {
		logger.Printf("narration skipped: GEMINI_API_KEY and GEMINI_MODEL are required")
		return ""
	}
	n, err := narrate.New(ctx, narrate.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		logger.Printf("narration skipped: %s", redact.Secrets(err.Error()))
		return ""
	}
	nctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	text, err := n.Narrate(nctx, s)
	if err != nil {
		logger.Printf("narration failed: model=%s error=%s", n.Model(), redact.Secrets(err.Error()))
		return ""
	}
	return text
}

func serveMetrics(addr string, m *metrics.Metrics, logger *log.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server error: %v", err)
		}
	}()
	logger.Printf("serving metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printFailures(w io.Writer, res pipeline.Result) {
	if len(res.Failures) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%d of %d accounts could not be scored (%s):\n", len(res.Failures), res.Total, res.FailureSummary())
	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(w, "  %s @%s [%s] %s\n", f.AccountID, f.Username, f.Kind, redact.Truncate(f.Message(), 200))
	}
	_, _ = fmt.Fprintln(w, "rerun with --retry-failed to score only these accounts")
}

func configError(err error) int {
	_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
	return 2
}

func fatal(what string, err error) int {
	msg := redact.Secrets(err.Error())
	switch {
	case errors.Is(err, social.ErrUserNotFound):
		msg = "user not found: " + msg
	case errors.Is(err, context.Canceled):
		msg = "interrupted"
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s: %s\n", what, msg)
	return 1
}

// flagValue finds --name=value or --name value in args without parsing the rest.
func flagValue(args []string, name string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `landscape: community landscape of the accounts a user follows

Usage:
  landscape <command> [flags]

Commands:
  run     Retrieve the follow-list, score every account and print the report
  report  Print the report for a cached user
  list    List cached users
  version Print the release version

Examples:
  landscape run --username jack
  landscape run --username jack --refresh --workers 8 --metrics-addr :9090
  landscape report --username jack --community "Tools for Thought" --min-communities 2

Environment:
  TWITTER_TOKEN          Social-graph API bearer token (required for run)
  BORG_API_KEY           Scoring API key (required for run)
  SOCIAL_BASE_URL        Social-graph API base URL override
  INFLUENCE_BASE_URL     Scoring API base URL override
  INFLUENCE_AUTH_SCHEME  Scoring API Authorization scheme (default Token)
  WORKERS                Concurrent scoring requests (default 16)
  REQUEST_TIMEOUT        Per-account scoring timeout (default 20s)
  RATE_LIMIT_RPS         Global scoring rate limit, 0 disables
  MAX_RETRIES            Retries for transient scoring failures (default 0)
  DATA_DIR               Artifact directory (default data)
  STORE                  csv or sqlite (default csv)
  GEMINI_API_KEY         Gemini API key (for --narrate)
  GEMINI_MODEL           Gemini model name (for --narrate)
  GEMINI_BASE_URL        Optional Gemini base URL override

A .env file in the working directory is loaded first.
`)
}
