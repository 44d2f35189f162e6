package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/n-r-w/boundres"
	"github.com/n-r-w/boundres/github"
	"github.com/n-r-w/boundres/internal/config"
	"github.com/n-r-w/boundres/metrics"
	"github.com/n-r-w/boundres/repository"
	"github.com/n-r-w/boundres/userdb"
)

// cacheFlags are the flags shared by the load commands.
type cacheFlags struct {
	dbPath      string
	maxAge      time.Duration
	showMetrics bool
}

func (f *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite cache file (GHUSER_DB_PATH)")
	cmd.Flags().DurationVar(&f.maxAge, "max-age", 0, "refetch cached records older than this, 0 keeps them forever (GHUSER_MAX_AGE)")
	cmd.Flags().BoolVar(&f.showMetrics, "metrics", false, "print cache metrics after the load")
}

// config loads the environment configuration and applies the flags that were set.
func (f *cacheFlags) config(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("db") {
		cfg.DBPath = f.dbPath
	}
	if cmd.Flags().Changed("max-age") {
		cfg.MaxAge = f.maxAge
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// app holds what every load command needs.
type app struct {
	log      *slog.Logger
	store    *userdb.Store
	client   *github.Client
	registry *prometheus.Registry
	repoOpts []repository.Option
}

func newApp(ctx context.Context, cfg config.Config, resource string) (*app, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	clientOpts := []github.Option{
		github.WithBaseURL(cfg.GitHubURL),
		github.WithToken(cfg.Token),
		github.WithLogger(log),
	}
	if !strings.HasPrefix(cfg.GitHubURL, "https://") {
		// the HTTP/2 transport only speaks TLS
		clientOpts = append(clientOpts, github.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	client, err := github.NewClient(clientOpts...)
	if err != nil {
		return nil, err
	}

	db, err := userdb.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	hook := metrics.NewPrometheus(metrics.WithRegistry(registry), metrics.WithNamespace("ghuser"))

	return &app{
		log:      log,
		store:    userdb.NewStore(db, userdb.WithLogger(log)),
		client:   client,
		registry: registry,
		repoOpts: []repository.Option{
			repository.WithMaxAge(cfg.MaxAge),
			repository.WithMediatorOptions(
				boundres.WithLogger(resource, hook),
				boundres.WithSlog(log),
			),
		},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// follow prints every state of sub until the first terminal one, which it returns.
// The result is not terminal when the stream ended first.
func follow[T any](out io.Writer, sub *boundres.Subscription[T], describe func(*T) string) boundres.Resource[T] {
	var last boundres.Resource[T]

	for res := range sub.Updates() {
		printResource(out, res, describe)
		last = res

		if res.IsTerminal() {
			break
		}
	}

	return last
}

// loadError turns the last state of a load into the command error.
func loadError[T any](ctx context.Context, what string, last boundres.Resource[T]) error {
	switch {
	case last.Status == boundres.StatusError:
		return fmt.Errorf("loading %s: %s", what, last.Message)
	case !last.IsTerminal():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("loading %s: %w", what, err)
		}
		return fmt.Errorf("loading %s: %w", what, boundres.ErrNotTerminal)
	}

	return nil
}

func printResource[T any](out io.Writer, res boundres.Resource[T], describe func(*T) string) {
	status := fmt.Sprintf("%-8s", res.Status)

	switch {
	case res.Status == boundres.StatusError && res.Data == nil:
		fmt.Fprintf(out, "%s %s\n", status, res.Message)
	case res.Status == boundres.StatusError:
		fmt.Fprintf(out, "%s %s (cached: %s)\n", status, res.Message, describe(res.Data))
	case res.Data == nil:
		fmt.Fprintf(out, "%s -\n", status)
	default:
		fmt.Fprintf(out, "%s %s\n", status, describe(res.Data))
	}
}

func printMetrics(out io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string

	for _, f := range families {
		for _, m := range f.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}

			lines = append(lines, fmt.Sprintf("%s{%s} %g", f.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}

	sort.Strings(lines)

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	return nil
}
