package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/n-r-w/boundres/internal/config"
	"github.com/n-r-w/boundres/repository"
	"github.com/n-r-w/boundres/userdb"
)

// maxListedContributors is how many contributors a state line shows.
const maxListedContributors = 5

func repoCmd() *cobra.Command {
	var (
		flags   cacheFlags
		retries int
	)

	cmd := &cobra.Command{
		Use:   "repo <owner>/<name>",
		Short: "Load a GitHub repository and its contributors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := parseRepo(args[0])
			if err != nil {
				return err
			}

			if retries < 0 {
				return errors.New("--retries must not be negative")
			}

			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}

			return runRepo(cmd.Context(), cmd.OutOrStdout(), cfg, owner, name, retries, flags.showMetrics)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&retries, "retries", 0, "load again this many times while a load ends in an error")

	return cmd
}

func parseRepo(arg string) (string, string, error) {
	owner, name, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q, want <owner>/<name>", arg)
	}

	return owner, name, nil
}

func runRepo(
	ctx context.Context, out io.Writer, cfg config.Config, owner, name string, retries int, showMetrics bool,
) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, "repos")
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := repository.NewRepoRepository(a.store, a.client, a.repoOpts...)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			fmt.Fprintf(out, "retry    %d/%d\n", attempt, retries)
		}

		err = loadRepo(ctx, out, repo, owner, name)
		if err == nil || attempt == retries || ctx.Err() != nil {
			break
		}

		a.log.WarnContext(ctx, "load failed",
			slog.String("repo", owner+"/"+name),
			slog.Any("error", err))
	}

	if showMetrics {
		if merr := printMetrics(out, a.registry); merr != nil {
			return merr
		}
	}

	return err
}

// loadRepo loads the repository and its contributors side by side and prints both streams.
func loadRepo(ctx context.Context, out io.Writer, repo *repository.RepoRepository, owner, name string) error {
	what := owner + "/" + name

	repoSub, err := repo.LoadRepo(ctx, owner, name)
	if err != nil {
		return err
	}
	defer repoSub.Close()

	contributorsSub, err := repo.LoadContributors(ctx, owner, name)
	if err != nil {
		return err
	}
	defer contributorsSub.Close()

	repoErr := loadError(ctx, what, follow(out, repoSub, describeRepo))
	contributorsErr := loadError(ctx, "contributors of "+what, follow(out, contributorsSub, describeContributors))

	return errors.Join(repoErr, contributorsErr)
}

func describeRepo(r *userdb.Repo) string {
	var b strings.Builder

	b.WriteString(r.Key().String())
	if r.Description != "" {
		fmt.Fprintf(&b, " description=%q", r.Description)
	}
	fmt.Fprintf(&b, " stars=%d", r.Stars)
	if !r.FetchedAt.IsZero() {
		fmt.Fprintf(&b, " fetched=%s", r.FetchedAt.Format(time.RFC3339))
	}

	return b.String()
}

func describeContributors(c *userdb.Contributors) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d contributors", len(c.List))

	for i, item := range c.List {
		if i == maxListedContributors {
			b.WriteString(" ...")
			break
		}
		fmt.Fprintf(&b, " %s(%d)", item.Login, item.Contributions)
	}

	return b.String()
}
