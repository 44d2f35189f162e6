package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/n-r-w/boundres/internal/config"
	"github.com/n-r-w/boundres/repository"
	"github.com/n-r-w/boundres/userdb"
)

func userCmd() *cobra.Command {
	var flags cacheFlags

	cmd := &cobra.Command{
		Use:   "user <login>",
		Short: "Load a GitHub user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}

			return runUser(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], flags.showMetrics)
		},
	}

	flags.register(cmd)

	return cmd
}

func runUser(ctx context.Context, out io.Writer, cfg config.Config, login string, showMetrics bool) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, "users")
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := repository.NewUserRepository(a.store, a.client, a.repoOpts...)
	if err != nil {
		return err
	}

	sub, err := repo.LoadUser(ctx, login)
	if err != nil {
		return err
	}
	defer sub.Close()

	last := follow(out, sub, describeUser)

	if showMetrics {
		if err := printMetrics(out, a.registry); err != nil {
			return err
		}
	}

	return loadError(ctx, login, last)
}

func describeUser(u *userdb.User) string {
	var b strings.Builder

	b.WriteString(u.Login)
	if u.Name != "" {
		fmt.Fprintf(&b, " name=%q", u.Name)
	}
	if u.Company != "" {
		fmt.Fprintf(&b, " company=%q", u.Company)
	}
	if u.Blog != "" {
		fmt.Fprintf(&b, " blog=%s", u.Blog)
	}
	if !u.FetchedAt.IsZero() {
		fmt.Fprintf(&b, " fetched=%s", u.FetchedAt.Format(time.RFC3339))
	}

	return b.String()
}
