package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ghuser",
		Short: "Load GitHub users and repositories through a local SQLite cache",
		Long: `ghuser loads GitHub data the way a client app does: the local cache
is read first, the API is called only when the cached record is missing
or older than the configured max age, and every state of the load is printed.

Configuration is read from GHUSER_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(userCmd(), repoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
