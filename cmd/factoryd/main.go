// Command factoryd serves the factory API and offers offline helpers for
// snippets and access tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "factoryd",
		Short:         "Factory configuration service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `factoryd stores, resolves and validates factories: versioned
configuration bundles used to reconstruct a workspace session.`,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSnippetCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the factoryd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
