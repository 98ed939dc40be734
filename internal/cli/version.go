package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// Overridden with -ldflags "-X github.com/lazypower/argraph/internal/cli.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build, database schema and symbol table versions",
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "argraph %s\n  schema: v%d\n  symbols: %d built in\n",
			VersionString(), store.LatestVersion(), len(symbols.Definitions))
	},
}

// VersionString is the build reported by the API health check.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the version number only")
}
