package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazypower/argraph/internal/client"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the database and the built-in symbols, then index them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.Drain(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d symbols bound, %d actions processed\n", a.graph.Symbols.Len(), n)
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process every pending action, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.Drain(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d actions processed\n", n)
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete unreachable values and incomplete objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.engine.Collect(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d incomplete values, %d orphaned values, %d incomplete properties\n",
			report.Run, report.IncompleteValues, report.OrphanedValues, report.IncompleteProperties)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id|symbol>",
	Short: "Print an object as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			if id, err = a.graph.Symbols.Resolve(args[0]); err != nil {
				return err
			}
		}
		view, err := a.graph.View(cmd.Context(), id)
		if err != nil {
			return err
		}
		if view == nil {
			return fmt.Errorf("no object %d", id)
		}
		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var (
	completeLang  string
	completeLimit int
)

var completeCmd = &cobra.Command{
	Use:   "complete <prefix>",
	Short: "Ask a running server for values starting with prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New("http://" + cfg.ListenAddr())
		found, err := c.Autocomplete(cmd.Context(), completeLang, args[0], completeLimit)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
			return nil
		}
		for _, m := range found {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", m.ValueID, m.Text)
		}
		return nil
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeLang, "lang", "", "language (default: the server's first language)")
	completeCmd.Flags().IntVarP(&completeLimit, "limit", "n", 10, "maximum number of matches")
}
