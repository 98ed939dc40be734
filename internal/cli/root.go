package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lazypower/argraph/internal/config"
)

var log = logrus.WithField("component", "cli")

var (
	configPath string
	dbPath     string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "argraph",
	Short: "Schema-typed property graph with rated arguments",
	Long: "argraph stores cards, typed values and rated property edges in SQLite, " +
		"and keeps ratings, tags and the text index up to date in the background.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		return cfg.ConfigureLogging()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.argraph/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.argraph/argraph.db)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(completeCmd)
}
