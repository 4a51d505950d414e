package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robby3000/luxicle/internal/config"
	"github.com/robby3000/luxicle/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "luxicle",
	Short: "Luxicle API server and tools",
	Long: `Luxicle serves the challenge and ranked-list API and manages its database.

Configuration comes from .env, an optional config.yml and the environment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		logger, err := logging.New(loaded.Env, loaded.LogLevel)
		if err != nil {
			return err
		}
		cfg, log = loaded, logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default ./config.yml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, loginCmd, logoutCmd, whoamiCmd)
}
