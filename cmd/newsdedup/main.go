// Command newsdedup checks articles for duplicates, ingests feeds and
// reports deduplication statistics.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/logging"
)

var (
	dbFlag        string
	logLevelFlag  string
	logFormatFlag string
	envFileFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "newsdedup",
	Short: "Article deduplication and update significance engine",
	Long: `newsdedup decides whether a fetched article duplicates one already stored,
and whether an edit to a known article is significant enough to re-analyze.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFileFlag); err != nil {
			return err
		}
		_, err := logging.Setup(cmd.ErrOrStderr(), logLevelFlag, logFormatFlag)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "article store DSN (postgres://..., sqlite://path or a .db path; default $NEWSDEDUP_DB)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (default $NEWSDEDUP_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "text or json (default $NEWSDEDUP_LOG_FORMAT or text)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "load environment from this file (default .env if present)")
}

// loadEnvFile loads path, or .env when path is empty and the file exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
