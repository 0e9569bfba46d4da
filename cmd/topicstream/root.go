package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abelbrown/topicstream/internal/config"
	"github.com/abelbrown/topicstream/internal/logging"
	"github.com/abelbrown/topicstream/internal/otel"
)

var (
	// Global flags
	logLevel  string
	dbPath    string
	eventsLog string
)

var rootCmd = &cobra.Command{
	Use:   "topicstream",
	Short: "Streaming event detection for short texts",
	Long: `topicstream - incremental clustering of a timestamped text stream.

Every item joins the nearest recent cluster within the distance threshold
or founds a new one. Runs are scored against annotated event labels and
recorded in results_clustering.csv and a local SQLite database.

Data lives in ~/.topicstream/:
  topicstream.db       runs, assignments and cached embeddings
  events.jsonl         structured run events
  logs/                daily log files`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	env := config.FromEnv()
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", env.DBPath, "SQLite database path (env TOPICSTREAM_DB)")
	rootCmd.PersistentFlags().StringVar(&eventsLog, "events-file", filepath.Join(config.Dir(), otel.DefaultFile), "JSONL event log path")
}

// initLogging logs to stderr, or to the daily log file when a TUI owns
// the terminal.
func initLogging(toFile bool) error {
	if toFile {
		return logging.Init(filepath.Join(config.Dir(), "logs"), logLevel)
	}
	logging.InitWriter(os.Stderr, logLevel)
	return nil
}
