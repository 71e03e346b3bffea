package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "whalescope",
		Short:        "Multi-chain whale transfer scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("data-dir", "./data", "directory for checkpoint, history and seen files")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN of the remote store (empty runs local-only)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured scanner with the read API",
		RunE:  runScanners,
	}
	runCmd.Flags().String("listen", ":8080", "HTTP listen address for the read API and metrics")
	runCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers for the event stream (comma-separated)")
	runCmd.Flags().String("kafka-topic", "whale-events", "Kafka topic for the event stream")
	runCmd.Flags().Duration("remote-check-interval", 30*time.Second, "minimum interval between remote store health checks")
	runCmd.Flags().Duration("retry-interval", 60*time.Second, "minimum interval between retry queue drains")
	runCmd.Flags().Duration("labels-refresh", 10*time.Minute, "label file reload interval, 0 disables")
	runCmd.Flags().Int("max-retries", 3, "maximum fetch attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial fetch retry backoff")
	runCmd.Flags().Duration("rate-limit-backoff", 3*time.Second, "wait after a rate-limited fetch")
	root.AddCommand(runCmd)

	eventsCmd := &cobra.Command{
		Use:   "events <chain>",
		Short: "Print recent whale events of a chain, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvents,
	}
	eventsCmd.Flags().Int("limit", 20, "number of events to print")
	root.AddCommand(eventsCmd)

	root.AddCommand(&cobra.Command{
		Use:   "mark-seen <chain>",
		Short: "Mark the current events of a chain as seen",
		Args:  cobra.ExactArgs(1),
		RunE:  runMarkSeen,
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print checkpoint and seen state of every chain",
		RunE:  runStatus,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
