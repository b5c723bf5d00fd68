// Package cmd implements unpctl's cobra command tree: send, listen,
// discover, and version, grounded on nexctl's cmd/root.go.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/strand-protocol/unp/internal/config"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger zerolog.Logger

	// sessionID identifies this unpctl invocation in send/discover output
	// and log lines; it has no wire-level meaning (the message id itself
	// stays a plain pseudo-random uint32, see pkg/engine.randomID).
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "unpctl",
	Short: "unpctl — send and receive UNP datagrams from the command line",
	Long: `unpctl is the operator-facing CLI for the UNP reliability and
framing protocol. It can send one-off commands/queries to a listening
peer, run a listening echo/inspection server, and sweep a local subnet
for other UNP peers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		sessionID = uuid.New().String()

		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).Level(level).With().Timestamp().Str("app", "unpctl").Str("session", sessionID).Logger()
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command, for use by tests.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.unp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
