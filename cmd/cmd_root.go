// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcodagnone/mapimport/config"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	cfg    *config.Config
	logger zerolog.Logger
)

func newLogger(w io.Writer, debug bool) zerolog.Logger {
	output := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

var rootCmd = &cobra.Command{
	Use:   "mapimport",
	Short: "bulk import of map records into a catalog",
	Long: `
mapimport reconciles bulk inputs (JSON lines, GeoJSON or CSV) against an
existing catalog of map records: it geocodes each coordinate through a
persistent cache, scores it against the nearby records and creates, merges
or flags it for review. Interrupted batches resume where they stopped.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger = newLogger(os.Stderr, verbose)

		loaded, resolved, exists, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("db-path") {
			if loaded.Storage.DBPath, err = config.ExpandPath(dbPath); err != nil {
				return err
			}
		}

		cfg = loaded

		logger.Debug().
			Str("config", resolved).
			Bool("exists", exists).
			Str("db_path", cfg.Storage.DBPath).
			Msg("configuration loaded")

		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM so batches stop between
// records and can be resumed.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Configuration file (default ./mapimport.toml or ~/.config/mapimport/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "",
		"Directory holding the local database (overrides storage.db_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}
