package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/coordinator"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "storyloop",
	Short: "Collaborative storytelling sessions with a generative co-author",
	Long: `storyloop alternates lines between human participants and a generative
co-author. Generator lines are chosen by vote from a set of candidates, and
finished stories can be archived, ranked and graphed.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging to stderr")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(treeCmd)
}

func loadConfig() (*coordinator.Config, error) {
	cfg, err := coordinator.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openArchive opens the configured archive store, failing when none is set.
func openArchive(cfg *coordinator.Config) (archive.Store, error) {
	store, err := archive.NewStore(&cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("no archive configured; set archive.path or STORYLOOP_ARCHIVE_PATH")
	}
	return store, nil
}

func loadEntry(ctx context.Context, store archive.Store, id int64) (archive.Entry, error) {
	entry, err := store.Load(ctx, id)
	if err != nil {
		return archive.Entry{}, fmt.Errorf("failed to load story %d: %w", id, err)
	}
	return entry, nil
}
