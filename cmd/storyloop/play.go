package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/coordinator"
	"github.com/tailored-agentic-units/storyloop/observability"
)

var (
	playLines        int
	playParticipants []string
	playPersonality  string
	playScore        bool
	playWindow       time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run a story session in this terminal",
	Long: `Run one story session with every participant sharing this terminal.
Participants are prompted for their lines in turn; on generator turns the
candidates are listed and the votes are typed in when the window closes.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().IntVarP(&playLines, "lines", "n", 0, "Total lines in the story (overrides config)")
	playCmd.Flags().StringSliceVarP(&playParticipants, "participants", "p", []string{"player"}, "Participant names in turn order")
	playCmd.Flags().StringVar(&playPersonality, "personality", "", "Generator personality; chosen at random when empty")
	playCmd.Flags().BoolVar(&playScore, "score", false, "Score the story when it closes")
	playCmd.Flags().DurationVar(&playWindow, "window", 0, "Voting window, e.g. 10s (overrides config)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if playLines > 0 {
		cfg.LineCount = playLines
	}
	if playScore {
		cfg.ScoreOnClose = true
	}
	if cmd.Flags().Changed("window") {
		cfg.Vote.Window = playWindow
	}

	logger := newLogger()
	observer := observability.NewSlogObserver(logger)

	registry := coordinator.NewRegistry()
	opts := []coordinator.Option{
		coordinator.WithTransport(newConsole(os.Stdin, os.Stdout, isTerminal(os.Stdin))),
		coordinator.WithObserver(observer),
	}

	if store, err := archive.NewStore(&cfg.Archive); err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	} else if store != nil {
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		latest, err := archive.LatestID(cmd.Context(), store)
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		registry.StartAfter(latest)
		opts = append(opts, coordinator.WithArchive(store))
	}

	c, err := coordinator.New(cfg, registry, opts...)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := c.Play(ctx, cfg.LineCount, playParticipants, playPersonality)
	if err != nil {
		return fmt.Errorf("session ended: %w", err)
	}

	if result.ScoreErr != nil {
		logger.Warn("story was not scored", "error", result.ScoreErr)
	}
	if result.ArchiveErr != nil {
		logger.Warn("story was not archived", "error", result.ArchiveErr)
	} else if cfg.Archive.Path != "" {
		fmt.Printf("\nArchived as story %d.\n", result.Record.ID)
	}
	if len(result.Record.Characters) > 0 {
		fmt.Printf("\nCharacters: %s\n", strings.Join(characterNames(result), ", "))
	}
	return nil
}

func characterNames(r *coordinator.Result) []string {
	names := make([]string, 0, len(r.Record.Characters))
	for _, ch := range r.Record.Characters {
		names = append(names, ch.Name)
	}
	return names
}
