package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/observability"
	"github.com/tailored-agentic-units/storyloop/scoring"
)

var rankSave bool

var rankCmd = &cobra.Command{
	Use:   "rank [story-id]",
	Short: "Score an archived story",
	Long: `Score an archived story in six categories and print its total and rank.
Without an id the most recently archived story is ranked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRank,
}

func init() {
	rankCmd.Flags().BoolVar(&rankSave, "save", false, "Write the score back to the archive")
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	id, err := storyID(cmd, store, args)
	if err != nil {
		return err
	}
	entry, err := loadEntry(ctx, store, id)
	if err != nil {
		return err
	}

	client := generative.New(cfg.Generator, generative.WithObserver(observability.NewSlogObserver(newLogger())))
	result, err := scoring.Evaluate(ctx, client, entry.Record)
	if err != nil {
		return fmt.Errorf("failed to score story %d: %w", id, err)
	}

	printScore(cmd.OutOrStdout(), entry.Title, result)

	if rankSave {
		entry.Score = &result
		entry.ArchivedAt = time.Now().UTC()
		if err := store.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// storyID resolves the optional id argument, defaulting to the latest story.
func storyID(cmd *cobra.Command, store archive.Store, args []string) (int64, error) {
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid story id %q", args[0])
		}
		return id, nil
	}

	id, err := archive.LatestID(cmd.Context(), store)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("the archive is empty")
	}
	return id, nil
}

func printScore(w io.Writer, title string, r scoring.Result) {
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "%s\n\n", title)
	rows := []struct {
		name  string
		score int
	}{
		{"Plot cohesion", r.Details.PlotCohesion},
		{"Creativity", r.Details.Creativity},
		{"Characters", r.Details.Characters},
		{"Setting and atmosphere", r.Details.SettingAtmosphere},
		{"Tone and style alignment", r.Details.ToneStyleAlignment},
		{"Completeness", r.Details.Completeness},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-26s %2d/%d\n", row.name, row.score, scoring.MaxCategory)
	}
	fmt.Fprintf(w, "\nTotal: %d/%d\nRank: %s\n", r.Total, 6*scoring.MaxCategory, r.Rank)
}
