package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/observability"
	"github.com/tailored-agentic-units/storyloop/relations"
)

var (
	graphInfer bool
	graphDOT   bool
)

var graphCmd = &cobra.Command{
	Use:   "graph [story-id]",
	Short: "Show the character relationship graph of an archived story",
	Long: `Show who thinks what of whom in an archived story. By default the graph
comes from the opinions recorded during play; --infer asks the generative
backend to read the relationships from the story text instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().BoolVar(&graphInfer, "infer", false, "Infer relationships from the story text")
	graphCmd.Flags().BoolVar(&graphDOT, "dot", false, "Print Graphviz DOT instead of a list")
}

func runGraph(cmd *cobra.Command, args []string) error {
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

	g := relations.Build(entry.Characters)
	if graphInfer {
		client := generative.New(cfg.Generator, generative.WithObserver(observability.NewSlogObserver(newLogger())))
		edges, err := client.Relationships(ctx, entry.Text)
		if err != nil {
			return fmt.Errorf("failed to infer relationships: %w", err)
		}
		g = relations.FromEdges(edges)
	}

	out := cmd.OutOrStdout()
	if graphDOT {
		_, err := io.WriteString(out, g.DOT())
		return err
	}

	edges := g.Edges()
	if len(edges) == 0 {
		fmt.Fprintln(out, "No relationships recorded.")
		return nil
	}
	for _, e := range edges {
		if graphInfer {
			fmt.Fprintf(out, "%s -> %s -> %s\n", e.Source, e.Label, e.Target)
			continue
		}
		fmt.Fprintf(out, "%s -> %s -> %s (trust %d)\n", e.Source, e.Label, e.Target, e.Trust)
	}
	return nil
}
