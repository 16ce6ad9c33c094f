package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/storyloop/branch"
	"github.com/tailored-agentic-units/storyloop/observability"
)

var (
	treeDB   string
	treeUser string
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Grow a branching story interactively",
	Long: `Open an interactive prompt over a branching story. Candidates are added
under the current node, voted on, and the best is selected to move on. Named
branches fork the story from the current node.

Commands:
  start              create a new root node
  add <text>         add a candidate under the current node
  vote <id>          vote for a candidate (an id prefix is enough)
  candidates         list candidates under the current node
  select             move to the candidate with the most votes
  branch <name>      fork a named branch at the current node
  switch <name>      move to the first node of a branch
  current            show the current node
  show               print the whole tree
  quit               leave the prompt`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVar(&treeDB, "db", "", "SQLite database for the tree; in memory when empty")
	treeCmd.Flags().StringVar(&treeUser, "user", "player", "Contributor name for added candidates")
}

func runTree(cmd *cobra.Command, args []string) error {
	var store branch.Store = branch.NewMemoryStore()
	if treeDB != "" {
		s, err := branch.OpenSQLite(treeDB)
		if err != nil {
			return err
		}
		store = s
	}
	defer store.Close()

	tree := branch.New(store, branch.WithObserver(observability.NewSlogObserver(newLogger())))
	return treeREPL(cmd.Context(), tree, cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(os.Stdin))
}

func treeREPL(ctx context.Context, tree *branch.Tree, in io.Reader, out io.Writer, prompt bool) error {
	sc := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprintf(out, "[%s]> ", tree.Branch())
		}
		if !sc.Scan() {
			return sc.Err()
		}

		verb, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		arg = strings.TrimSpace(arg)
		if verb == "quit" || verb == "exit" {
			return nil
		}

		if err := treeCommand(ctx, tree, out, verb, arg); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func treeCommand(ctx context.Context, tree *branch.Tree, out io.Writer, verb, arg string) error {
	switch verb {
	case "":
		return nil

	case "start":
		node, err := tree.Start(ctx, treeUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "started %s\n", node.ShortID())

	case "add":
		if arg == "" {
			return errors.New("usage: add <text>")
		}
		node, err := tree.AddCandidate(ctx, arg, treeUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", node.ShortID())

	case "vote":
		id, err := resolveCandidate(ctx, tree, arg)
		if err != nil {
			return err
		}
		return tree.Vote(ctx, id)

	case "candidates":
		nodes, err := tree.Candidates(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Fprintf(out, "  %s  %d votes  %s\n", n.ShortID(), n.Votes, n.Content)
		}

	case "select":
		node, err := tree.SelectBest(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "selected %s: %s\n", node.ShortID(), node.Content)

	case "branch":
		node, err := tree.CreateBranch(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "on branch %s at %s\n", node.Branch, node.ShortID())

	case "switch":
		node, err := tree.SwitchBranch(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "on branch %s at %s\n", node.Branch, node.ShortID())

	case "current":
		node, err := tree.Current(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s, %d votes): %s\n", node.ShortID(), node.Branch, node.Votes, node.Content)

	case "show":
		text, err := tree.Render(ctx)
		if err != nil {
			return err
		}
		io.WriteString(out, text)

	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

// resolveCandidate expands an id prefix against the current candidates. An
// argument matching no candidate is passed through unchanged.
func resolveCandidate(ctx context.Context, tree *branch.Tree, arg string) (string, error) {
	if arg == "" {
		return "", errors.New("usage: vote <id>")
	}
	nodes, err := tree.Candidates(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, n := range nodes {
		if strings.HasPrefix(n.ID, arg) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return arg, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous", arg)
	}
}
