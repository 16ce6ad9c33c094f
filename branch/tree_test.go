package branch_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/storyloop/branch"
	"github.com/tailored-agentic-units/storyloop/observability"
)

type storeFactory struct {
	name string
	open func(t *testing.T) branch.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) branch.Store {
			return branch.NewMemoryStore()
		}},
		{"sqlite", func(t *testing.T) branch.Store {
			store, err := branch.OpenSQLite(filepath.Join(t.TempDir(), "story.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		}},
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d-node", n)
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, tree *branch.Tree)) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			fn(t, branch.New(f.open(t), branch.WithIDFunc(sequentialIDs())))
		})
	}
}

func TestTree_Start(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()

		root, err := tree.Start(ctx, "101")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if !root.IsRoot() {
			t.Error("root has a parent")
		}
		if root.Branch != branch.MainBranch || root.Content != branch.RootContent {
			t.Errorf("got %q on %q", root.Content, root.Branch)
		}

		cur, err := tree.Current(ctx)
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if cur.ID != root.ID {
			t.Errorf("got current %s, want %s", cur.ID, root.ID)
		}
	})
}

func TestTree_NotStarted(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()

		if _, err := tree.AddCandidate(ctx, "x", "u"); !errors.Is(err, branch.ErrNotStarted) {
			t.Errorf("AddCandidate: got %v, want ErrNotStarted", err)
		}
		if _, err := tree.SelectBest(ctx); !errors.Is(err, branch.ErrNotStarted) {
			t.Errorf("SelectBest: got %v, want ErrNotStarted", err)
		}
		if _, err := tree.CreateBranch(ctx, "alt"); !errors.Is(err, branch.ErrNotStarted) {
			t.Errorf("CreateBranch: got %v, want ErrNotStarted", err)
		}
	})
}

func TestTree_AddCandidateKeepsPointer(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		root, _ := tree.Start(ctx, "101")

		c, err := tree.AddCandidate(ctx, "yo", "102")
		if err != nil {
			t.Fatalf("AddCandidate failed: %v", err)
		}
		if c.ParentID != root.ID || c.Branch != branch.MainBranch || c.Votes != 0 {
			t.Errorf("got %+v", c)
		}

		cur, _ := tree.Current(ctx)
		if cur.ID != root.ID {
			t.Errorf("pointer moved to %s", cur.ID)
		}
	})
}

func TestTree_SelectBest_TieGoesToFirstInserted(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		tree.Start(ctx, "101")

		n1, _ := tree.AddCandidate(ctx, "one", "a")
		n2, _ := tree.AddCandidate(ctx, "two", "b")
		n4, _ := tree.AddCandidate(ctx, "four", "c")

		votes := map[string]int{n1.ID: 3, n2.ID: 3, n4.ID: 1}
		for id, n := range votes {
			for range n {
				if err := tree.Vote(ctx, id); err != nil {
					t.Fatalf("Vote failed: %v", err)
				}
			}
		}

		best, err := tree.SelectBest(ctx)
		if err != nil {
			t.Fatalf("SelectBest failed: %v", err)
		}
		if best.ID != n1.ID {
			t.Errorf("got %s, want %s", best.ID, n1.ID)
		}
		if best.Votes != 3 {
			t.Errorf("got votes %d, want 3", best.Votes)
		}

		cur, _ := tree.Current(ctx)
		if cur.ID != n1.ID {
			t.Errorf("pointer at %s, want %s", cur.ID, n1.ID)
		}
	})
}

func TestTree_SelectBest_NoCandidates(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		tree.Start(ctx, "101")

		if _, err := tree.SelectBest(ctx); !errors.Is(err, branch.ErrNoCandidates) {
			t.Errorf("got %v, want ErrNoCandidates", err)
		}
	})
}

func TestTree_VoteUnknownNode(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		if err := tree.Vote(context.Background(), "missing"); !errors.Is(err, branch.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestTree_ConcurrentVotes(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		tree.Start(ctx, "101")
		c, _ := tree.AddCandidate(ctx, "popular", "a")

		const voters = 50
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for range voters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := tree.Vote(ctx, c.ID); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Fatalf("Vote failed: %v", err)
		}

		got, _ := tree.Candidates(ctx)
		if len(got) != 1 || got[0].Votes != voters {
			t.Errorf("got %+v, want %d votes", got, voters)
		}
	})
}

func TestTree_Branches(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		root, _ := tree.Start(ctx, "101")

		marker, err := tree.CreateBranch(ctx, "dark")
		if err != nil {
			t.Fatalf("CreateBranch failed: %v", err)
		}
		if marker.Content != "[Branch dark begins]" || marker.Contributor != branch.SystemUser {
			t.Errorf("got marker %+v", marker)
		}
		if marker.ParentID != root.ID {
			t.Errorf("got parent %s, want %s", marker.ParentID, root.ID)
		}
		if tree.Branch() != "dark" {
			t.Errorf("got branch %q, want dark", tree.Branch())
		}

		c, _ := tree.AddCandidate(ctx, "shadows", "a")
		if c.Branch != "dark" || c.ParentID != marker.ID {
			t.Errorf("candidate on %q under %s", c.Branch, c.ParentID)
		}

		sw, err := tree.SwitchBranch(ctx, branch.MainBranch)
		if err != nil {
			t.Fatalf("SwitchBranch failed: %v", err)
		}
		if sw.ID != root.ID || tree.Branch() != branch.MainBranch {
			t.Errorf("switched to %s on %q", sw.ID, tree.Branch())
		}

		if _, err := tree.SwitchBranch(ctx, "nowhere"); !errors.Is(err, branch.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		if tree.Branch() != branch.MainBranch {
			t.Errorf("failed switch changed branch to %q", tree.Branch())
		}
	})
}

func TestTree_Render(t *testing.T) {
	forEachStore(t, func(t *testing.T, tree *branch.Tree) {
		ctx := context.Background()
		tree.Start(ctx, "101")
		a, _ := tree.AddCandidate(ctx, "a fairly long candidate line", "1")
		tree.AddCandidate(ctx, "b", "2")
		tree.Vote(ctx, a.ID)
		tree.SelectBest(ctx)
		tree.AddCandidate(ctx, "c", "3")

		got, err := tree.Render(ctx)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		want := strings.Join([]string{
			"- The beginning of the (Votes: 0) (n1-nod)",
			"  - a fairly long candid (Votes: 1) (n2-nod)",
			"    - c (Votes: 0) (n4-nod)",
			"  - b (Votes: 0) (n3-nod)",
			"",
		}, "\n")
		if got != want {
			t.Errorf("got\n%s\nwant\n%s", got, want)
		}
	})
}

func TestRender_DeepChainIsIterative(t *testing.T) {
	const depth = 10000
	nodes := make([]branch.Node, depth)
	for i := range nodes {
		nodes[i] = branch.Node{ID: fmt.Sprintf("%06d", i), Content: "x"}
		if i > 0 {
			nodes[i].ParentID = nodes[i-1].ID
		}
	}

	out := branch.Render(nodes)
	if got := strings.Count(out, "\n"); got != depth {
		t.Errorf("got %d lines, want %d", got, depth)
	}
}

func TestRender_MultipleRoots(t *testing.T) {
	out := branch.Render([]branch.Node{
		{ID: "root-a", Content: "A"},
		{ID: "root-b", Content: "B"},
	})
	if !strings.Contains(out, "- A (Votes: 0) (root-a)") || !strings.Contains(out, "- B (Votes: 0) (root-b)") {
		t.Errorf("got %q", out)
	}
}

func TestTree_Events(t *testing.T) {
	rec := &observability.Recorder{}
	tree := branch.New(branch.NewMemoryStore(), branch.WithObserver(rec))
	ctx := context.Background()

	tree.Start(ctx, "u")
	c, _ := tree.AddCandidate(ctx, "x", "u")
	tree.Vote(ctx, c.ID)
	tree.SelectBest(ctx)

	want := []observability.EventType{branch.EventStart, branch.EventCandidate, branch.EventVote, branch.EventSelect}
	got := rec.Types()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
