// Package branch manages a story as a tree of candidate continuations.
//
// Unlike the linear coordinator, a Tree keeps every proposed continuation as a
// node with its own vote count. A current-node pointer and a current branch
// name determine where new candidates attach. Nodes are only ever parented on
// the pointer at creation time, so the structure cannot form cycles.
package branch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/storyloop/observability"
)

const (
	MainBranch  = "main"
	RootContent = "The beginning of the story."
	SystemUser  = "system"
)

// Tree is the branch tree manager. Pointer moves are serialized; Vote may be
// called concurrently with anything.
type Tree struct {
	store    Store
	observer observability.Observer
	newID    func() string

	mu      sync.Mutex
	current string
	branch  string
}

// Option configures a Tree.
type Option func(*Tree)

// WithObserver sets the event observer.
func WithObserver(obs observability.Observer) Option {
	return func(t *Tree) { t.observer = obs }
}

// WithIDFunc overrides node id generation.
func WithIDFunc(fn func() string) Option {
	return func(t *Tree) { t.newID = fn }
}

// New creates a Tree over store. The tree is empty until Start.
func New(store Store, opts ...Option) *Tree {
	t := &Tree{
		store:  store,
		newID:  uuid.NewString,
		branch: MainBranch,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.observer = observability.OrNoOp(t.observer)
	return t
}

// Start creates a root node on the main branch and points at it.
func (t *Tree) Start(ctx context.Context, contributor string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := Node{
		ID:          t.newID(),
		Content:     RootContent,
		Branch:      MainBranch,
		Contributor: contributor,
	}
	if err := t.store.Insert(ctx, node); err != nil {
		return Node{}, err
	}

	t.current = node.ID
	t.branch = MainBranch
	t.emit(ctx, EventStart, node, nil)
	return node, nil
}

// AddCandidate attaches a new node under the current pointer without moving it.
func (t *Tree) AddCandidate(ctx context.Context, text, contributor string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		return Node{}, ErrNotStarted
	}

	node := Node{
		ID:          t.newID(),
		Content:     text,
		ParentID:    t.current,
		Branch:      t.branch,
		Contributor: contributor,
	}
	if err := t.store.Insert(ctx, node); err != nil {
		return Node{}, err
	}

	t.emit(ctx, EventCandidate, node, nil)
	return node, nil
}

// Vote adds exactly one vote to the node.
func (t *Tree) Vote(ctx context.Context, id string) error {
	if err := t.store.Increment(ctx, id); err != nil {
		return err
	}
	t.observer.OnEvent(ctx, observability.Event{
		Type:      EventVote,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "branch.Tree",
		Data:      map[string]any{"node": id},
	})
	return nil
}

// Candidates returns the children of the current node in insertion order.
func (t *Tree) Candidates(ctx context.Context) ([]Node, error) {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()

	if current == "" {
		return nil, ErrNotStarted
	}
	return t.store.Children(ctx, current)
}

// SelectBest moves the pointer to the child with the most votes. Ties go to
// the earliest inserted child.
func (t *Tree) SelectBest(ctx context.Context) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		return Node{}, ErrNotStarted
	}

	children, err := t.store.Children(ctx, t.current)
	if err != nil {
		return Node{}, err
	}
	if len(children) == 0 {
		return Node{}, ErrNoCandidates
	}

	best := children[0]
	for _, c := range children[1:] {
		if c.Votes > best.Votes {
			best = c
		}
	}

	t.current = best.ID
	t.emit(ctx, EventSelect, best, map[string]any{"candidates": len(children)})
	return best, nil
}

// CreateBranch adds a marker node for a new branch under the current pointer
// and moves both the pointer and the branch name to it.
func (t *Tree) CreateBranch(ctx context.Context, name string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		return Node{}, ErrNotStarted
	}
	if name == "" {
		return Node{}, fmt.Errorf("branch name is required")
	}

	node := Node{
		ID:          t.newID(),
		Content:     fmt.Sprintf("[Branch %s begins]", name),
		ParentID:    t.current,
		Branch:      name,
		Contributor: SystemUser,
	}
	if err := t.store.Insert(ctx, node); err != nil {
		return Node{}, err
	}

	t.current = node.ID
	t.branch = name
	t.emit(ctx, EventCreate, node, nil)
	return node, nil
}

// SwitchBranch points at the first node recorded under name.
func (t *Tree) SwitchBranch(ctx context.Context, name string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, err := t.store.FirstInBranch(ctx, name)
	if err != nil {
		return Node{}, err
	}

	t.current = node.ID
	t.branch = name
	t.emit(ctx, EventSwitch, node, nil)
	return node, nil
}

// Current returns the node under the pointer with its latest vote count.
func (t *Tree) Current(ctx context.Context) (Node, error) {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()

	if current == "" {
		return Node{}, ErrNotStarted
	}
	return t.store.Get(ctx, current)
}

// Branch returns the current branch name.
func (t *Tree) Branch() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.branch
}

// Render returns the whole tree, one node per line.
func (t *Tree) Render(ctx context.Context) (string, error) {
	nodes, err := t.store.All(ctx)
	if err != nil {
		return "", err
	}
	return Render(nodes), nil
}

func (t *Tree) emit(ctx context.Context, et observability.EventType, node Node, extra map[string]any) {
	data := map[string]any{
		"node":   node.ID,
		"branch": node.Branch,
	}
	for k, v := range extra {
		data[k] = v
	}
	t.observer.OnEvent(ctx, observability.Event{
		Type:      et,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "branch.Tree",
		Data:      data,
	})
}
