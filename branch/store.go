package branch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Store persists tree nodes. Implementations must make Increment atomic with
// respect to concurrent callers and return nodes in insertion order from
// Children and All.
type Store interface {
	Insert(ctx context.Context, node Node) error
	Get(ctx context.Context, id string) (Node, error)
	Children(ctx context.Context, parentID string) ([]Node, error)
	Increment(ctx context.Context, id string) error
	FirstInBranch(ctx context.Context, name string) (Node, error)
	All(ctx context.Context) ([]Node, error)
	Close() error
}

type memoryNode struct {
	node  Node
	votes atomic.Int64
}

func (m *memoryNode) snapshot() Node {
	n := m.node
	n.Votes = m.votes.Load()
	return n
}

// MemoryStore keeps nodes in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*memoryNode
	order []*memoryNode
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*memoryNode),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return fmt.Errorf("duplicate node id: %s", node.ID)
	}

	m := &memoryNode{node: node}
	m.votes.Store(node.Votes)
	s.nodes[node.ID] = m
	s.order = append(s.order, m)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return m.snapshot(), nil
}

func (s *MemoryStore) Children(ctx context.Context, parentID string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []Node
	for _, m := range s.order {
		if m.node.ParentID == parentID {
			children = append(children, m.snapshot())
		}
	}
	return children, nil
}

// Increment holds only the read lock; the counter itself is atomic.
func (s *MemoryStore) Increment(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	m.votes.Add(1)
	return nil
}

func (s *MemoryStore) FirstInBranch(ctx context.Context, name string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.order {
		if m.node.Branch == name {
			return m.snapshot(), nil
		}
	}
	return Node{}, fmt.Errorf("%w: branch %s", ErrNotFound, name)
}

func (s *MemoryStore) All(ctx context.Context) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]Node, len(s.order))
	for i, m := range s.order {
		nodes[i] = m.snapshot()
	}
	return nodes, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
