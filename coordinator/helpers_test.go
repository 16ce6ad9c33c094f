package coordinator_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/storyloop/coordinator"
	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/observability"
	"github.com/tailored-agentic-units/storyloop/session"
	"github.com/tailored-agentic-units/storyloop/vote"
)

type candidateReply struct {
	lines []string
	err   error
}

// fakeGenerator replays scripted candidate replies and answers every other
// capability from optional hooks.
type fakeGenerator struct {
	mu         sync.Mutex
	replies    []candidateReply
	calls      int
	texts      []string
	extract    func(fullText, newLine string) (session.Extraction, error)
	summaryErr error
	describe   func(text string) (session.Derived, error)
}

func (g *fakeGenerator) Candidates(ctx context.Context, text, personality string, n int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	g.texts = append(g.texts, text)
	if len(g.replies) == 0 {
		return []string{"A", "B", "C"}[:n], nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.lines, r.err
}

func (g *fakeGenerator) Extract(ctx context.Context, fullText, newLine string) (session.Extraction, error) {
	if g.extract != nil {
		return g.extract(fullText, newLine)
	}
	return session.Extraction{}, nil
}

func (g *fakeGenerator) Summarize(ctx context.Context, text string) (string, error) {
	if g.summaryErr != nil {
		return "", g.summaryErr
	}
	return "summary of " + text, nil
}

func (g *fakeGenerator) Describe(ctx context.Context, text string) (session.Derived, error) {
	if g.describe != nil {
		return g.describe(text)
	}
	return session.Derived{Title: "Untitled", Genre: "fable"}, nil
}

func (g *fakeGenerator) candidateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixedBallot struct{ counts []int }

func (b fixedBallot) Close(ctx context.Context) ([]int, error) { return b.counts, nil }

// fakePoller returns the next scripted tally for each vote.
type fakePoller struct {
	mu      sync.Mutex
	tallies [][]int
	options [][]string
}

func (p *fakePoller) OpenVote(ctx context.Context, question string, options []string) (vote.Ballot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.options = append(p.options, options)
	counts := make([]int, len(options))
	if len(p.tallies) > 0 {
		counts = p.tallies[0]
		p.tallies = p.tallies[1:]
	}
	return fixedBallot{counts: counts}, nil
}

func noWait(ctx context.Context, d time.Duration) error { return nil }

func testConfig() *coordinator.Config {
	cfg := coordinator.DefaultConfig()
	return &cfg
}

type harness struct {
	c        *coordinator.Coordinator
	registry *coordinator.Registry
	gen      *fakeGenerator
	poller   *fakePoller
	rec      *observability.Recorder
}

func newHarness(t *testing.T, opts ...coordinator.Option) *harness {
	t.Helper()

	h := &harness{
		registry: coordinator.NewRegistry(),
		gen:      &fakeGenerator{},
		poller:   &fakePoller{},
		rec:      &observability.Recorder{},
	}

	base := []coordinator.Option{
		coordinator.WithGenerator(h.gen),
		coordinator.WithPoller(h.poller),
		coordinator.WithObserver(h.rec),
		coordinator.WithVoteWait(noWait),
		coordinator.WithRand(rand.New(rand.NewPCG(7, 11))),
	}

	c, err := coordinator.New(testConfig(), h.registry, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.c = c
	return h
}

func assertState(t *testing.T, c *coordinator.Coordinator, want coordinator.State) {
	t.Helper()
	if got := c.State(); got != want {
		t.Fatalf("got state %s, want %s", got, want)
	}
}

var errBackend = errors.New("backend down")

var _ generative.Generator = (*fakeGenerator)(nil)
