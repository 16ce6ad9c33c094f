// Package vote runs a single timed consensus vote over a fixed candidate set.
//
// A Voter presents every candidate at once through a Poller, waits exactly the
// configured window, closes the ballot and resolves a winner:
//
//   - no votes at all: uniform random pick among the candidates
//   - a unique leader: the leader wins
//   - leaders tied on a nonzero count: the first leader in presentation order
//     wins (TieFirst, the default) or a random leader (TieRandom)
//
// The asymmetry between the zero-vote and tied cases is deliberate and kept
// under TieFirst.
package vote

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/tailored-agentic-units/storyloop/observability"
)

// TieBreak selects how leaders tied on a nonzero count are resolved.
type TieBreak string

const (
	TieFirst  TieBreak = "first"
	TieRandom TieBreak = "random"
)

// Ballot is an open vote. Close ends it and returns one count per option, in
// presentation order.
type Ballot interface {
	Close(ctx context.Context) ([]int, error)
}

// Poller opens votes on the transport that presents them to participants.
type Poller interface {
	OpenVote(ctx context.Context, question string, options []string) (Ballot, error)
}

// Outcome is a resolved vote.
type Outcome struct {
	Winner int
	Text   string
	Counts []int
	Random bool // winner was drawn at random
}

// Resolve picks the winning index for counts. Negative counts are treated as
// zero. It panics if counts is empty; callers validate first.
func Resolve(counts []int, tie TieBreak, rng *rand.Rand) (winner int, random bool) {
	best := 0
	for _, c := range counts {
		best = max(best, c)
	}

	if best == 0 {
		return rng.IntN(len(counts)), true
	}

	var leaders []int
	for i, c := range counts {
		if c == best {
			leaders = append(leaders, i)
		}
	}

	if tie == TieRandom && len(leaders) > 1 {
		return leaders[rng.IntN(len(leaders))], true
	}
	return leaders[0], false
}

// Voter runs votes against a Poller. A Voter is not safe for concurrent Run
// calls; each coordinator owns its own.
type Voter struct {
	poller   Poller
	window   time.Duration
	question string
	tie      TieBreak
	rng      *rand.Rand
	wait     func(ctx context.Context, d time.Duration) error
	observer observability.Observer
	session  int64
}

// Option configures a Voter.
type Option func(*Voter)

// WithRand overrides the random source used for zero-vote picks.
func WithRand(r *rand.Rand) Option {
	return func(v *Voter) { v.rng = r }
}

// WithWait overrides how the voting window is waited out.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(v *Voter) { v.wait = wait }
}

// WithObserver sets the event observer.
func WithObserver(obs observability.Observer) Option {
	return func(v *Voter) { v.observer = obs }
}

// WithSession tags emitted events with a session id.
func WithSession(id int64) Option {
	return func(v *Voter) { v.session = id }
}

// NewVoter creates a Voter from configuration.
func NewVoter(poller Poller, cfg Config, opts ...Option) (*Voter, error) {
	if poller == nil {
		return nil, fmt.Errorf("vote poller is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tie := cfg.TieBreak
	if tie == "" {
		tie = TieFirst
	}

	v := &Voter{
		poller:   poller,
		window:   cfg.Window,
		question: cfg.Question,
		tie:      tie,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.observer = observability.OrNoOp(v.observer)
	return v, nil
}

// SetSession re-tags subsequent events with a session id.
func (v *Voter) SetSession(id int64) {
	v.session = id
}

// Run presents candidates, waits the full window, and resolves the winner.
// New submissions cannot shorten the window; only ctx cancellation aborts it.
func (v *Voter) Run(ctx context.Context, candidates []string) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{}, ErrNoCandidates
	}

	ballot, err := v.poller.OpenVote(ctx, v.question, slices.Clone(candidates))
	if err != nil {
		return Outcome{}, fmt.Errorf("open vote: %w", err)
	}

	v.emit(ctx, EventOpen, observability.LevelVerbose, map[string]any{
		"candidates": len(candidates),
		"window":     v.window.String(),
	})

	if err := v.wait(ctx, v.window); err != nil {
		// The poll is closed so the transport can release it; counts are discarded.
		_, _ = ballot.Close(context.WithoutCancel(ctx))
		return Outcome{}, fmt.Errorf("voting window: %w", err)
	}

	counts, err := ballot.Close(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("close vote: %w", err)
	}
	if len(counts) != len(candidates) {
		return Outcome{}, fmt.Errorf("%w: got %d counts for %d candidates", ErrTallyMismatch, len(counts), len(candidates))
	}

	counts = slices.Clone(counts)
	for i, c := range counts {
		if c < 0 {
			counts[i] = 0
		}
	}

	winner, random := Resolve(counts, v.tie, v.rng)
	out := Outcome{
		Winner: winner,
		Text:   candidates[winner],
		Counts: counts,
		Random: random,
	}

	v.emit(ctx, EventResolve, observability.LevelInfo, map[string]any{
		"winner": winner,
		"counts": counts,
		"random": random,
	})

	return out, nil
}

func (v *Voter) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	v.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "vote.Run",
		Session:   v.session,
		Data:      data,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
