// Package coordinator runs one collaborative story session as a turn state
// machine.
//
// A Coordinator starts Idle. Configure moves it to Priming, and the opening
// line creates the session in the shared Registry. Turns then alternate
// strictly: odd-numbered lines come from participants and even-numbered lines
// are generator turns, where candidate continuations are put to a timed vote.
// When the configured line count is reached the session is finalized,
// removed from the registry, and optionally scored and archived.
//
//	c, err := coordinator.New(cfg, registry, coordinator.WithTransport(t))
//	result, err := c.Play(ctx, 5, []string{"ana", "ben"}, "")
//
// Calls that do not fit the current state fail with ErrInvalidTurn and change
// nothing. A candidate failure is retried once; a second failure moves the
// session to Failed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/observability"
	"github.com/tailored-agentic-units/storyloop/scoring"
	"github.com/tailored-agentic-units/storyloop/session"
	"github.com/tailored-agentic-units/storyloop/vote"
)

const tracerName = "github.com/tailored-agentic-units/storyloop/coordinator"

// Result is a finalized session. ScoreErr and ArchiveErr report failures of
// the optional post-close steps; they never undo the close.
type Result struct {
	Record     session.Record
	Score      *scoring.Result
	ScoreErr   error
	ArchiveErr error
}

// Option configures a Coordinator after config-driven initialization.
type Option func(*Coordinator)

// WithGenerator overrides the config-created generative client.
func WithGenerator(g generative.Generator) Option {
	return func(c *Coordinator) { c.generator = g }
}

// WithTransport sets the participant transport. It also serves as the vote
// poller unless WithPoller is given.
func WithTransport(t Transport) Option {
	return func(c *Coordinator) { c.transport = t }
}

// WithPoller sets the vote poller.
func WithPoller(p vote.Poller) Option {
	return func(c *Coordinator) { c.poller = p }
}

// WithScorer scores every finalized session.
func WithScorer(s scoring.Scorer) Option {
	return func(c *Coordinator) { c.scorer = s }
}

// WithArchive overrides the config-created archive store.
func WithArchive(s archive.Store) Option {
	return func(c *Coordinator) { c.archive = s }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithRand sets the random source for personality and zero-vote picks.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithVoteWait overrides how the voting window is waited out.
func WithVoteWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.voteWait = wait }
}

// Coordinator owns one session from configuration to close. Operations are
// serialized; a call made while another is running is rejected with
// ErrInvalidTurn rather than queued.
type Coordinator struct {
	registry  *Registry
	generator generative.Generator
	transport Transport
	poller    vote.Poller
	voter     *vote.Voter
	scorer    scoring.Scorer
	archive   archive.Store
	observer  observability.Observer
	tracer    trace.Tracer
	rng       *rand.Rand
	now       func() time.Time
	voteWait  func(ctx context.Context, d time.Duration) error

	ownsArchive bool

	candidateCount int
	personalities  []string
	generatorID    string
	mergePolicy    session.MergePolicy

	mu           sync.Mutex
	lineCount    int
	participants []string
	personality  string
	failure      error

	state   atomic.Int32
	session atomic.Pointer[session.Session]
	result  atomic.Pointer[Result]
}

// New creates a Coordinator from configuration. A vote poller must be
// supplied through WithPoller or WithTransport.
func New(cfg *Config, registry *Registry, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}

	policy, _ := session.ParseMergePolicy(cfg.MergePolicy)

	c := &Coordinator{
		registry:       registry,
		tracer:         otel.Tracer(tracerName),
		now:            func() time.Time { return time.Now().UTC() },
		candidateCount: cfg.CandidateCount,
		personalities:  slices.Clone(cfg.Personalities),
		generatorID:    cfg.GeneratorID,
		mergePolicy:    policy,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.observer == nil {
		c.observer = observability.NewSlogObserver(slog.Default())
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.generator == nil {
		c.generator = generative.New(cfg.Generator, generative.WithObserver(c.observer))
	}
	if cfg.ScoreOnClose && c.scorer == nil {
		if scorer, ok := c.generator.(scoring.Scorer); ok {
			c.scorer = scorer
		}
	}
	if c.archive == nil {
		store, err := archive.NewStore(&cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive store: %w", err)
		}
		c.archive = store
		c.ownsArchive = store != nil
	}
	if c.poller == nil && c.transport != nil {
		c.poller = c.transport
	}
	if c.poller == nil {
		return nil, fmt.Errorf("%w: a vote poller or transport is required", ErrInvalidConfig)
	}

	voteOpts := []vote.Option{vote.WithObserver(c.observer), vote.WithRand(c.rng)}
	if c.voteWait != nil {
		voteOpts = append(voteOpts, vote.WithWait(c.voteWait))
	}
	voter, err := vote.NewVoter(c.poller, cfg.Vote, voteOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.voter = voter

	return c, nil
}

// Close releases the archive store if New opened it. Stores supplied with
// WithArchive are left to the caller.
func (c *Coordinator) Close() error {
	if !c.ownsArchive {
		return nil
	}
	if closer, ok := c.archive.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// State returns the current lifecycle state without waiting for a running
// operation.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// SessionID returns the id of the session, or zero before the opening line.
func (c *Coordinator) SessionID() int64 {
	if s := c.session.Load(); s != nil {
		return s.ID()
	}
	return 0
}

// Session returns a snapshot of the live session. It fails with ErrNotFound
// before the opening line and after the session leaves the registry.
func (c *Coordinator) Session() (session.Record, error) {
	s := c.session.Load()
	if s == nil {
		return session.Record{}, fmt.Errorf("%w: no session has been opened", ErrNotFound)
	}
	live, err := c.registry.Get(s.ID())
	if err != nil {
		return session.Record{}, err
	}
	return live.Record(), nil
}

// Result returns the finalized session once the coordinator is Closed.
func (c *Coordinator) Result() (*Result, bool) {
	r := c.result.Load()
	return r, r != nil
}

// Err returns the cause of a Failed session.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// NextContributor returns the participant whose line is due, rotating
// through the participant list in configured order. It reports false when
// the next line is not a participant turn.
func (c *Coordinator) NextContributor() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case Priming:
		return c.participants[0], true
	case AwaitingParticipantLine:
		turn := c.session.Load().LineCount() / 2
		return c.participants[turn%len(c.participants)], true
	default:
		return "", false
	}
}

// Configure sets the session parameters and moves Idle to Priming. An empty
// personality is resolved at finalize time.
func (c *Coordinator) Configure(ctx context.Context, lineCount int, participants []string, personality string) (err error) {
	const op = "Configure"
	ctx, span := c.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if !c.mu.TryLock() {
		return c.reject(ctx, op, errBusy)
	}
	defer c.mu.Unlock()

	if err := c.expect(op, Idle); err != nil {
		return c.reject(ctx, op, err)
	}
	if lineCount < 1 {
		return fmt.Errorf("%w: line count must be at least 1, got %d", ErrInvalidConfig, lineCount)
	}

	var members []string
	for _, p := range participants {
		if p != "" && !slices.Contains(members, p) {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidConfig)
	}

	c.lineCount = lineCount
	c.participants = members
	c.personality = personality
	c.setState(Priming)

	c.emit(ctx, EventConfigure, observability.LevelInfo, map[string]any{
		"line_count":   lineCount,
		"participants": len(members),
		"personality":  personality,
	})
	return nil
}

// SubmitOpeningLine creates the session with line 1 and primes its metadata
// and summary.
func (c *Coordinator) SubmitOpeningLine(ctx context.Context, contributor, text string) (err error) {
	const op = "SubmitOpeningLine"
	ctx, span := c.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if !c.mu.TryLock() {
		return c.reject(ctx, op, errBusy)
	}
	defer c.mu.Unlock()

	if err := c.expect(op, Priming); err != nil {
		return c.reject(ctx, op, err)
	}
	text, err = c.admit(contributor, text)
	if err != nil {
		return c.reject(ctx, op, err)
	}

	s := c.registry.Create(contributor, c.personality,
		session.WithMergePolicy(c.mergePolicy),
		session.WithClock(c.now),
	)
	c.session.Store(s)
	c.voter.SetSession(s.ID())
	span.SetAttributes(attribute.Int64("storyloop.session.id", s.ID()))

	line := s.AppendLine(contributor, text)
	c.emitLine(ctx, line)

	c.describe(ctx, s, false)
	c.summarize(ctx, s)

	return c.advance(ctx)
}

// SubmitParticipantLine commits a participant's line, runs extraction and
// hands the turn to the generator.
func (c *Coordinator) SubmitParticipantLine(ctx context.Context, contributor, text string) (err error) {
	const op = "SubmitParticipantLine"
	ctx, span := c.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if !c.mu.TryLock() {
		return c.reject(ctx, op, errBusy)
	}
	defer c.mu.Unlock()

	if err := c.expect(op, AwaitingParticipantLine); err != nil {
		return c.reject(ctx, op, err)
	}
	text, err = c.admit(contributor, text)
	if err != nil {
		return c.reject(ctx, op, err)
	}

	s := c.session.Load()
	line := s.AppendLine(contributor, text)
	c.emitLine(ctx, line)
	c.extractAndMerge(ctx, s, line)

	return c.advance(ctx)
}

// RunGeneratorTurn requests candidates, puts them to a vote, and commits the
// winner as a generator line. Transport and context failures leave the turn
// pending so the call can be repeated.
func (c *Coordinator) RunGeneratorTurn(ctx context.Context) (out vote.Outcome, err error) {
	const op = "RunGeneratorTurn"
	ctx, span := c.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if !c.mu.TryLock() {
		return vote.Outcome{}, c.reject(ctx, op, errBusy)
	}
	defer c.mu.Unlock()

	if err := c.expect(op, AwaitingGeneratorTurn); err != nil {
		return vote.Outcome{}, c.reject(ctx, op, err)
	}

	s := c.session.Load()
	candidates, err := c.candidates(ctx, s)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return vote.Outcome{}, ctxErr
		}
		return vote.Outcome{}, c.fail(ctx, s, err)
	}

	out, err = c.voter.Run(ctx, candidates)
	if err != nil {
		return vote.Outcome{}, fmt.Errorf("generator turn vote: %w", err)
	}

	line := s.AppendLine(c.generatorID, out.Text)
	c.emitLine(ctx, line)
	c.extractAndMerge(ctx, s, line)

	return out, c.advance(ctx)
}

// candidates asks for exactly candidateCount continuations, retrying once.
func (c *Coordinator) candidates(ctx context.Context, s *session.Session) ([]string, error) {
	personality := s.Metadata().Personality

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var got []string
		got, err = c.generator.Candidates(ctx, s.Text(), personality, c.candidateCount)
		if err == nil && len(got) != c.candidateCount {
			err = fmt.Errorf("%w: got %d candidates, want %d", generative.ErrMalformed, len(got), c.candidateCount)
		}
		if err == nil {
			return got, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt == 1 {
			c.emit(ctx, EventCandidateRetry, observability.LevelWarning, map[string]any{
				"error": err.Error(),
			})
		}
	}
	return nil, err
}

// advance flips turn parity or finalizes once the line count is reached.
func (c *Coordinator) advance(ctx context.Context) error {
	s := c.session.Load()
	n := s.LineCount()

	if n >= c.lineCount {
		return c.finalize(ctx, s)
	}
	if (n+1)%2 == 1 {
		c.setState(AwaitingParticipantLine)
	} else {
		c.setState(AwaitingGeneratorTurn)
	}
	return nil
}

func (c *Coordinator) finalize(ctx context.Context, s *session.Session) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.finalize",
		trace.WithAttributes(attribute.Int64("storyloop.session.id", s.ID())))
	defer span.End()

	c.setState(Finalizing)
	c.emit(ctx, EventFinalize, observability.LevelInfo, map[string]any{
		"lines": s.LineCount(),
	})

	if s.Metadata().Personality == "" {
		s.SetPersonality(c.personalities[c.rng.IntN(len(c.personalities))])
	}
	c.describe(ctx, s, true)
	c.summarize(ctx, s)

	record := s.Record()
	if err := c.registry.Remove(s.ID()); err != nil {
		c.emit(ctx, EventDegraded, observability.LevelWarning, map[string]any{
			"step":  "registry",
			"error": err.Error(),
		})
	}

	result := &Result{Record: record}
	c.setState(Closed)

	if c.scorer != nil {
		score, err := scoring.Evaluate(ctx, c.scorer, record)
		if err != nil {
			result.ScoreErr = err
			span.RecordError(err)
		} else {
			result.Score = &score
		}
		c.emit(ctx, EventScore, observability.LevelInfo, scoreData(score, err))
	}

	if c.archive != nil {
		entry := archive.Entry{Record: record, Score: result.Score, ArchivedAt: c.now()}
		if err := c.archive.Save(ctx, entry); err != nil {
			result.ArchiveErr = err
			span.RecordError(err)
		}
		c.emit(ctx, EventArchive, observability.LevelVerbose, errData(result.ArchiveErr))
	}

	c.result.Store(result)
	c.emit(ctx, EventClosed, observability.LevelInfo, map[string]any{
		"lines": len(record.Lines),
		"title": record.Title,
	})
	return nil
}

func (c *Coordinator) fail(ctx context.Context, s *session.Session, cause error) error {
	err := fmt.Errorf("%w: %w", ErrSessionFailed, cause)

	c.failure = err
	c.setState(Failed)
	_ = c.registry.Remove(s.ID())

	c.emit(ctx, EventFailed, observability.LevelError, map[string]any{
		"error": cause.Error(),
		"lines": s.LineCount(),
	})
	return err
}

// extractAndMerge folds newly revealed entities into the session, then
// regenerates the summary. Both steps degrade instead of failing the turn.
func (c *Coordinator) extractAndMerge(ctx context.Context, s *session.Session, line session.Line) {
	ext, err := c.generator.Extract(ctx, s.Text(), line.Text)
	if err != nil {
		c.degraded(ctx, "extract", err)
		ext = session.Extraction{}
	}

	merged := s.Merge(ext)
	c.emit(ctx, EventMerge, observability.LevelVerbose, map[string]any{
		"line":               line.ID,
		"added_characters":   merged.AddedCharacters,
		"added_settings":     merged.AddedSettings,
		"folded_characters":  merged.FoldedCharacters,
		"folded_settings":    merged.FoldedSettings,
		"discarded_entities": merged.Discarded,
	})

	c.summarize(ctx, s)
}

// describe applies derived metadata. With overwrite set, a failed pass still
// replaces prior metadata with empty values.
func (c *Coordinator) describe(ctx context.Context, s *session.Session, overwrite bool) {
	d, err := c.generator.Describe(ctx, s.Text())
	if err != nil {
		c.degraded(ctx, "describe", err)
		if !overwrite {
			return
		}
		d = session.Derived{}
	}
	s.ApplyDerived(d)
}

func (c *Coordinator) summarize(ctx context.Context, s *session.Session) {
	summary, err := c.generator.Summarize(ctx, s.Text())
	if err != nil {
		c.degraded(ctx, "summarize", err)
		return
	}
	s.SetSummary(summary)
}

var errBusy = fmt.Errorf("%w: another operation is in progress", ErrInvalidTurn)

func (c *Coordinator) expect(op string, want State) error {
	if got := c.State(); got != want {
		return fmt.Errorf("%w: %s is not allowed while %s", ErrInvalidTurn, op, got)
	}
	return nil
}

// admit checks contributor membership and normalizes the line text.
func (c *Coordinator) admit(contributor, text string) (string, error) {
	if !slices.Contains(c.participants, contributor) {
		return "", fmt.Errorf("%w: %q", ErrNotParticipant, contributor)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: line is empty", ErrInvalidTurn)
	}
	return text, nil
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Coordinator) reject(ctx context.Context, op string, err error) error {
	c.emit(ctx, EventTurnReject, observability.LevelVerbose, map[string]any{
		"operation": op,
		"error":     err.Error(),
	})
	return err
}

func (c *Coordinator) degraded(ctx context.Context, step string, err error) {
	c.emit(ctx, EventDegraded, observability.LevelWarning, map[string]any{
		"step":      step,
		"error":     err.Error(),
		"malformed": errors.Is(err, generative.ErrMalformed),
	})
}

func (c *Coordinator) emitLine(ctx context.Context, line session.Line) {
	c.emit(ctx, EventLineCommit, observability.LevelInfo, map[string]any{
		"line":     line.ID,
		"added_by": line.AddedBy,
	})
}

func (c *Coordinator) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "coordinator.Coordinator",
		Session:   c.SessionID(),
		Data:      data,
	})
}

func (c *Coordinator) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "coordinator."+op)
	if id := c.SessionID(); id != 0 {
		span.SetAttributes(attribute.Int64("storyloop.session.id", id))
	}
	span.SetAttributes(attribute.String("storyloop.state", c.State().String()))
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func scoreData(score scoring.Result, err error) map[string]any {
	if err != nil {
		return errData(err)
	}
	return map[string]any{
		"total": score.Total,
		"rank":  score.Rank,
	}
}

func errData(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	return map[string]any{"error": err.Error()}
}
