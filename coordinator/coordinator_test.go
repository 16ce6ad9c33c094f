package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/coordinator"
	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/scoring"
	"github.com/tailored-agentic-units/storyloop/session"
)

func TestCoordinator_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.poller.tallies = [][]int{{0, 1, 0}}
	ctx := context.Background()

	assertState(t, h.c, coordinator.Idle)

	if err := h.c.Configure(ctx, 3, []string{"P1"}, "whimsical"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	assertState(t, h.c, coordinator.Priming)

	if err := h.c.SubmitOpeningLine(ctx, "P1", "A cat found a map."); err != nil {
		t.Fatalf("SubmitOpeningLine failed: %v", err)
	}
	assertState(t, h.c, coordinator.AwaitingGeneratorTurn)

	out, err := h.c.RunGeneratorTurn(ctx)
	if err != nil {
		t.Fatalf("RunGeneratorTurn failed: %v", err)
	}
	if out.Winner != 1 || out.Text != "B" {
		t.Errorf("got winner %d %q, want 1 %q", out.Winner, out.Text, "B")
	}
	assertState(t, h.c, coordinator.AwaitingParticipantLine)

	rec, err := h.c.Session()
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if rec.Lines[1].Text != "B" || rec.Lines[1].AddedBy != "generator" {
		t.Errorf("got line 2 %+v", rec.Lines[1])
	}

	if err := h.c.SubmitParticipantLine(ctx, "P1", "The map led home."); err != nil {
		t.Fatalf("SubmitParticipantLine failed: %v", err)
	}
	assertState(t, h.c, coordinator.Closed)

	result, ok := h.c.Result()
	if !ok {
		t.Fatal("no result after close")
	}
	if got := len(result.Record.Lines); got != 3 {
		t.Errorf("got %d lines, want 3", got)
	}
	for i, line := range result.Record.Lines {
		if want := fmt.Sprintf("line-%03d", i+1); line.ID != want {
			t.Errorf("line %d id %q, want %q", i, line.ID, want)
		}
	}
	if result.Record.Text != "A cat found a map. B The map led home." {
		t.Errorf("got text %q", result.Record.Text)
	}
	if result.Record.Title != "Untitled" {
		t.Errorf("got title %q", result.Record.Title)
	}
	if h.rec.Count(coordinator.EventClosed) != 1 {
		t.Errorf("got events %v", h.rec.Types())
	}
}

func TestCoordinator_InvalidTurnHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.c.SubmitOpeningLine(ctx, "P1", "too early"); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("opening before configure: got %v, want ErrInvalidTurn", err)
	}
	if _, err := h.c.RunGeneratorTurn(ctx); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("generator turn while idle: got %v, want ErrInvalidTurn", err)
	}

	h.c.Configure(ctx, 5, []string{"P1", "P2"}, "")
	if err := h.c.Configure(ctx, 5, []string{"P1"}, ""); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("second configure: got %v, want ErrInvalidTurn", err)
	}

	h.c.SubmitOpeningLine(ctx, "P1", "Once.")
	assertState(t, h.c, coordinator.AwaitingGeneratorTurn)

	err := h.c.SubmitParticipantLine(ctx, "P2", "out of turn")
	if !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("participant line on generator turn: got %v, want ErrInvalidTurn", err)
	}
	if err := h.c.SubmitOpeningLine(ctx, "P1", "again"); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("second opening line: got %v, want ErrInvalidTurn", err)
	}

	rec, _ := h.c.Session()
	if len(rec.Lines) != 1 {
		t.Errorf("got %d lines after rejections, want 1", len(rec.Lines))
	}
	assertState(t, h.c, coordinator.AwaitingGeneratorTurn)

	if _, err := h.c.RunGeneratorTurn(ctx); err != nil {
		t.Fatalf("RunGeneratorTurn failed: %v", err)
	}
	if _, err := h.c.RunGeneratorTurn(ctx); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("generator turn on participant turn: got %v, want ErrInvalidTurn", err)
	}
	if h.gen.candidateCalls() != 1 {
		t.Errorf("rejected generator turn requested candidates")
	}
	if h.rec.Count(coordinator.EventTurnReject) == 0 {
		t.Error("no reject events recorded")
	}
}

func TestCoordinator_NonParticipantRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.c.Configure(ctx, 3, []string{"P1"}, "")

	err := h.c.SubmitOpeningLine(ctx, "stranger", "Hello.")
	if !errors.Is(err, coordinator.ErrNotParticipant) || !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("got %v, want ErrNotParticipant wrapping ErrInvalidTurn", err)
	}
	if h.registry.Len() != 0 {
		t.Error("rejected opening line created a session")
	}

	h.c.SubmitOpeningLine(ctx, "P1", "Hello.")
	h.c.RunGeneratorTurn(ctx)

	if err := h.c.SubmitParticipantLine(ctx, "stranger", "Hi."); !errors.Is(err, coordinator.ErrNotParticipant) {
		t.Errorf("got %v, want ErrNotParticipant", err)
	}
	rec, _ := h.c.Session()
	if len(rec.Lines) != 2 {
		t.Errorf("got %d lines, want 2", len(rec.Lines))
	}
}

func TestCoordinator_EmptyLineRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.c.Configure(ctx, 3, []string{"P1"}, "")

	if err := h.c.SubmitOpeningLine(ctx, "P1", "   "); !errors.Is(err, coordinator.ErrInvalidTurn) {
		t.Errorf("got %v, want ErrInvalidTurn", err)
	}
	assertState(t, h.c, coordinator.Priming)
}

func TestCoordinator_ConfigureValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.c.Configure(ctx, 0, []string{"P1"}, ""); !errors.Is(err, coordinator.ErrInvalidConfig) {
		t.Errorf("zero line count: got %v, want ErrInvalidConfig", err)
	}
	if err := h.c.Configure(ctx, 3, nil, ""); !errors.Is(err, coordinator.ErrInvalidConfig) {
		t.Errorf("no participants: got %v, want ErrInvalidConfig", err)
	}
	assertState(t, h.c, coordinator.Idle)
}

func TestCoordinator_SingleLineFinalizesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.c.Configure(ctx, 1, []string{"P1"}, "")

	if err := h.c.SubmitOpeningLine(ctx, "P1", "The end."); err != nil {
		t.Fatalf("SubmitOpeningLine failed: %v", err)
	}
	assertState(t, h.c, coordinator.Closed)

	result, _ := h.c.Result()
	if len(result.Record.Lines) != 1 {
		t.Errorf("got %d lines, want 1", len(result.Record.Lines))
	}
	if h.gen.candidateCalls() != 0 {
		t.Error("generator asked for candidates in a one-line story")
	}
}

func TestCoordinator_CandidateRetry(t *testing.T) {
	t.Run("recovers on second attempt", func(t *testing.T) {
		h := newHarness(t)
		h.gen.replies = []candidateReply{
			{err: fmt.Errorf("%w: not a list", generative.ErrMalformed)},
			{lines: []string{"X", "Y", "Z"}},
		}
		h.poller.tallies = [][]int{{0, 0, 4}}
		ctx := context.Background()

		h.c.Configure(ctx, 3, []string{"P1"}, "")
		h.c.SubmitOpeningLine(ctx, "P1", "Start.")

		out, err := h.c.RunGeneratorTurn(ctx)
		if err != nil {
			t.Fatalf("RunGeneratorTurn failed: %v", err)
		}
		if out.Text != "Z" {
			t.Errorf("got %q, want Z", out.Text)
		}
		if h.gen.candidateCalls() != 2 {
			t.Errorf("got %d candidate calls, want 2", h.gen.candidateCalls())
		}
		if h.rec.Count(coordinator.EventCandidateRetry) != 1 {
			t.Errorf("got events %v", h.rec.Types())
		}
	})

	t.Run("fails the session after one retry", func(t *testing.T) {
		h := newHarness(t)
		h.gen.replies = []candidateReply{
			{lines: []string{"only one"}},
			{err: fmt.Errorf("%w: %w", generative.ErrUnavailable, errBackend)},
			{lines: []string{"never", "asked", "for"}},
		}
		ctx := context.Background()

		h.c.Configure(ctx, 3, []string{"P1"}, "")
		h.c.SubmitOpeningLine(ctx, "P1", "Start.")
		id := h.c.SessionID()

		_, err := h.c.RunGeneratorTurn(ctx)
		if !errors.Is(err, coordinator.ErrSessionFailed) {
			t.Fatalf("got %v, want ErrSessionFailed", err)
		}
		if !errors.Is(err, generative.ErrUnavailable) {
			t.Errorf("cause lost: %v", err)
		}
		if h.gen.candidateCalls() != 2 {
			t.Errorf("got %d candidate calls, want 2", h.gen.candidateCalls())
		}
		assertState(t, h.c, coordinator.Failed)

		if _, err := h.registry.Get(id); !errors.Is(err, coordinator.ErrNotFound) {
			t.Errorf("failed session still registered: %v", err)
		}
		if !errors.Is(h.c.Err(), coordinator.ErrSessionFailed) {
			t.Errorf("got Err() %v", h.c.Err())
		}
		if _, err := h.c.RunGeneratorTurn(ctx); !errors.Is(err, coordinator.ErrInvalidTurn) {
			t.Errorf("turn after failure: got %v, want ErrInvalidTurn", err)
		}
	})
}

func TestCoordinator_CancelledTurnStaysPending(t *testing.T) {
	h := newHarness(t, coordinator.WithVoteWait(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	ctx := context.Background()
	h.c.Configure(ctx, 3, []string{"P1"}, "")
	h.c.SubmitOpeningLine(ctx, "P1", "Start.")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if _, err := h.c.RunGeneratorTurn(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	assertState(t, h.c, coordinator.AwaitingGeneratorTurn)

	if _, err := h.c.RunGeneratorTurn(ctx); err != nil {
		t.Fatalf("retry after cancel failed: %v", err)
	}
	assertState(t, h.c, coordinator.AwaitingParticipantLine)
}

func TestCoordinator_ExtractionMergesAndDegrades(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.gen.extract = func(fullText, newLine string) (session.Extraction, error) {
		calls++
		switch calls {
		case 1:
			return session.Extraction{Characters: []session.Character{{
				Name:       "Mira",
				OpinionsOf: []session.Opinion{{CharacterName: "Tom", OpinionText: "trusts", TrustLevel: 8}},
			}}}, nil
		case 2:
			return session.Extraction{Characters: []session.Character{{
				Name:       "Mira",
				OpinionsOf: []session.Opinion{{CharacterName: "Tom", OpinionText: "distrusts", TrustLevel: 1}},
			}}}, nil
		default:
			return session.Extraction{}, fmt.Errorf("%w: prose", generative.ErrMalformed)
		}
	}
	ctx := context.Background()

	h.c.Configure(ctx, 5, []string{"P1"}, "")
	h.c.SubmitOpeningLine(ctx, "P1", "Mira arrived.")
	h.c.RunGeneratorTurn(ctx)
	h.c.SubmitParticipantLine(ctx, "P1", "Mira met Tom.")

	if err := func() error { _, err := h.c.RunGeneratorTurn(ctx); return err }(); err != nil {
		t.Fatalf("turn with malformed extraction failed: %v", err)
	}

	rec, err := h.c.Session()
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if len(rec.Lines) != 4 {
		t.Errorf("got %d lines, want 4", len(rec.Lines))
	}
	if len(rec.Characters) != 1 {
		t.Fatalf("got %d characters, want 1", len(rec.Characters))
	}
	if op := rec.Characters[0].OpinionsOf; len(op) != 1 || op[0].OpinionText != "trusts" {
		t.Errorf("later opinions were not discarded: %+v", op)
	}
	if rec.Summary != "summary of "+rec.Text {
		t.Errorf("summary not regenerated: %q", rec.Summary)
	}
	if h.rec.Count(coordinator.EventDegraded) != 1 {
		t.Errorf("got %d degraded events, want 1", h.rec.Count(coordinator.EventDegraded))
	}
}

func TestCoordinator_BestEffortPriming(t *testing.T) {
	h := newHarness(t)
	h.gen.describe = func(string) (session.Derived, error) {
		return session.Derived{}, fmt.Errorf("%w: bad json", generative.ErrMalformed)
	}
	h.gen.summaryErr = fmt.Errorf("%w: timeout", generative.ErrUnavailable)
	ctx := context.Background()

	h.c.Configure(ctx, 3, []string{"P1"}, "")
	if err := h.c.SubmitOpeningLine(ctx, "P1", "Once."); err != nil {
		t.Fatalf("SubmitOpeningLine failed: %v", err)
	}

	rec, _ := h.c.Session()
	if rec.Title != "" || rec.Summary != "" || rec.Metadata.Genre != "" {
		t.Errorf("got %q %q %q, want empty defaults", rec.Title, rec.Summary, rec.Metadata.Genre)
	}
	assertState(t, h.c, coordinator.AwaitingGeneratorTurn)
}

func TestCoordinator_FinalizeOverwritesMetadata(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.gen.describe = func(text string) (session.Derived, error) {
		calls++
		return session.Derived{Title: fmt.Sprintf("Draft %d", calls), Tone: "calm"}, nil
	}
	ctx := context.Background()

	h.c.Configure(ctx, 2, []string{"P1"}, "")
	h.c.SubmitOpeningLine(ctx, "P1", "Once.")

	rec, _ := h.c.Session()
	if rec.Title != "Draft 1" {
		t.Errorf("got primed title %q, want Draft 1", rec.Title)
	}

	h.c.RunGeneratorTurn(ctx)
	result, ok := h.c.Result()
	if !ok {
		t.Fatal("not closed")
	}
	if result.Record.Title != "Draft 2" {
		t.Errorf("got final title %q, want Draft 2", result.Record.Title)
	}
}

func TestCoordinator_FinalizeClearsMetadataOnMalformedReply(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.gen.describe = func(string) (session.Derived, error) {
		calls++
		if calls == 1 {
			return session.Derived{Title: "Opening Title", Genre: "fable", ThemeKeywords: []string{"sea"}}, nil
		}
		return session.Derived{}, fmt.Errorf("%w: not json", generative.ErrMalformed)
	}
	ctx := context.Background()

	h.c.Configure(ctx, 2, []string{"P1"}, "")
	h.c.SubmitOpeningLine(ctx, "P1", "Once.")
	h.c.RunGeneratorTurn(ctx)

	result, ok := h.c.Result()
	if !ok {
		t.Fatal("not closed")
	}
	md := result.Record.Metadata
	if result.Record.Title != "" || md.Genre != "" || len(md.ThemeKeywords) != 0 {
		t.Errorf("got title %q genre %q keywords %v, want empty", result.Record.Title, md.Genre, md.ThemeKeywords)
	}
}

func TestCoordinator_PersonalityResolvedAtFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.c.Configure(ctx, 1, []string{"P1"}, "")
	h.c.SubmitOpeningLine(ctx, "P1", "Once.")

	result, _ := h.c.Result()
	got := result.Record.Metadata.Personality
	found := false
	for _, p := range coordinator.DefaultPersonalities {
		if p == got {
			found = true
		}
	}
	if !found {
		t.Errorf("got personality %q, want one of %v", got, coordinator.DefaultPersonalities)
	}
}

func TestCoordinator_NotFoundAfterFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.c.Configure(ctx, 1, []string{"P1"}, "heroic")
	h.c.SubmitOpeningLine(ctx, "P1", "Once.")
	id := h.c.SessionID()

	if _, err := h.registry.Get(id); !errors.Is(err, coordinator.ErrNotFound) {
		t.Errorf("registry: got %v, want ErrNotFound", err)
	}
	if _, err := h.c.Session(); !errors.Is(err, coordinator.ErrNotFound) {
		t.Errorf("Session: got %v, want ErrNotFound", err)
	}
	if h.registry.Len() != 0 {
		t.Errorf("got %d live sessions, want 0", h.registry.Len())
	}
}

type fixedScorer struct {
	scores scoring.Scores
	err    error
}

func (s fixedScorer) Score(ctx context.Context, rec session.Record) (scoring.Scores, error) {
	return s.scores, s.err
}

func TestCoordinator_ScoresOnClose(t *testing.T) {
	five := scoring.Scores{PlotCohesion: 5, Creativity: 5, Characters: 5, SettingAtmosphere: 5, ToneStyleAlignment: 5, Completeness: 5}

	t.Run("scored", func(t *testing.T) {
		h := newHarness(t, coordinator.WithScorer(fixedScorer{scores: five}))
		ctx := context.Background()
		h.c.Configure(ctx, 1, []string{"P1"}, "")
		h.c.SubmitOpeningLine(ctx, "P1", "Once.")

		result, _ := h.c.Result()
		if result.Score == nil || result.Score.Total != 30 || result.Score.Rank != "C" {
			t.Errorf("got score %+v", result.Score)
		}
	})

	t.Run("malformed score keeps the session closed", func(t *testing.T) {
		h := newHarness(t, coordinator.WithScorer(fixedScorer{err: scoring.ErrMalformedScore}))
		ctx := context.Background()
		h.c.Configure(ctx, 1, []string{"P1"}, "")

		if err := h.c.SubmitOpeningLine(ctx, "P1", "Once."); err != nil {
			t.Fatalf("SubmitOpeningLine failed: %v", err)
		}
		assertState(t, h.c, coordinator.Closed)

		result, _ := h.c.Result()
		if !errors.Is(result.ScoreErr, scoring.ErrMalformedScore) || result.Score != nil {
			t.Errorf("got score %+v err %v", result.Score, result.ScoreErr)
		}
	})
}

type closingStore struct {
	archive.Store
	closed int
}

func (s *closingStore) Close() error {
	s.closed++
	return nil
}

func TestCoordinator_Close(t *testing.T) {
	t.Run("releases an archive opened from config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Archive = archive.Config{
			Path:   filepath.Join(t.TempDir(), "stories.db"),
			Driver: archive.DriverSQLite,
		}
		c, err := coordinator.New(cfg, coordinator.NewRegistry(),
			coordinator.WithGenerator(&fakeGenerator{}),
			coordinator.WithPoller(&fakePoller{}),
			coordinator.WithVoteWait(noWait),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		ctx := context.Background()
		c.Configure(ctx, 1, []string{"P1"}, "")
		c.SubmitOpeningLine(ctx, "P1", "Once.")

		result, ok := c.Result()
		if !ok {
			t.Fatal("not closed")
		}
		if !errors.Is(result.ArchiveErr, archive.ErrSaveFailed) {
			t.Errorf("got archive error %v, want ErrSaveFailed from a released store", result.ArchiveErr)
		}
	})

	t.Run("leaves a supplied archive open", func(t *testing.T) {
		store := &closingStore{Store: archive.NewFileStore(t.TempDir())}
		h := newHarness(t, coordinator.WithArchive(store))
		if err := h.c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if store.closed != 0 {
			t.Errorf("supplied store closed %d times", store.closed)
		}
	})
}
