// Package generative adapts an OpenAI-compatible chat model into the
// capabilities a story session needs: candidate continuations, character and
// setting extraction, summaries, metadata, rubric scores and relationship
// arrows. Every structured reply is validated against a JSON schema before it
// crosses into the rest of the system; violations surface as ErrMalformed.
package generative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/storyloop/observability"
	"github.com/tailored-agentic-units/storyloop/relations"
	"github.com/tailored-agentic-units/storyloop/scoring"
	"github.com/tailored-agentic-units/storyloop/session"
)

// Generator is the generative capability consumed by the coordinator.
type Generator interface {
	Candidates(ctx context.Context, text, personality string, n int) ([]string, error)
	Extract(ctx context.Context, fullText, newLine string) (session.Extraction, error)
	Summarize(ctx context.Context, text string) (string, error)
	Describe(ctx context.Context, text string) (session.Derived, error)
}

const (
	scoreTemperature        = 0.2
	relationshipTemperature = 0.9
	extractionTemperature   = 0.3
)

// Client implements Generator and scoring.Scorer over a Completer.
type Client struct {
	completer   Completer
	temperature float64
	maxTokens   int
	observer    observability.Observer
}

// Option configures a Client.
type Option func(*Client)

// WithCompleter replaces the OpenAI backend.
func WithCompleter(c Completer) Option {
	return func(cl *Client) { cl.completer = c }
}

// WithObserver sets the event observer.
func WithObserver(obs observability.Observer) Option {
	return func(cl *Client) { cl.observer = obs }
}

// New creates a Client from cfg. Without WithCompleter the client talks to the
// configured OpenAI-compatible endpoint.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.completer == nil {
		c.completer = NewOpenAICompleter(cfg)
	}
	c.observer = observability.OrNoOp(c.observer)
	return c
}

// Candidates asks for exactly n continuations of text.
func (c *Client) Candidates(ctx context.Context, text, personality string, n int) ([]string, error) {
	system, user := candidatePrompt(text, personality, n)
	raw, err := c.complete(ctx, "candidates", Request{
		System:      system,
		User:        user,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	candidates, err := DecodeCandidates(raw, n)
	if err != nil {
		c.malformed(ctx, "candidates", err)
		return nil, err
	}
	return candidates, nil
}

// Extract asks for characters and settings revealed by newLine.
func (c *Client) Extract(ctx context.Context, fullText, newLine string) (session.Extraction, error) {
	raw, err := c.complete(ctx, "extract", Request{
		User:        extractionPrompt(fullText, newLine),
		Temperature: extractionTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return session.Extraction{}, err
	}

	ext, err := DecodeExtraction(raw)
	if err != nil {
		c.malformed(ctx, "extract", err)
		return session.Extraction{}, err
	}
	return ext, nil
}

// Summarize returns a one or two sentence summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	raw, err := c.complete(ctx, "summarize", Request{
		User:        summaryPrompt(text),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(stripFences(raw))
	if summary == "" {
		err := fmt.Errorf("%w: empty summary", ErrMalformed)
		c.malformed(ctx, "summarize", err)
		return "", err
	}
	return summary, nil
}

// Describe derives title, genre, tone, style and theme keywords from text.
func (c *Client) Describe(ctx context.Context, text string) (session.Derived, error) {
	raw, err := c.complete(ctx, "describe", Request{
		User:        describePrompt(text),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return session.Derived{}, err
	}

	d, err := DecodeDerived(raw)
	if err != nil {
		c.malformed(ctx, "describe", err)
		return session.Derived{}, err
	}
	return d, nil
}

// Score rates a finalized story on the six rubric categories.
func (c *Client) Score(ctx context.Context, rec session.Record) (scoring.Scores, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return scoring.Scores{}, fmt.Errorf("encode record: %w", err)
	}

	raw, err := c.complete(ctx, "score", Request{
		System:      scoreSystem,
		User:        scorePrompt(string(data)),
		Temperature: scoreTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return scoring.Scores{}, err
	}

	scores, err := DecodeScores(raw)
	if err != nil {
		c.malformed(ctx, "score", err)
		return scoring.Scores{}, err
	}
	return scores, nil
}

// Relationships asks for "A -> feeling -> B" arrows and parses them into
// edges. Lines that do not follow the format are skipped.
func (c *Client) Relationships(ctx context.Context, text string) ([]relations.Edge, error) {
	raw, err := c.complete(ctx, "relationships", Request{
		System:      relationshipSystem,
		User:        relationshipPrompt(text),
		Temperature: relationshipTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return relations.ParseArrows(stripFences(raw)), nil
}

func (c *Client) complete(ctx context.Context, op string, req Request) (string, error) {
	start := time.Now()
	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventRequest,
		Level:     observability.LevelVerbose,
		Timestamp: start,
		Source:    "generative.Client",
		Data: map[string]any{
			"operation":     op,
			"prompt_tokens": CountTokens(req.System) + CountTokens(req.User),
		},
	})

	raw, err := c.completer.Complete(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventFailure,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "generative.Client",
			Data: map[string]any{
				"operation": op,
				"error":     err.Error(),
			},
		})
		return "", err
	}

	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventResponse,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "generative.Client",
		Data: map[string]any{
			"operation":         op,
			"completion_tokens": CountTokens(raw),
			"duration":          time.Since(start).String(),
		},
	})
	return raw, nil
}

func (c *Client) malformed(ctx context.Context, op string, err error) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventMalformed,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "generative.Client",
		Data: map[string]any{
			"operation": op,
			"error":     err.Error(),
		},
	})
}

var (
	_ Generator      = (*Client)(nil)
	_ scoring.Scorer = (*Client)(nil)
)
