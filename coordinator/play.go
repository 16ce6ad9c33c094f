package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Play drives a whole session over the configured Transport: participants
// are asked for lines in rotation, generator turns are voted on, and the
// finalized Result is returned. Rejected lines are reported back and asked
// for again.
func (c *Coordinator) Play(ctx context.Context, lineCount int, participants []string, personality string) (*Result, error) {
	if c.transport == nil {
		return nil, fmt.Errorf("%w: play requires a transport", ErrInvalidConfig)
	}
	t := c.transport

	if err := c.Configure(ctx, lineCount, participants, personality); err != nil {
		return nil, err
	}
	if err := t.Broadcast(ctx, fmt.Sprintf("A new story begins. It will be %d lines long.", lineCount)); err != nil {
		return nil, fmt.Errorf("announce session: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state := c.State(); state {
		case Priming, AwaitingParticipantLine:
			if err := c.playParticipantTurn(ctx, t, state); err != nil {
				return nil, err
			}

		case AwaitingGeneratorTurn:
			out, err := c.RunGeneratorTurn(ctx)
			if err != nil {
				return nil, err
			}
			if err := t.Broadcast(ctx, fmt.Sprintf("The group chose: %s", out.Text)); err != nil {
				return nil, fmt.Errorf("broadcast winner: %w", err)
			}

		case Closed:
			result, _ := c.Result()
			if err := t.Broadcast(ctx, closingMessage(result)); err != nil {
				return result, fmt.Errorf("broadcast result: %w", err)
			}
			return result, nil

		case Failed:
			return nil, c.Err()

		default:
			return nil, fmt.Errorf("%w: unexpected state %s", ErrInvalidTurn, state)
		}
	}
}

func (c *Coordinator) playParticipantTurn(ctx context.Context, t Transport, state State) error {
	who, ok := c.NextContributor()
	if !ok {
		return fmt.Errorf("%w: no participant turn in state %s", ErrInvalidTurn, c.State())
	}

	prompt := fmt.Sprintf("%s, write the next line.", who)
	if state == Priming {
		prompt = fmt.Sprintf("%s, write the opening line.", who)
	}
	if err := t.Broadcast(ctx, prompt); err != nil {
		return fmt.Errorf("prompt participant: %w", err)
	}

	text, err := t.Collect(ctx, who)
	if err != nil {
		return fmt.Errorf("collect line from %s: %w", who, err)
	}

	if state == Priming {
		err = c.SubmitOpeningLine(ctx, who, text)
	} else {
		err = c.SubmitParticipantLine(ctx, who, text)
	}
	if errors.Is(err, ErrInvalidTurn) {
		return t.Broadcast(ctx, fmt.Sprintf("That line was not accepted: %v", err))
	}
	return err
}

func closingMessage(r *Result) string {
	var b strings.Builder
	b.WriteString("The story is complete")
	if r.Record.Title != "" {
		fmt.Fprintf(&b, ": %s", r.Record.Title)
	}
	fmt.Fprintf(&b, "\n\n%s", r.Record.Text)
	if r.Score != nil {
		fmt.Fprintf(&b, "\n\nScore: %d/60, rank %s", r.Score.Total, r.Score.Rank)
	}
	return b.String()
}
