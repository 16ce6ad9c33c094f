package vote

import (
	"fmt"
	"time"
)

const (
	defaultWindow   = 20 * time.Second
	defaultQuestion = "Which line should come next?"
)

// Config holds voting parameters.
type Config struct {
	Window   time.Duration `json:"window,omitempty"    yaml:"window,omitempty"    env:"STORYLOOP_VOTE_WINDOW"`
	Question string        `json:"question,omitempty"  yaml:"question,omitempty"  env:"STORYLOOP_VOTE_QUESTION"`
	TieBreak TieBreak      `json:"tie_break,omitempty" yaml:"tie_break,omitempty" env:"STORYLOOP_VOTE_TIE_BREAK"`
}

// DefaultConfig returns a 20 second window with first-in-order tie-breaks.
func DefaultConfig() Config {
	return Config{
		Window:   defaultWindow,
		Question: defaultQuestion,
		TieBreak: TieFirst,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Window > 0 {
		c.Window = source.Window
	}
	if source.Question != "" {
		c.Question = source.Question
	}
	if source.TieBreak != "" {
		c.TieBreak = source.TieBreak
	}
}

// Validate checks the tie-break policy and window.
func (c *Config) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("vote window must not be negative: %s", c.Window)
	}
	switch c.TieBreak {
	case "", TieFirst, TieRandom:
		return nil
	default:
		return fmt.Errorf("unknown tie-break policy: %s", c.TieBreak)
	}
}
