package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/storyloop/archive"
	"github.com/tailored-agentic-units/storyloop/generative"
	"github.com/tailored-agentic-units/storyloop/session"
	"github.com/tailored-agentic-units/storyloop/vote"
)

const (
	defaultLineCount      = 5
	defaultCandidateCount = 3
	defaultGeneratorID    = "generator"
)

// DefaultPersonalities is the option set a session personality is drawn
// from when none was chosen.
var DefaultPersonalities = []string{
	"whimsical", "desolate", "mysterious", "comedic", "heroic", "melancholic",
}

// Config holds initialization parameters for a coordinator and the
// subsystems it creates.
type Config struct {
	Generator      generative.Config `json:"generator"                 yaml:"generator"`
	Vote           vote.Config       `json:"vote"                      yaml:"vote"`
	Archive        archive.Config    `json:"archive"                   yaml:"archive"`
	LineCount      int               `json:"line_count,omitempty"      yaml:"line_count,omitempty"      env:"STORYLOOP_LINE_COUNT"`
	CandidateCount int               `json:"candidate_count,omitempty" yaml:"candidate_count,omitempty" env:"STORYLOOP_CANDIDATES"`
	Personalities  []string          `json:"personalities,omitempty"   yaml:"personalities,omitempty"   env:"STORYLOOP_PERSONALITIES"`
	MergePolicy    string            `json:"merge_policy,omitempty"    yaml:"merge_policy,omitempty"    env:"STORYLOOP_MERGE_POLICY"`
	GeneratorID    string            `json:"generator_id,omitempty"    yaml:"generator_id,omitempty"    env:"STORYLOOP_GENERATOR_ID"`
	ScoreOnClose   bool              `json:"score_on_close,omitempty"  yaml:"score_on_close,omitempty"  env:"STORYLOOP_SCORE_ON_CLOSE"`
}

// DefaultConfig returns a Config with defaults for every subsystem.
func DefaultConfig() Config {
	return Config{
		Generator:      generative.DefaultConfig(),
		Vote:           vote.DefaultConfig(),
		Archive:        archive.DefaultConfig(),
		LineCount:      defaultLineCount,
		CandidateCount: defaultCandidateCount,
		Personalities:  slices.Clone(DefaultPersonalities),
		MergePolicy:    string(session.MergeFirstWins),
		GeneratorID:    defaultGeneratorID,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Generator.Merge(&source.Generator)
	c.Vote.Merge(&source.Vote)
	c.Archive.Merge(&source.Archive)

	if source.LineCount > 0 {
		c.LineCount = source.LineCount
	}
	if source.CandidateCount > 0 {
		c.CandidateCount = source.CandidateCount
	}
	if len(source.Personalities) > 0 {
		c.Personalities = source.Personalities
	}
	if source.MergePolicy != "" {
		c.MergePolicy = source.MergePolicy
	}
	if source.GeneratorID != "" {
		c.GeneratorID = source.GeneratorID
	}
	if source.ScoreOnClose {
		c.ScoreOnClose = true
	}
}

// Validate reports the first setting a coordinator cannot run with.
func (c *Config) Validate() error {
	if c.LineCount < 1 {
		return fmt.Errorf("%w: line count must be at least 1, got %d", ErrInvalidConfig, c.LineCount)
	}
	if c.CandidateCount < 1 {
		return fmt.Errorf("%w: candidate count must be at least 1, got %d", ErrInvalidConfig, c.CandidateCount)
	}
	if len(c.Personalities) == 0 {
		return fmt.Errorf("%w: personality set is empty", ErrInvalidConfig)
	}
	if c.GeneratorID == "" {
		return fmt.Errorf("%w: generator id is empty", ErrInvalidConfig)
	}
	if _, err := session.ParseMergePolicy(c.MergePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Vote.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a JSON or YAML config file (by extension), merges it with
// defaults, then applies STORYLOOP_* environment overrides. An empty filename
// skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var loaded Config
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &loaded)
		default:
			err = json.Unmarshal(data, &loaded)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		cfg.Merge(&loaded)
	}

	var overlay Config
	if err := env.Parse(&overlay); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Merge(&overlay)

	return &cfg, nil
}
