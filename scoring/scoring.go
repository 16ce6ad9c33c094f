// Package scoring maps six category scores for a finished story to a total
// and a rank label.
package scoring

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/storyloop/session"
)

// MaxCategory is the highest score a single category can receive.
const MaxCategory = 10

// Scores holds one integer in [0, MaxCategory] per category.
type Scores struct {
	PlotCohesion       int `json:"plotCohesion"`
	Creativity         int `json:"creativity"`
	Characters         int `json:"characters"`
	SettingAtmosphere  int `json:"settingAtmosphere"`
	ToneStyleAlignment int `json:"toneStyleAlignment"`
	Completeness       int `json:"completeness"`
}

// Total sums the six categories.
func (s Scores) Total() int {
	return s.PlotCohesion + s.Creativity + s.Characters +
		s.SettingAtmosphere + s.ToneStyleAlignment + s.Completeness
}

// Validate rejects any category outside [0, MaxCategory].
func (s Scores) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"plotCohesion", s.PlotCohesion},
		{"creativity", s.Creativity},
		{"characters", s.Characters},
		{"settingAtmosphere", s.SettingAtmosphere},
		{"toneStyleAlignment", s.ToneStyleAlignment},
		{"completeness", s.Completeness},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > MaxCategory {
			return fmt.Errorf("%w: %s=%d out of range [0, %d]", ErrMalformedScore, f.name, f.value, MaxCategory)
		}
	}
	return nil
}

// Result is a scored story.
type Result struct {
	Details Scores `json:"scoreDetails"`
	Total   int    `json:"totalScore"`
	Rank    string `json:"rank"`
}

var thresholds = []struct {
	max  int
	rank string
}{
	{10, "E"},
	{20, "D"},
	{30, "C"},
	{40, "B"},
	{50, "A"},
	{55, "S"},
	{59, "SS"},
}

// TopRank is awarded to totals above every threshold.
const TopRank = "BEST STORY OF ALL TIME"

// Rank maps a total to its label. Thresholds are inclusive upper bounds.
func Rank(total int) string {
	for _, t := range thresholds {
		if total <= t.max {
			return t.rank
		}
	}
	return TopRank
}

// Scorer produces category scores for a finalized story.
type Scorer interface {
	Score(ctx context.Context, rec session.Record) (Scores, error)
}

// Evaluate scores rec with scorer and ranks the total.
func Evaluate(ctx context.Context, scorer Scorer, rec session.Record) (Result, error) {
	scores, err := scorer.Score(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	return FromScores(scores)
}

// FromScores validates scores and derives the total and rank.
func FromScores(scores Scores) (Result, error) {
	if err := scores.Validate(); err != nil {
		return Result{}, err
	}
	total := scores.Total()
	return Result{
		Details: scores,
		Total:   total,
		Rank:    Rank(total),
	}, nil
}
