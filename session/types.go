package session

import (
	"slices"
	"time"
)

// Line is one committed contribution. Lines are append-only.
type Line struct {
	ID        string    `json:"lineId"`
	Text      string    `json:"text"`
	AddedBy   string    `json:"addedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// Opinion is a directed edge from the owning character to CharacterName.
type Opinion struct {
	CharacterName string `json:"characterName"`
	OpinionText   string `json:"opinionText"`
	TrustLevel    int    `json:"trustLevel"`
}

// Character is keyed by Name (exact, case-sensitive).
type Character struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Traits      []string  `json:"traits"`
	OpinionsOf  []Opinion `json:"opinionsOf"`
}

func (c Character) clone() Character {
	c.Traits = slices.Clone(c.Traits)
	c.OpinionsOf = slices.Clone(c.OpinionsOf)
	return c
}

// Setting is keyed by LocationName (exact, case-sensitive).
type Setting struct {
	LocationName string   `json:"locationName"`
	Description  string   `json:"description"`
	KeyDetails   []string `json:"keyDetails"`
}

func (s Setting) clone() Setting {
	s.KeyDetails = slices.Clone(s.KeyDetails)
	return s
}

// Metadata describes the story as a whole. Genre, Tone, Style and
// ThemeKeywords are derived by the generative capability; the rest is set by
// the coordinator.
type Metadata struct {
	Genre         string    `json:"genre"`
	Tone          string    `json:"tone"`
	Style         string    `json:"style"`
	Personality   string    `json:"promptPersonality"`
	ThemeKeywords []string  `json:"themeKeywords"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"creationDate"`
	UpdatedAt     time.Time `json:"lastUpdated"`
}

// Derived is the generative metadata pass output: a title plus the derived
// Metadata fields.
type Derived struct {
	Title         string   `json:"title"`
	Genre         string   `json:"genre"`
	Tone          string   `json:"tone"`
	Style         string   `json:"style"`
	ThemeKeywords []string `json:"themeKeywords"`
}

// Extraction holds newly revealed characters and settings for one line.
type Extraction struct {
	Characters []Character `json:"newCharacters,omitempty"`
	Settings   []Setting   `json:"newSettings,omitempty"`
}

// Empty reports whether the extraction carries nothing to merge.
func (e Extraction) Empty() bool {
	return len(e.Characters) == 0 && len(e.Settings) == 0
}

// Record is the persisted artifact: the full snapshot consumed by scoring and
// archival.
type Record struct {
	ID         int64       `json:"storyId"`
	Title      string      `json:"title"`
	Text       string      `json:"currentStoryText"`
	Metadata   Metadata    `json:"storyMetadata"`
	Lines      []Line      `json:"lines"`
	Summary    string      `json:"storySummary"`
	Characters []Character `json:"characters"`
	Settings   []Setting   `json:"settings"`
}
