// Package session is the narrative store: the canonical state of one
// collaborative story (lines, characters, settings, metadata, summary) and the
// invariant-preserving mutators the coordinator applies to it.
//
// Lines are append-only and numbered line-001, line-002, ... Characters and
// settings are keyed by exact name; on a name collision the configured
// MergePolicy decides what happens (first occurrence wins by default).
package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Session holds the state of one story. All methods are safe for concurrent
// use, though in practice a single coordinator mutates a given session.
type Session struct {
	mu sync.RWMutex

	id       int64
	title    string
	summary  string
	metadata Metadata

	lines []Line
	text  strings.Builder

	characters []Character
	charIndex  map[string]int
	settings   []Setting
	setIndex   map[string]int

	policy MergePolicy
	now    func() time.Time
}

// Option configures a Session at construction.
type Option func(*Session)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMergePolicy selects how name collisions are resolved during Merge.
func WithMergePolicy(p MergePolicy) Option {
	return func(s *Session) { s.policy = p }
}

// New creates an empty session. The id is assigned by the caller (the
// coordinator registry).
func New(id int64, creator, personality string, opts ...Option) *Session {
	s := &Session{
		id:        id,
		charIndex: make(map[string]int),
		setIndex:  make(map[string]int),
		policy:    MergeFirstWins,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	created := s.now()
	s.metadata = Metadata{
		Personality: personality,
		CreatedBy:   creator,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	return s
}

func (s *Session) ID() int64 {
	return s.id
}

// AppendLine commits a line and returns it. It never fails.
func (s *Session) AppendLine(contributor, text string) Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	line := Line{
		ID:        fmt.Sprintf("line-%03d", len(s.lines)+1),
		Text:      text,
		AddedBy:   contributor,
		Timestamp: ts,
	}
	s.lines = append(s.lines, line)

	if s.text.Len() > 0 {
		s.text.WriteByte(' ')
	}
	s.text.WriteString(text)

	s.metadata.UpdatedAt = ts
	return line
}

// LineCount returns the number of committed lines.
func (s *Session) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Lines returns a copy of the committed lines in order.
func (s *Session) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lines)
}

// Text returns every committed line joined by a single space.
func (s *Session) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text.String()
}

func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Metadata returns a copy of the story metadata.
func (s *Session) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md := s.metadata
	md.ThemeKeywords = slices.Clone(md.ThemeKeywords)
	return md
}

// SetPersonality records the generator personality for the session.
func (s *Session) SetPersonality(personality string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata.Personality = personality
	s.metadata.UpdatedAt = s.now()
}

// ApplyDerived overwrites the title and derived metadata fields with d.
func (s *Session) ApplyDerived(d Derived) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.title = d.Title
	s.metadata.Genre = d.Genre
	s.metadata.Tone = d.Tone
	s.metadata.Style = d.Style
	s.metadata.ThemeKeywords = slices.Clone(d.ThemeKeywords)
	s.metadata.UpdatedAt = s.now()
}

// SetSummary replaces the summary.
func (s *Session) SetSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	s.metadata.UpdatedAt = s.now()
}

// Characters returns copies of the known characters in first-seen order.
func (s *Session) Characters() []Character {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Character, len(s.characters))
	for i, c := range s.characters {
		out[i] = c.clone()
	}
	return out
}

// Character looks up a character by exact name.
func (s *Session) Character(name string) (Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.charIndex[name]
	if !ok {
		return Character{}, false
	}
	return s.characters[i].clone(), true
}

// Settings returns copies of the known settings in first-seen order.
func (s *Session) Settings() []Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Setting, len(s.settings))
	for i, st := range s.settings {
		out[i] = st.clone()
	}
	return out
}

// Record returns a deep snapshot of the session.
func (s *Session) Record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := Record{
		ID:         s.id,
		Title:      s.title,
		Text:       s.text.String(),
		Metadata:   s.metadata,
		Lines:      slices.Clone(s.lines),
		Summary:    s.summary,
		Characters: make([]Character, len(s.characters)),
		Settings:   make([]Setting, len(s.settings)),
	}
	rec.Metadata.ThemeKeywords = slices.Clone(s.metadata.ThemeKeywords)
	for i, c := range s.characters {
		rec.Characters[i] = c.clone()
	}
	for i, st := range s.settings {
		rec.Settings[i] = st.clone()
	}
	return rec
}
