package session

import (
	"fmt"
	"slices"
)

// MergePolicy decides what happens when an extraction names a character or
// setting that already exists.
type MergePolicy string

const (
	// MergeFirstWins discards the later candidate in full, opinions included.
	MergeFirstWins MergePolicy = "first-wins"
	// MergeUnion folds the later candidate into the existing entry: new traits,
	// opinions and key details are appended, empty fields are filled.
	MergeUnion MergePolicy = "union"
)

// ParseMergePolicy validates a policy name. The empty string selects
// MergeFirstWins.
func ParseMergePolicy(name string) (MergePolicy, error) {
	switch MergePolicy(name) {
	case "", MergeFirstWins:
		return MergeFirstWins, nil
	case MergeUnion:
		return MergeUnion, nil
	default:
		return "", fmt.Errorf("unknown merge policy: %s", name)
	}
}

// MergeResult reports what a Merge call changed.
type MergeResult struct {
	AddedCharacters  []string
	AddedSettings    []string
	FoldedCharacters []string
	FoldedSettings   []string
	Discarded        int
}

// Merge folds an extraction into the session. Candidates with an empty name
// are discarded.
func (s *Session) Merge(ext Extraction) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult

	for _, c := range ext.Characters {
		if c.Name == "" {
			res.Discarded++
			continue
		}
		i, exists := s.charIndex[c.Name]
		switch {
		case !exists:
			s.charIndex[c.Name] = len(s.characters)
			s.characters = append(s.characters, c.clone())
			res.AddedCharacters = append(res.AddedCharacters, c.Name)
		case s.policy == MergeUnion:
			s.characters[i] = unionCharacter(s.characters[i], c)
			res.FoldedCharacters = append(res.FoldedCharacters, c.Name)
		default:
			res.Discarded++
		}
	}

	for _, st := range ext.Settings {
		if st.LocationName == "" {
			res.Discarded++
			continue
		}
		i, exists := s.setIndex[st.LocationName]
		switch {
		case !exists:
			s.setIndex[st.LocationName] = len(s.settings)
			s.settings = append(s.settings, st.clone())
			res.AddedSettings = append(res.AddedSettings, st.LocationName)
		case s.policy == MergeUnion:
			s.settings[i] = unionSetting(s.settings[i], st)
			res.FoldedSettings = append(res.FoldedSettings, st.LocationName)
		default:
			res.Discarded++
		}
	}

	s.metadata.UpdatedAt = s.now()
	return res
}

func unionCharacter(existing, next Character) Character {
	out := existing.clone()
	if out.Description == "" {
		out.Description = next.Description
	}
	if out.Status == "" {
		out.Status = next.Status
	}
	out.Traits = appendMissing(out.Traits, next.Traits)
	for _, op := range next.OpinionsOf {
		if !slices.Contains(out.OpinionsOf, op) {
			out.OpinionsOf = append(out.OpinionsOf, op)
		}
	}
	return out
}

func unionSetting(existing, next Setting) Setting {
	out := existing.clone()
	if out.Description == "" {
		out.Description = next.Description
	}
	out.KeyDetails = appendMissing(out.KeyDetails, next.KeyDetails)
	return out
}

func appendMissing(dst, src []string) []string {
	for _, v := range src {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
