package generative

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/tailored-agentic-units/storyloop/scoring"
	"github.com/tailored-agentic-units/storyloop/session"
)

func ptr[T any](v T) *T { return &v }

// Schemas must form a tree, so shared shapes are built fresh at each use.
func stringList() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

func noExtra() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

var extractionSchema = mustResolve(&jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"newCharacters": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":        {Type: "string"},
					"description": {Type: "string"},
					"status":      {Type: "string"},
					"traits":      stringList(),
					"opinionsOf": {
						Type: "array",
						Items: &jsonschema.Schema{
							Type: "object",
							Properties: map[string]*jsonschema.Schema{
								"characterName": {Type: "string"},
								"opinionText":   {Type: "string"},
								"trustLevel":    {Type: "integer"},
							},
						},
					},
				},
			},
		},
		"newSettings": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"locationName": {Type: "string"},
					"description":  {Type: "string"},
					"keyDetails":   stringList(),
				},
			},
		},
	},
})

var describeSchema = mustResolve(&jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"title":         {Type: "string"},
		"genre":         {Type: "string"},
		"tone":          {Type: "string"},
		"style":         {Type: "string"},
		"themeKeywords": stringList(),
	},
})

var scoreKeys = []string{
	"plotCohesion", "creativity", "characters",
	"settingAtmosphere", "toneStyleAlignment", "completeness",
}

var scoreSchema = func() *jsonschema.Resolved {
	props := make(map[string]*jsonschema.Schema, len(scoreKeys))
	for _, k := range scoreKeys {
		props[k] = &jsonschema.Schema{
			Type:    "integer",
			Minimum: ptr(0.0),
			Maximum: ptr(float64(scoring.MaxCategory)),
		}
	}
	return mustResolve(&jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             scoreKeys,
		AdditionalProperties: noExtra(),
	})
}()

func candidateSchema(n int) (*jsonschema.Resolved, error) {
	return (&jsonschema.Schema{
		Type:     "array",
		MinItems: ptr(n),
		MaxItems: ptr(n),
		Items: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"text"},
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string", MinLength: ptr(1)},
			},
		},
	}).Resolve(nil)
}

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolve schema: %v", err))
	}
	return r
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// decode validates raw JSON against schema and unmarshals it into out.
func decode(raw string, schema *jsonschema.Resolved, out any) error {
	body := stripFences(raw)

	var instance any
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

var numbered = regexp.MustCompile(`(?m)^\s*\d+[).:]\s*(.+?)\s*$`)

// DecodeCandidates parses exactly n candidate lines. A JSON array of
// {"text": ...} objects is preferred; a "1) ... 2) ..." numbered list is
// accepted as a fallback. A count mismatch is always an error.
func DecodeCandidates(raw string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("candidate count must be positive: %d", n)
	}

	schema, err := candidateSchema(n)
	if err != nil {
		return nil, fmt.Errorf("candidate schema: %w", err)
	}

	body := stripFences(raw)
	var items []struct {
		Text string `json:"text"`
	}
	if json.Valid([]byte(body)) {
		if err := decode(body, schema, &items); err != nil {
			return nil, err
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = strings.TrimSpace(it.Text)
			if out[i] == "" {
				return nil, fmt.Errorf("%w: candidate %d is blank", ErrMalformed, i+1)
			}
		}
		return out, nil
	}

	var out []string
	for _, m := range numbered.FindAllStringSubmatch(body, -1) {
		if text := strings.Trim(m[1], `"`); text != "" {
			out = append(out, text)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: got %d candidates, want %d", ErrMalformed, len(out), n)
	}
	return out, nil
}

// DecodeExtraction parses newly revealed characters and settings. Absent keys
// decode as empty.
func DecodeExtraction(raw string) (session.Extraction, error) {
	var ext session.Extraction
	if err := decode(raw, extractionSchema, &ext); err != nil {
		return session.Extraction{}, err
	}
	return ext, nil
}

// DecodeDerived parses title, genre, tone, style and theme keywords.
func DecodeDerived(raw string) (session.Derived, error) {
	var d session.Derived
	if err := decode(raw, describeSchema, &d); err != nil {
		return session.Derived{}, err
	}
	return d, nil
}

// DecodeScores parses exactly the six rubric keys as integers in range.
func DecodeScores(raw string) (scoring.Scores, error) {
	var s scoring.Scores
	if err := decode(raw, scoreSchema, &s); err != nil {
		return scoring.Scores{}, fmt.Errorf("%w: %w", scoring.ErrMalformedScore, err)
	}
	return s, nil
}
