// Package archive persists finalized stories. An Entry is the session record
// exactly as it was closed, plus the rubric score when one was computed.
package archive

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/storyloop/scoring"
	"github.com/tailored-agentic-units/storyloop/session"
)

// Entry is one archived story. The record fields are inlined so an archived
// file reads as the story itself.
type Entry struct {
	session.Record
	Score      *scoring.Result `json:"score,omitempty"`
	ArchivedAt time.Time       `json:"archivedAt"`
}

// Store persists entries keyed by story id. Save overwrites.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	Load(ctx context.Context, id int64) (Entry, error)
	List(ctx context.Context) ([]int64, error)
}

// LatestID returns the highest archived id, or zero for an empty store.
func LatestID(ctx context.Context, store Store) (int64, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return 0, err
	}

	var latest int64
	for _, id := range ids {
		latest = max(latest, id)
	}
	return latest, nil
}
