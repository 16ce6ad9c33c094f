package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// SQLiteStore keeps stories in a SQLite table. The full entry is stored as
// JSON; title and score are denormalized for listing.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the archive database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}

	var (
		total sql.NullInt64
		rank  sql.NullString
	)
	if entry.Score != nil {
		total = sql.NullInt64{Int64: int64(entry.Score.Total), Valid: true}
		rank = sql.NullString{String: entry.Score.Rank, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stories (id, title, total_score, rank, body, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   total_score = excluded.total_score,
		   rank = excluded.rank,
		   body = excluded.body,
		   archived_at = excluded.archived_at`,
		entry.ID, entry.Title, total, rank, string(body), entry.ArchivedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id int64) (Entry, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM stories WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %d: %v", ErrLoadFailed, id, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %d: %v", ErrLoadFailed, id, err)
	}
	return entry, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM stories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return ids, nil
}
