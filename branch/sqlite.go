package branch

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const nodeColumns = `id, content, parent_id, branch_name, contributor, votes`

// SQLiteStore persists nodes in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the tree database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
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

func (s *SQLiteStore) Insert(ctx context.Context, node Node) error {
	var parent sql.NullString
	if node.ParentID != "" {
		parent = sql.NullString{String: node.ParentID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO story_nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		node.ID, node.Content, parent, node.Branch, node.Contributor, node.Votes,
	)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", node.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM story_nodes WHERE id = ?`, id)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	return node, nil
}

func (s *SQLiteStore) Children(ctx context.Context, parentID string) ([]Node, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM story_nodes WHERE parent_id IS NULL ORDER BY seq`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM story_nodes WHERE parent_id = ? ORDER BY seq`, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentID, err)
	}
	return collect(rows)
}

// Increment runs a single UPDATE so concurrent votes never lose a count.
func (s *SQLiteStore) Increment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE story_nodes SET votes = votes + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("vote node %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vote node %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) FirstInBranch(ctx context.Context, name string) (Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM story_nodes WHERE branch_name = ? ORDER BY seq LIMIT 1`, name)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: branch %s", ErrNotFound, name)
	}
	if err != nil {
		return Node{}, fmt.Errorf("find branch %s: %w", name, err)
	}
	return node, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM story_nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (Node, error) {
	var (
		node   Node
		parent sql.NullString
	)
	if err := sc.Scan(&node.ID, &node.Content, &parent, &node.Branch, &node.Contributor, &node.Votes); err != nil {
		return Node{}, err
	}
	node.ParentID = parent.String
	return node, nil
}

func collect(rows *sql.Rows) ([]Node, error) {
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}
