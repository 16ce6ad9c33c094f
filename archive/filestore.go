package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const fileExt = ".json"

// FileStore keeps one indented JSON file per story under root.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root. The directory is created
// on first save.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) path(id int64) string {
	return filepath.Join(s.root, strconv.FormatInt(id, 10)+fileExt)
}

func (s *FileStore) List(_ context.Context) ([]int64, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var ids []int64
	for _, d := range dirEntries {
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *FileStore) Load(_ context.Context, id int64) (Entry, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return Entry{}, fmt.Errorf("%w: %d: %v", ErrLoadFailed, id, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %d: %v", ErrLoadFailed, id, err)
	}
	return entry, nil
}

// Save writes through a temp file and rename so readers never see a partial
// story.
func (s *FileStore) Save(_ context.Context, entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}

	if err := os.Rename(tmpName, s.path(entry.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %d: %v", ErrSaveFailed, entry.ID, err)
	}
	return nil
}
