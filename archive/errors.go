package archive

import "errors"

// Sentinel errors for store operations.
var (
	ErrNotFound   = errors.New("story not found")
	ErrLoadFailed = errors.New("load failed")
	ErrSaveFailed = errors.New("save failed")
)
