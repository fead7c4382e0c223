package repo

import (
	"errors"
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/delta"
)

var (
	ErrCommitNotFound  = errors.New("commit not found")
	ErrParamMissing    = errors.New("param missing")
	ErrChainFull       = errors.New("delta chain full")
	ErrDuplicateCommit = errors.New("duplicate commit id")
	ErrInvalidCommit   = errors.New("invalid commit")

	// Re-exported so callers of the repository need a single import.
	ErrBlobNotFound  = blob.ErrNotFound
	ErrShapeMismatch = delta.ErrShapeMismatch
)

// ChainFullError reports that a param's delta chain already holds DMax
// deltas. It is recoverable by packing the param.
type ChainFullError struct {
	Param string
}

func (e *ChainFullError) Error() string {
	return fmt.Sprintf("delta chain full for param %s (max %d)", e.Param, DMax)
}

func (e *ChainFullError) Unwrap() error {
	return ErrChainFull
}

func commitNotFound(id CommitID) error {
	return fmt.Errorf("%w: %s", ErrCommitNotFound, id)
}

func paramMissing(id CommitID, param string) error {
	return fmt.Errorf("%w: %s in commit %s", ErrParamMissing, param, id)
}
