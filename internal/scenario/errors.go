package scenario

import (
	"errors"
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/repo"
)

var (
	ErrNoCandidates     = errors.New("no candidates")
	ErrScenarioFailed   = errors.New("scenario failed")
	ErrUnsupportedInput = errors.New("unsupported input")
)

// ScenarioError wraps the forward error of one candidate. It matches both
// ErrScenarioFailed and the cause.
type ScenarioError struct {
	Commit repo.CommitID
	Err    error
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("scenario %s failed: %v", e.Commit, e.Err)
}

func (e *ScenarioError) Unwrap() []error {
	return []error{ErrScenarioFailed, e.Err}
}
