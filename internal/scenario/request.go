// Package scenario evaluates a request against several commits in parallel
// and selects the best-scoring output.
package scenario

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/repo"
)

// Context describes where a request comes from.
type Context struct {
	Modality    string    `json:"modality"`
	Domain      string    `json:"domain"`
	Constraints []string  `json:"constraints,omitempty"`
	Features    []float32 `json:"features,omitempty"`
}

// Request is one forward query. A nil Target means no target.
type Request struct {
	X      []float32 `json:"x"`
	Ctx    Context   `json:"ctx"`
	Target []float32 `json:"target,omitempty"`
}

// HasTarget reports whether the request carries a target vector.
func (r Request) HasTarget() bool {
	return r.Target != nil
}

// Scenario is one evaluated candidate.
type Scenario struct {
	Commit repo.CommitID `json:"commit"`
	Y      []float32     `json:"y"`
	Score  float32       `json:"score"`
}

// Response is the selected output. Scenarios holds the first-pass ranking.
type Response struct {
	Y           []float32     `json:"y"`
	CommitUsed  repo.CommitID `json:"commit_used"`
	Score       float32       `json:"score"`
	Reevaluated bool          `json:"reevaluated"`
	Scenarios   []Scenario    `json:"scenarios,omitempty"`
}

// InputData is a raw payload before it becomes a Request. Only Features
// can be fed to the forward engine.
type InputData interface {
	inputKind() string
}

type (
	Features []float32
	Text     string
	Bytes    []byte
)

func (Features) inputKind() string { return "features" }
func (Text) inputKind() string     { return "text" }
func (Bytes) inputKind() string    { return "bytes" }

// NewRequest builds a Request from a payload. Non-feature payloads fail with
// ErrUnsupportedInput.
func NewRequest(in InputData, ctx Context, target []float32) (Request, error) {
	f, ok := in.(Features)
	if !ok {
		kind := "nil"
		if in != nil {
			kind = in.inputKind()
		}
		return Request{}, fmt.Errorf("%w: %s", ErrUnsupportedInput, kind)
	}
	x := make([]float32, len(f))
	copy(x, f)
	return Request{X: x, Ctx: ctx, Target: target}, nil
}
