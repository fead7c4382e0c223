// Package mlp evaluates the two-layer perceptron whose weights live in a
// versioned repository.
package mlp

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// Param names. Each matrix carries its bias as the last column.
const (
	Layer0 = "layer0.Wb"
	Layer1 = "layer1.Wb"
)

// Spec is the fixed topology of the network.
type Spec struct {
	DIn     int `yaml:"d_in" json:"d_in"`
	DHidden int `yaml:"d_hidden" json:"d_hidden"`
	DOut    int `yaml:"d_out" json:"d_out"`
}

// DefaultSpec matches the interaction demo: 8 inputs, 16 hidden, 4 outputs.
var DefaultSpec = Spec{DIn: 8, DHidden: 16, DOut: 4}

func (s Spec) Validate() error {
	if s.DIn <= 0 || s.DHidden <= 0 || s.DOut <= 0 {
		return fmt.Errorf("invalid mlp spec %+v", s)
	}
	return nil
}

// Params lists the network params with their shapes, in name order.
func (s Spec) Params() []repo.ParamShape {
	return []repo.ParamShape{
		{Name: Layer0, Shape: tensor.Shape{Out: s.DHidden, In: s.DIn + 1}},
		{Name: Layer1, Shape: tensor.Shape{Out: s.DOut, In: s.DHidden + 1}},
	}
}

// ParamNames returns the names of Params.
func (s Spec) ParamNames() []string {
	return []string{Layer0, Layer1}
}

// Engine runs forward passes against commits of a repository.
type Engine struct {
	Repo *repo.Repo
	Spec Spec
}

func NewEngine(r *repo.Repo, spec Spec) *Engine {
	return &Engine{Repo: r, Spec: spec}
}

// Forward computes y = W1·[ReLU(W0·[x;1]);1] using the params composed at
// commit. It only reads the repository.
func (e *Engine) Forward(commit repo.CommitID, x []float32) ([]float32, error) {
	if len(x) != e.Spec.DIn {
		return nil, fmt.Errorf("%w: input length %d, want %d", repo.ErrShapeMismatch, len(x), e.Spec.DIn)
	}
	params := e.Spec.Params()
	w0, err := e.load(commit, params[0])
	if err != nil {
		return nil, err
	}
	w1, err := e.load(commit, params[1])
	if err != nil {
		return nil, err
	}

	h := make([]float32, e.Spec.DHidden)
	tensor.MatVec(h, &w0, tensor.AppendBias(x))
	tensor.ReLU(h)

	y := make([]float32, e.Spec.DOut)
	tensor.MatVec(y, &w1, tensor.AppendBias(h))
	return y, nil
}

func (e *Engine) load(commit repo.CommitID, p repo.ParamShape) (tensor.Mat, error) {
	w, err := e.Repo.Compose(commit, p.Name)
	if err != nil {
		return tensor.Mat{}, err
	}
	if got := w.Shape(); got != p.Shape {
		return tensor.Mat{}, fmt.Errorf("%w: %s is %s, want %s", repo.ErrShapeMismatch, p.Name, got, p.Shape)
	}
	return w, nil
}
