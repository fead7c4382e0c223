package scenario

import (
	"math"

	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// Verifier scores an output for a request. Higher is better.
type Verifier interface {
	Score(req Request, y []float32) float32
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(req Request, y []float32) float32

func (f VerifierFunc) Score(req Request, y []float32) float32 { return f(req, y) }

// AnchorVerifier scores by cosine similarity with the anchor of the
// request's domain. Unknown domains and length mismatches score 0.
type AnchorVerifier struct {
	Anchors map[string][]float32
}

func (v AnchorVerifier) Score(req Request, y []float32) float32 {
	anchor, ok := v.Anchors[req.Ctx.Domain]
	if !ok || len(anchor) != len(y) {
		return 0
	}
	return tensor.Cosine(y, anchor)
}

// TargetVerifier scores by -‖y − target‖₂, or by the negative entropy of
// softmax(y) when the request has no target.
type TargetVerifier struct{}

func (TargetVerifier) Score(req Request, y []float32) float32 {
	if !req.HasTarget() {
		return negEntropy(y)
	}
	return -distance(y, req.Target)
}

// EntropyVerifier ignores targets and prefers confident outputs.
type EntropyVerifier struct{}

func (EntropyVerifier) Score(_ Request, y []float32) float32 {
	return negEntropy(y)
}

func negEntropy(y []float32) float32 {
	p := append([]float32(nil), y...)
	tensor.Softmax(p)
	return -tensor.Entropy(p)
}

// distance treats missing trailing elements of the shorter vector as zero.
func distance(a, b []float32) float32 {
	if len(a) == len(b) {
		return tensor.Distance(a, b)
	}
	n := max(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		sum += (x - y) * (x - y)
	}
	return float32(math.Sqrt(sum))
}
