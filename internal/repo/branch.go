package repo

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// ConflictCosine is the cosine threshold below which a new delta is treated
// as opposing the existing chain.
const ConflictCosine = -0.3

// Conflict is the classification of a candidate delta against a chain.
type Conflict struct {
	Cosine      float32
	Overlap     bool
	Conflicting bool
}

// Classify compares d with the accumulated chain. An empty chain never
// conflicts. Otherwise the delta conflicts when the cosine between the
// flattened chain sum and the flattened delta is below ConflictCosine, or
// when both are nonzero at some position.
func Classify(chain []delta.Delta, d delta.Delta) Conflict {
	if len(chain) == 0 {
		return Conflict{}
	}
	acc := delta.Sum(chain, d.Dims())
	m := d.Materialize()
	c := Conflict{
		Cosine:  tensor.Cosine(acc.Flat(), m.Flat()),
		Overlap: delta.Overlaps(&acc, &m),
	}
	c.Conflicting = c.Cosine < ConflictCosine || c.Overlap
	return c
}

// EffectiveChange returns the largest absolute element-wise difference
// between parent and the value obtained by appending candidates in order.
func EffectiveChange(parent *tensor.Mat, candidates ...delta.Delta) float32 {
	after := parent.Clone()
	for _, d := range candidates {
		m := d.Materialize()
		after.AddInPlace(&m)
	}
	return tensor.MaxAbsDiff(parent.Data, after.Data)
}

// DeriveWithDelta appends d to param's chain in a new child of parent.
//
// It returns parent unchanged, without creating a commit, when d is all
// zeros or when appending it moves no element by more than Tau. It fails
// with *ChainFullError when the parent chain already holds DMax deltas.
// The child is marked forked when Classify reports a conflict.
func (r *Repo) DeriveWithDelta(parent CommitID, param string, d delta.Delta, msg string) (CommitID, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.commits[parent]
	if !ok {
		return "", commitNotFound(parent)
	}
	pv, ok := p.Params[param]
	if !ok {
		return "", paramMissing(parent, param)
	}
	b, err := r.blobs.Get(pv.Blob)
	if err != nil {
		return "", fmt.Errorf("param %s: %w", param, err)
	}
	if d.Dims() != b.Shape {
		return "", fmt.Errorf("%w: delta %s vs param %s %s", ErrShapeMismatch, d.Dims(), param, b.Shape)
	}

	if delta.Norm1(d) == 0 {
		return parent, nil
	}
	if len(pv.Deltas) >= DMax {
		return "", &ChainFullError{Param: param}
	}

	before, err := r.composeVersion(pv)
	if err != nil {
		return "", err
	}
	if EffectiveChange(&before, d) <= Tau {
		return parent, nil
	}

	conflict := Classify(pv.Deltas, d)

	child := p.clone()
	child.ID = r.nextIDLocked()
	child.Parents = []CommitID{parent}
	child.Meta = Meta{Message: msg, Forked: conflict.Conflicting}
	chain := make([]delta.Delta, 0, len(pv.Deltas)+1)
	chain = append(chain, pv.Deltas...)
	child.Params[param] = ParamVersion{Blob: pv.Blob, Deltas: append(chain, d)}

	r.insertLocked(child)
	return child.ID, nil
}
