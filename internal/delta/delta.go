// Package delta implements additive modifications of 2-D parameter
// matrices: low-rank products and sparse coordinate lists.
package delta

import (
	"errors"
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

var ErrShapeMismatch = errors.New("shape mismatch")

// Kind names a delta variant.
type Kind string

const (
	KindLowRank Kind = "low_rank"
	KindSparse  Kind = "sparse"
)

// Delta is an additive modification of a matrix of shape Dims().
//
// Deltas are values: the slices they hold must not be modified once the
// delta has been attached to a commit.
type Delta interface {
	Kind() Kind
	Dims() tensor.Shape
	// Materialize returns the dense matrix the delta adds.
	Materialize() tensor.Mat
	Validate() error
}

// LowRank materializes as Scale · U · Vᵀ with U (Out×R) and V (In×R), both
// stored row-major.
type LowRank struct {
	R     int
	Scale float32
	U     []float32
	V     []float32
	Shape tensor.Shape
}

func (d LowRank) Kind() Kind         { return KindLowRank }
func (d LowRank) Dims() tensor.Shape { return d.Shape }

func (d LowRank) Validate() error {
	if !d.Shape.Valid() {
		return fmt.Errorf("%w: low-rank shape %s", ErrShapeMismatch, d.Shape)
	}
	if d.R < 1 {
		return fmt.Errorf("%w: low-rank rank %d", ErrShapeMismatch, d.R)
	}
	if len(d.U) != d.Shape.Out*d.R || len(d.V) != d.Shape.In*d.R {
		return fmt.Errorf("%w: low-rank r=%d shape %s with |U|=%d |V|=%d",
			ErrShapeMismatch, d.R, d.Shape, len(d.U), len(d.V))
	}
	return nil
}

func (d LowRank) Materialize() tensor.Mat {
	u := tensor.NewMatFromData(d.Shape.Out, d.R, d.U)
	v := tensor.NewMatFromData(d.Shape.In, d.R, d.V)
	out := tensor.MatMulT(&u, &v)
	if d.Scale != 1 {
		for i := range out.Data {
			out.Data[i] *= d.Scale
		}
	}
	return out
}

// Entry is one sparse coordinate update.
type Entry struct {
	I int     `json:"i"`
	J int     `json:"j"`
	V float32 `json:"v"`
}

// Sparse materializes as the zero matrix with += V at each (I, J).
// Duplicate coordinates accumulate.
type Sparse struct {
	Entries []Entry
	Shape   tensor.Shape
}

func (d Sparse) Kind() Kind         { return KindSparse }
func (d Sparse) Dims() tensor.Shape { return d.Shape }

func (d Sparse) Validate() error {
	if !d.Shape.Valid() {
		return fmt.Errorf("%w: sparse shape %s", ErrShapeMismatch, d.Shape)
	}
	for _, e := range d.Entries {
		if e.I < 0 || e.I >= d.Shape.Out || e.J < 0 || e.J >= d.Shape.In {
			return fmt.Errorf("%w: sparse entry (%d, %d) outside %s", ErrShapeMismatch, e.I, e.J, d.Shape)
		}
	}
	return nil
}

func (d Sparse) Materialize() tensor.Mat {
	m := tensor.Zeros(d.Shape)
	for _, e := range d.Entries {
		m.Row(e.I)[e.J] += e.V
	}
	return m
}

// Sum materializes ds in order and adds them into a zero matrix of shape.
func Sum(ds []Delta, shape tensor.Shape) tensor.Mat {
	acc := tensor.Zeros(shape)
	for _, d := range ds {
		m := d.Materialize()
		acc.AddInPlace(&m)
	}
	return acc
}

// Norm1 returns Σ|materialize(d)|.
func Norm1(d Delta) float32 {
	m := d.Materialize()
	return tensor.AbsSum(m.Data)
}

// Overlaps reports whether some position is nonzero in both a and b.
func Overlaps(a, b *tensor.Mat) bool {
	if a.R != b.R || a.C != b.C {
		return false
	}
	for i := 0; i < a.R; i++ {
		ra, rb := a.Row(i), b.Row(i)
		for j := range ra {
			if ra[j] != 0 && rb[j] != 0 {
				return true
			}
		}
	}
	return false
}

// Describe renders a one-line summary of d for logs and history listings.
func Describe(d Delta) string {
	switch v := d.(type) {
	case LowRank:
		return fmt.Sprintf("LowRank (r=%d, scale=%g)", v.R, v.Scale)
	case Sparse:
		return fmt.Sprintf("Sparse (%d entries)", len(v.Entries))
	default:
		return string(d.Kind())
	}
}
