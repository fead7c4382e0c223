package tensor

import (
	"fmt"
	"math/rand"
)

// Shape is the (Out, In) size of a 2-D parameter matrix. Out is the number
// of rows and In the number of columns.
type Shape struct {
	Out int `json:"out"`
	In  int `json:"in"`
}

// Valid reports whether both dimensions are positive.
func (s Shape) Valid() bool {
	return s.Out > 0 && s.In > 0
}

// Size returns the number of elements of a matrix with this shape.
func (s Shape) Size() int {
	return s.Out * s.In
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Out, s.In)
}

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively.  Stride is the
// number of elements between the starts of two consecutive rows (for row‑major
// matrices this is equal to C).  Data holds the flattened matrix values.
//
// Mat does not perform any memory safety beyond the checks performed by Go's
// slice types; out‑of‑range indices will panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.  The stride is set to the
// number of columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Zeros allocates a zero matrix of the given shape.
func Zeros(s Shape) Mat {
	return NewMat(s.Out, s.In)
}

// Shape returns the (R, C) shape of the matrix.
func (m *Mat) Shape() Shape {
	return Shape{Out: m.R, In: m.C}
}

// Row returns a view of the i‑th row of the matrix as a slice.  The slice
// has length equal to the number of columns.  Modifications to the returned
// slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// At returns the element at row i, column j.
func (m *Mat) At(i, j int) float32 {
	return m.Row(i)[j]
}

// Clone returns a deep copy with a compact stride.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// Flat returns the elements in row-major order. For compact matrices this
// is Data itself; otherwise a packed copy.
func (m *Mat) Flat() []float32 {
	if m.Stride == m.C {
		return m.Data[:m.R*m.C]
	}
	c := m.Clone()
	return c.Data
}

// AddInPlace adds src to m element-wise. Shapes must match.
func (m *Mat) AddInPlace(src *Mat) {
	if m.R != src.R || m.C != src.C {
		panic("add shape mismatch")
	}
	for i := 0; i < m.R; i++ {
		Add(m.Row(i), src.Row(i))
	}
}

// FillRand fills the matrix with reproducible pseudo‑random values drawn
// uniformly from (-scale, scale).  The seed controls the random sequence;
// multiple calls with the same seed produce identical matrices.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = (rng.Float32() - 0.5) * 2 * scale
		}
	}
}
