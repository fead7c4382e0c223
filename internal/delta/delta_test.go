package delta

import (
	"errors"
	"testing"

	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

func TestLowRankMaterialize(t *testing.T) {
	t.Parallel()
	d := LowRank{
		R:     1,
		Scale: 2,
		U:     []float32{1, 1},
		V:     []float32{1, 1, 0},
		Shape: tensor.Shape{Out: 2, In: 3},
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	m := d.Materialize()
	want := []float32{2, 2, 0, 2, 2, 0}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Fatalf("elem %d: got %v want %v", i, m.Data[i], want[i])
		}
	}
}

func TestSparseDuplicatesAccumulate(t *testing.T) {
	t.Parallel()
	d := Sparse{
		Entries: []Entry{{0, 1, 1.5}, {0, 1, 0.5}, {1, 0, -1}},
		Shape:   tensor.Shape{Out: 2, In: 2},
	}
	m := d.Materialize()
	if got := m.At(0, 1); got != 2 {
		t.Fatalf("(0,1) = %v, want 2", got)
	}
	if got := m.At(1, 0); got != -1 {
		t.Fatalf("(1,0) = %v, want -1", got)
	}
	if got := Norm1(d); got != 3 {
		t.Fatalf("Norm1 = %v, want 3", got)
	}
}

func TestValidateRejectsBadShapes(t *testing.T) {
	t.Parallel()
	shape := tensor.Shape{Out: 2, In: 2}
	tests := []struct {
		name string
		d    Delta
	}{
		{"lowrank U length", LowRank{R: 1, Scale: 1, U: []float32{1}, V: []float32{1, 1}, Shape: shape}},
		{"lowrank zero rank", LowRank{R: 0, Scale: 1, Shape: shape}},
		{"sparse out of range", Sparse{Entries: []Entry{{2, 0, 1}}, Shape: shape}},
		{"sparse negative", Sparse{Entries: []Entry{{0, -1, 1}}, Shape: shape}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.d.Validate(); !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("err = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestSumAndOverlap(t *testing.T) {
	t.Parallel()
	shape := tensor.Shape{Out: 2, In: 2}
	a := Sparse{Entries: []Entry{{0, 0, 1}}, Shape: shape}
	b := Sparse{Entries: []Entry{{1, 1, 1}}, Shape: shape}
	c := Sparse{Entries: []Entry{{0, 0, -1}}, Shape: shape}

	acc := Sum([]Delta{a, b}, shape)
	if acc.At(0, 0) != 1 || acc.At(1, 1) != 1 {
		t.Fatalf("Sum = %v", acc.Data)
	}
	mc := c.Materialize()
	if !Overlaps(&acc, &mc) {
		t.Fatal("expected overlap at (0,0)")
	}
	ma := a.Materialize()
	mb := b.Materialize()
	if Overlaps(&ma, &mb) {
		t.Fatal("disjoint deltas must not overlap")
	}
}
