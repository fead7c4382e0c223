package repo

import (
	"errors"
	"testing"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

const (
	testL0 = "layer0.Wb"
	testL1 = "layer1.Wb"
)

var (
	shapeL0 = tensor.Shape{Out: 2, In: 3}
	shapeL1 = tensor.Shape{Out: 1, In: 3}
)

func newZeroRepo(t *testing.T) (*Repo, CommitID) {
	t.Helper()
	r := New()
	params := map[string]blob.ID{}
	for name, shape := range map[string]tensor.Shape{testL0: shapeL0, testL1: shapeL1} {
		id, err := r.PutBlob(blob.FromMat(ptr(tensor.Zeros(shape))))
		if err != nil {
			t.Fatalf("PutBlob(%s): %v", name, err)
		}
		params[name] = id
	}
	c0, err := r.Genesis(params, "genesis")
	if err != nil {
		t.Fatalf("Genesis: %v", err)
	}
	return r, c0
}

func ptr(m tensor.Mat) *tensor.Mat { return &m }

func sparse(shape tensor.Shape, entries ...delta.Entry) delta.Sparse {
	return delta.Sparse{Entries: entries, Shape: shape}
}

func assertClose(t *testing.T, got, want *tensor.Mat) {
	t.Helper()
	if got.R != want.R || got.C != want.C {
		t.Fatalf("shape got %dx%d want %dx%d", got.R, got.C, want.R, want.C)
	}
	if d := tensor.MaxAbsDiff(got.Data, want.Data); d > Tau {
		t.Fatalf("max diff %v exceeds tau; got %v want %v", d, got.Data, want.Data)
	}
}

func TestGenesisCommitID(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	if c0 != "C0" {
		t.Fatalf("genesis id = %s, want C0", c0)
	}
	c, err := r.GetCommit(c0)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if len(c.Parents) != 0 || c.Meta.Forked {
		t.Fatalf("genesis commit = %+v", c)
	}
	if got := c.ParamNames(); len(got) != 2 || got[0] != testL0 || got[1] != testL1 {
		t.Fatalf("ParamNames = %v", got)
	}
}

func TestGenesisRejectsUnknownBlob(t *testing.T) {
	t.Parallel()
	r := New()
	_, err := r.Genesis(map[string]blob.ID{testL0: "bafkmissing"}, "genesis")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err = %v, want ErrBlobNotFound", err)
	}
}

func TestLowRankAppend(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	d := delta.LowRank{R: 1, Scale: 1, U: []float32{1, 1}, V: []float32{1, 1, 0}, Shape: shapeL0}
	c1, err := r.DeriveWithDelta(c0, testL0, d, "lowrank")
	if err != nil {
		t.Fatalf("DeriveWithDelta: %v", err)
	}
	if c1 != "C1" {
		t.Fatalf("child id = %s, want C1", c1)
	}
	c, _ := r.GetCommit(c1)
	if c.Meta.Forked {
		t.Fatal("append on empty chain must not fork")
	}
	if c.Parent() != c0 {
		t.Fatalf("parent = %s, want %s", c.Parent(), c0)
	}
	w, err := r.Compose(c1, testL0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := tensor.NewMatFromData(2, 3, []float32{1, 1, 0, 1, 1, 0})
	assertClose(t, &w, &want)

	// The parent is untouched and the other param is inherited.
	w0, _ := r.Compose(c0, testL0)
	assertClose(t, &w0, ptr(tensor.Zeros(shapeL0)))
	parent, _ := r.GetCommit(c0)
	if c.Params[testL1].Blob != parent.Params[testL1].Blob {
		t.Fatal("untouched param must keep the parent's blob")
	}
}

func TestComposeMatchesStoredOrder(t *testing.T) {
	t.Parallel()
	r, c := newZeroRepo(t)
	ds := []delta.Delta{
		sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 0.25}),
		delta.LowRank{R: 1, Scale: 0.5, U: []float32{1, -1}, V: []float32{2, 0, 1}, Shape: shapeL0},
		sparse(shapeL0, delta.Entry{I: 1, J: 2, V: 3}),
	}
	for _, d := range ds {
		next, err := r.DeriveWithDelta(c, testL0, d, "step")
		if err != nil {
			t.Fatalf("DeriveWithDelta: %v", err)
		}
		c = next
	}
	want := delta.Sum(ds, shapeL0)
	for i := 0; i < 3; i++ {
		got, err := r.Compose(c, testL0)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		for k := range got.Data {
			if got.Data[k] != want.Data[k] {
				t.Fatalf("elem %d got %v want %v", k, got.Data[k], want.Data[k])
			}
		}
	}
}

func TestDeriveNoOps(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)

	t.Run("zero delta", func(t *testing.T) {
		before := r.Len()
		got, err := r.DeriveWithDelta(c0, testL0, sparse(shapeL0), "empty")
		if err != nil {
			t.Fatalf("DeriveWithDelta: %v", err)
		}
		if got != c0 || r.Len() != before {
			t.Fatalf("got %s with %d commits, want parent and %d", got, r.Len(), before)
		}
	})

	t.Run("cancelling entries", func(t *testing.T) {
		before := r.Len()
		d := sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1}, delta.Entry{I: 0, J: 0, V: -1})
		got, err := r.DeriveWithDelta(c0, testL0, d, "cancel")
		if err != nil {
			t.Fatalf("DeriveWithDelta: %v", err)
		}
		if got != c0 || r.Len() != before {
			t.Fatalf("got %s, want parent %s", got, c0)
		}
	})

	t.Run("below tolerance", func(t *testing.T) {
		before := r.Len()
		d := sparse(shapeL0, delta.Entry{I: 1, J: 1, V: 1e-8})
		got, err := r.DeriveWithDelta(c0, testL0, d, "tiny")
		if err != nil {
			t.Fatalf("DeriveWithDelta: %v", err)
		}
		if got != c0 || r.Len() != before {
			t.Fatalf("got %s, want parent %s", got, c0)
		}
	})
}

func TestDeriveErrors(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	d := sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1})

	tests := []struct {
		name   string
		parent CommitID
		param  string
		d      delta.Delta
		want   error
	}{
		{"missing commit", "C99", testL0, d, ErrCommitNotFound},
		{"missing param", c0, "layer9.Wb", d, ErrParamMissing},
		{"shape mismatch", c0, testL1, d, ErrShapeMismatch},
		{"invalid delta", c0, testL0, sparse(shapeL0, delta.Entry{I: 5, J: 0, V: 1}), ErrShapeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.DeriveWithDelta(tc.parent, tc.param, tc.d, "bad")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestChainFullThenPack(t *testing.T) {
	t.Parallel()
	r, c := newZeroRepo(t)
	for i := 0; i < DMax; i++ {
		d := sparse(shapeL0, delta.Entry{I: i % 2, J: i % 3, V: float32(i + 1)})
		next, err := r.DeriveWithDelta(c, testL0, d, "grow")
		if err != nil {
			t.Fatalf("append %d: %v", i+1, err)
		}
		c = next
	}
	if n, _ := r.ChainLen(c, testL0); n != DMax {
		t.Fatalf("chain length = %d, want %d", n, DMax)
	}

	ninth := sparse(shapeL0, delta.Entry{I: 1, J: 2, V: 0.5})
	_, err := r.DeriveWithDelta(c, testL0, ninth, "overflow")
	if !errors.Is(err, ErrChainFull) {
		t.Fatalf("err = %v, want ErrChainFull", err)
	}
	var full *ChainFullError
	if !errors.As(err, &full) || full.Param != testL0 {
		t.Fatalf("err = %#v, want *ChainFullError for %s", err, testL0)
	}

	before, _ := r.Compose(c, testL0)
	oldCommit, _ := r.GetCommit(c)
	if err := r.PackParam(c, testL0); err != nil {
		t.Fatalf("PackParam: %v", err)
	}
	after, _ := r.Compose(c, testL0)
	assertClose(t, &after, &before)

	packed, err := r.GetCommit(c)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if n := len(packed.Params[testL0].Deltas); n != 0 {
		t.Fatalf("deltas after pack = %d, want 0", n)
	}
	if packed.Params[testL0].Blob == oldCommit.Params[testL0].Blob {
		t.Fatal("pack must produce a new blob id")
	}
	if packed.Params[testL1].Blob != oldCommit.Params[testL1].Blob {
		t.Fatal("pack must leave other params untouched")
	}
	if packed.ID != oldCommit.ID || packed.Meta != oldCommit.Meta {
		t.Fatal("pack must preserve commit id and meta")
	}

	if _, err := r.DeriveWithDelta(c, testL0, ninth, "retry"); err != nil {
		t.Fatalf("retry after pack: %v", err)
	}
}

func TestPackEmptyChainIsNoop(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	before, _ := r.GetCommit(c0)
	if err := r.PackParam(c0, testL0); err != nil {
		t.Fatalf("PackParam: %v", err)
	}
	after, _ := r.GetCommit(c0)
	if after.Params[testL0].Blob != before.Params[testL0].Blob {
		t.Fatal("packing an empty chain must keep the blob id")
	}
	if err := r.PackParam("C42", testL0); !errors.Is(err, ErrCommitNotFound) {
		t.Fatalf("err = %v, want ErrCommitNotFound", err)
	}
}

func TestConflictFork(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	d1 := sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1})
	c1, err := r.DeriveWithDelta(c0, testL0, d1, "d1")
	if err != nil {
		t.Fatalf("d1: %v", err)
	}
	d2 := sparse(shapeL0, delta.Entry{I: 0, J: 0, V: -1})
	c2, err := r.DeriveWithDelta(c1, testL0, d2, "d2")
	if err != nil {
		t.Fatalf("d2: %v", err)
	}
	child, _ := r.GetCommit(c2)
	if !child.Meta.Forked {
		t.Fatal("overlapping delta must fork")
	}
	w, _ := r.Compose(c2, testL0)
	if w.At(0, 0) != 0 {
		t.Fatalf("(0,0) = %v, want 0", w.At(0, 0))
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	a := sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1})
	tests := []struct {
		name  string
		chain []delta.Delta
		d     delta.Delta
		want  bool
	}{
		{"empty chain", nil, sparse(shapeL0, delta.Entry{I: 0, J: 0, V: -1}), false},
		{"disjoint", []delta.Delta{a}, sparse(shapeL0, delta.Entry{I: 1, J: 1, V: 1}), false},
		{"overlap", []delta.Delta{a}, sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 2}), true},
		{
			"opposed low rank",
			[]delta.Delta{delta.LowRank{R: 1, Scale: 1, U: []float32{1, 0}, V: []float32{1, 0, 0}, Shape: shapeL0}},
			delta.LowRank{R: 1, Scale: -1, U: []float32{1, 0}, V: []float32{1, 0, 0}, Shape: shapeL0},
			true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.chain, tc.d)
			if got.Conflicting != tc.want {
				t.Fatalf("Conflicting = %v want %v (%+v)", got.Conflicting, tc.want, got)
			}
		})
	}

	// A negative cosine needs a shared nonzero position, so both signals
	// fire together here.
	chain := []delta.Delta{sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1}, delta.Entry{I: 0, J: 1, V: 1})}
	d := delta.LowRank{R: 1, Scale: 1, U: []float32{1, 0}, V: []float32{-1, -1, 0}, Shape: shapeL0}
	got := Classify(chain, d)
	if !got.Overlap || got.Cosine >= ConflictCosine {
		t.Fatalf("Classify = %+v", got)
	}
}

func TestForkFlagOnlyOnConflict(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	c1, _ := r.DeriveWithDelta(c0, testL0, sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1}), "a")
	c2, err := r.DeriveWithDelta(c1, testL0, sparse(shapeL0, delta.Entry{I: 1, J: 2, V: 1}), "b")
	if err != nil {
		t.Fatalf("DeriveWithDelta: %v", err)
	}
	c, _ := r.GetCommit(c2)
	if c.Meta.Forked {
		t.Fatal("disjoint, non-opposed delta must not fork")
	}
}

func TestCommitsAreImmutableSnapshots(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	c, _ := r.GetCommit(c0)
	c.Params[testL0] = ParamVersion{Blob: "tampered"}
	c.Meta.Message = "tampered"
	again, _ := r.GetCommit(c0)
	if again.Params[testL0].Blob == "tampered" || again.Meta.Message != "genesis" {
		t.Fatal("GetCommit must return a copy")
	}
}

func TestAddCommitInvariants(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	parent, _ := r.GetCommit(c0)

	dup := parent
	if _, err := r.AddCommit(dup); !errors.Is(err, ErrDuplicateCommit) {
		t.Fatalf("err = %v, want ErrDuplicateCommit", err)
	}

	missing := Commit{ID: "X1", Parents: []CommitID{"nope"}, Params: parent.Params}
	if _, err := r.AddCommit(missing); !errors.Is(err, ErrCommitNotFound) {
		t.Fatalf("err = %v, want ErrCommitNotFound", err)
	}

	fewer := Commit{ID: "X2", Parents: []CommitID{c0}, Params: map[string]ParamVersion{testL0: parent.Params[testL0]}}
	if _, err := r.AddCommit(fewer); !errors.Is(err, ErrInvalidCommit) {
		t.Fatalf("err = %v, want ErrInvalidCommit", err)
	}

	long := make([]delta.Delta, DMax+1)
	for i := range long {
		long[i] = sparse(shapeL0, delta.Entry{I: 0, J: 0, V: 1})
	}
	full := Commit{ID: "X3", Parents: []CommitID{c0}, Params: map[string]ParamVersion{
		testL0: {Blob: parent.Params[testL0].Blob, Deltas: long},
		testL1: parent.Params[testL1],
	}}
	if _, err := r.AddCommit(full); !errors.Is(err, ErrChainFull) {
		t.Fatalf("err = %v, want ErrChainFull", err)
	}

	valid := Commit{ID: "X4", Parents: []CommitID{c0}, Params: parent.Params, Meta: Meta{Message: "manual"}}
	id, err := r.AddCommit(valid)
	if err != nil || id != "X4" {
		t.Fatalf("AddCommit = %s, %v", id, err)
	}
}

func TestHistoryAndLog(t *testing.T) {
	t.Parallel()
	r, c := newZeroRepo(t)
	for i := 0; i < 3; i++ {
		next, err := r.DeriveWithDelta(c, testL1, sparse(shapeL1, delta.Entry{I: 0, J: i, V: 1}), "step")
		if err != nil {
			t.Fatalf("DeriveWithDelta: %v", err)
		}
		c = next
	}
	h := r.History()
	if len(h) != 4 {
		t.Fatalf("history length = %d, want 4", len(h))
	}
	for i, want := range []CommitID{"C0", "C1", "C2", "C3"} {
		if h[i].ID != want {
			t.Fatalf("history[%d] = %s want %s", i, h[i].ID, want)
		}
	}

	log, err := r.Log(c, 2)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 || log[0].ID != "C3" || log[1].ID != "C2" {
		t.Fatalf("Log(2) = %v", log)
	}
	all, _ := r.Log(c, 0)
	if len(all) != 4 || all[3].ID != "C0" {
		t.Fatalf("Log(0) length = %d", len(all))
	}
}

func TestParamShapes(t *testing.T) {
	t.Parallel()
	r, c0 := newZeroRepo(t)
	shapes, err := r.ParamShapes(c0)
	if err != nil {
		t.Fatalf("ParamShapes: %v", err)
	}
	if len(shapes) != 2 || shapes[0].Name != testL0 || shapes[0].Shape != shapeL0 || shapes[1].Shape != shapeL1 {
		t.Fatalf("ParamShapes = %+v", shapes)
	}
}

func TestEffectiveChange(t *testing.T) {
	t.Parallel()
	parent := tensor.NewMatFromData(1, 2, []float32{1, 2})
	d := sparse(tensor.Shape{Out: 1, In: 2}, delta.Entry{I: 0, J: 1, V: -0.5})
	if got := EffectiveChange(&parent, d); got != 0.5 {
		t.Fatalf("EffectiveChange = %v, want 0.5", got)
	}
	if parent.Data[1] != 2 {
		t.Fatal("EffectiveChange must not modify the parent value")
	}
}
