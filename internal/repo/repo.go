package repo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

const (
	// DMax bounds the delta chain length of any ParamVersion.
	DMax = 8
	// Tau is the tolerance for declaring two composed values equal.
	Tau = 1e-7
)

// Repo is the versioned parameter store: a blob store plus a commit graph.
//
// Mutations (PutBlob, AddCommit, Genesis, DeriveWithDelta, PackParam) are
// serialized. Readers see commits as immutable snapshots; PackParam swaps a
// commit's entry atomically.
type Repo struct {
	mu      sync.RWMutex
	blobs   *blob.Store
	commits map[CommitID]*Commit
	order   []CommitID
}

// New creates an empty repository.
func New() *Repo {
	return &Repo{
		blobs:   blob.NewStore(),
		commits: make(map[CommitID]*Commit),
	}
}

// Blobs exposes the underlying blob store for host tooling.
func (r *Repo) Blobs() *blob.Store {
	return r.blobs
}

// PutBlob stores b and returns its content id.
func (r *Repo) PutBlob(b blob.Blob) (blob.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs.Put(b)
}

// GetBlob reads a blob by id.
func (r *Repo) GetBlob(id blob.ID) (blob.Blob, error) {
	return r.blobs.Get(id)
}

// GetCommit returns a copy of the commit with the given id.
func (r *Repo) GetCommit(id CommitID) (Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commits[id]
	if !ok {
		return Commit{}, commitNotFound(id)
	}
	return *c.clone(), nil
}

// HasCommit reports whether id exists.
func (r *Repo) HasCommit(id CommitID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commits[id]
	return ok
}

// Len returns the number of commits.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commits)
}

// AddCommit inserts c after checking the graph invariants: unique id, at
// most one existing parent, params keyset equal to the parent's, resolvable
// blobs, matching delta shapes and chains no longer than DMax.
func (r *Repo) AddCommit(c Commit) (CommitID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = r.nextIDLocked()
	}
	if _, ok := r.commits[c.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateCommit, c.ID)
	}
	if err := r.validateLocked(&c); err != nil {
		return "", err
	}
	r.insertLocked(c.clone())
	return c.ID, nil
}

func (r *Repo) validateLocked(c *Commit) error {
	if len(c.Parents) > 1 {
		return fmt.Errorf("%w: %s has %d parents", ErrInvalidCommit, c.ID, len(c.Parents))
	}
	if len(c.Params) == 0 {
		return fmt.Errorf("%w: %s has no params", ErrInvalidCommit, c.ID)
	}
	if len(c.Parents) == 1 {
		p, ok := r.commits[c.Parents[0]]
		if !ok {
			return commitNotFound(c.Parents[0])
		}
		if len(p.Params) != len(c.Params) {
			return fmt.Errorf("%w: %s params differ from parent %s", ErrInvalidCommit, c.ID, p.ID)
		}
		for name := range p.Params {
			if _, ok := c.Params[name]; !ok {
				return fmt.Errorf("%w: %s lacks parent param %s", ErrInvalidCommit, c.ID, name)
			}
		}
	}
	for name, pv := range c.Params {
		if len(pv.Deltas) > DMax {
			return &ChainFullError{Param: name}
		}
		b, err := r.blobs.Get(pv.Blob)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		for _, d := range pv.Deltas {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("param %s: %w", name, err)
			}
			if d.Dims() != b.Shape {
				return fmt.Errorf("%w: param %s delta %s vs blob %s", ErrShapeMismatch, name, d.Dims(), b.Shape)
			}
		}
	}
	return nil
}

func (r *Repo) insertLocked(c *Commit) {
	r.commits[c.ID] = c
	r.order = append(r.order, c.ID)
}

// nextIDLocked returns a fresh id of the form C<n>.
func (r *Repo) nextIDLocked() CommitID {
	n := len(r.commits)
	for {
		id := CommitID(fmt.Sprintf("C%d", n))
		if _, ok := r.commits[id]; !ok {
			return id
		}
		n++
	}
}

// Genesis creates a parentless commit binding each param to a blob with
// an empty delta chain.
func (r *Repo) Genesis(params map[string]blob.ID, msg string) (CommitID, error) {
	c := Commit{
		Params: make(map[string]ParamVersion, len(params)),
		Meta:   Meta{Message: msg},
	}
	for name, id := range params {
		c.Params[name] = ParamVersion{Blob: id}
	}
	return r.AddCommit(c)
}

// Compose reconstructs the dense value of param at commit id.
func (r *Repo) Compose(id CommitID, param string) (tensor.Mat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pv, err := r.versionLocked(id, param)
	if err != nil {
		return tensor.Mat{}, err
	}
	return r.composeVersion(pv)
}

func (r *Repo) versionLocked(id CommitID, param string) (ParamVersion, error) {
	c, ok := r.commits[id]
	if !ok {
		return ParamVersion{}, commitNotFound(id)
	}
	pv, ok := c.Params[param]
	if !ok {
		return ParamVersion{}, paramMissing(id, param)
	}
	return pv, nil
}

// composeVersion sums the base blob and each delta in stored order.
func (r *Repo) composeVersion(pv ParamVersion) (tensor.Mat, error) {
	b, err := r.blobs.Get(pv.Blob)
	if err != nil {
		return tensor.Mat{}, err
	}
	w := b.Mat()
	for _, d := range pv.Deltas {
		if d.Dims() != b.Shape {
			return tensor.Mat{}, fmt.Errorf("%w: delta %s vs blob %s", ErrShapeMismatch, d.Dims(), b.Shape)
		}
		m := d.Materialize()
		w.AddInPlace(&m)
	}
	return w, nil
}

// ParamShape pairs a param name with the shape of its base blob.
type ParamShape struct {
	Name  string
	Shape tensor.Shape
}

// ParamShapes lists a commit's params with their shapes, sorted by name.
func (r *Repo) ParamShapes(id CommitID) ([]ParamShape, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commits[id]
	if !ok {
		return nil, commitNotFound(id)
	}
	out := make([]ParamShape, 0, len(c.Params))
	for _, name := range c.ParamNames() {
		b, err := r.blobs.Get(c.Params[name].Blob)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		out = append(out, ParamShape{Name: name, Shape: b.Shape})
	}
	return out, nil
}

// History returns every commit in creation order.
func (r *Repo) History() []Commit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Commit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.commits[id].clone())
	}
	return out
}

// Log walks the parent chain from id, returning up to n commits (newest
// first). n <= 0 walks to the genesis commit.
func (r *Repo) Log(id CommitID, n int) ([]Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Commit
	current := id
	for current != "" && (n <= 0 || len(out) < n) {
		c, ok := r.commits[current]
		if !ok {
			return out, commitNotFound(current)
		}
		out = append(out, *c.clone())
		current = c.Parent()
	}
	return out, nil
}

// IDs returns all commit ids sorted lexicographically.
func (r *Repo) IDs() []CommitID {
	r.mu.RLock()
	ids := append([]CommitID(nil), r.order...)
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
