package snapshot

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// FormatVersion is written into every manifest.
const FormatVersion = 1

// Manifest is the commits.json document.
type Manifest struct {
	Version int            `json:"version"`
	Commits []CommitRecord `json:"commits"`
}

type CommitRecord struct {
	ID      repo.CommitID          `json:"id"`
	Parents []repo.CommitID        `json:"parents"`
	Params  map[string]ParamRecord `json:"params"`
	Message string                 `json:"message"`
	Forked  bool                   `json:"forked"`
}

type ParamRecord struct {
	Blob   blob.ID       `json:"blob"`
	Deltas []DeltaRecord `json:"deltas"`
}

// DeltaRecord is the tagged encoding of a delta. Only the fields of Kind
// are set.
type DeltaRecord struct {
	Kind    delta.Kind    `json:"kind"`
	Shape   tensor.Shape  `json:"shape"`
	R       int           `json:"r,omitempty"`
	Scale   float32       `json:"scale,omitempty"`
	U       []float32     `json:"u,omitempty"`
	V       []float32     `json:"v,omitempty"`
	Entries []delta.Entry `json:"entries,omitempty"`
}

// EncodeDelta converts a delta to its record.
func EncodeDelta(d delta.Delta) (DeltaRecord, error) {
	switch v := d.(type) {
	case delta.LowRank:
		return DeltaRecord{Kind: delta.KindLowRank, Shape: v.Shape, R: v.R, Scale: v.Scale, U: v.U, V: v.V}, nil
	case delta.Sparse:
		return DeltaRecord{Kind: delta.KindSparse, Shape: v.Shape, Entries: v.Entries}, nil
	default:
		return DeltaRecord{}, fmt.Errorf("%w: unknown delta kind %q", ErrCorrupt, d.Kind())
	}
}

// Delta converts the record back and validates it.
func (r DeltaRecord) Delta() (delta.Delta, error) {
	var d delta.Delta
	switch r.Kind {
	case delta.KindLowRank:
		d = delta.LowRank{R: r.R, Scale: r.Scale, U: r.U, V: r.V, Shape: r.Shape}
	case delta.KindSparse:
		d = delta.Sparse{Entries: r.Entries, Shape: r.Shape}
	default:
		return nil, fmt.Errorf("%w: unknown delta kind %q", ErrCorrupt, r.Kind)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d, nil
}

// EncodeCommit converts a commit to its record.
func EncodeCommit(c repo.Commit) (CommitRecord, error) {
	rec := CommitRecord{
		ID:      c.ID,
		Parents: c.Parents,
		Params:  make(map[string]ParamRecord, len(c.Params)),
		Message: c.Meta.Message,
		Forked:  c.Meta.Forked,
	}
	if rec.Parents == nil {
		rec.Parents = []repo.CommitID{}
	}
	for name, pv := range c.Params {
		pr := ParamRecord{Blob: pv.Blob, Deltas: make([]DeltaRecord, 0, len(pv.Deltas))}
		for _, d := range pv.Deltas {
			dr, err := EncodeDelta(d)
			if err != nil {
				return CommitRecord{}, fmt.Errorf("commit %s param %s: %w", c.ID, name, err)
			}
			pr.Deltas = append(pr.Deltas, dr)
		}
		rec.Params[name] = pr
	}
	return rec, nil
}

// Commit converts the record back.
func (r CommitRecord) Commit() (repo.Commit, error) {
	c := repo.Commit{
		ID:      r.ID,
		Parents: r.Parents,
		Params:  make(map[string]repo.ParamVersion, len(r.Params)),
		Meta:    repo.Meta{Message: r.Message, Forked: r.Forked},
	}
	if len(c.Parents) == 0 {
		c.Parents = nil
	}
	for name, pr := range r.Params {
		pv := repo.ParamVersion{Blob: pr.Blob}
		for _, dr := range pr.Deltas {
			d, err := dr.Delta()
			if err != nil {
				return repo.Commit{}, fmt.Errorf("commit %s param %s: %w", r.ID, name, err)
			}
			pv.Deltas = append(pv.Deltas, d)
		}
		c.Params[name] = pv
	}
	return c, nil
}
