package repo

import (
	"sort"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/delta"
)

// CommitID names a commit. Ids are unique and never rewritten.
type CommitID string

// ParamVersion is a base blob plus an ordered delta chain. Its value is
// blob + Σ materialize(delta_k), summed in chain order.
type ParamVersion struct {
	Blob   blob.ID
	Deltas []delta.Delta
}

// Meta carries the commit message and whether the commit is a fork.
type Meta struct {
	Message string
	Forked  bool
}

// Commit is a node of the version graph binding param names to versions.
// A commit has no parents (genesis) or exactly one.
type Commit struct {
	ID      CommitID
	Parents []CommitID
	Params  map[string]ParamVersion
	Meta    Meta
}

// Parent returns the single parent id, or "" for a genesis commit.
func (c *Commit) Parent() CommitID {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// ParamNames returns the commit's param names in sorted order.
func (c *Commit) ParamNames() []string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone copies the commit's maps and slices. Delta values are shared.
func (c *Commit) clone() *Commit {
	out := &Commit{
		ID:      c.ID,
		Parents: append([]CommitID(nil), c.Parents...),
		Params:  make(map[string]ParamVersion, len(c.Params)),
		Meta:    c.Meta,
	}
	for name, pv := range c.Params {
		out.Params[name] = ParamVersion{
			Blob:   pv.Blob,
			Deltas: append([]delta.Delta(nil), pv.Deltas...),
		}
	}
	return out
}
