package repo

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/blob"
)

// PackParam folds param's delta chain at commit id into a new base blob and
// swaps the ParamVersion in place. The commit id and its other params are
// preserved; the composed value is unchanged.
func (r *Repo) PackParam(id CommitID, param string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.commits[id]
	if !ok {
		return commitNotFound(id)
	}
	pv, ok := c.Params[param]
	if !ok {
		return paramMissing(id, param)
	}
	if len(pv.Deltas) == 0 {
		return nil
	}

	w, err := r.composeVersion(pv)
	if err != nil {
		return fmt.Errorf("pack %s/%s: %w", id, param, err)
	}
	packed, err := r.blobs.Put(blob.FromMat(&w))
	if err != nil {
		return fmt.Errorf("pack %s/%s: %w", id, param, err)
	}

	next := c.clone()
	next.Params[param] = ParamVersion{Blob: packed}
	r.commits[id] = next
	return nil
}

// ChainLen returns the delta chain length of param at commit id.
func (r *Repo) ChainLen(id CommitID, param string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pv, err := r.versionLocked(id, param)
	if err != nil {
		return 0, err
	}
	return len(pv.Deltas), nil
}
