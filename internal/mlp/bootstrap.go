package mlp

import (
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// InitScale bounds the magnitude of bootstrap weights.
const InitScale = 0.02

// Bootstrap stores seeded random weights in (-InitScale, InitScale) for
// every param of spec and creates a genesis commit for them.
func Bootstrap(r *repo.Repo, spec Spec, seed int64) (repo.CommitID, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	params := make(map[string]blob.ID, 2)
	for i, p := range spec.Params() {
		w := tensor.Zeros(p.Shape)
		tensor.FillRand(&w, seed+int64(i), InitScale)
		id, err := r.PutBlob(blob.FromMat(&w))
		if err != nil {
			return "", fmt.Errorf("bootstrap %s: %w", p.Name, err)
		}
		params[p.Name] = id
	}
	return r.Genesis(params, "genesis")
}

// Zero creates a genesis commit whose params are all zero.
func Zero(r *repo.Repo, spec Spec) (repo.CommitID, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	params := make(map[string]blob.ID, 2)
	for _, p := range spec.Params() {
		w := tensor.Zeros(p.Shape)
		id, err := r.PutBlob(blob.FromMat(&w))
		if err != nil {
			return "", fmt.Errorf("genesis %s: %w", p.Name, err)
		}
		params[p.Name] = id
	}
	return r.Genesis(params, "genesis")
}
