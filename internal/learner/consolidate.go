package learner

import (
	"context"
	"fmt"

	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/repo"
)

// Consolidator compacts the commits of a pool.
type Consolidator interface {
	Consolidate(ctx context.Context, r *repo.Repo, commits []repo.CommitID) error
}

// PackConsolidator packs every listed param on every commit.
type PackConsolidator struct {
	Params []string
}

func (c PackConsolidator) Consolidate(ctx context.Context, r *repo.Repo, commits []repo.CommitID) error {
	log := logger.FromContext(ctx)
	for _, id := range commits {
		for _, param := range c.Params {
			n, err := r.ChainLen(id, param)
			if err != nil {
				return fmt.Errorf("consolidate %s: %w", id, err)
			}
			if n == 0 {
				continue
			}
			if err := r.PackParam(id, param); err != nil {
				return fmt.Errorf("consolidate %s: %w", id, err)
			}
			log.Debug("packed", "commit", id, "param", param, "deltas", n)
		}
	}
	return nil
}

// NoopConsolidator leaves the repository untouched.
type NoopConsolidator struct{}

func (NoopConsolidator) Consolidate(context.Context, *repo.Repo, []repo.CommitID) error {
	return nil
}
