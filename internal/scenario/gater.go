package scenario

import (
	"sort"

	"github.com/organization-ai-projects/ai-search/internal/repo"
)

// KCand is the default bound on candidates per run.
const KCand = 4

// Gater picks the candidate commits for a request. Implementations are
// pure and must not modify pool.
type Gater interface {
	Candidates(ctx Context, pool []repo.CommitID) []repo.CommitID
}

// SimpleGater takes the first Max ids in lexicographic order.
type SimpleGater struct {
	Max int
}

func (g SimpleGater) Candidates(_ Context, pool []repo.CommitID) []repo.CommitID {
	return bound(Lexicographic(Context{}, unique(pool)), g.Max)
}

// RankFunc orders a pool. It must be deterministic and return a
// permutation or subset of pool.
type RankFunc func(ctx Context, pool []repo.CommitID) []repo.CommitID

// Lexicographic is the default RankFunc. Ids compare as strings, so C10
// sorts before C2.
func Lexicographic(_ Context, pool []repo.CommitID) []repo.CommitID {
	out := append([]repo.CommitID(nil), pool...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DiversityGater bounds the pool like SimpleGater but lets the caller rank
// it. A nil Rank ranks lexicographically.
type DiversityGater struct {
	Max  int
	Rank RankFunc
}

func (g DiversityGater) Candidates(ctx Context, pool []repo.CommitID) []repo.CommitID {
	rank := g.Rank
	if rank == nil {
		rank = Lexicographic
	}
	return bound(unique(rank(ctx, unique(pool))), g.Max)
}

func unique(pool []repo.CommitID) []repo.CommitID {
	seen := make(map[repo.CommitID]struct{}, len(pool))
	out := make([]repo.CommitID, 0, len(pool))
	for _, id := range pool {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func bound(ids []repo.CommitID, k int) []repo.CommitID {
	if k <= 0 {
		k = KCand
	}
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}
