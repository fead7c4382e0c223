// Package learner proposes online weight updates and drives the
// interaction loop that turns them into commits.
package learner

import (
	"math"
	"math/rand"
	"sync"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
)

const (
	// MaxAttempts bounds the draws DomainLearner makes per proposal.
	MaxAttempts = 5
	// MinMagnitude is the smallest entry magnitude that counts as nonzero.
	MinMagnitude = 1e-6
)

// Proposal is a delta to append to one param.
type Proposal struct {
	Param string
	Delta delta.Delta
}

// OnlineLearner proposes a delta after a request has been answered.
type OnlineLearner interface {
	ProposeDelta(r *repo.Repo, commit repo.CommitID, req scenario.Request, resp scenario.Response) (Proposal, bool)
}

// NoopLearner never proposes anything.
type NoopLearner struct{}

func (NoopLearner) ProposeDelta(*repo.Repo, repo.CommitID, scenario.Request, scenario.Response) (Proposal, bool) {
	return Proposal{}, false
}

// DomainLearner proposes random low-rank or sparse deltas for a randomly
// chosen param of the commit. It is seeded and safe for concurrent use.
type DomainLearner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDomainLearner(seed int64) *DomainLearner {
	return &DomainLearner{rng: rand.New(rand.NewSource(seed))}
}

func (l *DomainLearner) ProposeDelta(r *repo.Repo, commit repo.CommitID, _ scenario.Request, _ scenario.Response) (Proposal, bool) {
	shapes, err := r.ParamShapes(commit)
	if err != nil || len(shapes) == 0 {
		return Proposal{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := shapes[l.rng.Intn(len(shapes))]
	for range MaxAttempts {
		var d delta.Delta
		if l.rng.Intn(2) == 0 {
			d = l.lowRank(p)
		} else {
			d = l.sparse(p)
		}
		if significant(d) {
			return Proposal{Param: p.Name, Delta: d}, true
		}
	}
	return Proposal{}, false
}

// uniform draws from [lo, hi).
func (l *DomainLearner) uniform(lo, hi float32) float32 {
	return lo + l.rng.Float32()*(hi-lo)
}

func (l *DomainLearner) lowRank(p repo.ParamShape) delta.LowRank {
	r := 1 + l.rng.Intn(3)
	u := make([]float32, p.Shape.Out*r)
	for i := range u {
		u[i] = l.uniform(-1, 1)
	}
	v := make([]float32, p.Shape.In*r)
	for i := range v {
		v[i] = l.uniform(-1, 1)
	}
	return delta.LowRank{R: r, Scale: l.uniform(0.5, 1.5), U: u, V: v, Shape: p.Shape}
}

func (l *DomainLearner) sparse(p repo.ParamShape) delta.Sparse {
	n := 1 + l.rng.Intn(4)
	entries := make([]delta.Entry, 0, n)
	for range n {
		e := delta.Entry{
			I: l.rng.Intn(p.Shape.Out),
			J: l.rng.Intn(p.Shape.In),
			V: l.uniform(-2, 2),
		}
		if abs(e.V) > MinMagnitude {
			entries = append(entries, e)
		}
	}
	return delta.Sparse{Entries: entries, Shape: p.Shape}
}

// significant reports whether some stored entry exceeds MinMagnitude.
func significant(d delta.Delta) bool {
	switch v := d.(type) {
	case delta.LowRank:
		return anyAbove(v.U) || anyAbove(v.V)
	case delta.Sparse:
		for _, e := range v.Entries {
			if abs(e.V) > MinMagnitude {
				return true
			}
		}
		return false
	default:
		return delta.Norm1(d) > MinMagnitude
	}
}

func anyAbove(xs []float32) bool {
	for _, x := range xs {
		if abs(x) > MinMagnitude {
			return true
		}
	}
	return false
}

func abs(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
