package learner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
)

const (
	// KPool is the default pool capacity.
	KPool = 4
	// ConsolidateEvery is the step period of pool consolidation.
	ConsolidateEvery = 3
)

// StepResult describes one interaction step.
type StepResult struct {
	Step         int               `json:"step"`
	Domain       string            `json:"domain"`
	Response     scenario.Response `json:"response"`
	Param        string            `json:"param,omitempty"`
	Delta        string            `json:"delta,omitempty"`
	NewCommit    repo.CommitID     `json:"new_commit,omitempty"`
	Forked       bool              `json:"forked"`
	Packed       bool              `json:"packed"`
	Evicted      repo.CommitID     `json:"evicted,omitempty"`
	Consolidated bool              `json:"consolidated"`
	Pool         []repo.CommitID   `json:"pool"`
}

// Recorder persists step results.
type Recorder interface {
	Record(ctx context.Context, res StepResult) error
}

// Loop answers requests with a Runner, feeds each answer to an
// OnlineLearner and keeps a bounded FIFO pool of candidate commits.
// Steps are serialized.
type Loop struct {
	Repo         *repo.Repo
	Runner       *scenario.Runner
	Learner      OnlineLearner
	Consolidator Consolidator
	Recorder     Recorder
	KPool        int

	mu   sync.Mutex
	pool []repo.CommitID
	step int
}

// NewLoop creates a loop over pool with a no-op learner, a pack
// consolidator for params and no recorder.
func NewLoop(r *repo.Repo, runner *scenario.Runner, params []string, pool []repo.CommitID) *Loop {
	return &Loop{
		Repo:         r,
		Runner:       runner,
		Learner:      NoopLearner{},
		Consolidator: PackConsolidator{Params: params},
		KPool:        KPool,
		pool:         append([]repo.CommitID(nil), pool...),
	}
}

// Pool returns a copy of the current pool, oldest first.
func (l *Loop) Pool() []repo.CommitID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]repo.CommitID(nil), l.pool...)
}

// Steps returns the number of completed steps.
func (l *Loop) Steps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step
}

// Step runs one interaction: evaluate req over the pool, derive a child of
// the selected commit from the learner's proposal, update the pool and
// consolidate every ConsolidateEvery steps.
func (l *Loop) Step(ctx context.Context, req scenario.Request) (StepResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := logger.FromContext(ctx).With("step", l.step)
	res := StepResult{Step: l.step, Domain: req.Ctx.Domain}

	resp, err := l.Runner.Run(ctx, req, l.pool)
	if err != nil {
		return res, fmt.Errorf("step %d: %w", l.step, err)
	}
	res.Response = resp

	if prop, ok := l.Learner.ProposeDelta(l.Repo, resp.CommitUsed, req, resp); ok {
		res.Param = prop.Param
		res.Delta = delta.Describe(prop.Delta)
		if err := l.apply(ctx, &res, prop); err != nil {
			return res, fmt.Errorf("step %d: %w", l.step, err)
		}
	}

	if l.step > 0 && l.step%ConsolidateEvery == 0 && l.Consolidator != nil {
		if err := l.Consolidator.Consolidate(ctx, l.Repo, l.pool); err != nil {
			return res, fmt.Errorf("step %d: %w", l.step, err)
		}
		res.Consolidated = true
	}

	res.Pool = append([]repo.CommitID(nil), l.pool...)
	l.step++

	log.Info("step",
		"domain", res.Domain, "commit", resp.CommitUsed, "score", resp.Score,
		"new", res.NewCommit, "forked", res.Forked, "pool", len(res.Pool))

	if l.Recorder != nil {
		if err := l.Recorder.Record(ctx, res); err != nil {
			log.Warn("record step", "error", err)
		}
	}
	return res, nil
}

// apply derives a child from the proposal. A full chain is packed once and
// the derivation retried.
func (l *Loop) apply(ctx context.Context, res *StepResult, prop Proposal) error {
	source := res.Response.CommitUsed
	msg := fmt.Sprintf("online %s step %d", res.Domain, res.Step)

	id, err := l.Repo.DeriveWithDelta(source, prop.Param, prop.Delta, msg)
	if errors.Is(err, repo.ErrChainFull) {
		logger.FromContext(ctx).Info("chain full, packing", "commit", source, "param", prop.Param)
		if err := l.Repo.PackParam(source, prop.Param); err != nil {
			return err
		}
		res.Packed = true
		id, err = l.Repo.DeriveWithDelta(source, prop.Param, prop.Delta, msg)
	}
	if err != nil {
		return err
	}
	if id == source {
		return nil
	}

	c, err := l.Repo.GetCommit(id)
	if err != nil {
		return err
	}
	res.NewCommit = id
	res.Forked = c.Meta.Forked
	res.Evicted = l.push(id)
	return nil
}

// push appends id and evicts the oldest entry beyond capacity.
func (l *Loop) push(id repo.CommitID) repo.CommitID {
	l.pool = append(l.pool, id)
	k := l.KPool
	if k <= 0 {
		k = KPool
	}
	if len(l.pool) <= k {
		return ""
	}
	evicted := l.pool[0]
	l.pool = append([]repo.CommitID(nil), l.pool[1:]...)
	return evicted
}
