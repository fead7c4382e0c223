package scenario

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/repo"
)

// TieMargin is the default score gap under which the top two candidates
// are evaluated a second time.
const TieMargin = 0.02

// Forwarder computes the output of a commit for an input vector.
// Implementations must be safe for concurrent use.
type Forwarder interface {
	Forward(commit repo.CommitID, x []float32) ([]float32, error)
}

// Runner fans a request out over the gated candidates and keeps the best.
type Runner struct {
	Engine    Forwarder
	Gater     Gater
	Verifier  Verifier
	TieMargin float32
	// Workers bounds concurrent forward passes. Zero means GOMAXPROCS.
	Workers int
}

func NewRunner(engine Forwarder, gater Gater, verifier Verifier) *Runner {
	return &Runner{
		Engine:    engine,
		Gater:     gater,
		Verifier:  verifier,
		TieMargin: TieMargin,
	}
}

type evalTask struct {
	idx    int
	commit repo.CommitID
}

type evalResult struct {
	scenario Scenario
	err      error
}

// Run evaluates req on the candidates the Gater picks from pool.
//
// Candidates are ranked by score descending, then by commit id ascending.
// When the top two are closer than TieMargin both are evaluated again and
// the higher re-evaluated score wins. Any forward error aborts the run
// with a *ScenarioError. ctx is checked between candidate evaluations.
func (r *Runner) Run(ctx context.Context, req Request, pool []repo.CommitID) (Response, error) {
	log := logger.FromContext(ctx)

	candidates := r.Gater.Candidates(req.Ctx, pool)
	if len(candidates) == 0 {
		return Response{}, ErrNoCandidates
	}

	ranked, err := r.evaluate(ctx, req, candidates)
	if err != nil {
		return Response{}, err
	}
	sortScenarios(ranked)
	for i, s := range ranked {
		log.Debug("scenario", "rank", i, "commit", s.Commit, "score", s.Score)
	}

	best := ranked[0]
	resp := Response{Scenarios: ranked}
	if len(ranked) >= 2 && abs32(ranked[0].Score-ranked[1].Score) < r.margin() {
		again, err := r.evaluate(ctx, req, []repo.CommitID{ranked[0].Commit, ranked[1].Commit})
		if err != nil {
			return Response{}, err
		}
		sortScenarios(again)
		best = again[0]
		resp.Reevaluated = true
		log.Info("tie re-evaluated",
			"first", ranked[0].Commit, "second", ranked[1].Commit,
			"winner", best.Commit, "score", best.Score)
	}

	resp.Y = best.Y
	resp.CommitUsed = best.Commit
	resp.Score = best.Score
	return resp, nil
}

func (r *Runner) margin() float32 {
	if r.TieMargin <= 0 {
		return TieMargin
	}
	return r.TieMargin
}

func (r *Runner) workers(n int) int {
	w := r.Workers
	if w <= 0 {
		w = max(runtime.GOMAXPROCS(0), 1)
	}
	return min(w, n)
}

// evaluate runs Forward and Score for each commit on a bounded set of
// workers. Results keep the order of commits.
func (r *Runner) evaluate(ctx context.Context, req Request, commits []repo.CommitID) ([]Scenario, error) {
	workers := r.workers(len(commits))
	results := make([]evalResult, len(commits))

	tasks := make(chan evalTask, len(commits))
	for i, c := range commits {
		tasks <- evalTask{idx: i, commit: c}
	}
	close(tasks)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed bool
	)
	stop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failed
	}
	fail := func() {
		mu.Lock()
		failed = true
		mu.Unlock()
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if stop() {
					continue
				}
				if err := ctx.Err(); err != nil {
					results[task.idx].err = err
					fail()
					continue
				}
				y, err := r.Engine.Forward(task.commit, req.X)
				if err != nil {
					results[task.idx].err = &ScenarioError{Commit: task.commit, Err: err}
					fail()
					continue
				}
				results[task.idx].scenario = Scenario{
					Commit: task.commit,
					Y:      y,
					Score:  r.Verifier.Score(req, y),
				}
			}
		}()
	}
	wg.Wait()

	out := make([]Scenario, len(commits))
	for i, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		out[i] = res.scenario
	}
	return out, nil
}

func sortScenarios(s []Scenario) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Commit < s[j].Commit
	})
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
