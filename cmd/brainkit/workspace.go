package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/mlp"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
	"github.com/organization-ai-projects/ai-search/internal/snapshot"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

// workspace is a repository plus the initial candidate pool.
type workspace struct {
	repo *repo.Repo
	spec mlp.Spec
	pool []repo.CommitID
}

// demoRequest is one of the two alternating interaction requests.
type demoRequest struct {
	label string
	req   scenario.Request
}

// newDemoWorkspace bootstraps a genesis commit and derives one commit per
// demo domain from it: a low-rank update of layer0 for domain A and a
// sparse update of layer1 for domain B.
func newDemoWorkspace(spec mlp.Spec, seed int64) (*workspace, error) {
	r := repo.New()
	c0, err := mlp.Bootstrap(r, spec, seed)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed + 999))
	params := spec.Params()

	l0 := params[0].Shape
	const rank = 2
	lowRank := delta.LowRank{
		R:     rank,
		Scale: 1,
		U:     uniformSlice(rng, l0.Out*rank, 0.08),
		V:     uniformSlice(rng, l0.In*rank, 0.08),
		Shape: l0,
	}
	c1, err := r.DeriveWithDelta(c0, mlp.Layer0, lowRank, "domain A (layer0)")
	if err != nil {
		return nil, err
	}

	l1 := params[1].Shape
	sparse := delta.Sparse{Shape: l1}
	for range 12 {
		sparse.Entries = append(sparse.Entries, delta.Entry{
			I: rng.Intn(l1.Out),
			J: rng.Intn(l1.In),
			V: (rng.Float32() - 0.5) * 0.5,
		})
	}
	c2, err := r.DeriveWithDelta(c0, mlp.Layer1, sparse, "domain B (layer1)")
	if err != nil {
		return nil, err
	}
	return &workspace{repo: r, spec: spec, pool: []repo.CommitID{c0, c1, c2}}, nil
}

// loadWorkspace restores dir and seeds the pool with the newest kPool
// commits. The snapshot must hold params shaped for spec.
func loadWorkspace(dir string, spec mlp.Spec, kPool int) (*workspace, error) {
	r, err := snapshot.Load(dir)
	if err != nil {
		return nil, err
	}
	history := r.History()
	if len(history) == 0 {
		return nil, fmt.Errorf("snapshot %s has no commits", dir)
	}
	shapes, err := r.ParamShapes(history[0].ID)
	if err != nil {
		return nil, err
	}
	want := spec.Params()
	if len(shapes) != len(want) {
		return nil, fmt.Errorf("snapshot %s params %v do not match %+v", dir, shapes, spec)
	}
	for i := range want {
		if shapes[i] != want[i] {
			return nil, fmt.Errorf("snapshot %s param %s is %s, want %s", dir, shapes[i].Name, shapes[i].Shape, want[i].Shape)
		}
	}

	if kPool <= 0 || kPool > len(history) {
		kPool = len(history)
	}
	pool := make([]repo.CommitID, 0, kPool)
	for _, c := range history[len(history)-kPool:] {
		pool = append(pool, c.ID)
	}
	return &workspace{repo: r, spec: spec, pool: pool}, nil
}

// openWorkspace loads dir when it holds a snapshot and bootstraps the demo
// workspace otherwise.
func openWorkspace(ctx context.Context, o *options) (*workspace, error) {
	log := logger.FromContext(ctx)
	spec := o.spec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if o.SnapshotDir != "" {
		_, err := os.Stat(filepath.Join(o.SnapshotDir, snapshot.ManifestName))
		switch {
		case err == nil:
			ws, err := loadWorkspace(o.SnapshotDir, spec, int(o.KPool))
			if err != nil {
				return nil, err
			}
			log.Info("loaded snapshot", "dir", o.SnapshotDir, "commits", ws.repo.Len(), "pool", ws.pool)
			return ws, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	ws, err := newDemoWorkspace(spec, o.Seed)
	if err != nil {
		return nil, err
	}
	log.Info("bootstrapped repository", "spec", fmt.Sprintf("%+v", spec), "seed", o.Seed, "pool", ws.pool)
	return ws, nil
}

// runner builds the scenario runner: a diversity gater bounded by k-cand
// and an anchor verifier for the demo domains.
func (ws *workspace) runner(o *options) *scenario.Runner {
	r := scenario.NewRunner(
		mlp.NewEngine(ws.repo, ws.spec),
		scenario.DiversityGater{Max: int(o.KCand)},
		scenario.AnchorVerifier{Anchors: demoAnchors(ws.spec)},
	)
	r.TieMargin = float32(o.TieMargin)
	r.Workers = int(o.Workers)
	return r
}

func (ws *workspace) loop(o *options, runner *scenario.Runner) *learner.Loop {
	l := learner.NewLoop(ws.repo, runner, ws.spec.ParamNames(), ws.pool)
	l.Learner = learner.NewDomainLearner(o.Seed)
	if o.KPool > 0 {
		l.KPool = int(o.KPool)
	}
	return l
}

func demoAnchors(spec mlp.Spec) map[string][]float32 {
	return map[string][]float32{
		"rust":   tensor.Fill(spec.DOut, 1),
		"python": tensor.Fill(spec.DOut, -1),
	}
}

// demoRequests returns a rising ramp for domain A and a falling ramp for
// domain B.
func demoRequests(spec mlp.Spec) []demoRequest {
	n := spec.DIn
	xa := make([]float32, n)
	xb := make([]float32, n)
	for k := range n {
		xa[k] = float32(k) / float32(n)
		xb[k] = float32(n-k) / float32(n)
	}
	return []demoRequest{
		{label: "A", req: scenario.Request{
			X: xa,
			Ctx: scenario.Context{
				Modality:    "code",
				Domain:      "rust",
				Constraints: []string{"no_unsafe"},
				Features:    []float32{1, 0, 0},
			},
			Target: tensor.Fill(spec.DOut, 0.5),
		}},
		{label: "B", req: scenario.Request{
			X: xb,
			Ctx: scenario.Context{
				Modality:    "code",
				Domain:      "python",
				Constraints: []string{"vectorize"},
				Features:    []float32{0, 1, 0},
			},
			Target: tensor.Fill(spec.DOut, -0.5),
		}},
	}
}

func uniformSlice(rng *rand.Rand, n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (rng.Float32() - 0.5) * 2 * scale
	}
	return out
}
