package api

import (
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commits int    `json:"commits"`
	Blobs   int    `json:"blobs"`
}

// RunRequest is a forward query. An empty Pool means the loop's pool.
type RunRequest struct {
	X      []float32        `json:"x"`
	Ctx    scenario.Context `json:"ctx"`
	Target []float32        `json:"target,omitempty"`
	Pool   []repo.CommitID  `json:"pool,omitempty"`
}

type RunResponse struct {
	ID          string              `json:"id"`
	Object      string              `json:"object"`
	CreatedAt   int64               `json:"created_at"`
	Y           []float32           `json:"y"`
	CommitUsed  repo.CommitID       `json:"commit_used"`
	Score       float32             `json:"score"`
	Reevaluated bool                `json:"reevaluated"`
	Scenarios   []scenario.Scenario `json:"scenarios,omitempty"`
}

type InteractRequest struct {
	X      []float32        `json:"x"`
	Ctx    scenario.Context `json:"ctx"`
	Target []float32        `json:"target,omitempty"`
}

type ParamView struct {
	Blob   string       `json:"blob"`
	Shape  tensor.Shape `json:"shape"`
	Deltas []string     `json:"deltas"`
}

type CommitView struct {
	ID      repo.CommitID        `json:"id"`
	Parents []repo.CommitID      `json:"parents"`
	Message string               `json:"message"`
	Forked  bool                 `json:"forked"`
	Params  map[string]ParamView `json:"params"`
}

type CommitList struct {
	Object string       `json:"object"`
	Data   []CommitView `json:"data"`
}

type MatrixView struct {
	Commit repo.CommitID `json:"commit"`
	Param  string        `json:"param"`
	Shape  tensor.Shape  `json:"shape"`
	Data   []float32     `json:"data"`
}

type PackRequest struct {
	Param string `json:"param"`
}

type PoolResponse struct {
	Pool  []repo.CommitID `json:"pool"`
	Steps int             `json:"steps"`
}
