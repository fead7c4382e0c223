package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/mlp"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

var testSpec = mlp.Spec{DIn: 2, DHidden: 2, DOut: 2}

func newTestServer(t *testing.T) (*echo.Echo, *repo.Repo) {
	t.Helper()
	r := repo.New()
	c0, err := mlp.Zero(r, testSpec)
	if err != nil {
		t.Fatalf("Zero: %v", err)
	}
	// Bias column of layer1: y = [1, 0] for every input.
	bias := delta.Sparse{Entries: []delta.Entry{{I: 0, J: 2, V: 1}}, Shape: tensor.Shape{Out: 2, In: 3}}
	c1, err := r.DeriveWithDelta(c0, mlp.Layer1, bias, "bias")
	if err != nil {
		t.Fatalf("DeriveWithDelta: %v", err)
	}

	runner := scenario.NewRunner(mlp.NewEngine(r, testSpec), scenario.SimpleGater{}, scenario.TargetVerifier{})
	loop := learner.NewLoop(r, runner, testSpec.ParamNames(), []repo.CommitID{c0, c1})
	loop.Learner = learner.NewDomainLearner(1)

	server := NewServer(r, runner, loop, logger.Discard())
	e := echo.New()
	server.Register(e)
	return e, r
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %s: %v", rec.Body.String(), err)
	}
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) ResponseError {
	t.Helper()
	return decodeBody[struct {
		Error ResponseError `json:"error"`
	}](t, rec).Error
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e, _ := newTestServer(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	h := decodeBody[HealthResponse](t, rec)
	if h.Status != "ok" || h.Version == "" || h.Commits != 2 {
		t.Fatalf("health = %+v", h)
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	e, _ := newTestServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/run", `{"x":[1,1],"ctx":{"domain":"rust"},"target":[1,0]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status: got %d body=%s", rec.Code, rec.Body.String())
	}
	run := decodeBody[RunResponse](t, rec)
	if !strings.HasPrefix(run.ID, "run_") || run.Object != "run" {
		t.Fatalf("run id/object = %q/%q", run.ID, run.Object)
	}
	if run.CommitUsed != "C1" || run.Score != 0 || len(run.Y) != 2 || run.Y[0] != 1 {
		t.Fatalf("run = %+v", run)
	}
	if len(run.Scenarios) != 2 {
		t.Fatalf("scenarios = %+v", run.Scenarios)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/runs/"+run.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	if got := decodeBody[RunResponse](t, getRec); got.CommitUsed != run.CommitUsed {
		t.Fatalf("stored run = %+v", got)
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/runs/run_missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// An explicit pool restricts the candidates.
	rec = doJSON(t, e, http.MethodPost, "/v1/run", `{"x":[1,1],"ctx":{},"target":[1,0],"pool":["C0"]}`)
	if got := decodeBody[RunResponse](t, rec); got.CommitUsed != "C0" {
		t.Fatalf("commit_used = %s, want C0", got.CommitUsed)
	}
}

func TestRunValidationErrors(t *testing.T) {
	t.Parallel()
	e, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		param  string
	}{
		{"malformed", `{"x":`, http.StatusBadRequest, ""},
		{"missing x", `{"ctx":{}}`, http.StatusBadRequest, "x"},
		{"wrong length", `{"x":[1,2,3]}`, http.StatusBadRequest, ""},
		{"unknown commit", `{"x":[1,1],"pool":["C9"]}`, http.StatusNotFound, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/run", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if got := errorOf(t, rec); got.Param != tc.param || got.Message == "" {
				t.Fatalf("error = %+v", got)
			}
		})
	}
}

func TestCommitEndpoints(t *testing.T) {
	t.Parallel()
	e, _ := newTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/v1/commits", "")
	list := decodeBody[CommitList](t, rec)
	if len(list.Data) != 2 || list.Data[0].ID != "C0" || len(list.Data[0].Parents) != 0 {
		t.Fatalf("list = %+v", list)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/commits/C1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", rec.Code, rec.Body.String())
	}
	view := decodeBody[CommitView](t, rec)
	l1 := view.Params[mlp.Layer1]
	if view.Parents[0] != "C0" || len(l1.Deltas) != 1 || l1.Shape != (tensor.Shape{Out: 2, In: 3}) {
		t.Fatalf("view = %+v", view)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/commits/C1/params/"+mlp.Layer1, "")
	m := decodeBody[MatrixView](t, rec)
	if len(m.Data) != 6 || m.Data[2] != 1 {
		t.Fatalf("matrix = %+v", m)
	}

	for _, path := range []string{"/v1/commits/C7", "/v1/commits/C1/params/layer9.Wb"} {
		if rec := doJSON(t, e, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestPackEndpoint(t *testing.T) {
	t.Parallel()
	e, r := newTestServer(t)
	before, _ := r.Compose("C1", mlp.Layer1)

	rec := doJSON(t, e, http.MethodPost, "/v1/commits/C1/pack", `{"param":"`+mlp.Layer1+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pack status: got %d body=%s", rec.Code, rec.Body.String())
	}
	view := decodeBody[CommitView](t, rec)
	if n := len(view.Params[mlp.Layer1].Deltas); n != 0 {
		t.Fatalf("deltas after pack = %d", n)
	}
	after, _ := r.Compose("C1", mlp.Layer1)
	if tensor.MaxAbsDiff(before.Data, after.Data) > repo.Tau {
		t.Fatal("pack changed the composed value")
	}

	if rec := doJSON(t, e, http.MethodPost, "/v1/commits/C1/pack", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/commits/C5/pack", `{"param":"layer0.Wb"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInteractGrowsPool(t *testing.T) {
	t.Parallel()
	e, r := newTestServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/interact", `{"x":[0.5,-0.5],"ctx":{"domain":"rust"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("interact status: got %d body=%s", rec.Code, rec.Body.String())
	}
	res := decodeBody[learner.StepResult](t, rec)
	if res.Step != 0 || res.Response.CommitUsed == "" {
		t.Fatalf("step = %+v", res)
	}

	pool := decodeBody[PoolResponse](t, doJSON(t, e, http.MethodGet, "/v1/pool", ""))
	if pool.Steps != 1 {
		t.Fatalf("steps = %d, want 1", pool.Steps)
	}
	if res.NewCommit != "" {
		if pool.Pool[len(pool.Pool)-1] != res.NewCommit || r.Len() != 3 {
			t.Fatalf("pool = %v after new commit %s", pool.Pool, res.NewCommit)
		}
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.Use(RateLimit(0.001, 1))
	e.GET("/ping", func(c *echo.Context) error { return c.JSON(http.StatusOK, map[string]string{"ok": "yes"}) })

	if rec := doJSON(t, e, http.MethodGet, "/ping", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/ping", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec.Code)
	}
	if got := errorOf(t, rec); got.Type != "rate_limit_error" {
		t.Fatalf("error = %+v", got)
	}
}
