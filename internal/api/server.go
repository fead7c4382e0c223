package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
	"github.com/organization-ai-projects/ai-search/internal/version"
)

type Server struct {
	repo   *repo.Repo
	runner *scenario.Runner
	loop   *learner.Loop
	runs   *RunStore
	log    logger.Logger
	clock  func() time.Time
}

// NewServer serves r. runner answers /v1/run; loop drives /v1/interact and
// supplies the default pool. loop may be nil.
func NewServer(r *repo.Repo, runner *scenario.Runner, loop *learner.Loop, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		repo:   r,
		runner: runner,
		loop:   loop,
		runs:   NewRunStore(DefaultRunCapacity),
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)

	e.POST("/v1/run", s.handleRun)
	e.GET("/v1/runs/:id", s.handleGetRun)
	e.POST("/v1/interact", s.handleInteract)
	e.GET("/v1/pool", s.handlePool)

	e.GET("/v1/commits", s.handleListCommits)
	e.GET("/v1/commits/:id", s.handleGetCommit)
	e.GET("/v1/commits/:id/params/:param", s.handleGetParam)
	e.POST("/v1/commits/:id/pack", s.handlePack)
}

// requestContext returns the request context carrying the server logger.
func (s *Server) requestContext(c *echo.Context) context.Context {
	return logger.WithContext(c.Request().Context(), s.log)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Commits: s.repo.Len(),
		Blobs:   s.repo.Blobs().Len(),
	})
}

func (s *Server) handleRun(c *echo.Context) error {
	req, err := decodeJSON[RunRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.X) == 0 {
		return writeDomainError(c, newInvalidRequest("x", "x is required"))
	}

	pool := req.Pool
	if len(pool) == 0 && s.loop != nil {
		pool = s.loop.Pool()
	}
	for _, id := range pool {
		if !s.repo.HasCommit(id) {
			return writeNotFound(c, "commit "+string(id)+" not found")
		}
	}

	sreq, err := scenario.NewRequest(scenario.Features(req.X), req.Ctx, req.Target)
	if err != nil {
		return writeDomainError(c, err)
	}
	resp, err := s.runner.Run(s.requestContext(c), sreq, pool)
	if err != nil {
		return writeDomainError(c, err)
	}

	out := RunResponse{
		ID:          newRunID(),
		Object:      "run",
		CreatedAt:   s.clock().Unix(),
		Y:           resp.Y,
		CommitUsed:  resp.CommitUsed,
		Score:       resp.Score,
		Reevaluated: resp.Reevaluated,
		Scenarios:   resp.Scenarios,
	}
	s.runs.Save(out)
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetRun(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.runs.Get(id)
	if !ok {
		return writeNotFound(c, "run "+id+" not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInteract(c *echo.Context) error {
	if s.loop == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "interaction loop not configured", "", "")
	}
	req, err := decodeJSON[InteractRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.X) == 0 {
		return writeDomainError(c, newInvalidRequest("x", "x is required"))
	}
	sreq, err := scenario.NewRequest(scenario.Features(req.X), req.Ctx, req.Target)
	if err != nil {
		return writeDomainError(c, err)
	}
	res, err := s.loop.Step(s.requestContext(c), sreq)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handlePool(c *echo.Context) error {
	if s.loop == nil {
		return c.JSON(http.StatusOK, PoolResponse{Pool: []repo.CommitID{}})
	}
	return c.JSON(http.StatusOK, PoolResponse{Pool: s.loop.Pool(), Steps: s.loop.Steps()})
}

func (s *Server) handleListCommits(c *echo.Context) error {
	history := s.repo.History()
	out := CommitList{Object: "list", Data: make([]CommitView, 0, len(history))}
	for _, cm := range history {
		view, err := s.commitView(cm)
		if err != nil {
			return writeDomainError(c, err)
		}
		out.Data = append(out.Data, view)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetCommit(c *echo.Context) error {
	cm, err := s.repo.GetCommit(repo.CommitID(c.Param("id")))
	if err != nil {
		return writeDomainError(c, err)
	}
	view, err := s.commitView(cm)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetParam(c *echo.Context) error {
	id := repo.CommitID(c.Param("id"))
	param := c.Param("param")
	w, err := s.repo.Compose(id, param)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, MatrixView{
		Commit: id,
		Param:  param,
		Shape:  w.Shape(),
		Data:   w.Flat(),
	})
}

func (s *Server) handlePack(c *echo.Context) error {
	id := repo.CommitID(c.Param("id"))
	req, err := decodeJSON[PackRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Param == "" {
		return writeDomainError(c, newInvalidRequest("param", "param is required"))
	}
	if err := s.repo.PackParam(id, req.Param); err != nil {
		return writeDomainError(c, err)
	}
	s.log.Info("packed", "commit", id, "param", req.Param)

	cm, err := s.repo.GetCommit(id)
	if err != nil {
		return writeDomainError(c, err)
	}
	view, err := s.commitView(cm)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) commitView(cm repo.Commit) (CommitView, error) {
	view := CommitView{
		ID:      cm.ID,
		Parents: cm.Parents,
		Message: cm.Meta.Message,
		Forked:  cm.Meta.Forked,
		Params:  make(map[string]ParamView, len(cm.Params)),
	}
	if view.Parents == nil {
		view.Parents = []repo.CommitID{}
	}
	for _, name := range cm.ParamNames() {
		pv := cm.Params[name]
		b, err := s.repo.GetBlob(pv.Blob)
		if err != nil {
			return CommitView{}, fmt.Errorf("commit %s param %s: %v", cm.ID, name, err)
		}
		deltas := make([]string, 0, len(pv.Deltas))
		for _, d := range pv.Deltas {
			deltas = append(deltas, delta.Describe(d))
		}
		view.Params[name] = ParamView{Blob: string(pv.Blob), Shape: b.Shape, Deltas: deltas}
	}
	return view, nil
}
