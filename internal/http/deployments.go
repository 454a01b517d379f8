package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
)

// DeploymentStatus is the API view of a run's progress.
type DeploymentStatus string

const (
	DeploymentRunning  DeploymentStatus = "running"
	DeploymentSuccess  DeploymentStatus = "success"
	DeploymentDegraded DeploymentStatus = "degraded"
	DeploymentFailed   DeploymentStatus = "failed"
)

// Deployment is a run submitted through the API.
type Deployment struct {
	ID          string               `json:"id"`
	Status      DeploymentStatus     `json:"status"`
	Template    string               `json:"template"`
	Owner       string               `json:"owner"`
	Provider    string               `json:"provider"`
	SubmittedAt time.Time            `json:"submitted_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	Result      *orchestrator.Result `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// DeploymentList is the response body for GET /api/v1/deployments.
type DeploymentList struct {
	Deployments []Deployment `json:"deployments"`
}

// tracker keeps running deployments and a bounded history of finished ones.
type tracker struct {
	mu      sync.Mutex
	items   map[string]*Deployment
	history int
}

func newTracker(history int) *tracker {
	return &tracker{items: make(map[string]*Deployment), history: history}
}

func (t *tracker) add(d *Deployment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[d.ID] = d
}

func (t *tracker) finish(id string, res *orchestrator.Result, err error) Deployment {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.items[id]
	now := time.Now().UTC()
	d.FinishedAt = &now
	d.Result = res
	switch {
	case res != nil && res.Status == orchestrator.StatusSuccess:
		d.Status = DeploymentSuccess
	case res != nil && res.Status == orchestrator.StatusDegraded:
		d.Status = DeploymentDegraded
	default:
		d.Status = DeploymentFailed
	}
	if err != nil {
		d.Error = err.Error()
	}
	t.evict()
	return *d
}

// evict drops the oldest finished deployments beyond the history bound.
// Callers hold mu.
func (t *tracker) evict() {
	var finished []*Deployment
	for _, d := range t.items {
		if d.FinishedAt != nil {
			finished = append(finished, d)
		}
	}
	if len(finished) <= t.history {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].FinishedAt.Before(*finished[j].FinishedAt) })
	for _, d := range finished[:len(finished)-t.history] {
		delete(t.items, d.ID)
	}
}

func (t *tracker) get(id string) (Deployment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.items[id]
	if !ok {
		return Deployment{}, false
	}
	return *d, true
}

// list returns every tracked deployment, newest first.
func (t *tracker) list() []Deployment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Deployment, 0, len(t.items))
	for _, d := range t.items {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (t *tracker) running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, d := range t.items {
		if d.FinishedAt == nil {
			n++
		}
	}
	return n
}

// handleCreateDeployment starts a pipeline run. The run continues in the
// background and the response is 202 unless ?wait=true is given.
func (s *Server) handleCreateDeployment(c echo.Context) error {
	var in pipeline.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.Provider == "" {
		in.Provider = s.config.Provider
	}
	if err := in.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	d := &Deployment{
		ID:          uuid.NewString(),
		Status:      DeploymentRunning,
		Template:    in.Name(),
		Owner:       in.Owner(),
		Provider:    in.Provider,
		SubmittedAt: time.Now().UTC(),
	}
	s.deployments.add(d)
	ctx := c.Request().Context()
	s.logger.Info(ctx, "deployment submitted",
		zap.String("deployment_id", d.ID),
		zap.String("template", d.Template),
		zap.String("provider", d.Provider))

	// Runs belong to the server, not the request: only Shutdown cancels
	// them. The request ID and logger carry over.
	runCtx := logging.WithLogger(s.baseCtx, logging.FromContext(ctx))
	if id := logging.RequestIDFromContext(ctx); id != "" {
		runCtx = logging.WithRequestID(runCtx, id)
	}

	s.wg.Add(1)
	if c.QueryParam("wait") == "true" {
		done := s.run(runCtx, d.ID, in)
		return c.JSON(http.StatusOK, done)
	}
	go s.run(runCtx, d.ID, in)

	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/deployments/"+d.ID)
	snapshot, _ := s.deployments.get(d.ID)
	return c.JSON(http.StatusAccepted, snapshot)
}

// run executes one deployment and records its outcome. Callers have
// already added to wg.
func (s *Server) run(ctx context.Context, id string, in pipeline.Input) Deployment {
	defer s.wg.Done()

	res, err := s.deps.Runner.Run(ctx, in)
	d := s.deployments.finish(id, res, err)
	fields := []zap.Field{
		zap.String("deployment_id", id),
		zap.String("status", string(d.Status)),
	}
	if err != nil {
		s.logger.Warn(ctx, "deployment finished with error", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info(ctx, "deployment finished", fields...)
	}
	return d
}

func (s *Server) handleGetDeployment(c echo.Context) error {
	d, ok := s.deployments.get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "deployment not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleListDeployments(c echo.Context) error {
	return c.JSON(http.StatusOK, DeploymentList{Deployments: s.deployments.list()})
}
