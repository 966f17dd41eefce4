package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asanalytics/go-asana-reporter/internal/model"
)

// Job runners, narrowed so the handler can be tested without real services.
type fetchRunner interface {
	Run(ctx context.Context) (*model.RunSummary, error)
}

type exportRunner interface {
	Run(ctx context.Context, dims []model.Dimension) (*model.RunSummary, error)
}

type snapshotRunner interface {
	Run(ctx context.Context) (*model.RunSummary, error)
}

type JobsHandler struct {
	Fetch    fetchRunner
	Export   exportRunner
	Snapshot snapshotRunner
}

func NewJobsHandler(fetch fetchRunner, export exportRunner, snapshot snapshotRunner) *JobsHandler {
	return &JobsHandler{Fetch: fetch, Export: export, Snapshot: snapshot}
}

// RunFetch ingests completed tasks synchronously and returns the run summary.
func (h *JobsHandler) RunFetch(c *gin.Context) {
	summary, err := h.Fetch.Run(c.Request.Context())
	respondRun(c, summary, err)
}

// RunExport exports report tabs. ?dimension= restricts the export to one
// dimension; the default is all three.
func (h *JobsHandler) RunExport(c *gin.Context) {
	var dims []model.Dimension
	if raw := c.Query("dimension"); raw != "" {
		dim, err := model.ParseDimension(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.APIResponse{Message: err.Error()})
			return
		}
		dims = []model.Dimension{dim}
	}

	summary, err := h.Export.Run(c.Request.Context(), dims)
	respondRun(c, summary, err)
}

// RunSnapshot appends open-task snapshot rows.
func (h *JobsHandler) RunSnapshot(c *gin.Context) {
	summary, err := h.Snapshot.Run(c.Request.Context())
	respondRun(c, summary, err)
}

func respondRun(c *gin.Context, summary *model.RunSummary, err error) {
	if err != nil {
		c.JSON(http.StatusBadGateway, model.APIResponse{Message: err.Error(), Data: summary})
		return
	}
	c.JSON(http.StatusOK, model.APIResponse{Message: "Run finished", Data: summary})
}
