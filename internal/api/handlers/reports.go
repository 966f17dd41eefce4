package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/asanalytics/go-asana-reporter/internal/model"
)

type reportSource interface {
	Rows(ctx context.Context, dim model.Dimension) ([]model.ReportRow, error)
}

type runLister interface {
	ListRunHistory(ctx context.Context, limit int) ([]model.RunHistory, error)
}

type ReportsHandler struct {
	Reports reportSource
	Runs    runLister
}

func NewReportsHandler(reports reportSource, runs runLister) *ReportsHandler {
	return &ReportsHandler{Reports: reports, Runs: runs}
}

// GetReport returns the aggregated rows for one dimension as JSON, computed
// on the fly from the task store.
func (h *ReportsHandler) GetReport(c *gin.Context) {
	dim, err := model.ParseDimension(c.Param("dimension"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.APIResponse{Message: err.Error()})
		return
	}

	rows, err := h.Reports.Rows(c.Request.Context(), dim)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Message: "Failed to aggregate report"})
		return
	}
	c.JSON(http.StatusOK, model.APIResponse{Message: "OK", Data: rows})
}

// ListRuns returns the most recent job runs, newest first.
func (h *ReportsHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.Runs.ListRunHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Message: "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, model.APIResponse{Message: "OK", Data: runs})
}
