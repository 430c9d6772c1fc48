package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/middleware"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

// PredictionHandler serves the latest forecast report.
type PredictionHandler struct {
	store  interfaces.ReportStore
	logger *logrus.Logger
}

func NewPredictionHandler(store interfaces.ReportStore, logger *logrus.Logger) *PredictionHandler {
	return &PredictionHandler{store: store, logger: logger}
}

type PredictionsResponse struct {
	RunID        string              `json:"run_id"`
	TargetPeriod string              `json:"target_period"`
	Count        int                 `json:"count"`
	Predictions  []models.Prediction `json:"predictions"`
}

type SummaryResponse struct {
	Summary           models.ExecutiveSummary     `json:"summary"`
	PatternAnalysis   []models.PatternAnalysisRow `json:"pattern_analysis"`
	Diagnostics       models.ModelDiagnostics     `json:"diagnostics"`
	HighPriorityItems int                         `json:"high_priority_items"`
	DroppedRecords    int                         `json:"dropped_records"`
}

// latest loads the report and writes the error response itself when there
// is nothing to serve.
func (h *PredictionHandler) latest(c *gin.Context) (*models.ForecastReport, bool) {
	report, err := h.store.Latest(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load forecast report")
		middleware.RecordError(c, err, "failed to load forecast")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load forecast"})
		return nil, false
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no forecast available"})
		return nil, false
	}
	return report, true
}

// GetPredictions lists predictions, optionally filtered by risk, pattern
// and critical flag.
func (h *PredictionHandler) GetPredictions(c *gin.Context) {
	var critical *bool
	if raw := c.Query("critical"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "critical must be a boolean"})
			return
		}
		critical = &v
	}
	risk := strings.TrimSpace(c.Query("risk"))
	pattern := strings.TrimSpace(c.Query("pattern"))

	report, ok := h.latest(c)
	if !ok {
		return
	}

	out := make([]models.Prediction, 0, len(report.Predictions))
	for _, p := range report.Predictions {
		if risk != "" && !strings.EqualFold(string(p.RiskLevel), risk) {
			continue
		}
		if pattern != "" && !strings.EqualFold(string(p.Features.DominantBatchPattern), pattern) {
			continue
		}
		if critical != nil && p.Features.IsCritical != *critical {
			continue
		}
		out = append(out, p)
	}

	c.JSON(http.StatusOK, PredictionsResponse{
		RunID:        report.Summary.RunID,
		TargetPeriod: report.Summary.TargetPeriod,
		Count:        len(out),
		Predictions:  out,
	})
}

// GetPrediction returns one item. Names match case-insensitively.
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	item := strings.TrimSpace(c.Param("item"))
	report, ok := h.latest(c)
	if !ok {
		return
	}

	for _, p := range report.Predictions {
		if strings.EqualFold(p.ItemName, item) {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "item not found", "item": item})
}

func (h *PredictionHandler) GetSummary(c *gin.Context) {
	report, ok := h.latest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, SummaryResponse{
		Summary:           report.Summary,
		PatternAnalysis:   report.PatternAnalysis,
		Diagnostics:       report.Diagnostics,
		HighPriorityItems: len(report.HighPriorityItems),
		DroppedRecords:    len(report.Dropped),
	})
}
