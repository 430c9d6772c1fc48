package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

func testRouter(t *testing.T, store interfaces.ReportStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewRouter(RouterConfig{
		ServiceName:    "stockcast-test",
		Version:        "test",
		AllowedOrigins: []string{"https://ops.example.com"},
		Store:          store,
		Logger:         logger,
	})
}

func TestNewRouter_Routes(t *testing.T) {
	store := interfaces.NewMemoryReportStore()
	require.NoError(t, store.Write(context.Background(), models.ForecastReport{
		Summary:     models.ExecutiveSummary{RunID: "run-1", TargetPeriod: "Jun"},
		Predictions: []models.Prediction{{ItemName: "Gloves", RiskLevel: models.RiskLow}},
	}))
	router := testRouter(t, store)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, `"status":"healthy"`},
		{"/api/v1/predictions", http.StatusOK, `"count":1`},
		{"/api/v1/predictions/Gloves", http.StatusOK, `"item_name":"Gloves"`},
		{"/api/v1/summary", http.StatusOK, `"run_id":"run-1"`},
		{"/api/v1/unknown", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestNewRouter_EmptyStore(t *testing.T) {
	router := testRouter(t, interfaces.NewMemoryReportStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no forecast available", body["error"])
}

func TestNewRouter_CORS(t *testing.T) {
	router := testRouter(t, interfaces.NewMemoryReportStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
