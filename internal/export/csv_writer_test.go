package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/models"
)

func testReport() models.ForecastReport {
	tape := models.Prediction{
		ItemName:             "Tape, clear",
		UOM:                  "ROLL",
		Category:             "Office Supplies",
		FinalMonthlyQuantity: 120,
		Confidence:           72.4,
		RiskLevel:            models.RiskHigh,
		RiskScore:            6,
		Quality:              models.QualityFair,
		Recommendation:       "Order 168 units (120 + 48 high risk buffer) (Pattern: Irregular_Batch_Pattern)",
		Adjustments:          []string{"Irregular pattern adjustment (-15%)"},
		EstimatedValue:       decimal.RequireFromString("300"),
		ModelMonthly:         models.ModelMonthly{RandomForest: 110, GradientBoosting: 125, Ridge: 118, LinearRegression: 130},
		Weights:              models.EnsembleWeights{RandomForest: 0.4, GradientBoosting: 0.3, Ridge: 0.2, LinearRegression: 0.1},
		Features: models.FeatureVector{
			ItemName:              "Tape, clear",
			Price:                 2.5,
			MonthsAvailable:       5,
			DominantBatchPattern:  models.PatternIrregular,
			WithdrawalPatternRisk: true,
		},
	}
	soap := models.Prediction{
		ItemName:             "Soap",
		FinalMonthlyQuantity: 20,
		Confidence:           80,
		RiskLevel:            models.RiskLow,
		Features:             models.FeatureVector{DominantBatchPattern: models.PatternRegularWeekly},
	}

	return models.ForecastReport{
		Summary: models.ExecutiveSummary{
			RunID:                  "run-1",
			TargetPeriod:           "Jun",
			GeneratedAt:            time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
			TotalItems:             2,
			TotalPredictedQuantity: 140,
			AverageConfidence:      76.2,
			Confidence:             models.ConfidenceDistribution{High: 2},
			PatternDistribution:    map[models.PatternLabel]int{models.PatternIrregular: 1, models.PatternRegularWeekly: 1},
			RiskDistribution:       map[models.RiskLevel]int{models.RiskHigh: 1, models.RiskLow: 1},
			TotalEstimatedValue:    decimal.RequireFromString("300"),
			HighVolumeItems:        1,
		},
		Predictions:       []models.Prediction{tape, soap},
		PatternAnalysis:   []models.PatternAnalysisRow{{Pattern: models.PatternIrregular, Items: 1, TotalQuantity: 120, MeanQuantity: 120}},
		Risk:              models.RiskAnalysis{PatternRiskItems: []models.Prediction{tape}, HighRiskItems: []models.Prediction{tape}},
		HighPriorityItems: []models.Prediction{tape},
		Diagnostics:       models.ModelDiagnostics{TrainingSamples: 40, TestSamples: 10, TotalSamples: 50},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewCSVWriter(dir, logging.NewDiscardLogger())
	assert.Equal(t, "csv", w.Name())

	require.NoError(t, w.Write(context.Background(), testReport()))

	for _, name := range []string{SimpleFile, DetailedFile, PatternFile, RiskFile, HighPriorityFile, SummaryFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	simple := readCSV(t, filepath.Join(dir, SimpleFile))
	require.Len(t, simple, 3)
	assert.Equal(t, []string{"Tape, clear", "120", "72.4", "High",
		"Order 168 units (120 + 48 high risk buffer) (Pattern: Irregular_Batch_Pattern)",
		"Irregular_Batch_Pattern"}, simple[1])
	assert.Equal(t, "Soap", simple[2][0])

	detailed := readCSV(t, filepath.Join(dir, DetailedFile))
	require.Len(t, detailed, 3)
	header := detailed[0]
	assert.Len(t, header, len(mainColumns)+12+len(models.FeatureNames)-1)
	for _, row := range detailed[1:] {
		assert.Len(t, row, len(header))
	}
	assert.Equal(t, "Irregular pattern adjustment (-15%)", detailed[1][10])
	assert.Equal(t, "No adjustments", detailed[2][10])
	assert.Equal(t, "300.00", detailed[1][12])
	assert.Equal(t, "Months_Available", header[len(mainColumns)+12])
	assert.Equal(t, "5", detailed[1][len(mainColumns)+12])

	risk := readCSV(t, filepath.Join(dir, RiskFile))
	require.Len(t, risk, 3)
	assert.Equal(t, "Withdrawal Pattern Risk", risk[1][0])
	assert.Equal(t, "High Risk + High Volume", risk[2][0])
	assert.Equal(t, "72.4%", risk[1][3])

	priority := readCSV(t, filepath.Join(dir, HighPriorityFile))
	assert.Len(t, priority, 2)

	pattern := readCSV(t, filepath.Join(dir, PatternFile))
	assert.Equal(t, []string{"Irregular_Batch_Pattern", "1", "120", "120.00", "0.00", "0.00", "0.00", "0.00"}, pattern[1])
}

func TestSummaryRows(t *testing.T) {
	rows := summaryRows(testReport())
	values := make(map[string]string)
	for _, r := range rows {
		values[r[0]] = r[1]
	}

	assert.Equal(t, "run-1", values["Run ID"])
	assert.Equal(t, "2026-06-01T08:00:00Z", values["Generated At"])
	assert.Equal(t, "76.2%", values["Average Confidence Score"])
	assert.Equal(t, "2", values["High Confidence (>70%)"])
	assert.Equal(t, "1", values["High Risk Items"])
	assert.Equal(t, "300.00", values["Estimated Total Value"])
	assert.Equal(t, "40", values["Training Samples"])

	var patterns []string
	for i, r := range rows {
		if r[0] == "BATCH PATTERN DISTRIBUTION" {
			patterns = []string{rows[i+1][0], rows[i+2][0]}
		}
	}
	assert.Equal(t, []string{"Irregular_Batch_Pattern", "Regular_Weekly_Batches"}, patterns, "count ties sort by label")
}

func TestCSVWriter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewCSVWriter(t.TempDir(), logging.NewDiscardLogger()).Write(ctx, testReport())
	assert.ErrorIs(t, err, context.Canceled)
}
