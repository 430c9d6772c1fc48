// Package export writes forecast reports to flat files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
)

// Output file names.
const (
	SimpleFile       = "predictions_simple.csv"
	DetailedFile     = "predictions_detailed.csv"
	PatternFile      = "pattern_analysis.csv"
	RiskFile         = "risk_analysis.csv"
	HighPriorityFile = "high_priority.csv"
	SummaryFile      = "summary.csv"
)

var mainColumns = []string{
	"Item_Name", "UOM", "Category", "Price", "Dominant_Batch_Pattern",
	"Final_Monthly_Prediction", "Confidence", "Risk_Level", "Prediction_Quality",
	"Procurement_Recommendation", "Adjustments_Applied",
}

// CSVWriter writes the report tables into one directory.
type CSVWriter struct {
	dir    string
	logger *logrus.Logger
}

// NewCSVWriter creates a writer for dir.
func NewCSVWriter(dir string, logger *logrus.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: logger}
}

func (w *CSVWriter) Name() string { return "csv" }

// Write creates the output directory and writes every table.
func (w *CSVWriter) Write(ctx context.Context, report models.ForecastReport) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tables := []struct {
		name string
		rows [][]string
	}{
		{SimpleFile, simpleRows(report.Predictions)},
		{DetailedFile, detailedRows(report.Predictions)},
		{PatternFile, patternRows(report.PatternAnalysis)},
		{RiskFile, riskRows(report.Risk)},
		{HighPriorityFile, mainRows(report.HighPriorityItems)},
		{SummaryFile, summaryRows(report)},
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(w.dir, t.name)
		if err := writeCSV(path, t.rows); err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
	}

	w.logger.WithFields(logrus.Fields{
		"run_id": report.Summary.RunID,
		"dir":    w.dir,
		"files":  len(tables),
	}).Info("Wrote CSV reports")
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func simpleRows(preds []models.Prediction) [][]string {
	rows := [][]string{{
		"Item_Name", "Final_Monthly_Prediction", "Confidence", "Risk_Level",
		"Procurement_Recommendation", "Dominant_Batch_Pattern",
	}}
	for _, p := range preds {
		rows = append(rows, []string{
			p.ItemName,
			strconv.Itoa(p.FinalMonthlyQuantity),
			formatFloat(p.Confidence, 1),
			string(p.RiskLevel),
			p.Recommendation,
			string(p.Features.DominantBatchPattern),
		})
	}
	return rows
}

func mainRow(p models.Prediction) []string {
	return []string{
		p.ItemName,
		p.UOM,
		p.Category,
		formatFloat(p.Features.Price, 2),
		string(p.Features.DominantBatchPattern),
		strconv.Itoa(p.FinalMonthlyQuantity),
		formatFloat(p.Confidence, 1),
		string(p.RiskLevel),
		string(p.Quality),
		p.Recommendation,
		p.AdjustmentsText(),
	}
}

func mainRows(preds []models.Prediction) [][]string {
	rows := [][]string{mainColumns}
	for _, p := range preds {
		rows = append(rows, mainRow(p))
	}
	return rows
}

// detailedRows adds the model outputs, weights, risk score and every model
// input feature to the main columns.
func detailedRows(preds []models.Prediction) [][]string {
	header := append([]string{}, mainColumns...)
	header = append(header,
		"Risk_Score", "Estimated_Value",
		"RandomForest_Monthly", "GradientBoosting_Monthly", "Ridge_Monthly", "LinearRegression_Monthly",
		"RandomForest_Weight", "GradientBoosting_Weight", "Ridge_Weight", "LinearRegression_Weight",
		"Ensemble_Daily_Rate", "Corrected_Daily_Rate",
	)
	// Price is already a main column.
	header = append(header, models.FeatureNames[1:]...)

	rows := [][]string{header}
	for _, p := range preds {
		row := mainRow(p)
		row = append(row,
			strconv.Itoa(p.RiskScore),
			p.EstimatedValue.StringFixed(2),
			strconv.Itoa(p.ModelMonthly.RandomForest),
			strconv.Itoa(p.ModelMonthly.GradientBoosting),
			strconv.Itoa(p.ModelMonthly.Ridge),
			strconv.Itoa(p.ModelMonthly.LinearRegression),
			formatFloat(p.Weights.RandomForest, 4),
			formatFloat(p.Weights.GradientBoosting, 4),
			formatFloat(p.Weights.Ridge, 4),
			formatFloat(p.Weights.LinearRegression, 4),
			formatFloat(p.EnsembleRate, 4),
			formatFloat(p.CorrectedRate, 4),
		)
		for _, v := range p.Features.Numeric()[1:] {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func patternRows(analysis []models.PatternAnalysisRow) [][]string {
	rows := [][]string{{
		"Dominant_Batch_Pattern", "Item_Count", "Total_Predicted", "Avg_Predicted",
		"Avg_Confidence", "Avg_Price", "Avg_Withdrawal_Freq", "Avg_Batch_Size",
	}}
	for _, a := range analysis {
		rows = append(rows, []string{
			string(a.Pattern),
			strconv.Itoa(a.Items),
			strconv.Itoa(a.TotalQuantity),
			formatFloat(a.MeanQuantity, 2),
			formatFloat(a.MeanConfidence, 2),
			formatFloat(a.MeanPrice, 2),
			formatFloat(a.MeanWithdrawalFrequency, 2),
			formatFloat(a.MeanBatchSize, 2),
		})
	}
	return rows
}

func riskRows(risk models.RiskAnalysis) [][]string {
	rows := [][]string{{
		"Risk_Category", "Item_Name", "Predicted_Quantity", "Confidence",
		"Batch_Pattern", "Reason", "Recommendation",
	}}
	groups := []struct {
		category string
		reason   string
		items    []models.Prediction
	}{
		{"Withdrawal Pattern Risk", "Inconsistent withdrawal patterns detected", risk.PatternRiskItems},
		{"High Risk + High Volume", "High consumption with uncertain batch pattern", risk.HighRiskItems},
		{"Single Batch Pattern", "Withdrawn only once per month - timing critical", risk.SingleBatchItems},
	}
	for _, g := range groups {
		for _, p := range g.items {
			rows = append(rows, []string{
				g.category,
				p.ItemName,
				strconv.Itoa(p.FinalMonthlyQuantity),
				formatFloat(p.Confidence, 1) + "%",
				string(p.Features.DominantBatchPattern),
				g.reason,
				p.Recommendation,
			})
		}
	}
	return rows
}

// summaryRows lays the executive summary out as Metric/Value pairs with
// blank separator rows between sections.
func summaryRows(report models.ForecastReport) [][]string {
	s := report.Summary
	blank := []string{"", ""}
	rows := [][]string{
		{"Metric", "Value"},
		{"Run ID", s.RunID},
		{"Target Period", s.TargetPeriod},
		{"Generated At", s.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")},
		blank,
		{"Total Items Analyzed", strconv.Itoa(s.TotalItems)},
		{"Total Predicted Monthly Consumption", strconv.Itoa(s.TotalPredictedQuantity)},
		{"Average Confidence Score", formatFloat(s.AverageConfidence, 1) + "%"},
		blank,
		{"CONFIDENCE DISTRIBUTION", ""},
		{"High Confidence (>70%)", strconv.Itoa(s.Confidence.High)},
		{"Medium Confidence (50-70%)", strconv.Itoa(s.Confidence.Medium)},
		{"Low Confidence (<50%)", strconv.Itoa(s.Confidence.Low)},
		blank,
		{"BATCH PATTERN DISTRIBUTION", ""},
	}

	patterns := make([]models.PatternLabel, 0, len(s.PatternDistribution))
	for p := range s.PatternDistribution {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		ci, cj := s.PatternDistribution[patterns[i]], s.PatternDistribution[patterns[j]]
		if ci != cj {
			return ci > cj
		}
		return patterns[i] < patterns[j]
	})
	for _, p := range patterns {
		rows = append(rows, []string{string(p), strconv.Itoa(s.PatternDistribution[p])})
	}

	rows = append(rows,
		blank,
		[]string{"RISK ASSESSMENT", ""},
		[]string{"Low Risk Items", strconv.Itoa(s.RiskDistribution[models.RiskLow])},
		[]string{"Medium Risk Items", strconv.Itoa(s.RiskDistribution[models.RiskMedium])},
		[]string{"High Risk Items", strconv.Itoa(s.RiskDistribution[models.RiskHigh])},
		blank,
		[]string{"BUSINESS IMPACT", ""},
		[]string{"Estimated Total Value", s.TotalEstimatedValue.StringFixed(2)},
		[]string{"Critical Items", strconv.Itoa(s.CriticalItems)},
		[]string{"Single Batch Items", strconv.Itoa(s.SingleBatchItems)},
		[]string{"High Volume Items (>100)", strconv.Itoa(s.HighVolumeItems)},
		blank,
		[]string{"MODEL DIAGNOSTICS", ""},
		[]string{"Training Samples", strconv.Itoa(report.Diagnostics.TrainingSamples)},
		[]string{"Test Samples", strconv.Itoa(report.Diagnostics.TestSamples)},
		[]string{"RandomForest MAE", formatFloat(report.Diagnostics.MAE.RandomForest, 4)},
		[]string{"GradientBoosting MAE", formatFloat(report.Diagnostics.MAE.GradientBoosting, 4)},
		[]string{"Ridge MAE", formatFloat(report.Diagnostics.MAE.Ridge, 4)},
		[]string{"LinearRegression MAE", formatFloat(report.Diagnostics.MAE.LinearRegression, 4)},
		[]string{"Dropped Records", strconv.Itoa(len(report.Dropped))},
	)
	return rows
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
