package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
)

const (
	highVolumeQuantity     = 100
	highRiskQuantity       = 50
	patternRiskListSize    = 10
	highRiskListSize       = 10
	singleBatchListSize    = 5
	highConfidenceCutoff   = 70.0
	mediumConfidenceCutoff = 50.0
)

// ReportingAggregator assembles the final result table and its summaries.
type ReportingAggregator struct {
	logger *logrus.Logger
}

// NewReportingAggregator creates an aggregator.
func NewReportingAggregator(logger *logrus.Logger) *ReportingAggregator {
	return &ReportingAggregator{logger: logger}
}

// ReportInput is everything the aggregator needs from earlier stages.
type ReportInput struct {
	RunID        string
	TargetPeriod string
	GeneratedAt  time.Time
	Predictions  []models.Prediction
	Diagnostics  models.ModelDiagnostics
	Dropped      []models.DroppedRecord
}

// Aggregate builds the report. Predictions keep their input order.
func (r *ReportingAggregator) Aggregate(in ReportInput) models.ForecastReport {
	report := models.ForecastReport{
		Summary:           r.summarize(in),
		Predictions:       in.Predictions,
		PatternAnalysis:   patternAnalysis(in.Predictions),
		Risk:              riskAnalysis(in.Predictions),
		HighPriorityItems: highPriority(in.Predictions),
		Diagnostics:       in.Diagnostics,
		Dropped:           in.Dropped,
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":         in.RunID,
		"items":          report.Summary.TotalItems,
		"total_quantity": report.Summary.TotalPredictedQuantity,
		"avg_confidence": report.Summary.AverageConfidence,
		"high_priority":  len(report.HighPriorityItems),
	}).Info("Forecast report assembled")
	return report
}

func (r *ReportingAggregator) summarize(in ReportInput) models.ExecutiveSummary {
	s := models.ExecutiveSummary{
		RunID:               in.RunID,
		TargetPeriod:        in.TargetPeriod,
		GeneratedAt:         in.GeneratedAt,
		TotalItems:          len(in.Predictions),
		PatternDistribution: make(map[models.PatternLabel]int),
		RiskDistribution: map[models.RiskLevel]int{
			models.RiskLow:    0,
			models.RiskMedium: 0,
			models.RiskHigh:   0,
		},
		TotalEstimatedValue: decimal.Zero,
	}

	var confidenceSum float64
	for _, p := range in.Predictions {
		s.TotalPredictedQuantity += p.FinalMonthlyQuantity
		confidenceSum += p.Confidence

		switch {
		case p.Confidence > highConfidenceCutoff:
			s.Confidence.High++
		case p.Confidence >= mediumConfidenceCutoff:
			s.Confidence.Medium++
		default:
			s.Confidence.Low++
		}

		s.PatternDistribution[p.Features.DominantBatchPattern]++
		s.RiskDistribution[p.RiskLevel]++
		s.TotalEstimatedValue = s.TotalEstimatedValue.Add(p.EstimatedValue)

		if p.Features.IsCritical {
			s.CriticalItems++
		}
		if p.Features.IsSingleBatchItem {
			s.SingleBatchItems++
		}
		if p.FinalMonthlyQuantity > highVolumeQuantity {
			s.HighVolumeItems++
		}
	}
	if len(in.Predictions) > 0 {
		s.AverageConfidence = roundTo(confidenceSum/float64(len(in.Predictions)), 1)
	}
	return s
}

// EstimatedValue prices a quantity at the item's unit price.
func EstimatedValue(quantity int, price float64) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Mul(decimal.NewFromFloat(price))
}

func patternAnalysis(predictions []models.Prediction) []models.PatternAnalysisRow {
	groups := make(map[models.PatternLabel][]models.Prediction)
	for _, p := range predictions {
		groups[p.Features.DominantBatchPattern] = append(groups[p.Features.DominantBatchPattern], p)
	}

	rows := make([]models.PatternAnalysisRow, 0, len(groups))
	for label, group := range groups {
		row := models.PatternAnalysisRow{Pattern: label, Items: len(group)}
		var conf, price, freq, batch float64
		for _, p := range group {
			row.TotalQuantity += p.FinalMonthlyQuantity
			conf += p.Confidence
			price += p.Features.Price
			freq += p.Features.AvgWithdrawalFrequency
			batch += p.Features.AvgBatchSize
		}
		n := float64(len(group))
		row.MeanQuantity = float64(row.TotalQuantity) / n
		row.MeanConfidence = conf / n
		row.MeanPrice = price / n
		row.MeanWithdrawalFrequency = freq / n
		row.MeanBatchSize = batch / n
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Pattern < rows[j].Pattern })
	return rows
}

// largestByQuantity returns up to n matching predictions ordered by quantity,
// largest first. Equal quantities keep input order.
func largestByQuantity(predictions []models.Prediction, n int, keep func(models.Prediction) bool) []models.Prediction {
	var out []models.Prediction
	for _, p := range predictions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalMonthlyQuantity > out[j].FinalMonthlyQuantity
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func riskAnalysis(predictions []models.Prediction) models.RiskAnalysis {
	return models.RiskAnalysis{
		PatternRiskItems: largestByQuantity(predictions, patternRiskListSize, func(p models.Prediction) bool {
			return p.Features.WithdrawalPatternRisk
		}),
		HighRiskItems: largestByQuantity(predictions, highRiskListSize, func(p models.Prediction) bool {
			return p.RiskLevel == models.RiskHigh && p.FinalMonthlyQuantity > highRiskQuantity
		}),
		SingleBatchItems: largestByQuantity(predictions, singleBatchListSize, func(p models.Prediction) bool {
			return p.Features.IsSingleBatchItem
		}),
	}
}

func highPriority(predictions []models.Prediction) []models.Prediction {
	return largestByQuantity(predictions, 0, func(p models.Prediction) bool {
		return p.RiskLevel == models.RiskHigh ||
			p.FinalMonthlyQuantity > highVolumeQuantity ||
			p.Features.IsCritical ||
			p.Features.WithdrawalPatternRisk
	})
}
