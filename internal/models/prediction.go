package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the procurement risk attached to a prediction.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// PredictionQuality grades how much a prediction can be trusted.
type PredictionQuality string

const (
	QualityExcellent PredictionQuality = "Excellent"
	QualityGood      PredictionQuality = "Good"
	QualityFair      PredictionQuality = "Fair"
	QualityPoor      PredictionQuality = "Poor"
)

// NoAdjustments is reported when the safety net left a prediction untouched.
const NoAdjustments = "No adjustments"

// ModelOutputs holds one value per ensemble member.
type ModelOutputs struct {
	RandomForest     float64 `json:"random_forest"`
	GradientBoosting float64 `json:"gradient_boosting"`
	Ridge            float64 `json:"ridge"`
	LinearRegression float64 `json:"linear_regression"`
}

// Values returns the outputs in ensemble member order.
func (m ModelOutputs) Values() []float64 {
	return []float64{m.RandomForest, m.GradientBoosting, m.Ridge, m.LinearRegression}
}

// EnsembleWeights are the blending weights for ModelOutputs.
type EnsembleWeights struct {
	RandomForest     float64 `json:"random_forest"`
	GradientBoosting float64 `json:"gradient_boosting"`
	Ridge            float64 `json:"ridge"`
	LinearRegression float64 `json:"linear_regression"`
}

// Sum returns the total weight.
func (w EnsembleWeights) Sum() float64 {
	return w.RandomForest + w.GradientBoosting + w.Ridge + w.LinearRegression
}

// Normalize scales the weights to sum to one.
func (w EnsembleWeights) Normalize() EnsembleWeights {
	total := w.Sum()
	if total <= 0 {
		return EnsembleWeights{RandomForest: 0.25, GradientBoosting: 0.25, Ridge: 0.25, LinearRegression: 0.25}
	}
	return EnsembleWeights{
		RandomForest:     w.RandomForest / total,
		GradientBoosting: w.GradientBoosting / total,
		Ridge:            w.Ridge / total,
		LinearRegression: w.LinearRegression / total,
	}
}

// Blend returns the weighted sum of outputs.
func (w EnsembleWeights) Blend(out ModelOutputs) float64 {
	return w.RandomForest*out.RandomForest +
		w.GradientBoosting*out.GradientBoosting +
		w.Ridge*out.Ridge +
		w.LinearRegression*out.LinearRegression
}

// ModelMonthly holds the per-model monthly equivalents (daily rate x 30).
type ModelMonthly struct {
	RandomForest     int `json:"random_forest"`
	GradientBoosting int `json:"gradient_boosting"`
	Ridge            int `json:"ridge"`
	LinearRegression int `json:"linear_regression"`
}

// Prediction is the final per-item result row.
type Prediction struct {
	RunID        string    `json:"run_id" db:"run_id"`
	ItemName     string    `json:"item_name" db:"item_name"`
	UOM          string    `json:"uom" db:"uom"`
	Category     string    `json:"category" db:"category"`
	TargetPeriod string    `json:"target_period" db:"target_period"`
	GeneratedAt  time.Time `json:"generated_at" db:"generated_at"`

	ModelPredictions ModelOutputs    `json:"model_predictions"`
	ModelMonthly     ModelMonthly    `json:"model_monthly"`
	Weights          EnsembleWeights `json:"weights"`
	EnsembleRate     float64         `json:"ensemble_daily_rate" db:"ensemble_daily_rate"`
	CorrectedRate    float64         `json:"corrected_daily_rate" db:"corrected_daily_rate"`

	FinalMonthlyQuantity int               `json:"final_monthly_quantity" db:"final_monthly_quantity"`
	Confidence           float64           `json:"confidence" db:"confidence"`
	RiskScore            int               `json:"risk_score" db:"risk_score"`
	RiskLevel            RiskLevel         `json:"risk_level" db:"risk_level"`
	Adjustments          []string          `json:"adjustments"`
	Recommendation       string            `json:"recommendation" db:"recommendation"`
	Quality              PredictionQuality `json:"prediction_quality" db:"prediction_quality"`
	EstimatedValue       decimal.Decimal   `json:"estimated_value" db:"estimated_value"`

	Features FeatureVector `json:"features"`
}

// AdjustmentsText renders the applied adjustments as a single cell value.
func (p Prediction) AdjustmentsText() string {
	if len(p.Adjustments) == 0 {
		return NoAdjustments
	}
	return strings.Join(p.Adjustments, "; ")
}
