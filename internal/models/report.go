package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfidenceDistribution buckets predictions by confidence.
type ConfidenceDistribution struct {
	High   int `json:"high"`   // > 70
	Medium int `json:"medium"` // 50..70
	Low    int `json:"low"`    // < 50
}

// ExecutiveSummary is the headline view of one forecast run.
type ExecutiveSummary struct {
	RunID                  string                 `json:"run_id"`
	TargetPeriod           string                 `json:"target_period"`
	GeneratedAt            time.Time              `json:"generated_at"`
	TotalItems             int                    `json:"total_items"`
	TotalPredictedQuantity int                    `json:"total_predicted_quantity"`
	AverageConfidence      float64                `json:"average_confidence"`
	Confidence             ConfidenceDistribution `json:"confidence_distribution"`
	PatternDistribution    map[PatternLabel]int   `json:"pattern_distribution"`
	RiskDistribution       map[RiskLevel]int      `json:"risk_distribution"`
	TotalEstimatedValue    decimal.Decimal        `json:"total_estimated_value"`
	CriticalItems          int                    `json:"critical_items"`
	SingleBatchItems       int                    `json:"single_batch_items"`
	HighVolumeItems        int                    `json:"high_volume_items"`
}

// PatternAnalysisRow aggregates predictions sharing a dominant pattern.
type PatternAnalysisRow struct {
	Pattern                 PatternLabel `json:"pattern"`
	Items                   int          `json:"items"`
	TotalQuantity           int          `json:"total_quantity"`
	MeanQuantity            float64      `json:"mean_quantity"`
	MeanConfidence          float64      `json:"mean_confidence"`
	MeanPrice               float64      `json:"mean_price"`
	MeanWithdrawalFrequency float64      `json:"mean_withdrawal_frequency"`
	MeanBatchSize           float64      `json:"mean_batch_size"`
}

// RiskAnalysis lists the items that need a closer look.
type RiskAnalysis struct {
	PatternRiskItems []Prediction `json:"pattern_risk_items"`
	HighRiskItems    []Prediction `json:"high_risk_items"`
	SingleBatchItems []Prediction `json:"single_batch_items"`
}

// ModelDiagnostics reports how the ensemble members did on the held-out split.
type ModelDiagnostics struct {
	MAE             ModelOutputs `json:"mae"`
	TrainingSamples int          `json:"training_samples"`
	TestSamples     int          `json:"test_samples"`
	TotalSamples    int          `json:"total_samples"`
}

// ForecastReport bundles everything the export layer writes for one run.
type ForecastReport struct {
	Summary           ExecutiveSummary     `json:"summary"`
	Predictions       []Prediction         `json:"predictions"`
	PatternAnalysis   []PatternAnalysisRow `json:"pattern_analysis"`
	Risk              RiskAnalysis         `json:"risk_analysis"`
	HighPriorityItems []Prediction         `json:"high_priority_items"`
	Diagnostics       ModelDiagnostics     `json:"diagnostics"`
	Dropped           []DroppedRecord      `json:"dropped,omitempty"`
}
