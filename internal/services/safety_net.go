package services

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
)

// Correction is the safety net's output for one item.
type Correction struct {
	Weights       models.EnsembleWeights
	EnsembleRate  float64
	CorrectedRate float64
	// Confidence is clamped to the configured range but not rounded.
	Confidence  float64
	Adjustments []string
}

// SafetyNetCorrector bounds a raw ensemble prediction with domain rules and
// scores how far it can be trusted.
type SafetyNetCorrector struct {
	policy         WeightingPolicy
	baseConfidence float64
	floor          float64
	ceiling        float64
}

// NewSafetyNetCorrector creates a corrector from the forecast settings.
func NewSafetyNetCorrector(cfg config.ForecastConfig) *SafetyNetCorrector {
	return &SafetyNetCorrector{
		baseConfidence: cfg.BaseConfidence,
		floor:          cfg.ConfidenceFloor,
		ceiling:        cfg.ConfidenceCeiling,
	}
}

// Correct blends the model outputs and applies the adjustment rules in
// order. It never fails for a well-formed feature vector.
func (c *SafetyNetCorrector) Correct(f models.FeatureVector, out models.ModelOutputs) Correction {
	weights := c.policy.Weights(f.DominantBatchPattern, f.AvgConsumptionPredictability)
	ensemble := weights.Blend(out)
	rate := ensemble
	confidence := c.baseConfidence
	var adjustments []string

	if f.DominantBatchPattern.IsIrregularOrUnknown() {
		rate *= 0.85
		confidence *= 0.8
		adjustments = append(adjustments, "Irregular batch pattern adjustment (-15%)")
	}

	if f.IsSingleBatchItem && rate > f.AvgDailyRate*2.0 {
		rate = f.AvgDailyRate * 1.5
		confidence *= 0.9
		adjustments = append(adjustments, "Single batch item conservative cap")
	}

	if rate < 0.01 && f.AvgDailyRate > 0 {
		floor := math.Max(math.Max(f.AvgDailyRate*0.3, f.RecentWeightedDailyRate*0.5), 0.03)
		rate = floor
		confidence *= 0.7
		adjustments = append(adjustments, fmt.Sprintf("Zero prediction safety net (%.3f/day)", floor))
	}

	if f.BatchSizeVariability > 1.0 {
		factor := math.Max(0.8, 1-(f.BatchSizeVariability-1.0)*0.1)
		rate *= factor
		confidence *= 0.85
		adjustments = append(adjustments, fmt.Sprintf("High batch volatility adjustment (-%.0f%%)", (1-factor)*100))
	}

	if f.WithdrawalPatternRisk {
		rate *= 0.9
		confidence *= 0.8
		adjustments = append(adjustments, "Withdrawal pattern risk adjustment (-10%)")
	}

	if f.IsCritical {
		rate *= 1.1
		confidence *= 1.05
		adjustments = append(adjustments, "Critical item buffer (+10%)")
	}
	if f.IsSeasonal {
		rate *= 0.95
		confidence *= 0.98
		adjustments = append(adjustments, "Seasonal item adjustment (-5%)")
	}

	if math.Abs(f.DailyRateTrend) > f.AvgDailyRate*0.1 {
		factor := 1 + clip(f.DailyRateTrend/(f.AvgDailyRate+0.01), -0.2, 0.2)
		rate *= factor
		direction := "decreasing"
		if f.DailyRateTrend > 0 {
			direction = "increasing"
		}
		adjustments = append(adjustments, fmt.Sprintf("Consumption %s trend (%+.0f%%)", direction, (factor-1)*100))
	}

	return Correction{
		Weights:       weights,
		EnsembleRate:  ensemble,
		CorrectedRate: rate,
		Confidence:    c.refineConfidence(confidence, f, out),
		Adjustments:   adjustments,
	}
}

// confidenceFactor scales confidence by factor^(weight-1).
type confidenceFactor struct {
	value  float64
	weight float64
}

func (c *SafetyNetCorrector) refineConfidence(confidence float64, f models.FeatureVector, out models.ModelOutputs) float64 {
	factors := []confidenceFactor{
		{f.BatchPatternStability, 1.15},
		{f.DataQuality, 1.25},
		{f.AvgConsumptionPredictability, 1.2},
		{math.Min(1.0, 1/(EnsembleVariance(out)+0.1)), 1.1},
		{math.Min(1.0, float64(f.MonthsAvailable)/4), 1.1},
	}
	for _, cf := range factors {
		confidence *= math.Pow(cf.value, cf.weight-1)
	}
	return clip(confidence, c.floor, c.ceiling)
}

// EnsembleVariance is the relative spread of the member predictions.
func EnsembleVariance(out models.ModelOutputs) float64 {
	values := out.Values()
	mean, std := stat.PopMeanStdDev(values, nil)
	return std / (mean + 0.001)
}

// MonthlyQuantity converts a daily rate to a whole monthly quantity.
func MonthlyQuantity(dailyRate float64) int {
	return roundHalfEven(math.Max(0, dailyRate*daysPerPeriod))
}

// RiskScore adds up the risk contributions for one item. monthly is the
// unrounded corrected monthly quantity.
func RiskScore(monthly, confidence float64, f models.FeatureVector) int {
	score := 0

	switch {
	case confidence < 35:
		score += 4
	case confidence < 55:
		score += 2
	case confidence < 70:
		score++
	}

	switch {
	case f.DominantBatchPattern.IsIrregularOrUnknown():
		score += 3
	case f.DominantBatchPattern.IsSingle():
		score += 2
	}

	switch {
	case monthly > 500:
		score += 2
	case monthly > 200:
		score++
	}

	if f.WithdrawalPatternRisk {
		score += 2
	}
	if f.BatchSizeRisk {
		score++
	}

	switch {
	case f.DataQuality < 0.4:
		score += 2
	case f.DataQuality < 0.6:
		score++
	}
	return score
}

// RiskLevelFor buckets a risk score.
func RiskLevelFor(score int) models.RiskLevel {
	switch {
	case score >= 6:
		return models.RiskHigh
	case score >= 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Recommendation renders the procurement advice for one item.
func Recommendation(monthly, confidence float64, risk models.RiskLevel, f models.FeatureVector) string {
	base := roundHalfEven(monthly)

	switch {
	case f.IsCritical:
		if confidence > 65 {
			buffer := int(float64(base) * 0.3)
			return fmt.Sprintf("Order %d units (%d + %d critical buffer)", base+buffer, base, buffer)
		}
		buffer := int(float64(base) * 0.5)
		return fmt.Sprintf("Order %d units (%d + %d critical high-risk buffer)", base+buffer, base, buffer)
	case risk == models.RiskLow && confidence > 75:
		return fmt.Sprintf("Order %d units (high confidence, batch pattern well understood)", base)
	case risk == models.RiskMedium || (risk == models.RiskLow && confidence < 65):
		buffer := max(int(float64(base)*0.25), 3)
		return fmt.Sprintf("Order %d units (%d + %d medium risk buffer)", base+buffer, base, buffer)
	default:
		buffer := max(int(float64(base)*0.4), 5)
		return fmt.Sprintf("Order %d units (%d + %d high risk buffer) (Pattern: %s)", base+buffer, base, buffer, f.DominantBatchPattern)
	}
}

// QualityFor grades a prediction from its rounded confidence and risk.
func QualityFor(confidence float64, risk models.RiskLevel, f models.FeatureVector) models.PredictionQuality {
	switch {
	case confidence > 75 && risk == models.RiskLow &&
		f.DataQuality > 0.7 && f.BatchPatternStability > 0.6 && f.AvgConsumptionPredictability > 0.6:
		return models.QualityExcellent
	case confidence > 60 && (risk == models.RiskLow || risk == models.RiskMedium) &&
		f.DataQuality > 0.5 && f.AvgConsumptionPredictability > 0.4:
		return models.QualityGood
	case confidence > 45 && f.DataQuality > 0.3:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}
