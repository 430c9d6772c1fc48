package services

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
)

const (
	seasonalItemDiscount = 0.8
	criticalItemPremium  = 1.1
	// minEligiblePeriods is the history an item needs before it is forecast.
	minEligiblePeriods = 2
)

// ItemHistories holds every item's summaries across periods. Order lists
// item names by first appearance so output keeps input order.
type ItemHistories struct {
	Order   []string
	ByItem  map[string][]models.WithdrawalSummary
	Periods []string
}

// GroupHistories collects each item's summaries in period order.
func GroupHistories(tables []models.PeriodTable) ItemHistories {
	h := ItemHistories{ByItem: make(map[string][]models.WithdrawalSummary)}
	for _, table := range tables {
		h.Periods = append(h.Periods, table.Label)
		for _, s := range table.Summaries {
			if _, ok := h.ByItem[s.ItemName]; !ok {
				h.Order = append(h.Order, s.ItemName)
			}
			h.ByItem[s.ItemName] = append(h.ByItem[s.ItemName], s)
		}
	}
	return h
}

// FeatureBuilder aggregates an item's period history into a FeatureVector.
type FeatureBuilder struct {
	cfg    config.ForecastConfig
	logger *logrus.Logger
}

// NewFeatureBuilder creates a feature builder.
func NewFeatureBuilder(cfg config.ForecastConfig, logger *logrus.Logger) *FeatureBuilder {
	return &FeatureBuilder{cfg: cfg, logger: logger}
}

func (b *FeatureBuilder) seasonalFactor(label string) float64 {
	if f, ok := b.cfg.SeasonalFactor(label); ok && f > 0 {
		return f
	}
	return 1.0
}

// Build computes the feature vector for a chronologically ordered history.
// It returns false for an empty history.
func (b *FeatureBuilder) Build(history []models.WithdrawalSummary) (models.FeatureVector, bool) {
	n := len(history)
	if n == 0 {
		return models.FeatureVector{}, false
	}
	latest := history[n-1]

	rates := make([]float64, n)
	events := make([]float64, n)
	batches := make([]float64, n)
	regularity := make([]float64, n)
	predictability := make([]float64, n)
	positions := make([]float64, n)
	for i, s := range history {
		rates[i] = s.DailyRate
		events[i] = float64(s.WithdrawalEvents)
		batches[i] = s.AverageBatchSize
		regularity[i] = s.WithdrawalRegularity
		predictability[i] = s.ConsumptionPredictability
		positions[i] = float64(s.PeriodIndex)
	}

	f := models.FeatureVector{
		ItemName:           latest.ItemName,
		UOM:                latest.UOM,
		Category:           latest.Category,
		Price:              latest.Price,
		MonthsAvailable:    n,
		IsCritical:         latest.IsCritical,
		IsSeasonal:         latest.IsSeasonal,
		CategoryMultiplier: latest.CategoryMultiplier,
	}

	f.AvgDailyRate = calculateMeanFloat64(rates)
	f.MedianDailyRate = calculateMedian(rates)
	f.StdDailyRate = calculatePopStdDev(rates)
	f.CVDailyRate = f.StdDailyRate / (f.AvgDailyRate + 0.1)

	target := b.seasonalFactor(b.cfg.TargetPeriod)
	adjusted := make([]float64, n)
	for i, s := range history {
		v := s.DailyRate * target / b.seasonalFactor(s.Period)
		if s.IsSeasonal {
			v *= seasonalItemDiscount
		}
		if s.IsCritical {
			v *= criticalItemPremium
		}
		adjusted[i] = v
	}
	f.SeasonalAdjustedDailyRate = calculateMeanFloat64(adjusted)

	if n > 2 {
		f.DailyRateTrend = calculateSlope(positions, rates)
		// Consecutive observations, whatever the gap between their periods.
		f.RecentTrend = rates[n-1] - rates[n-2]
	}

	f.LastMonthDailyRate = rates[n-1]
	if n >= 2 {
		f.RecentWeightedDailyRate = 0.3*rates[n-2] + 0.7*rates[n-1]
		f.Last2MonthsAvgDailyRate = calculateMeanFloat64(rates[n-2:])
		f.Momentum = (rates[n-1] - rates[n-2]) / (rates[n-2] + 0.1)
	} else {
		f.RecentWeightedDailyRate = rates[0]
		f.Last2MonthsAvgDailyRate = rates[0]
	}

	f.AvgWithdrawalFrequency = calculateMeanFloat64(events)
	f.AvgBatchSize = calculateMeanFloat64(batches)
	f.BatchSizeVariability = calculatePopStdDev(batches) / (f.AvgBatchSize + 0.1)
	f.AvgWithdrawalRegularity = calculateMeanFloat64(regularity)
	f.AvgConsumptionPredictability = calculateMeanFloat64(predictability)
	f.DominantBatchPattern, f.BatchPatternStability = dominantPattern(history)

	f.MinDailyRate = floats.Min(rates)
	f.MaxDailyRate = floats.Max(rates)
	f.DailyRateRange = f.MaxDailyRate - f.MinDailyRate
	f.DailyRateQ75 = calculatePercentile(rates, 75)
	f.DailyRateQ25 = calculatePercentile(rates, 25)

	f.IsLowVolume = f.AvgDailyRate*daysPerPeriod <= b.cfg.LowVolumeThreshold
	f.IsHighVolatility = f.CVDailyRate > b.cfg.VolatilityThreshold
	f.IsSingleBatchItem = f.AvgWithdrawalFrequency <= 1.5
	f.IsFrequentSmallBatch = f.AvgWithdrawalFrequency >= 20

	f.DataQuality = dataQuality(f.BatchPatternStability, n, f.AvgConsumptionPredictability, f.CVDailyRate)

	if rates[0] != 0 {
		f.GrowthRate = (rates[n-1] - rates[0]) / (rates[0] + 0.1)
	}
	f.RecentVsHistorical = f.RecentWeightedDailyRate / (f.AvgDailyRate + 0.1)

	f.WithdrawalPatternRisk = f.BatchPatternStability < 0.5 || f.AvgConsumptionPredictability < 0.4
	f.BatchSizeRisk = f.BatchSizeVariability > 1.0

	return f, true
}

// Eligible reports whether a full-history vector may be trained on and
// forecast.
func (b *FeatureBuilder) Eligible(f models.FeatureVector) bool {
	return f.MonthsAvailable >= minEligiblePeriods && f.DataQuality > b.cfg.MinDataQuality
}

// BuildAll builds full-history vectors for every eligible item, in first
// appearance order. Ineligible items are reported as dropped.
func (b *FeatureBuilder) BuildAll(h ItemHistories) ([]models.FeatureVector, []models.DroppedRecord) {
	var out []models.FeatureVector
	var dropped []models.DroppedRecord

	for _, item := range h.Order {
		history := h.ByItem[item]
		if len(history) < minEligiblePeriods {
			dropped = append(dropped, models.DroppedRecord{Stage: "features", Item: item, Reason: "fewer than 2 periods of history"})
			continue
		}
		f, _ := b.Build(history)
		if !b.Eligible(f) {
			dropped = append(dropped, models.DroppedRecord{Stage: "features", Item: item, Reason: "data quality below threshold"})
			b.logger.WithFields(logrus.Fields{
				"item":         item,
				"data_quality": f.DataQuality,
			}).Debug("Excluding low quality item")
			continue
		}
		out = append(out, f)
	}

	b.logger.WithFields(logrus.Fields{
		"eligible": len(out),
		"excluded": len(dropped),
	}).Info("Built feature vectors")
	return out, dropped
}

// dominantPattern returns the most frequent label and its share. Ties go to
// the label seen first.
func dominantPattern(history []models.WithdrawalSummary) (models.PatternLabel, float64) {
	counts := make(map[models.PatternLabel]int, len(history))
	var order []models.PatternLabel
	for _, s := range history {
		if counts[s.Pattern] == 0 {
			order = append(order, s.Pattern)
		}
		counts[s.Pattern]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best, float64(counts[best]) / float64(len(history))
}

func dataQuality(stability float64, periods int, predictability, cv float64) float64 {
	q := 0.4*stability +
		0.2*math.Min(float64(periods)/5, 1) +
		0.3*predictability +
		0.1*(1-math.Min(cv, 1.5)/1.5)
	return math.Min(q, 1.0)
}
