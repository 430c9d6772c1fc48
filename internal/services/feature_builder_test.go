package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
)

var testPeriods = []string{"Jan", "Feb", "Mar", "Apr", "May"}

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		Periods:      testPeriods,
		TargetPeriod: "Jun",
		SeasonalFactors: map[string]float64{
			"jan": 1.0, "feb": 0.95, "mar": 1.1, "apr": 1.05, "may": 1.0, "jun": 0.85,
		},
		LowVolumeThreshold:  10,
		VolatilityThreshold: 1.5,
		MinDataQuality:      0.2,
		MinTrainingSamples:  15,
		BaseConfidence:      70,
		ConfidenceFloor:     15,
		ConfidenceCeiling:   95,
		RandomSeed:          42,
		TestFraction:        0.2,
	}
}

func newTestFeatureBuilder() *FeatureBuilder {
	return NewFeatureBuilder(testForecastConfig(), logging.NewDiscardLogger())
}

// summary builds a regular-weekly summary for a period with the given rate.
func summary(item string, period int, rate float64) models.WithdrawalSummary {
	return models.WithdrawalSummary{
		ItemName:                  item,
		Period:                    testPeriods[period-1],
		PeriodIndex:               period,
		Price:                     float64(period),
		TotalConsumption:          rate * 30,
		WithdrawalEvents:          4,
		AverageBatchSize:          rate * 30 / 4,
		DailyRate:                 rate,
		WithdrawalRegularity:      0.9,
		ConsumptionPredictability: 0.8,
		Pattern:                   models.PatternRegularWeekly,
		CategoryMultiplier:        1.0,
	}
}

func TestFeatureBuilder_RateStatistics(t *testing.T) {
	b := newTestFeatureBuilder()
	history := []models.WithdrawalSummary{summary("Gloves", 1, 1), summary("Gloves", 2, 2), summary("Gloves", 3, 3)}

	f, ok := b.Build(history)
	require.True(t, ok)

	assert.Equal(t, "Gloves", f.ItemName)
	assert.Equal(t, 3.0, f.Price, "latest price")
	assert.Equal(t, 3, f.MonthsAvailable)
	assert.InDelta(t, 2.0, f.AvgDailyRate, 1e-12)
	assert.InDelta(t, 2.0, f.MedianDailyRate, 1e-12)
	assert.InDelta(t, 0.816496580927726, f.StdDailyRate, 1e-12)
	assert.InDelta(t, 0.816496580927726/2.1, f.CVDailyRate, 1e-12)
	assert.InDelta(t, 1.0, f.DailyRateTrend, 1e-12)
	assert.InDelta(t, 1.0, f.RecentTrend, 1e-12)
	assert.InDelta(t, 0.3*2+0.7*3, f.RecentWeightedDailyRate, 1e-12)
	assert.Equal(t, 3.0, f.LastMonthDailyRate)
	assert.InDelta(t, 2.5, f.Last2MonthsAvgDailyRate, 1e-12)
	assert.Equal(t, 1.0, f.MinDailyRate)
	assert.Equal(t, 3.0, f.MaxDailyRate)
	assert.Equal(t, 2.0, f.DailyRateRange)
	assert.InDelta(t, 2.5, f.DailyRateQ75, 1e-12)
	assert.InDelta(t, 1.5, f.DailyRateQ25, 1e-12)
	assert.InDelta(t, 2/1.1, f.GrowthRate, 1e-12)
	assert.InDelta(t, 1/2.1, f.Momentum, 1e-12)
	assert.InDelta(t, 2.7/2.1, f.RecentVsHistorical, 1e-12)
}

func TestFeatureBuilder_RecentTrendAcrossGap(t *testing.T) {
	b := newTestFeatureBuilder()
	history := []models.WithdrawalSummary{summary("Tape", 1, 1), summary("Tape", 2, 1), summary("Tape", 4, 3)}

	f, ok := b.Build(history)
	require.True(t, ok)

	assert.InDelta(t, 2.0, f.RecentTrend, 1e-12, "last minus previous observation")
	assert.InDelta(t, 2.0/1.1, f.Momentum, 1e-12)
}

func TestFeatureBuilder_SeasonalAdjustment(t *testing.T) {
	b := newTestFeatureBuilder()

	plain := []models.WithdrawalSummary{summary("Soap", 1, 1), summary("Soap", 3, 1.1)}
	f, _ := b.Build(plain)
	expected := (1*0.85/1.0 + 1.1*0.85/1.1) / 2
	assert.InDelta(t, expected, f.SeasonalAdjustedDailyRate, 1e-12)

	flagged := []models.WithdrawalSummary{summary("Ice Cream", 1, 1)}
	flagged[0].IsSeasonal = true
	flagged[0].IsCritical = true
	f, _ = b.Build(flagged)
	assert.InDelta(t, 0.85*0.8*1.1, f.SeasonalAdjustedDailyRate, 1e-12)
}

func TestFeatureBuilder_ShortHistories(t *testing.T) {
	b := newTestFeatureBuilder()

	_, ok := b.Build(nil)
	assert.False(t, ok)

	f, ok := b.Build([]models.WithdrawalSummary{summary("Soap", 2, 0.4)})
	require.True(t, ok)
	assert.Equal(t, 0.4, f.RecentWeightedDailyRate)
	assert.Equal(t, 0.4, f.Last2MonthsAvgDailyRate)
	assert.Equal(t, 0.0, f.Momentum)
	assert.Equal(t, 0.0, f.DailyRateTrend)

	f, _ = b.Build([]models.WithdrawalSummary{summary("Soap", 1, 1), summary("Soap", 2, 3)})
	assert.Equal(t, 0.0, f.DailyRateTrend, "trend needs more than two periods")
	assert.Equal(t, 0.0, f.RecentTrend)

	f, _ = b.Build([]models.WithdrawalSummary{summary("Soap", 1, 0), summary("Soap", 2, 3)})
	assert.Equal(t, 0.0, f.GrowthRate, "growth is zero from a zero base")
}

func TestFeatureBuilder_DominantPattern(t *testing.T) {
	history := []models.WithdrawalSummary{
		summary("Soap", 1, 1), summary("Soap", 2, 1), summary("Soap", 3, 1), summary("Soap", 4, 1),
	}
	history[0].Pattern = models.PatternIrregular
	history[1].Pattern = models.PatternSingleLargeBatch
	history[2].Pattern = models.PatternSingleLargeBatch
	history[3].Pattern = models.PatternIrregular

	label, stability := dominantPattern(history)
	assert.Equal(t, models.PatternIrregular, label, "tie goes to the first seen")
	assert.Equal(t, 0.5, stability)

	history[3].Pattern = models.PatternSingleLargeBatch
	label, stability = dominantPattern(history)
	assert.Equal(t, models.PatternSingleLargeBatch, label)
	assert.Equal(t, 0.75, stability)
}

func TestFeatureBuilder_FlagsAndQuality(t *testing.T) {
	b := newTestFeatureBuilder()

	low := []models.WithdrawalSummary{summary("Pen", 1, 0.1), summary("Pen", 2, 0.2)}
	for i := range low {
		low[i].WithdrawalEvents = 1
		low[i].ConsumptionPredictability = 0.3
	}
	f, _ := b.Build(low)
	assert.True(t, f.IsLowVolume)
	assert.True(t, f.IsSingleBatchItem)
	assert.False(t, f.IsFrequentSmallBatch)
	assert.True(t, f.WithdrawalPatternRisk, "predictability below 0.4")

	cv := f.CVDailyRate
	expectedDQ := 0.4*1 + 0.2*2.0/5 + 0.3*0.3 + 0.1*(1-cv/1.5)
	assert.InDelta(t, expectedDQ, f.DataQuality, 1e-12)

	volatile := []models.WithdrawalSummary{
		summary("Tape", 1, 0), summary("Tape", 2, 0), summary("Tape", 3, 0), summary("Tape", 4, 9),
	}
	for i := range volatile {
		volatile[i].WithdrawalEvents = 25
	}
	volatile[3].AverageBatchSize = 100
	f, _ = b.Build(volatile)
	assert.True(t, f.IsHighVolatility)
	assert.True(t, f.IsFrequentSmallBatch)
	assert.True(t, f.BatchSizeRisk)
	assert.LessOrEqual(t, f.DataQuality, 1.0)
}

func TestFeatureBuilder_NumericOrder(t *testing.T) {
	f, _ := newTestFeatureBuilder().Build([]models.WithdrawalSummary{summary("Soap", 1, 1), summary("Soap", 2, 2)})
	row := f.Numeric()
	require.Len(t, row, len(models.FeatureNames))
	assert.Equal(t, f.Price, row[0])
	assert.Equal(t, 2.0, row[1])
	assert.Equal(t, f.AvgDailyRate, row[2])
}

func TestFeatureBuilder_BuildAll(t *testing.T) {
	b := newTestFeatureBuilder()
	tables := []models.PeriodTable{
		{Label: "Jan", Index: 1, Summaries: []models.WithdrawalSummary{summary("Soap", 1, 1), summary("Gloves", 1, 2)}},
		{Label: "Feb", Index: 2, Summaries: []models.WithdrawalSummary{summary("Gloves", 2, 2), summary("Soap", 2, 1), summary("Tape", 2, 1)}},
	}

	h := GroupHistories(tables)
	assert.Equal(t, []string{"Soap", "Gloves", "Tape"}, h.Order)
	assert.Equal(t, []string{"Jan", "Feb"}, h.Periods)

	vectors, dropped := b.BuildAll(h)
	require.Len(t, vectors, 2)
	assert.Equal(t, "Soap", vectors[0].ItemName)
	assert.Equal(t, "Gloves", vectors[1].ItemName)
	require.Len(t, dropped, 1)
	assert.Equal(t, "Tape", dropped[0].Item)
}

func TestFeatureBuilder_ExcludesLowQuality(t *testing.T) {
	b := newTestFeatureBuilder()
	history := []models.WithdrawalSummary{summary("Dust", 1, 0), summary("Dust", 2, 5)}
	history[0].Pattern = models.PatternNoConsumption
	history[1].Pattern = models.PatternIrregular
	for i := range history {
		history[i].ConsumptionPredictability = 0
	}
	// stability 0.5, two periods, zero predictability, cv 2.5/2.6
	f, _ := b.Build(history)
	assert.InDelta(t, 0.2+0.08+0.1*(1-(2.5/2.6)/1.5), f.DataQuality, 1e-12)

	b.cfg.MinDataQuality = 0.35
	vectors, dropped := b.BuildAll(GroupHistories([]models.PeriodTable{
		{Label: "Jan", Index: 1, Summaries: history[:1]},
		{Label: "Feb", Index: 2, Summaries: history[1:]},
	}))
	assert.Empty(t, vectors)
	assert.Len(t, dropped, 1)
}

// walkForwardTables builds five periods for items whose rate grows linearly.
func walkForwardTables(items int) []models.PeriodTable {
	tables := make([]models.PeriodTable, len(testPeriods))
	for p := range testPeriods {
		tables[p] = models.PeriodTable{Label: testPeriods[p], Index: p + 1}
		for i := 0; i < items; i++ {
			rate := float64(i+1) * (1 + 0.1*float64(p))
			tables[p].Summaries = append(tables[p].Summaries, summary(fmt.Sprintf("Item %02d", i), p+1, rate))
		}
	}
	return tables
}

func TestTrainingSetBuilder_WalkForward(t *testing.T) {
	b := newTestFeatureBuilder()
	tables := walkForwardTables(5)
	eligible, _ := b.BuildAll(GroupHistories(tables))
	require.Len(t, eligible, 5)

	builder := NewTrainingSetBuilder(b, 15, logging.NewDiscardLogger())
	samples, err := builder.Build(context.Background(), tables, eligible)
	require.NoError(t, err)

	// 4 forward steps x 5 items
	require.Len(t, samples, 20)
	assert.Equal(t, "Feb", samples[0].TargetPeriod)
	assert.Equal(t, "Item 00", samples[0].ItemName)
	assert.InDelta(t, 1.1, samples[0].Target, 1e-12)
	assert.Equal(t, 1.0, samples[0].Features[1], "one month of prefix history")
	assert.Equal(t, "May", samples[19].TargetPeriod)
	assert.Equal(t, 4.0, samples[19].Features[1])

	X, y := SampleMatrix(samples)
	assert.Len(t, X, 20)
	assert.Len(t, y, 20)
	assert.Len(t, X[0], len(models.FeatureNames))
}

func TestTrainingSetBuilder_SkipsMissingTargets(t *testing.T) {
	b := newTestFeatureBuilder()
	tables := walkForwardTables(5)
	tables[2].Summaries = tables[2].Summaries[:2]
	eligible, _ := b.BuildAll(GroupHistories(tables))

	samples, err := NewTrainingSetBuilder(b, 1, logging.NewDiscardLogger()).Build(context.Background(), tables, eligible)
	require.NoError(t, err)
	assert.Len(t, samples, 17)
}

func TestTrainingSetBuilder_InsufficientSamples(t *testing.T) {
	b := newTestFeatureBuilder()
	tables := walkForwardTables(2)
	eligible, _ := b.BuildAll(GroupHistories(tables))

	_, err := NewTrainingSetBuilder(b, 15, logging.NewDiscardLogger()).Build(context.Background(), tables, eligible)
	var insufficient *utils.InsufficientSamplesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 8, insufficient.Samples)
	assert.Equal(t, 15, insufficient.Required)
}
