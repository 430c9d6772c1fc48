package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
)

func testBusinessRules() *BusinessRules {
	return NewBusinessRules(config.BusinessRulesConfig{
		CriticalKeywords: []string{"first aid", "safety", "emergency", "sanitizer"},
		SeasonalKeywords: []string{"ice cream", "hot chocolate", "coconut water"},
		CategoryMultipliers: map[string]float64{
			"HK Chemical":     0.8,
			"Food Items":      1.2,
			"Safety Items":    1.1,
			"Office Supplies": 0.9,
		},
	})
}

func newTestExtractor() *WithdrawalExtractor {
	return NewWithdrawalExtractor(testBusinessRules(), NewPatternClassifier(10), logging.NewDiscardLogger())
}

// dailyValues builds a 30-day slice with the given day (0-based) values set.
func dailyValues(set map[int]float64) []float64 {
	out := make([]float64, 30)
	for day, v := range set {
		out[day] = v
	}
	return out
}

func TestComputeWithdrawalStats_EvenlySpacedBatches(t *testing.T) {
	st := ComputeWithdrawalStats(dailyValues(map[int]float64{0: 5, 7: 5, 14: 5}))

	assert.Equal(t, 3, st.Events)
	assert.InDelta(t, 15.0, st.Total, 1e-12)
	assert.InDelta(t, 5.0, st.AverageBatchSize, 1e-12)
	assert.InDelta(t, 0.5, st.DailyRate, 1e-12)
	assert.InDelta(t, 10.0, st.DaysBetweenWithdrawals, 1e-12)
	assert.InDelta(t, 1.0, st.IntervalConsistency, 1e-12)
	assert.InDelta(t, 1.0, st.BatchSizeConsistency, 1e-12)
	assert.InDelta(t, 1.0, st.Regularity, 1e-12)
	assert.InDelta(t, 0.7+0.3*3.0/15.0, st.Predictability, 1e-12)
}

func TestComputeWithdrawalStats_SingleWithdrawal(t *testing.T) {
	st := ComputeWithdrawalStats(dailyValues(map[int]float64{9: 30}))

	assert.Equal(t, 1, st.Events)
	assert.Equal(t, 1.0, st.IntervalConsistency)
	assert.Equal(t, 1.0, st.BatchSizeConsistency)
	assert.Equal(t, 0.8, st.Regularity)
	assert.InDelta(t, 0.7*0.8+0.3/15.0, st.Predictability, 1e-12)
	assert.InDelta(t, 30.0, st.DaysBetweenWithdrawals, 1e-12)
}

func TestComputeWithdrawalStats_ZeroAndNegative(t *testing.T) {
	st := ComputeWithdrawalStats([]float64{0, -3, 0, -1})

	assert.Equal(t, 0, st.Events)
	assert.Equal(t, 0.0, st.Total)
	assert.Equal(t, 0.0, st.DailyRate)
	assert.Equal(t, 0.0, st.AverageBatchSize)
	assert.Equal(t, 0.0, st.IntervalConsistency)
	assert.Equal(t, 0.0, st.BatchSizeConsistency)
	assert.Equal(t, 0.0, st.Regularity)
	assert.Equal(t, 0.0, st.Predictability)
	assert.Equal(t, 30.0, st.DaysBetweenWithdrawals)
}

func TestComputeWithdrawalStats_UnevenGaps(t *testing.T) {
	// gaps 1 and 9: mean 5, pop std 4 -> 1 - 4/6
	st := ComputeWithdrawalStats(dailyValues(map[int]float64{0: 2, 1: 2, 10: 2}))
	assert.InDelta(t, 1-4.0/6.0, st.IntervalConsistency, 1e-12)
	assert.InDelta(t, 1.0, st.BatchSizeConsistency, 1e-12)
	assert.InDelta(t, 0.6*(1-4.0/6.0)+0.4, st.Regularity, 1e-12)
}

func TestWithdrawalExtractor_Summarize(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name      string
		record    models.PeriodRecord
		pattern   models.PatternLabel
		frequency models.FrequencyCategory
		critical  bool
		seasonal  bool
		mult      float64
	}{
		{
			name: "weekly batches",
			record: models.PeriodRecord{
				ItemName: "  Paper Towel ", Category: "Office Supplies", Price: 2,
				DailyWithdrawals: dailyValues(map[int]float64{0: 5, 7: 5, 14: 5, 21: 5}),
			},
			pattern:   models.PatternRegularWeekly,
			frequency: models.FrequencyWeekly,
			mult:      0.9,
		},
		{
			name: "single large batch",
			record: models.PeriodRecord{
				ItemName: "First Aid Kit", Category: "Safety Items",
				DailyWithdrawals: dailyValues(map[int]float64{3: 30}),
			},
			pattern:   models.PatternSingleLargeBatch,
			frequency: models.FrequencySingle,
			critical:  true,
			mult:      1.1,
		},
		{
			name: "all zeros",
			record: models.PeriodRecord{
				ItemName: "Ice Cream Cup", Category: "Food Items",
				DailyWithdrawals: make([]float64, 31),
			},
			pattern:   models.PatternNoConsumption,
			frequency: models.FrequencyNone,
			seasonal:  true,
			mult:      1.2,
		},
		{
			name:      "no daily columns",
			record:    models.PeriodRecord{ItemName: "Mop Head", Category: "Unlisted"},
			pattern:   models.PatternNoConsumption,
			frequency: models.FrequencyUnknown,
			mult:      1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := e.Summarize(tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, s.Pattern)
			assert.Equal(t, tt.frequency, s.FrequencyCategory)
			assert.Equal(t, tt.critical, s.IsCritical)
			assert.Equal(t, tt.seasonal, s.IsSeasonal)
			assert.Equal(t, tt.mult, s.CategoryMultiplier)
		})
	}
}

func TestWithdrawalExtractor_SummarizeNoDailyColumns(t *testing.T) {
	s, err := newTestExtractor().Summarize(models.PeriodRecord{ItemName: "Mop Head", Price: -4})
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Price, "negative price clipped")
	assert.Equal(t, 0.0, s.TotalConsumption)
	assert.Equal(t, 0, s.WithdrawalEvents)
	assert.Equal(t, 0.0, s.DaysBetweenWithdrawals)
	assert.Equal(t, 0.0, s.DailyRate)
	assert.Equal(t, 0.0, s.WithdrawalRegularity)
	assert.Equal(t, 0.0, s.ConsumptionPredictability)
}

func TestWithdrawalExtractor_SummarizeRejects(t *testing.T) {
	e := newTestExtractor()

	for _, name := range []string{"", "   ", "nan", "NaN", "x"} {
		_, err := e.Summarize(models.PeriodRecord{ItemName: name, Period: "Jan"})
		var perItem *utils.PerItemExtractionError
		assert.True(t, errors.As(err, &perItem), "name %q", name)
	}

	_, err := e.Summarize(models.PeriodRecord{ItemName: "Gloves", DailyWithdrawals: make([]float64, 32)})
	assert.Error(t, err)
}

func TestWithdrawalExtractor_Idempotent(t *testing.T) {
	e := newTestExtractor()
	rec := models.PeriodRecord{ItemName: "Gloves", DailyWithdrawals: dailyValues(map[int]float64{1: 3, 4: 7, 20: 1})}

	first, err := e.Summarize(rec)
	require.NoError(t, err)
	second, err := e.Summarize(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWithdrawalExtractor_ExtractPeriod(t *testing.T) {
	e := newTestExtractor()
	records := []models.PeriodRecord{
		{ItemName: "Gloves", DailyWithdrawals: dailyValues(map[int]float64{0: 4})},
		{ItemName: "nan"},
		{ItemName: "Gloves ", DailyWithdrawals: dailyValues(map[int]float64{0: 99})},
		{ItemName: "Soap", DailyWithdrawals: dailyValues(map[int]float64{2: 1})},
	}

	table, dropped := e.ExtractPeriod("Feb", 2, records)

	require.Len(t, table.Summaries, 2)
	assert.Equal(t, "Feb", table.Label)
	assert.Equal(t, 2, table.Index)
	assert.Equal(t, 4.0, table.Summaries[0].TotalConsumption, "first duplicate kept")
	assert.Equal(t, "Feb", table.Summaries[1].Period)
	assert.Equal(t, 2, table.Summaries[1].PeriodIndex)
	assert.Len(t, dropped, 2)
}

func TestWithdrawalExtractor_ExtractAll(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()
	row := func(name string) models.PeriodRecord {
		return models.PeriodRecord{ItemName: name, DailyWithdrawals: dailyValues(map[int]float64{0: 3})}
	}

	t.Run("no input", func(t *testing.T) {
		_, _, err := e.ExtractAll(ctx, []string{"Jan"}, nil)
		var missing *utils.MissingInputError
		assert.True(t, errors.As(err, &missing))
	})

	t.Run("too few usable periods", func(t *testing.T) {
		data := map[string][]models.PeriodRecord{
			"Jan": {row("Gloves")},
			"Feb": {{ItemName: "?"}},
		}
		_, dropped, err := e.ExtractAll(ctx, []string{"Jan", "Feb", "Mar"}, data)
		var hist *utils.InsufficientHistoryError
		require.True(t, errors.As(err, &hist))
		assert.Equal(t, 1, hist.Usable)
		assert.NotEmpty(t, dropped)
	})

	t.Run("ordered tables", func(t *testing.T) {
		data := map[string][]models.PeriodRecord{
			"Mar": {row("Gloves")},
			"Jan": {row("Gloves"), row("Soap")},
		}
		tables, _, err := e.ExtractAll(ctx, []string{"Jan", "Feb", "Mar"}, data)
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, "Jan", tables[0].Label)
		assert.Equal(t, 1, tables[0].Index)
		assert.Equal(t, "Mar", tables[1].Label)
		assert.Equal(t, 3, tables[1].Index)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := e.ExtractAll(cctx, []string{"Jan"}, map[string][]models.PeriodRecord{"Jan": {row("Gloves")}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPatternClassifier_Cascade(t *testing.T) {
	c := NewPatternClassifier(10)

	tests := []struct {
		name string
		in   PatternInput
		want models.PatternLabel
	}{
		{"zero total", PatternInput{Total: 0, Events: 0}, models.PatternNoConsumption},
		{"single", PatternInput{Total: 30, Events: 1, Regularity: 0.8}, models.PatternSingleLargeBatch},
		{"weekly", PatternInput{Total: 20, Events: 4, Regularity: 0.9}, models.PatternRegularWeekly},
		{"weekly boundary regularity", PatternInput{Total: 20, Events: 4, Regularity: 0.5, Predictability: 0.2}, models.PatternUnknown},
		{"biweekly", PatternInput{Total: 40, Events: 10, Regularity: 0.45}, models.PatternRegularBiWeekly},
		{"frequent", PatternInput{Total: 40, Events: 25, Regularity: 0.1}, models.PatternFrequentSmall},
		{"irregular", PatternInput{Total: 40, Events: 14, Regularity: 0.2}, models.PatternIrregular},
		{"irregular needs volume", PatternInput{Total: 8, Events: 14, Regularity: 0.2}, models.PatternLowVolumeRegular},
		{"low volume", PatternInput{Total: 6, Events: 3, Regularity: 0.3}, models.PatternLowVolumeRegular},
		{"predictable", PatternInput{Total: 50, Events: 15, Regularity: 0.45, Predictability: 0.75}, models.PatternHighlyPredictable},
		{"fallthrough", PatternInput{Total: 50, Events: 15, Regularity: 0.45, Predictability: 0.5}, models.PatternUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.in))
		})
	}
}

func TestPatternClassifier_Exhaustive(t *testing.T) {
	c := NewPatternClassifier(10)
	valid := make(map[models.PatternLabel]bool, len(models.AllPatternLabels))
	for _, l := range models.AllPatternLabels {
		valid[l] = true
	}

	for events := 0; events <= 31; events++ {
		for _, total := range []float64{0, 0.5, 10, 10.5, 300} {
			for _, reg := range []float64{0, 0.39, 0.4, 0.5, 0.51, 1} {
				for _, pred := range []float64{0, 0.7, 0.71, 1} {
					in := PatternInput{Total: total, Events: events, Regularity: reg, Predictability: pred}
					assert.True(t, valid[c.Classify(in)], "%+v", in)
				}
			}
		}
	}
}

func TestFrequencyCategoryFor(t *testing.T) {
	tests := map[int]models.FrequencyCategory{
		0:  models.FrequencyNone,
		1:  models.FrequencySingle,
		4:  models.FrequencyWeekly,
		5:  models.FrequencyBiWeekly,
		8:  models.FrequencyBiWeekly,
		15: models.FrequencyRegular,
		16: models.FrequencyFrequentSmall,
	}
	for events, want := range tests {
		assert.Equal(t, want, FrequencyCategoryFor(events), "events=%d", events)
	}
}

func TestBusinessRules(t *testing.T) {
	rules := testBusinessRules()

	assert.True(t, rules.IsCritical("Hand SANITIZER 500ml"))
	assert.False(t, rules.IsCritical("Hand Soap"))
	assert.True(t, rules.IsSeasonal("Hot Chocolate Sachet"))
	assert.Equal(t, 0.8, rules.CategoryMultiplier("HK Chemical"))
	assert.Equal(t, 1.0, rules.CategoryMultiplier("Unknown"))

	name, ok := CleanItemName("  Towel  ")
	assert.True(t, ok)
	assert.Equal(t, "Towel", name)

	_, ok = CleanItemName("nan")
	assert.False(t, ok)
}
