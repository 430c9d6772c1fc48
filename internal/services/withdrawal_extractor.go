package services

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
)

const (
	// daysPerPeriod is the canonical denominator for daily rates regardless
	// of the calendar length of the period.
	daysPerPeriod = 30.0
	// minUsablePeriods is the least history a run can forecast from.
	minUsablePeriods = 2

	singleWithdrawalRegularity = 0.8
)

// WithdrawalStats holds the statistics derived from one period's daily values.
type WithdrawalStats struct {
	Total                  float64
	Events                 int
	AverageBatchSize       float64
	DaysBetweenWithdrawals float64
	DailyRate              float64
	IntervalConsistency    float64
	BatchSizeConsistency   float64
	Regularity             float64
	Predictability         float64
}

// ComputeWithdrawalStats derives withdrawal statistics from day-ordered
// values. Negative values are treated as zero.
func ComputeWithdrawalStats(daily []float64) WithdrawalStats {
	var st WithdrawalStats
	var withdrawalDays []float64
	var amounts []float64

	for day, v := range daily {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		st.Total += v
		if v > 0 {
			withdrawalDays = append(withdrawalDays, float64(day))
			amounts = append(amounts, v)
		}
	}
	st.Events = len(amounts)
	st.DailyRate = st.Total / daysPerPeriod

	if st.Events == 0 {
		st.DaysBetweenWithdrawals = daysPerPeriod
		return st
	}

	st.DaysBetweenWithdrawals = daysPerPeriod / float64(st.Events)
	st.AverageBatchSize = st.Total / float64(st.Events)

	if st.Events == 1 {
		st.IntervalConsistency = 1.0
		st.BatchSizeConsistency = 1.0
		st.Regularity = singleWithdrawalRegularity
	} else {
		gaps := make([]float64, len(withdrawalDays)-1)
		for i := 1; i < len(withdrawalDays); i++ {
			gaps[i-1] = withdrawalDays[i] - withdrawalDays[i-1]
		}
		st.IntervalConsistency = calculateConsistency(gaps)
		st.BatchSizeConsistency = calculateConsistency(amounts)
		st.Regularity = 0.6*st.IntervalConsistency + 0.4*st.BatchSizeConsistency
	}

	st.Predictability = 0.7*st.Regularity + 0.3*clip(float64(st.Events)/15, 0, 1)
	return st
}

// WithdrawalExtractor turns raw period records into per-period summary tables.
type WithdrawalExtractor struct {
	rules      *BusinessRules
	classifier *PatternClassifier
	logger     *logrus.Logger
}

// NewWithdrawalExtractor creates an extractor.
func NewWithdrawalExtractor(rules *BusinessRules, classifier *PatternClassifier, logger *logrus.Logger) *WithdrawalExtractor {
	return &WithdrawalExtractor{rules: rules, classifier: classifier, logger: logger}
}

// Summarize validates one record and derives its WithdrawalSummary. Invalid
// records return a PerItemExtractionError.
func (e *WithdrawalExtractor) Summarize(rec models.PeriodRecord) (models.WithdrawalSummary, error) {
	name, ok := CleanItemName(rec.ItemName)
	if !ok {
		return models.WithdrawalSummary{}, utils.NewPerItemExtractionError(rec.Period, rec.ItemName, "invalid item name")
	}
	if len(rec.DailyWithdrawals) > models.MaxDailyColumns {
		return models.WithdrawalSummary{}, utils.NewPerItemExtractionError(rec.Period, name,
			fmt.Sprintf("%d daily values exceed %d", len(rec.DailyWithdrawals), models.MaxDailyColumns))
	}

	s := models.WithdrawalSummary{
		ItemName:     name,
		UOM:          rec.UOM,
		Category:     rec.Category,
		Period:       rec.Period,
		PeriodIndex:  rec.PeriodIndex,
		Price:        math.Max(0, rec.Price),
		OpeningStock: rec.OpeningStock,
	}

	if rec.HasDailyColumns() {
		st := ComputeWithdrawalStats(rec.DailyWithdrawals)
		s.TotalConsumption = st.Total
		s.WithdrawalEvents = st.Events
		s.AverageBatchSize = st.AverageBatchSize
		s.DaysBetweenWithdrawals = st.DaysBetweenWithdrawals
		s.DailyRate = st.DailyRate
		s.IntervalConsistency = st.IntervalConsistency
		s.BatchSizeConsistency = st.BatchSizeConsistency
		s.WithdrawalRegularity = st.Regularity
		s.ConsumptionPredictability = st.Predictability
		s.FrequencyCategory = FrequencyCategoryFor(st.Events)
	} else {
		s.FrequencyCategory = models.FrequencyUnknown
	}

	e.classifier.ClassifySummary(&s)
	e.rules.Apply(&s)
	return s, nil
}

// ExtractPeriod summarizes all records of one period. Bad records and
// repeated item names are dropped and reported.
func (e *WithdrawalExtractor) ExtractPeriod(label string, index int, records []models.PeriodRecord) (models.PeriodTable, []models.DroppedRecord) {
	table := models.PeriodTable{Label: label, Index: index}
	var dropped []models.DroppedRecord
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		rec.Period = label
		rec.PeriodIndex = index

		s, err := e.Summarize(rec)
		if err != nil {
			dropped = append(dropped, models.DroppedRecord{Stage: "extract", Period: label, Item: rec.ItemName, Reason: err.Error()})
			e.logger.WithFields(logrus.Fields{"period": label, "item": rec.ItemName}).WithError(err).Warn("Dropping record")
			continue
		}
		if seen[s.ItemName] {
			dropped = append(dropped, models.DroppedRecord{Stage: "extract", Period: label, Item: s.ItemName, Reason: "duplicate item in period"})
			e.logger.WithFields(logrus.Fields{"period": label, "item": s.ItemName}).Warn("Duplicate item, keeping first row")
			continue
		}
		seen[s.ItemName] = true
		table.Summaries = append(table.Summaries, s)
	}
	return table, dropped
}

// ExtractAll extracts every configured period in order. Periods without
// usable rows are dropped; fewer than two surviving periods is fatal.
func (e *WithdrawalExtractor) ExtractAll(ctx context.Context, periods []string, data map[string][]models.PeriodRecord) ([]models.PeriodTable, []models.DroppedRecord, error) {
	if len(data) == 0 {
		return nil, nil, &utils.MissingInputError{Source: "period source"}
	}

	var tables []models.PeriodTable
	var dropped []models.DroppedRecord

	for i, label := range periods {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		records, ok := data[label]
		if !ok {
			dropped = append(dropped, models.DroppedRecord{Stage: "extract", Period: label, Reason: "period not provided"})
			e.logger.WithField("period", label).Warn("No data for period")
			continue
		}

		table, itemDrops := e.ExtractPeriod(label, i+1, records)
		dropped = append(dropped, itemDrops...)
		if len(table.Summaries) == 0 {
			dropped = append(dropped, models.DroppedRecord{Stage: "extract", Period: label, Reason: "no usable rows"})
			e.logger.WithField("period", label).Warn("Period has no usable rows")
			continue
		}

		e.logger.WithFields(logrus.Fields{
			"period": label,
			"items":  len(table.Summaries),
		}).Info("Extracted withdrawal summaries")
		tables = append(tables, table)
	}

	if len(tables) < minUsablePeriods {
		return nil, dropped, &utils.InsufficientHistoryError{Usable: len(tables), Required: minUsablePeriods}
	}
	return tables, dropped, nil
}
