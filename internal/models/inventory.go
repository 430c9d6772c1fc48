package models

import "strings"

// MaxDailyColumns is the number of day slots a period can carry.
const MaxDailyColumns = 31

// PatternLabel classifies how withdrawals are spread across one period.
type PatternLabel string

const (
	PatternNoConsumption     PatternLabel = "No_Consumption"
	PatternSingleLargeBatch  PatternLabel = "Single_Large_Batch"
	PatternRegularWeekly     PatternLabel = "Regular_Weekly_Batches"
	PatternRegularBiWeekly   PatternLabel = "Regular_BiWeekly_Batches"
	PatternFrequentSmall     PatternLabel = "Frequent_Small_Batches"
	PatternIrregular         PatternLabel = "Irregular_Batch_Pattern"
	PatternLowVolumeRegular  PatternLabel = "Low_Volume_Regular"
	PatternHighlyPredictable PatternLabel = "Highly_Predictable_Batches"
	PatternUnknown           PatternLabel = "Unknown"
)

// AllPatternLabels lists every label in classification priority order.
var AllPatternLabels = []PatternLabel{
	PatternNoConsumption,
	PatternSingleLargeBatch,
	PatternRegularWeekly,
	PatternRegularBiWeekly,
	PatternFrequentSmall,
	PatternIrregular,
	PatternLowVolumeRegular,
	PatternHighlyPredictable,
	PatternUnknown,
}

// IsRegularFamily reports whether the label describes a steady cadence,
// which favours the linear models.
func (p PatternLabel) IsRegularFamily() bool {
	s := string(p)
	return strings.Contains(s, "Regular") || strings.Contains(s, "Predictable")
}

// IsIrregularOrSingle reports whether the label favours the tree models.
func (p PatternLabel) IsIrregularOrSingle() bool {
	s := string(p)
	return strings.Contains(s, "Irregular") || strings.Contains(s, "Single")
}

// IsFrequent reports whether the label describes many small withdrawals.
func (p PatternLabel) IsFrequent() bool {
	return strings.Contains(string(p), "Frequent")
}

// IsIrregularOrUnknown reports whether the label carries no usable cadence.
func (p PatternLabel) IsIrregularOrUnknown() bool {
	s := string(p)
	return strings.Contains(s, "Irregular") || strings.Contains(s, "Unknown")
}

// IsSingle reports whether the label is the one-withdrawal pattern.
func (p PatternLabel) IsSingle() bool {
	return strings.Contains(string(p), "Single")
}

// FrequencyCategory buckets a period by its raw withdrawal event count.
type FrequencyCategory string

const (
	FrequencyNone          FrequencyCategory = "No_Withdrawals"
	FrequencySingle        FrequencyCategory = "Single_Withdrawal"
	FrequencyWeekly        FrequencyCategory = "Weekly_Pattern"
	FrequencyBiWeekly      FrequencyCategory = "BiWeekly_Pattern"
	FrequencyRegular       FrequencyCategory = "Regular_Pattern"
	FrequencyFrequentSmall FrequencyCategory = "Frequent_Small_Batches"
	FrequencyUnknown       FrequencyCategory = "Unknown"
)

// PeriodRecord is one item's raw data for one historical period.
type PeriodRecord struct {
	ItemName      string  `json:"item_name"`
	UOM           string  `json:"uom"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	OpeningStock  float64 `json:"opening_stock"`
	ReceivedStock float64 `json:"received_stock"`
	Period        string  `json:"period"`
	PeriodIndex   int     `json:"period_index"`
	// DailyWithdrawals holds day 1..31 in position order. Nil means the
	// source had no recognizable daily columns.
	DailyWithdrawals []float64 `json:"daily_withdrawals,omitempty"`
}

// HasDailyColumns reports whether per-day values were available.
func (r PeriodRecord) HasDailyColumns() bool {
	return r.DailyWithdrawals != nil
}

// WithdrawalSummary holds the per item-period statistics derived from a
// PeriodRecord.
type WithdrawalSummary struct {
	ItemName     string  `json:"item_name"`
	UOM          string  `json:"uom"`
	Category     string  `json:"category"`
	Period       string  `json:"period"`
	PeriodIndex  int     `json:"period_index"`
	Price        float64 `json:"price"`
	OpeningStock float64 `json:"opening_stock"`

	TotalConsumption          float64           `json:"total_consumption"`
	WithdrawalEvents          int               `json:"withdrawal_events"`
	AverageBatchSize          float64           `json:"average_batch_size"`
	DaysBetweenWithdrawals    float64           `json:"days_between_withdrawals"`
	DailyRate                 float64           `json:"daily_rate"`
	IntervalConsistency       float64           `json:"interval_consistency"`
	BatchSizeConsistency      float64           `json:"batch_size_consistency"`
	WithdrawalRegularity      float64           `json:"withdrawal_regularity"`
	ConsumptionPredictability float64           `json:"consumption_predictability"`
	FrequencyCategory         FrequencyCategory `json:"frequency_category"`
	Pattern                   PatternLabel      `json:"pattern"`

	IsCritical         bool    `json:"is_critical"`
	IsSeasonal         bool    `json:"is_seasonal"`
	CategoryMultiplier float64 `json:"category_multiplier"`
}

// PeriodTable is the extracted summary table for one period. Item names are
// unique within a table.
type PeriodTable struct {
	Label     string              `json:"label"`
	Index     int                 `json:"index"`
	Summaries []WithdrawalSummary `json:"summaries"`
}

// Lookup returns the summary for itemName.
func (t PeriodTable) Lookup(itemName string) (WithdrawalSummary, bool) {
	for _, s := range t.Summaries {
		if s.ItemName == itemName {
			return s, true
		}
	}
	return WithdrawalSummary{}, false
}

// DroppedRecord records a period or item skipped by a pipeline stage.
type DroppedRecord struct {
	Stage  string `json:"stage"`
	Period string `json:"period,omitempty"`
	Item   string `json:"item,omitempty"`
	Reason string `json:"reason"`
}
