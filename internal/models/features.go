package models

// FeatureVector is the per-item aggregate built from an item's period
// history. It feeds both model training and prediction.
type FeatureVector struct {
	ItemName        string  `json:"item_name"`
	UOM             string  `json:"uom"`
	Category        string  `json:"category"`
	Price           float64 `json:"price"`
	MonthsAvailable int     `json:"months_available"`

	AvgDailyRate              float64 `json:"avg_daily_rate"`
	MedianDailyRate           float64 `json:"median_daily_rate"`
	StdDailyRate              float64 `json:"std_daily_rate"`
	CVDailyRate               float64 `json:"cv_daily_rate"`
	SeasonalAdjustedDailyRate float64 `json:"seasonal_adjusted_daily_rate"`
	DailyRateTrend            float64 `json:"daily_rate_trend"`
	RecentTrend               float64 `json:"recent_trend"`
	RecentWeightedDailyRate   float64 `json:"recent_weighted_daily_rate"`
	LastMonthDailyRate        float64 `json:"last_month_daily_rate"`
	Last2MonthsAvgDailyRate   float64 `json:"last_2months_avg_daily_rate"`

	AvgWithdrawalFrequency       float64      `json:"avg_withdrawal_frequency"`
	AvgBatchSize                 float64      `json:"avg_batch_size"`
	BatchSizeVariability         float64      `json:"batch_size_variability"`
	AvgWithdrawalRegularity      float64      `json:"avg_withdrawal_regularity"`
	AvgConsumptionPredictability float64      `json:"avg_consumption_predictability"`
	DominantBatchPattern         PatternLabel `json:"dominant_batch_pattern"`
	BatchPatternStability        float64      `json:"batch_pattern_stability"`

	IsCritical         bool    `json:"is_critical"`
	IsSeasonal         bool    `json:"is_seasonal"`
	CategoryMultiplier float64 `json:"category_multiplier"`

	MinDailyRate   float64 `json:"min_daily_rate"`
	MaxDailyRate   float64 `json:"max_daily_rate"`
	DailyRateRange float64 `json:"daily_rate_range"`
	DailyRateQ75   float64 `json:"daily_rate_q75"`
	DailyRateQ25   float64 `json:"daily_rate_q25"`

	IsLowVolume          bool `json:"is_low_volume"`
	IsHighVolatility     bool `json:"is_high_volatility"`
	IsSingleBatchItem    bool `json:"is_single_batch_item"`
	IsFrequentSmallBatch bool `json:"is_frequent_small_batch"`

	DataQuality        float64 `json:"data_quality"`
	GrowthRate         float64 `json:"growth_rate"`
	RecentVsHistorical float64 `json:"recent_vs_historical"`
	Momentum           float64 `json:"momentum"`

	WithdrawalPatternRisk bool `json:"withdrawal_pattern_risk"`
	BatchSizeRisk         bool `json:"batch_size_risk"`
}

// FeatureNames lists the model inputs in the order produced by Numeric.
var FeatureNames = []string{
	"Price",
	"Months_Available",
	"Avg_Daily_Rate",
	"Median_Daily_Rate",
	"Std_Daily_Rate",
	"CV_Daily_Rate",
	"Seasonal_Adjusted_Daily_Rate",
	"Daily_Rate_Trend",
	"Recent_Trend",
	"Recent_Weighted_Daily_Rate",
	"Last_Month_Daily_Rate",
	"Last_2Months_Avg_Daily_Rate",
	"Avg_Withdrawal_Frequency",
	"Avg_Batch_Size",
	"Batch_Size_Variability",
	"Avg_Withdrawal_Regularity",
	"Avg_Consumption_Predictability",
	"Batch_Pattern_Stability",
	"Is_Critical",
	"Is_Seasonal",
	"Category_Multiplier",
	"Min_Daily_Rate",
	"Max_Daily_Rate",
	"Daily_Rate_Range",
	"Daily_Rate_Q75",
	"Daily_Rate_Q25",
	"Is_Low_Volume",
	"Is_High_Volatility",
	"Is_Single_Batch_Item",
	"Is_Frequent_Small_Batch",
	"Data_Quality",
	"Growth_Rate",
	"Recent_vs_Historical",
	"Momentum",
	"Withdrawal_Pattern_Risk",
	"Batch_Size_Risk",
}

// Numeric returns the model input row. Categorical fields are left out and
// flags are encoded as 0/1.
func (f FeatureVector) Numeric() []float64 {
	return []float64{
		f.Price,
		float64(f.MonthsAvailable),
		f.AvgDailyRate,
		f.MedianDailyRate,
		f.StdDailyRate,
		f.CVDailyRate,
		f.SeasonalAdjustedDailyRate,
		f.DailyRateTrend,
		f.RecentTrend,
		f.RecentWeightedDailyRate,
		f.LastMonthDailyRate,
		f.Last2MonthsAvgDailyRate,
		f.AvgWithdrawalFrequency,
		f.AvgBatchSize,
		f.BatchSizeVariability,
		f.AvgWithdrawalRegularity,
		f.AvgConsumptionPredictability,
		f.BatchPatternStability,
		boolToFloat(f.IsCritical),
		boolToFloat(f.IsSeasonal),
		f.CategoryMultiplier,
		f.MinDailyRate,
		f.MaxDailyRate,
		f.DailyRateRange,
		f.DailyRateQ75,
		f.DailyRateQ25,
		boolToFloat(f.IsLowVolume),
		boolToFloat(f.IsHighVolatility),
		boolToFloat(f.IsSingleBatchItem),
		boolToFloat(f.IsFrequentSmallBatch),
		f.DataQuality,
		f.GrowthRate,
		f.RecentVsHistorical,
		f.Momentum,
		boolToFloat(f.WithdrawalPatternRisk),
		boolToFloat(f.BatchSizeRisk),
	}
}

// TrainingSample pairs features built from a history prefix with the daily
// rate observed in the following period.
type TrainingSample struct {
	ItemName     string
	TargetPeriod string
	Features     []float64
	Target       float64
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
