package services

import (
	"github.com/irfndi/stockcast-go/internal/models"
)

// PatternClassifier maps per-period withdrawal statistics to a pattern label.
// Rules are evaluated in priority order and the first match wins.
type PatternClassifier struct {
	lowVolumeThreshold float64
}

// PatternInput is the subset of a WithdrawalSummary the classifier reads.
type PatternInput struct {
	Total          float64
	Events         int
	Regularity     float64
	Predictability float64
}

type patternRule struct {
	label   models.PatternLabel
	matches func(in PatternInput, lowVolume float64) bool
}

var patternRules = []patternRule{
	{models.PatternNoConsumption, func(in PatternInput, _ float64) bool {
		return in.Total == 0
	}},
	{models.PatternSingleLargeBatch, func(in PatternInput, _ float64) bool {
		return in.Events == 1 && in.Total > 0
	}},
	{models.PatternRegularWeekly, func(in PatternInput, _ float64) bool {
		return in.Events >= 2 && in.Events <= 6 && in.Regularity > 0.5
	}},
	{models.PatternRegularBiWeekly, func(in PatternInput, _ float64) bool {
		return in.Events >= 7 && in.Events <= 12 && in.Regularity > 0.4
	}},
	{models.PatternFrequentSmall, func(in PatternInput, _ float64) bool {
		return in.Events >= 20
	}},
	{models.PatternIrregular, func(in PatternInput, lowVolume float64) bool {
		return in.Events > 1 && in.Regularity < 0.4 && in.Total > lowVolume
	}},
	{models.PatternLowVolumeRegular, func(in PatternInput, lowVolume float64) bool {
		return in.Total > 0 && in.Total <= lowVolume
	}},
	{models.PatternHighlyPredictable, func(in PatternInput, _ float64) bool {
		return in.Events > 1 && in.Predictability > 0.7
	}},
}

// NewPatternClassifier creates a classifier. lowVolumeThreshold is the
// monthly total at or below which an item counts as low volume.
func NewPatternClassifier(lowVolumeThreshold float64) *PatternClassifier {
	return &PatternClassifier{lowVolumeThreshold: lowVolumeThreshold}
}

// Classify returns the first matching label, or Unknown.
func (c *PatternClassifier) Classify(in PatternInput) models.PatternLabel {
	for _, rule := range patternRules {
		if rule.matches(in, c.lowVolumeThreshold) {
			return rule.label
		}
	}
	return models.PatternUnknown
}

// ClassifySummary classifies a summary in place.
func (c *PatternClassifier) ClassifySummary(s *models.WithdrawalSummary) {
	s.Pattern = c.Classify(PatternInput{
		Total:          s.TotalConsumption,
		Events:         s.WithdrawalEvents,
		Regularity:     s.WithdrawalRegularity,
		Predictability: s.ConsumptionPredictability,
	})
}

// FrequencyCategoryFor buckets a raw event count.
func FrequencyCategoryFor(events int) models.FrequencyCategory {
	switch {
	case events <= 0:
		return models.FrequencyNone
	case events == 1:
		return models.FrequencySingle
	case events <= 4:
		return models.FrequencyWeekly
	case events <= 8:
		return models.FrequencyBiWeekly
	case events <= 15:
		return models.FrequencyRegular
	default:
		return models.FrequencyFrequentSmall
	}
}
