package services

import (
	"github.com/irfndi/stockcast-go/internal/models"
)

// BaseEnsembleWeights is the starting blend before pattern and
// predictability adjustments.
var BaseEnsembleWeights = models.EnsembleWeights{
	RandomForest:     0.35,
	GradientBoosting: 0.35,
	Ridge:            0.15,
	LinearRegression: 0.15,
}

// WeightingPolicy derives ensemble weights from an item's dominant pattern
// and its predictability. It is a pure function of its inputs.
type WeightingPolicy struct{}

// Weights returns normalized weights for one item.
func (WeightingPolicy) Weights(pattern models.PatternLabel, predictability float64) models.EnsembleWeights {
	w := BaseEnsembleWeights

	switch {
	case pattern.IsRegularFamily():
		w.Ridge *= 1.3
		w.LinearRegression *= 1.2
		w.RandomForest *= 0.95
	case pattern.IsIrregularOrSingle():
		w.RandomForest *= 1.2
		w.GradientBoosting *= 1.15
		w.Ridge *= 0.8
	case pattern.IsFrequent():
		w.GradientBoosting *= 1.2
		w.Ridge *= 1.1
	}

	if predictability > 0.7 {
		w.Ridge *= 1.2
		w.LinearRegression *= 1.15
	} else if predictability < 0.4 {
		w.RandomForest *= 1.15
		w.GradientBoosting *= 1.1
	}

	return w.Normalize()
}
