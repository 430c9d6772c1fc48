package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
)

// TrainingSetBuilder walks forward through the period tables and pairs each
// item's prefix features with its daily rate in the next period.
type TrainingSetBuilder struct {
	features   *FeatureBuilder
	minSamples int
	logger     *logrus.Logger
}

// NewTrainingSetBuilder creates a builder requiring at least minSamples.
func NewTrainingSetBuilder(features *FeatureBuilder, minSamples int, logger *logrus.Logger) *TrainingSetBuilder {
	return &TrainingSetBuilder{features: features, minSamples: minSamples, logger: logger}
}

// Build generates one sample per (eligible item, forward step). For step i
// the history is tables[:i] and the target is tables[i]. Items absent from
// the target period or with no prefix history are skipped.
func (t *TrainingSetBuilder) Build(ctx context.Context, tables []models.PeriodTable, eligible []models.FeatureVector) ([]models.TrainingSample, error) {
	var samples []models.TrainingSample

	for i := 1; i < len(tables); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prefix := GroupHistories(tables[:i])
		target := tables[i]

		for _, item := range eligible {
			history := prefix.ByItem[item.ItemName]
			if len(history) == 0 {
				continue
			}
			actual, ok := target.Lookup(item.ItemName)
			if !ok {
				continue
			}
			f, ok := t.features.Build(history)
			if !ok {
				continue
			}
			samples = append(samples, models.TrainingSample{
				ItemName:     item.ItemName,
				TargetPeriod: target.Label,
				Features:     f.Numeric(),
				Target:       actual.DailyRate,
			})
		}
	}

	t.logger.WithFields(logrus.Fields{
		"samples": len(samples),
		"steps":   max(len(tables)-1, 0),
	}).Info("Built walk-forward training set")

	if len(samples) < t.minSamples {
		return nil, &utils.InsufficientSamplesError{Samples: len(samples), Required: t.minSamples}
	}
	return samples, nil
}

// SampleMatrix splits samples into a feature matrix and target vector.
func SampleMatrix(samples []models.TrainingSample) ([][]float64, []float64) {
	X := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		X[i] = s.Features
		y[i] = s.Target
	}
	return X, y
}
