package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
	"github.com/irfndi/stockcast-go/pkg/regression"
)

const (
	ModelRandomForest     = "random_forest"
	ModelGradientBoosting = "gradient_boosting"
	ModelRidge            = "ridge"
	ModelLinearRegression = "linear_regression"
)

type ensembleMember struct {
	name  string
	model regression.Regressor
}

// EnsembleTrainer fits the four ensemble members on a walk-forward sample set.
type EnsembleTrainer struct {
	models       config.ModelsConfig
	seed         int64
	testFraction float64
	logger       *logrus.Logger
}

// NewEnsembleTrainer creates a trainer.
func NewEnsembleTrainer(modelsCfg config.ModelsConfig, seed int64, testFraction float64, logger *logrus.Logger) *EnsembleTrainer {
	return &EnsembleTrainer{models: modelsCfg, seed: seed, testFraction: testFraction, logger: logger}
}

// TrainedEnsemble holds fitted members and their held-out diagnostics.
type TrainedEnsemble struct {
	members     []ensembleMember
	Diagnostics models.ModelDiagnostics
}

func (t *EnsembleTrainer) newMembers() []ensembleMember {
	forest := t.models.Forest
	boosting := t.models.Boosting
	return []ensembleMember{
		{ModelRandomForest, regression.NewRandomForest(regression.ForestConfig{
			Trees: forest.Trees,
			Tree: regression.TreeConfig{
				MaxDepth:        forest.MaxDepth,
				MinSamplesSplit: forest.MinSamplesSplit,
				MinSamplesLeaf:  forest.MinSamplesLeaf,
			},
			Seed:    t.seed,
			Workers: t.models.Workers,
		})},
		{ModelGradientBoosting, regression.NewGradientBoosting(regression.BoostingConfig{
			Stages:       boosting.Stages,
			LearningRate: boosting.LearningRate,
			Tree: regression.TreeConfig{
				MaxDepth:        boosting.MaxDepth,
				MinSamplesSplit: boosting.MinSamplesSplit,
			},
		})},
		{ModelRidge, regression.NewScaled(regression.NewStandardScaler(), regression.NewRidge(t.models.Ridge.Alpha))},
		{ModelLinearRegression, regression.NewScaled(regression.NewRobustScaler(), regression.NewLinearRegression())},
	}
}

// Train splits the samples, fits every member on the training part and
// records each member's mean absolute error on the held-out part. Any fit
// failure is a ModelFitError.
func (t *EnsembleTrainer) Train(ctx context.Context, samples []models.TrainingSample) (*TrainedEnsemble, error) {
	X, y := SampleMatrix(samples)
	trainIdx, testIdx := regression.TrainTestSplit(len(samples), t.testFraction, t.seed)
	Xtrain, ytrain := regression.Rows(X, y, trainIdx)
	Xtest, ytest := regression.Rows(X, y, testIdx)

	ens := &TrainedEnsemble{
		members: t.newMembers(),
		Diagnostics: models.ModelDiagnostics{
			TrainingSamples: len(trainIdx),
			TestSamples:     len(testIdx),
			TotalSamples:    len(samples),
		},
	}

	mae := make([]float64, len(ens.members))
	for i, m := range ens.members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		if forest, ok := m.model.(*regression.RandomForest); ok {
			err = forest.FitContext(ctx, Xtrain, ytrain)
		} else {
			err = m.model.Fit(Xtrain, ytrain)
		}
		if err != nil {
			return nil, &utils.ModelFitError{Model: m.name, Err: err}
		}

		if len(Xtest) > 0 {
			preds, err := m.model.Predict(Xtest)
			if err != nil {
				return nil, &utils.ModelFitError{Model: m.name, Err: fmt.Errorf("evaluate: %w", err)}
			}
			mae[i] = regression.MeanAbsoluteError(ytest, regression.ClampNonNegative(preds))
		}

		t.logger.WithFields(logrus.Fields{
			"model": m.name,
			"mae":   mae[i],
		}).Info("Model trained")
	}

	ens.Diagnostics.MAE = models.ModelOutputs{
		RandomForest:     mae[0],
		GradientBoosting: mae[1],
		Ridge:            mae[2],
		LinearRegression: mae[3],
	}
	return ens, nil
}

// Predict returns the clamped daily-rate prediction of every member for
// each feature vector.
func (e *TrainedEnsemble) Predict(features []models.FeatureVector) ([]models.ModelOutputs, error) {
	if len(features) == 0 {
		return nil, nil
	}
	X := make([][]float64, len(features))
	for i, f := range features {
		X[i] = f.Numeric()
	}

	perModel := make([][]float64, len(e.members))
	for i, m := range e.members {
		preds, err := m.model.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("%s predict: %w", m.name, err)
		}
		perModel[i] = regression.ClampNonNegative(preds)
	}

	out := make([]models.ModelOutputs, len(features))
	for i := range out {
		out[i] = models.ModelOutputs{
			RandomForest:     perModel[0][i],
			GradientBoosting: perModel[1][i],
			Ridge:            perModel[2][i],
			LinearRegression: perModel[3][i],
		}
	}
	return out, nil
}
