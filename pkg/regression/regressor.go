// Package regression provides the small set of regressors used by the
// forecast ensemble: a bagged tree forest, least-squares gradient boosting,
// ridge and ordinary least squares, plus feature scalers and split helpers.
package regression

import (
	"errors"
	"fmt"
)

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("regressor is not fitted")

// Regressor is anything that learns y from rows of X.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// checkTrainingData validates a design matrix and its targets.
func checkTrainingData(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("empty training set")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("got %d rows but %d targets", len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return 0, errors.New("training rows have no features")
	}
	for i, row := range X {
		if len(row) != p {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(row), p)
		}
	}
	return p, nil
}

func checkPredictData(X [][]float64, p int) error {
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("row %d has %d features, model was fit on %d", i, len(row), p)
		}
	}
	return nil
}

// ClampNonNegative floors every value at zero in place and returns the slice.
func ClampNonNegative(values []float64) []float64 {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
	return values
}
