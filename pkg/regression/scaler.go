package regression

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Scaler learns a per-column affine transform.
type Scaler interface {
	Fit(X [][]float64) error
	Transform(X [][]float64) ([][]float64, error)
}

type affineScaler struct {
	center []float64
	scale  []float64
}

func (a *affineScaler) Transform(X [][]float64) ([][]float64, error) {
	if a.center == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredictData(X, len(a.center)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - a.center[j]) / a.scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

func columns(X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return nil, errors.New("cannot fit scaler on empty data")
	}
	p := len(X[0])
	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = make([]float64, len(X))
	}
	for i, row := range X {
		if len(row) != p {
			return nil, errors.New("ragged rows")
		}
		for j, v := range row {
			cols[j][i] = v
		}
	}
	return cols, nil
}

// StandardScaler centres on the mean and divides by the population standard
// deviation. Constant columns keep a scale of one.
type StandardScaler struct {
	affineScaler
}

func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

func (s *StandardScaler) Fit(X [][]float64) error {
	cols, err := columns(X)
	if err != nil {
		return err
	}
	s.center = make([]float64, len(cols))
	s.scale = make([]float64, len(cols))
	for j, col := range cols {
		mean, std := stat.PopMeanStdDev(col, nil)
		s.center[j] = mean
		s.scale[j] = nonZeroScale(std)
	}
	return nil
}

// RobustScaler centres on the median and divides by the interquartile range.
// Constant columns keep a scale of one.
type RobustScaler struct {
	affineScaler
}

func NewRobustScaler() *RobustScaler {
	return &RobustScaler{}
}

func (s *RobustScaler) Fit(X [][]float64) error {
	cols, err := columns(X)
	if err != nil {
		return err
	}
	s.center = make([]float64, len(cols))
	s.scale = make([]float64, len(cols))
	for j, col := range cols {
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)
		s.center[j] = Percentile(sorted, 50)
		s.scale[j] = nonZeroScale(Percentile(sorted, 75) - Percentile(sorted, 25))
	}
	return nil
}

func nonZeroScale(v float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return 1
	}
	return v
}

// Percentile returns the p-th percentile (0..100) of an ascending slice
// using linear interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Scaled fits a scaler and then a model on the scaled features.
type Scaled struct {
	Scaler Scaler
	Model  Regressor
}

// NewScaled pairs a scaler with a model.
func NewScaled(scaler Scaler, model Regressor) *Scaled {
	return &Scaled{Scaler: scaler, Model: model}
}

func (s *Scaled) Fit(X [][]float64, y []float64) error {
	if _, err := checkTrainingData(X, y); err != nil {
		return err
	}
	if err := s.Scaler.Fit(X); err != nil {
		return err
	}
	xs, err := s.Scaler.Transform(X)
	if err != nil {
		return err
	}
	return s.Model.Fit(xs, y)
}

func (s *Scaled) Predict(X [][]float64) ([]float64, error) {
	xs, err := s.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return s.Model.Predict(xs)
}
