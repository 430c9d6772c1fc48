package regression

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const machineEpsilon = 2.220446049250313e-16

// linearModel is y = intercept + coef . x.
type linearModel struct {
	coef      []float64
	intercept float64
	fitted    bool
}

func (m *linearModel) predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredictData(X, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.intercept + floats.Dot(m.coef, row)
	}
	return out, nil
}

// Coefficients returns a copy of the fitted coefficients.
func (m *linearModel) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}

// Intercept returns the fitted intercept.
func (m *linearModel) Intercept() float64 {
	return m.intercept
}

// centered returns X and y with column means removed, plus those means.
func centered(X [][]float64, y []float64, p int) (*mat.Dense, *mat.VecDense, []float64, float64) {
	n := len(X)
	xMean := make([]float64, p)
	for _, row := range X {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := floats.Sum(y) / float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}
	return xc, yc, xMean, yMean
}

// Ridge is L2-regularised least squares with an unpenalised intercept,
// solved in closed form.
type Ridge struct {
	linearModel
	Alpha float64
}

// NewRidge creates an unfitted ridge model.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

// Fit solves (XcᵀXc + αI)β = Xcᵀyc.
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	if r.Alpha < 0 {
		return fmt.Errorf("ridge alpha must be non-negative, got %v", r.Alpha)
	}

	xc, yc, xMean, yMean := centered(X, y, p)

	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("ridge solve: %w", err)
		}
	}

	r.coef = make([]float64, p)
	for j := range r.coef {
		r.coef[j] = beta.AtVec(j)
	}
	r.intercept = yMean - floats.Dot(r.coef, xMean)
	r.fitted = true
	return nil
}

// Predict applies the fitted coefficients.
func (r *Ridge) Predict(X [][]float64) ([]float64, error) {
	return r.predict(X)
}

// LinearRegression is ordinary least squares. It uses the SVD pseudo-inverse,
// so collinear or constant columns give the minimum-norm solution instead of
// failing.
type LinearRegression struct {
	linearModel
}

// NewLinearRegression creates an unfitted OLS model.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit computes β = V Σ⁺ Uᵀ yc on the centred data.
func (l *LinearRegression) Fit(X [][]float64, y []float64) error {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	n := len(X)

	xc, yc, xMean, yMean := centered(X, y, p)

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return errors.New("least squares: SVD did not converge")
	}
	sigma := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.0
	if len(sigma) > 0 {
		tol = sigma[0] * float64(max(n, p)) * machineEpsilon
	}

	var uty mat.VecDense
	uty.MulVec(u.T(), yc)
	for k, s := range sigma {
		if s > tol {
			uty.SetVec(k, uty.AtVec(k)/s)
		} else {
			uty.SetVec(k, 0)
		}
	}
	var beta mat.VecDense
	beta.MulVec(&v, &uty)

	l.coef = make([]float64, p)
	for j := range l.coef {
		l.coef[j] = beta.AtVec(j)
	}
	l.intercept = yMean - floats.Dot(l.coef, xMean)
	l.fitted = true
	return nil
}

// Predict applies the fitted coefficients.
func (l *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	return l.predict(X)
}
