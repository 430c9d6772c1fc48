package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/stockcast-go/pkg/regression"
)

func calculateMeanFloat64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// calculatePopStdDev divides by N, not N-1.
func calculatePopStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(values, nil)
	return std
}

func calculatePercentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return regression.Percentile(sorted, p)
}

func calculateMedian(values []float64) float64 {
	return calculatePercentile(values, 50)
}

// calculateSlope fits y = a + b*x by least squares and returns b.
func calculateSlope(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

// calculateConsistency scores how even a series is: 1 - std/(mean+1),
// floored at zero.
func calculateConsistency(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	c := 1 - calculatePopStdDev(values)/(calculateMeanFloat64(values)+1)
	return math.Max(0, c)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// roundHalfEven rounds to the nearest integer with ties to even.
func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
