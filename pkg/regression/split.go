package regression

import (
	"math"
	"math/rand"
)

// TrainTestSplit shuffles row indices with a fixed seed and holds out
// ceil(testFraction*n) of them. Both sides keep at least one row when n >= 2.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	if n == 1 {
		return perm, nil
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

// Rows selects rows of X and y by index.
func Rows(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for k, i := range idx {
		xs[k] = X[i]
		ys[k] = y[i]
	}
	return xs, ys
}

// MeanAbsoluteError is the mean of |actual - predicted|.
func MeanAbsoluteError(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}
