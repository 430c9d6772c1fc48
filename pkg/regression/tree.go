package regression

import (
	"sort"
)

// TreeConfig bounds the growth of a regression tree. MaxDepth <= 0 means
// unlimited depth.
type TreeConfig struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
}

func (c TreeConfig) normalized() TreeConfig {
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	return c
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

// DecisionTree is a CART regression tree using the squared-error criterion.
type DecisionTree struct {
	config    TreeConfig
	nodes     []treeNode
	nFeatures int
}

// NewDecisionTree creates an unfitted tree.
func NewDecisionTree(config TreeConfig) *DecisionTree {
	return &DecisionTree{config: config.normalized()}
}

// Fit grows the tree on all rows of X.
func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.fitIndices(X, y, idx, p)
	return nil
}

// fitIndices grows the tree on the given rows. Indices may repeat, which is
// how bootstrap samples are passed in.
func (t *DecisionTree) fitIndices(X [][]float64, y []float64, idx []int, p int) {
	t.nFeatures = p
	t.nodes = t.nodes[:0]
	t.build(X, y, idx, 0)
}

func (t *DecisionTree) build(X [][]float64, y []float64, idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	mean := sum / n

	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{leaf: true, value: mean})

	if len(idx) < t.config.MinSamplesSplit || (t.config.MaxDepth > 0 && depth >= t.config.MaxDepth) {
		return id
	}
	parentSSE := sumSq - sum*sum/n
	if parentSSE <= 1e-12 {
		return id
	}

	feature, threshold, ok := t.bestSplit(X, y, idx, parentSSE)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.build(X, y, left, depth+1)
	r := t.build(X, y, right, depth+1)
	t.nodes[id] = treeNode{feature: feature, threshold: threshold, left: l, right: r, value: mean}
	return id
}

// bestSplit scans every feature for the threshold with the lowest summed
// squared error of the two children.
func (t *DecisionTree) bestSplit(X [][]float64, y []float64, idx []int, parentSSE float64) (int, float64, bool) {
	n := len(idx)
	minLeaf := t.config.MinSamplesLeaf
	if n < 2*minLeaf {
		return 0, 0, false
	}

	bestSSE := parentSSE - 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, n)
	for f := 0; f < t.nFeatures; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += y[i]
			totalSq += y[i] * y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			prev := sorted[k-1]
			leftSum += y[prev]
			leftSq += y[prev] * y[prev]

			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := X[prev][f], X[sorted[k]][f]
			if lo >= hi {
				continue
			}

			nl, nr := float64(k), float64(n-k)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// Predict returns the leaf mean reached by each row.
func (t *DecisionTree) Predict(X [][]float64) ([]float64, error) {
	if len(t.nodes) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredictData(X, t.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictRow(row)
	}
	return out, nil
}

func (t *DecisionTree) predictRow(row []float64) float64 {
	n := t.nodes[0]
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n.value
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *DecisionTree) Depth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		n := t.nodes[id]
		if n.leaf {
			return 0
		}
		l, r := walk(n.left), walk(n.right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}
