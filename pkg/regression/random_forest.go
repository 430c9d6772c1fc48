package regression

import (
	"context"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig configures a RandomForest.
type ForestConfig struct {
	Trees int
	Tree  TreeConfig
	Seed  int64
	// Workers caps concurrent tree fitting. Zero means GOMAXPROCS.
	Workers int
}

// RandomForest averages bootstrap-trained regression trees. Every tree draws
// its sample from its own seed, so the fitted forest does not depend on the
// number of workers.
type RandomForest struct {
	config    ForestConfig
	trees     []*DecisionTree
	nFeatures int
}

// NewRandomForest creates an unfitted forest.
func NewRandomForest(config ForestConfig) *RandomForest {
	if config.Trees < 1 {
		config.Trees = 1
	}
	return &RandomForest{config: config}
}

// Fit trains all trees in parallel.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	return f.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation.
func (f *RandomForest) FitContext(ctx context.Context, X [][]float64, y []float64) error {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}

	workers := f.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*DecisionTree, f.config.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	n := len(X)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.config.Seed + int64(i)))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}
			tree := NewDecisionTree(f.config.Tree)
			tree.fitIndices(X, y, sample, p)
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = p
	return nil
}

// Predict averages the tree predictions.
func (f *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredictData(X, f.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		var sum float64
		for _, t := range f.trees {
			sum += t.predictRow(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}
