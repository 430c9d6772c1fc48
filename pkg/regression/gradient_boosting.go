package regression

// BoostingConfig configures GradientBoosting.
type BoostingConfig struct {
	Stages       int
	LearningRate float64
	Tree         TreeConfig
}

// GradientBoosting is least-squares boosting: it starts from the target mean
// and adds shrunken trees fit to the current residuals.
type GradientBoosting struct {
	config    BoostingConfig
	init      float64
	trees     []*DecisionTree
	nFeatures int
	fitted    bool
}

// NewGradientBoosting creates an unfitted booster.
func NewGradientBoosting(config BoostingConfig) *GradientBoosting {
	if config.Stages < 1 {
		config.Stages = 1
	}
	if config.LearningRate <= 0 {
		config.LearningRate = 0.1
	}
	return &GradientBoosting{config: config}
}

// Fit runs all boosting stages sequentially.
func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}

	var sum float64
	for _, v := range y {
		sum += v
	}
	g.init = sum / float64(len(y))

	current := make([]float64, len(y))
	for i := range current {
		current[i] = g.init
	}
	residual := make([]float64, len(y))

	g.trees = make([]*DecisionTree, 0, g.config.Stages)
	for s := 0; s < g.config.Stages; s++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := NewDecisionTree(g.config.Tree)
		if err := tree.Fit(X, residual); err != nil {
			return err
		}
		for i, row := range X {
			current[i] += g.config.LearningRate * tree.predictRow(row)
		}
		g.trees = append(g.trees, tree)
	}

	g.nFeatures = p
	g.fitted = true
	return nil
}

// Predict sums the initial estimate and every shrunken stage.
func (g *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	if !g.fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredictData(X, g.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := g.init
		for _, t := range g.trees {
			v += g.config.LearningRate * t.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}
