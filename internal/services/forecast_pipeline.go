package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/telemetry"
	"github.com/irfndi/stockcast-go/internal/utils"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

// ForecastPipeline runs one batch forecast: extract, build features, train,
// predict, report and export. Each stage hands its output to the next; no
// state is kept between runs.
type ForecastPipeline struct {
	cfg    *config.Config
	source interfaces.PeriodSource
	sinks  []interfaces.PredictionSink

	extractor  *WithdrawalExtractor
	features   *FeatureBuilder
	training   *TrainingSetBuilder
	trainer    *EnsembleTrainer
	corrector  *SafetyNetCorrector
	aggregator *ReportingAggregator
	recovery   *ErrorRecoveryManager

	tracer *telemetry.StageTracer
	logger *logrus.Logger
	now    func() time.Time
}

// NewForecastPipeline wires the stages from configuration.
func NewForecastPipeline(cfg *config.Config, source interfaces.PeriodSource, tracer *telemetry.StageTracer, logger *logrus.Logger, sinks ...interfaces.PredictionSink) *ForecastPipeline {
	if tracer == nil {
		tracer = telemetry.NewStageTracer(nil)
	}
	features := NewFeatureBuilder(cfg.Forecast, logger)
	return &ForecastPipeline{
		cfg:        cfg,
		source:     source,
		sinks:      sinks,
		extractor:  NewWithdrawalExtractor(NewBusinessRules(cfg.BusinessRules), NewPatternClassifier(cfg.Forecast.LowVolumeThreshold), logger),
		features:   features,
		training:   NewTrainingSetBuilder(features, cfg.Forecast.MinTrainingSamples, logger),
		trainer:    NewEnsembleTrainer(cfg.Models, cfg.Forecast.RandomSeed, cfg.Forecast.TestFraction, logger),
		corrector:  NewSafetyNetCorrector(cfg.Forecast),
		aggregator: NewReportingAggregator(logger),
		tracer:     tracer,
		logger:     logger,
		now:        time.Now,
	}
}

// WithRecovery retries failed sink writes under the PolicySinkWrite policy.
func (p *ForecastPipeline) WithRecovery(erm *ErrorRecoveryManager) *ForecastPipeline {
	p.recovery = erm
	return p
}

// Run executes the pipeline. Fatal stage errors abort the run. Sink errors
// are returned after every sink has been tried, together with the report.
func (p *ForecastPipeline) Run(ctx context.Context) (*models.ForecastReport, error) {
	runID := uuid.New().String()
	started := p.now()
	log := p.logger.WithField("run_id", runID)
	log.WithFields(logrus.Fields{
		"periods": p.cfg.Forecast.Periods,
		"target":  p.cfg.Forecast.TargetPeriod,
	}).Info("Starting forecast run")

	tables, dropped, err := p.extract(ctx, runID)
	if err != nil {
		return nil, err
	}

	_, span := p.tracer.StartStage(ctx, telemetry.StageFeatures, runID)
	eligible, featureDrops := p.features.BuildAll(GroupHistories(tables))
	dropped = append(dropped, featureDrops...)
	p.tracer.EndStage(span, map[string]int{"eligible": len(eligible), "excluded": len(featureDrops)}, nil)

	sctx, span := p.tracer.StartStage(ctx, telemetry.StageTrain, runID)
	ensemble, err := p.train(sctx, tables, eligible)
	var counts map[string]int
	if ensemble != nil {
		counts = map[string]int{
			"samples":       ensemble.Diagnostics.TotalSamples,
			"train_samples": ensemble.Diagnostics.TrainingSamples,
			"test_samples":  ensemble.Diagnostics.TestSamples,
		}
	}
	p.tracer.EndStage(span, counts, err)
	if err != nil {
		return nil, err
	}

	_, span = p.tracer.StartStage(ctx, telemetry.StagePredict, runID)
	predictions, err := p.predict(eligible, ensemble, runID, started)
	p.tracer.EndStage(span, map[string]int{"predictions": len(predictions)}, err)
	if err != nil {
		return nil, err
	}

	_, span = p.tracer.StartStage(ctx, telemetry.StageReport, runID)
	report := p.aggregator.Aggregate(ReportInput{
		RunID:        runID,
		TargetPeriod: p.cfg.Forecast.TargetPeriod,
		GeneratedAt:  started,
		Predictions:  predictions,
		Diagnostics:  ensemble.Diagnostics,
		Dropped:      dropped,
	})
	p.tracer.EndStage(span, map[string]int{"items": report.Summary.TotalItems}, nil)

	exportErr := p.export(ctx, runID, report)

	log.WithFields(logrus.Fields{
		"items":    report.Summary.TotalItems,
		"dropped":  len(dropped),
		"duration": p.now().Sub(started).String(),
	}).Info("Forecast run complete")
	return &report, exportErr
}

func (p *ForecastPipeline) extract(ctx context.Context, runID string) ([]models.PeriodTable, []models.DroppedRecord, error) {
	ctx, span := p.tracer.StartStage(ctx, telemetry.StageExtract, runID)

	data, err := p.source.LoadPeriods(ctx, p.cfg.Forecast.Periods)
	if err != nil {
		var missing *utils.MissingInputError
		canceled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		if !canceled && !errors.As(err, &missing) {
			err = &utils.MissingInputError{Source: "period source", Err: err}
		}
		p.tracer.EndStage(span, nil, err)
		return nil, nil, err
	}

	tables, dropped, err := p.extractor.ExtractAll(ctx, p.cfg.Forecast.Periods, data)
	p.tracer.EndStage(span, map[string]int{"periods": len(tables), "dropped": len(dropped)}, err)
	return tables, dropped, err
}

func (p *ForecastPipeline) train(ctx context.Context, tables []models.PeriodTable, eligible []models.FeatureVector) (*TrainedEnsemble, error) {
	samples, err := p.training.Build(ctx, tables, eligible)
	if err != nil {
		return nil, err
	}
	return p.trainer.Train(ctx, samples)
}

func (p *ForecastPipeline) predict(eligible []models.FeatureVector, ensemble *TrainedEnsemble, runID string, generatedAt time.Time) ([]models.Prediction, error) {
	outputs, err := ensemble.Predict(eligible)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	predictions := make([]models.Prediction, len(eligible))
	for i, f := range eligible {
		predictions[i] = BuildPrediction(p.corrector, f, outputs[i])
		predictions[i].RunID = runID
		predictions[i].TargetPeriod = p.cfg.Forecast.TargetPeriod
		predictions[i].GeneratedAt = generatedAt
	}
	return predictions, nil
}

// BuildPrediction runs the safety net for one item and fills in the
// derived quantity, risk, advice and quality.
func BuildPrediction(corrector *SafetyNetCorrector, f models.FeatureVector, out models.ModelOutputs) models.Prediction {
	c := corrector.Correct(f, out)
	monthly := c.CorrectedRate * daysPerPeriod
	quantity := MonthlyQuantity(c.CorrectedRate)
	score := RiskScore(monthly, c.Confidence, f)
	risk := RiskLevelFor(score)
	confidence := roundTo(c.Confidence, 1)

	return models.Prediction{
		ItemName:         f.ItemName,
		UOM:              f.UOM,
		Category:         f.Category,
		ModelPredictions: out,
		ModelMonthly: models.ModelMonthly{
			RandomForest:     roundHalfEven(out.RandomForest * daysPerPeriod),
			GradientBoosting: roundHalfEven(out.GradientBoosting * daysPerPeriod),
			Ridge:            roundHalfEven(out.Ridge * daysPerPeriod),
			LinearRegression: roundHalfEven(out.LinearRegression * daysPerPeriod),
		},
		Weights:              c.Weights,
		EnsembleRate:         c.EnsembleRate,
		CorrectedRate:        c.CorrectedRate,
		FinalMonthlyQuantity: quantity,
		Confidence:           confidence,
		RiskScore:            score,
		RiskLevel:            risk,
		Adjustments:          c.Adjustments,
		Recommendation:       Recommendation(monthly, c.Confidence, risk, f),
		Quality:              QualityFor(confidence, risk, f),
		EstimatedValue:       EstimatedValue(quantity, f.Price),
		Features:             f,
	}
}

func (p *ForecastPipeline) export(ctx context.Context, runID string, report models.ForecastReport) error {
	if len(p.sinks) == 0 {
		return nil
	}
	ctx, span := p.tracer.StartStage(ctx, telemetry.StageExport, runID)

	var errs []error
	written := 0
	for _, sink := range p.sinks {
		if err := p.write(ctx, sink, report); err != nil {
			p.logger.WithFields(logrus.Fields{"run_id": runID, "sink": sink.Name()}).WithError(err).Error("Export failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		written++
		p.logger.WithFields(logrus.Fields{"run_id": runID, "sink": sink.Name()}).Info("Report exported")
	}

	err := errors.Join(errs...)
	p.tracer.EndStage(span, map[string]int{"sinks_written": written, "sinks_failed": len(errs)}, err)
	return err
}

func (p *ForecastPipeline) write(ctx context.Context, sink interfaces.PredictionSink, report models.ForecastReport) error {
	if p.recovery == nil {
		return sink.Write(ctx, report)
	}
	return p.recovery.ExecuteWithRetry(ctx, PolicySinkWrite, func(ctx context.Context) error {
		return sink.Write(ctx, report)
	})
}
