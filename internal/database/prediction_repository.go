package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
)

// ErrNoRuns is returned when no forecast run has been stored yet.
var ErrNoRuns = errors.New("no forecast runs stored")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS forecast_runs (
	run_id             TEXT PRIMARY KEY,
	target_period      TEXT NOT NULL,
	generated_at       TIMESTAMPTZ NOT NULL,
	total_items        INTEGER NOT NULL,
	total_quantity     INTEGER NOT NULL,
	average_confidence DOUBLE PRECISION NOT NULL,
	estimated_value    NUMERIC(18, 2) NOT NULL,
	report             JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
	run_id                 TEXT NOT NULL REFERENCES forecast_runs (run_id) ON DELETE CASCADE,
	item_name              TEXT NOT NULL,
	position               INTEGER NOT NULL,
	uom                    TEXT NOT NULL,
	category               TEXT NOT NULL,
	dominant_pattern       TEXT NOT NULL,
	final_monthly_quantity INTEGER NOT NULL,
	confidence             DOUBLE PRECISION NOT NULL,
	risk_score             INTEGER NOT NULL,
	risk_level             TEXT NOT NULL,
	prediction_quality     TEXT NOT NULL,
	recommendation         TEXT NOT NULL,
	adjustments            TEXT[] NOT NULL,
	estimated_value        NUMERIC(18, 2) NOT NULL,
	features               JSONB NOT NULL,
	PRIMARY KEY (run_id, item_name)
);

CREATE INDEX IF NOT EXISTS idx_forecast_runs_generated_at ON forecast_runs (generated_at DESC);
`

const insertRunSQL = `INSERT INTO forecast_runs
	(run_id, target_period, generated_at, total_items, total_quantity, average_confidence, estimated_value, report)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
ON CONFLICT (run_id) DO UPDATE SET
	target_period = EXCLUDED.target_period,
	generated_at = EXCLUDED.generated_at,
	total_items = EXCLUDED.total_items,
	total_quantity = EXCLUDED.total_quantity,
	average_confidence = EXCLUDED.average_confidence,
	estimated_value = EXCLUDED.estimated_value,
	report = EXCLUDED.report`

const upsertPredictionSQL = `INSERT INTO predictions
	(run_id, item_name, position, uom, category, dominant_pattern, final_monthly_quantity,
	 confidence, risk_score, risk_level, prediction_quality, recommendation, adjustments,
	 estimated_value, features)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::numeric, $15)
ON CONFLICT (run_id, item_name) DO UPDATE SET
	position = EXCLUDED.position,
	uom = EXCLUDED.uom,
	category = EXCLUDED.category,
	dominant_pattern = EXCLUDED.dominant_pattern,
	final_monthly_quantity = EXCLUDED.final_monthly_quantity,
	confidence = EXCLUDED.confidence,
	risk_score = EXCLUDED.risk_score,
	risk_level = EXCLUDED.risk_level,
	prediction_quality = EXCLUDED.prediction_quality,
	recommendation = EXCLUDED.recommendation,
	adjustments = EXCLUDED.adjustments,
	estimated_value = EXCLUDED.estimated_value,
	features = EXCLUDED.features`

const selectPredictionsSQL = `SELECT item_name, uom, category, final_monthly_quantity, confidence,
	risk_score, risk_level, prediction_quality, recommendation, adjustments,
	estimated_value::text, features
FROM predictions
WHERE run_id = $1
ORDER BY position`

// PredictionRepository stores forecast runs in PostgreSQL.
type PredictionRepository struct {
	db     DatabasePool
	logger *logrus.Logger
}

func NewPredictionRepository(db DatabasePool, logger *logrus.Logger) *PredictionRepository {
	return &PredictionRepository{db: db, logger: logger}
}

func (r *PredictionRepository) Name() string { return "postgres" }

// EnsureSchema creates the tables when they do not exist.
func (r *PredictionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create forecast schema: %w", err)
	}
	return nil
}

// Write stores the run and all of its predictions in one transaction.
func (r *PredictionRepository) Write(ctx context.Context, report models.ForecastReport) error {
	s := report.Summary
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, insertRunSQL,
		s.RunID, s.TargetPeriod, s.GeneratedAt, s.TotalItems, s.TotalPredictedQuantity,
		s.AverageConfidence, s.TotalEstimatedValue.StringFixed(2), payload,
	); err != nil {
		return r.rollback(ctx, tx, fmt.Errorf("failed to insert forecast run: %w", err))
	}

	for i, p := range report.Predictions {
		features, err := json.Marshal(p.Features)
		if err != nil {
			return r.rollback(ctx, tx, fmt.Errorf("failed to encode features for %s: %w", p.ItemName, err))
		}
		adjustments := p.Adjustments
		if adjustments == nil {
			adjustments = []string{}
		}
		if _, err := tx.Exec(ctx, upsertPredictionSQL,
			s.RunID, p.ItemName, i, p.UOM, p.Category, string(p.Features.DominantBatchPattern),
			p.FinalMonthlyQuantity, p.Confidence, p.RiskScore, string(p.RiskLevel), string(p.Quality),
			p.Recommendation, adjustments, p.EstimatedValue.StringFixed(2), features,
		); err != nil {
			return r.rollback(ctx, tx, fmt.Errorf("failed to upsert prediction %s: %w", p.ItemName, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit forecast run: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":      s.RunID,
		"predictions": len(report.Predictions),
	}).Info("Stored forecast run")
	return nil
}

func (r *PredictionRepository) rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		r.logger.WithError(err).Warn("Failed to roll back forecast transaction")
	}
	return cause
}

// LatestRunID returns the most recently generated run.
func (r *PredictionRepository) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := r.db.QueryRow(ctx,
		`SELECT run_id FROM forecast_runs ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}

// Latest returns the stored report of the most recent run, or nil when the
// table is empty.
func (r *PredictionRepository) Latest(ctx context.Context) (*models.ForecastReport, error) {
	var payload []byte
	err := r.db.QueryRow(ctx,
		`SELECT report FROM forecast_runs ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest report: %w", err)
	}

	var report models.ForecastReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &report, nil
}

// ListByRun returns a run's predictions in report order.
func (r *PredictionRepository) ListByRun(ctx context.Context, runID string) ([]models.Prediction, error) {
	rows, err := r.db.Query(ctx, selectPredictionsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var (
			p                  models.Prediction
			riskLevel, quality string
			estimatedValue     string
			features           []byte
		)
		if err := rows.Scan(
			&p.ItemName, &p.UOM, &p.Category, &p.FinalMonthlyQuantity, &p.Confidence,
			&p.RiskScore, &riskLevel, &quality, &p.Recommendation, &p.Adjustments,
			&estimatedValue, &features,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}

		p.RunID = runID
		p.RiskLevel = models.RiskLevel(riskLevel)
		p.Quality = models.PredictionQuality(quality)
		if p.EstimatedValue, err = decimal.NewFromString(estimatedValue); err != nil {
			return nil, fmt.Errorf("invalid estimated value for %s: %w", p.ItemName, err)
		}
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("invalid features for %s: %w", p.ItemName, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return out, nil
}
