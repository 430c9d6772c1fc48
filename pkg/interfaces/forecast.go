package interfaces

import (
	"context"
	"sync"

	"github.com/irfndi/stockcast-go/internal/models"
)

// PeriodSource supplies raw per-period records to the forecast pipeline.
type PeriodSource interface {
	// LoadPeriods returns records keyed by period label. Labels that have no
	// data are simply absent from the map.
	LoadPeriods(ctx context.Context, periods []string) (map[string][]models.PeriodRecord, error)
}

// PredictionSink receives a finished forecast report.
type PredictionSink interface {
	// Name identifies the sink in logs.
	Name() string
	// Write persists or publishes the report.
	Write(ctx context.Context, report models.ForecastReport) error
}

// ReportStore serves the latest report to readers such as the results API.
type ReportStore interface {
	Latest(ctx context.Context) (*models.ForecastReport, error)
}

// StaticPeriodSource is an in-memory PeriodSource.
type StaticPeriodSource struct {
	Records map[string][]models.PeriodRecord
}

// NewStaticPeriodSource wraps an existing record map.
func NewStaticPeriodSource(records map[string][]models.PeriodRecord) *StaticPeriodSource {
	return &StaticPeriodSource{Records: records}
}

// LoadPeriods returns the configured periods that exist in memory.
func (s *StaticPeriodSource) LoadPeriods(ctx context.Context, periods []string) (map[string][]models.PeriodRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]models.PeriodRecord, len(periods))
	for _, p := range periods {
		if recs, ok := s.Records[p]; ok {
			out[p] = recs
		}
	}
	return out, nil
}

// MemoryReportStore keeps the most recent report in memory. It is both a
// PredictionSink and a ReportStore.
type MemoryReportStore struct {
	mu     sync.RWMutex
	latest *models.ForecastReport
}

// NewMemoryReportStore creates an empty store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{}
}

func (m *MemoryReportStore) Name() string { return "memory" }

func (m *MemoryReportStore) Write(_ context.Context, report models.ForecastReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &report
	return nil
}

// Latest returns the stored report, or nil when nothing has been written.
func (m *MemoryReportStore) Latest(_ context.Context) (*models.ForecastReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, nil
}
