// Package ingestion reads per-period withdrawal sheets into PeriodRecords.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/internal/utils"
)

const (
	defaultUOM      = "Units"
	defaultCategory = "Unknown"
)

// CSVSource loads one CSV file per period from a directory.
type CSVSource struct {
	dir     string
	pattern string
	logger  *logrus.Logger
}

// NewCSVSource creates a source reading cfg.InputDir.
func NewCSVSource(cfg config.IngestionConfig, logger *logrus.Logger) *CSVSource {
	pattern := cfg.FilePattern
	if pattern == "" {
		pattern = "*.csv"
	}
	return &CSVSource{dir: cfg.InputDir, pattern: pattern, logger: logger}
}

// LoadPeriods matches files to period labels and parses each one. Periods
// without a file, or whose file yields no rows, are absent from the result.
func (s *CSVSource) LoadPeriods(ctx context.Context, periods []string) (map[string][]models.PeriodRecord, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, s.pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", s.pattern, err)
	}
	if len(files) == 0 {
		return nil, &utils.MissingInputError{Source: s.dir, Err: errors.New("no period files found")}
	}
	sort.Strings(files)

	out := make(map[string][]models.PeriodRecord, len(periods))
	for _, label := range periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, ok := MatchPeriodFile(label, files)
		if !ok {
			s.logger.WithField("period", label).Warn("No file for period")
			continue
		}

		records, err := s.loadFile(path, label)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"period": label, "file": path}).WithError(err).Warn("Skipping unreadable period file")
			continue
		}
		if len(records) == 0 {
			s.logger.WithFields(logrus.Fields{"period": label, "file": path}).Warn("Period file has no usable rows")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"period": label,
			"file":   filepath.Base(path),
			"rows":   len(records),
		}).Info("Loaded period file")
		out[label] = records
	}
	return out, nil
}

func (s *CSVSource) loadFile(path, label string) ([]models.PeriodRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRecords(f, label)
}

// MatchPeriodFile picks the file for a period label. An exact stem match
// (case-insensitive, trimmed) wins over a stem that starts with the label.
func MatchPeriodFile(label string, files []string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	if want == "" {
		return "", false
	}

	prefix := ""
	for _, path := range files {
		base := filepath.Base(path)
		stem := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))))
		if stem == want {
			return path, true
		}
		if prefix == "" && strings.HasPrefix(stem, want) {
			prefix = path
		}
	}
	return prefix, prefix != ""
}

// columnLayout maps sniffed header positions to record fields. Missing
// fields are -1.
type columnLayout struct {
	item, uom, price, opening, received, category int
	days                                          map[int]int
	maxDay                                        int
}

// sniffColumns recognizes the sheet columns from their header text.
func sniffColumns(header []string) columnLayout {
	l := columnLayout{item: -1, uom: -1, price: -1, opening: -1, received: -1, category: -1, days: make(map[int]int)}

	set := func(field *int, i int) {
		if *field == -1 {
			*field = i
		}
	}

	for i, raw := range header {
		col := strings.ToUpper(strings.TrimSpace(raw))

		if isDigits(col) {
			if day, err := strconv.Atoi(col); err == nil && day >= 1 && day <= models.MaxDailyColumns {
				if _, dup := l.days[day]; !dup {
					l.days[day] = i
				}
				l.maxDay = max(l.maxDay, day)
			}
			continue
		}

		switch {
		case i <= 2 && (strings.Contains(col, "ITEM") || strings.Contains(col, "DESCRIPTION")):
			set(&l.item, i)
		case strings.Contains(col, "UOM") || (i == 3 && len(col) < 10):
			set(&l.uom, i)
		case strings.Contains(col, "PRICE"):
			set(&l.price, i)
		case strings.Contains(col, "OPENING") && strings.Contains(col, "STOCK"):
			set(&l.opening, i)
		case strings.Contains(col, "RECEIVED") && strings.Contains(col, "STOCK"):
			set(&l.received, i)
		case strings.Contains(col, "TYPE") || strings.Contains(col, "CATEGORY") || strings.Contains(col, "CONSUMABLE"):
			set(&l.category, i)
		}
	}

	if l.item == -1 && len(header) > 2 {
		l.item = 2
	}
	return l
}

// ParseRecords reads one period sheet. Rows are kept when their first cell
// is a serial number; sheets without serial numbers keep every row with a
// non-empty first cell.
func ParseRecords(r io.Reader, label string) ([]models.PeriodRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	layout := sniffColumns(header)

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if !isBlank(row) {
			rows = append(rows, row)
		}
	}

	rows = filterRows(rows)
	records := make([]models.PeriodRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, layout.record(row, label))
	}
	return records, nil
}

func (l columnLayout) record(row []string, label string) models.PeriodRecord {
	rec := models.PeriodRecord{
		ItemName:      cell(row, l.item),
		UOM:           orDefault(cell(row, l.uom), defaultUOM),
		Category:      orDefault(cell(row, l.category), defaultCategory),
		Price:         parseAmount(cell(row, l.price)),
		OpeningStock:  parseAmount(cell(row, l.opening)),
		ReceivedStock: parseAmount(cell(row, l.received)),
		Period:        label,
	}
	if l.maxDay > 0 {
		rec.DailyWithdrawals = make([]float64, l.maxDay)
		for day, idx := range l.days {
			rec.DailyWithdrawals[day-1] = parseAmount(cell(row, idx))
		}
	}
	return rec
}

func filterRows(rows [][]string) [][]string {
	var serial, named [][]string
	for _, row := range rows {
		first := strings.TrimSpace(row[0])
		if v, err := strconv.ParseFloat(first, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			serial = append(serial, row)
		}
		if first != "" && !strings.EqualFold(first, "nan") {
			named = append(named, row)
		}
	}
	if len(serial) > 0 {
		return serial
	}
	return named
}

// parseAmount reads a numeric cell. Unparseable and negative values are 0.
func parseAmount(raw string) float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
