package main

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/irfndi/stockcast-go/internal/models"
)

// printSummary writes the console overview of a finished run.
func printSummary(w io.Writer, report models.ForecastReport, tag language.Tag) {
	p := message.NewPrinter(tag)
	s := report.Summary

	p.Fprintf(w, "Forecast for %s (run %s)\n", s.TargetPeriod, s.RunID)
	p.Fprintf(w, "  Items analyzed:          %d\n", s.TotalItems)
	p.Fprintf(w, "  Total monthly quantity:  %d\n", s.TotalPredictedQuantity)
	p.Fprintf(w, "  Estimated value:         %.2f\n", s.TotalEstimatedValue.InexactFloat64())
	p.Fprintf(w, "  Average confidence:      %.1f%%\n", s.AverageConfidence)
	p.Fprintf(w, "  Confidence high/med/low: %d / %d / %d\n", s.Confidence.High, s.Confidence.Medium, s.Confidence.Low)
	p.Fprintf(w, "  Risk high/med/low:       %d / %d / %d\n",
		s.RiskDistribution[models.RiskHigh], s.RiskDistribution[models.RiskMedium], s.RiskDistribution[models.RiskLow])
	p.Fprintf(w, "  High priority items:     %d\n", len(report.HighPriorityItems))
	if len(report.Dropped) > 0 {
		p.Fprintf(w, "  Dropped records:         %d\n", len(report.Dropped))
	}
}
