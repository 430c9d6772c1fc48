package services

import (
	"strings"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
)

// BusinessRules flags critical and seasonal items by name and looks up the
// category multiplier.
type BusinessRules struct {
	criticalKeywords []string
	seasonalKeywords []string
	config           config.BusinessRulesConfig
}

// NewBusinessRules creates the rule set from configuration.
func NewBusinessRules(cfg config.BusinessRulesConfig) *BusinessRules {
	return &BusinessRules{
		criticalKeywords: lowerAll(cfg.CriticalKeywords),
		seasonalKeywords: lowerAll(cfg.SeasonalKeywords),
		config:           cfg,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsCritical reports whether the item name contains a critical keyword.
func (b *BusinessRules) IsCritical(itemName string) bool {
	return containsAny(itemName, b.criticalKeywords)
}

// IsSeasonal reports whether the item name contains a seasonal keyword.
func (b *BusinessRules) IsSeasonal(itemName string) bool {
	return containsAny(itemName, b.seasonalKeywords)
}

// CategoryMultiplier returns the configured multiplier, 1.0 if none.
func (b *BusinessRules) CategoryMultiplier(category string) float64 {
	return b.config.CategoryMultiplier(category)
}

// Apply sets the business flags on a summary.
func (b *BusinessRules) Apply(s *models.WithdrawalSummary) {
	s.IsCritical = b.IsCritical(s.ItemName)
	s.IsSeasonal = b.IsSeasonal(s.ItemName)
	s.CategoryMultiplier = b.CategoryMultiplier(s.Category)
}

// CleanItemName trims a raw item name and reports whether it is usable.
func CleanItemName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, "nan") || len([]rune(name)) < 2 {
		return name, false
	}
	return name, true
}
