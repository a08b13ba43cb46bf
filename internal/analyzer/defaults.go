package analyzer

import "github.com/zombar/visumax/internal/models"

// DefaultFieldValue is the neutral score used when the model gives nothing usable
const DefaultFieldValue = 7.0

var defaultText = map[models.CategoryName]struct{ analysis, improvement string }{
	models.Eyes: {
		"Your eyes are well shaped.",
		"A few tips can make your eye area stand out even more.",
	},
	models.Nose: {
		"Your nose line is well balanced.",
		"Subtle contouring can add more definition.",
	},
	models.Skin: {
		"Your skin gives a healthy impression.",
		"A steady skincare routine can add more clarity.",
	},
	models.Jawline: {
		"Your face line is well defined.",
		"Some habits can bring out your jawline further.",
	},
	models.Hair: {
		"Your hair gives a healthy impression.",
		"The right care can improve your hair texture.",
	},
}

// DefaultMetrics returns the fallback measurements. Each call returns a fresh
// copy that the caller may modify.
func DefaultMetrics() models.Metrics {
	var m models.Metrics
	for _, name := range models.CategoryNames {
		values := make(map[string]float64, 3)
		for _, field := range models.CategoryFields[name] {
			values[field] = DefaultFieldValue
		}
		text := defaultText[name]
		m.Set(name, models.Category{
			Values:      values,
			Analysis:    []string{text.analysis},
			Improvement: []string{text.improvement},
		})
	}
	return m
}
