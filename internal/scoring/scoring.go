// Package scoring derives display scores from validated metrics.
//
// The formulas are versioned. Results persisted under one version must keep
// their numbers, so any change to weights or rounding needs a new Version.
package scoring

import (
	"math"

	"github.com/zombar/visumax/internal/models"
)

// Version identifies the formulas below
const Version = "v1"

// Weights of each category in the total score. They sum to 1.
var Weights = map[models.CategoryName]float64{
	models.Eyes:    0.25,
	models.Nose:    0.20,
	models.Skin:    0.20,
	models.Jawline: 0.20,
	models.Hair:    0.15,
}

// CalculateScores averages each category's canonical sub-fields and rounds
// the mean half away from zero into [0,10].
func CalculateScores(m models.Metrics) models.DetailedScores {
	var d models.DetailedScores
	for _, name := range models.CategoryNames {
		d.Set(name, categoryScore(m.Get(name), models.CategoryFields[name]))
	}
	return d
}

func categoryScore(c models.Category, fields []string) int {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += c.Values[f]
	}
	return clampInt(int(math.Round(sum/float64(len(fields)))), 0, 10)
}

// CalculateTotalScores scales each category to 0-100 and combines them with
// Weights into the total.
func CalculateTotalScores(d models.DetailedScores) models.ScoreSet {
	var weighted float64
	for _, name := range models.CategoryNames {
		weighted += Weights[name] * float64(clampInt(d.Get(name), 0, 10))
	}

	return models.ScoreSet{
		Total:   clampInt(int(math.Round(weighted*10)), 0, 100),
		Eyes:    clampInt(d.Eyes, 0, 10) * 10,
		Nose:    clampInt(d.Nose, 0, 10) * 10,
		Skin:    clampInt(d.Skin, 0, 10) * 10,
		Jawline: clampInt(d.Jawline, 0, 10) * 10,
		Hair:    clampInt(d.Hair, 0, 10) * 10,
	}
}

// percentileBands maps a minimum total to the "top N%" figure shown with it
var percentileBands = []struct {
	min        int
	percentile int
}{
	{95, 1},
	{90, 3},
	{85, 5},
	{80, 10},
	{75, 20},
	{70, 30},
	{65, 40},
	{60, 50},
	{50, 65},
	{40, 80},
	{0, 99},
}

// CalculatePercentile returns the "top N%" figure for a total score. Higher
// totals never get a larger figure.
func CalculatePercentile(total int) int {
	for _, b := range percentileBands {
		if total >= b.min {
			return b.percentile
		}
	}
	return 99
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
