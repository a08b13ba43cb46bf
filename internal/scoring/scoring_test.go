package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zombar/visumax/internal/analyzer"
	"github.com/zombar/visumax/internal/models"
)

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, name := range models.CategoryNames {
		sum += Weights[name]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCalculateScoresDefaults(t *testing.T) {
	d := CalculateScores(analyzer.DefaultMetrics())
	assert.Equal(t, models.DetailedScores{Eyes: 7, Nose: 7, Skin: 7, Jawline: 7, Hair: 7}, d)

	s := CalculateTotalScores(d)
	assert.Equal(t, models.ScoreSet{Total: 70, Eyes: 70, Nose: 70, Skin: 70, Jawline: 70, Hair: 70}, s)
}

func TestCalculateScoresRounding(t *testing.T) {
	m := analyzer.DefaultMetrics()
	m.Eyes.Values = map[string]float64{"size": 8, "shape": 9, "balance": 8}   // 8.33
	m.Nose.Values = map[string]float64{"height": 6, "bridge": 6, "shape": 6.5} // 6.17
	m.Skin.Values = map[string]float64{"texture": 10, "tone": 9, "clarity": 9.5}
	m.Jawline.Values = map[string]float64{"definition": 0, "balance": 0, "angle": 1.5}
	m.Hair.Values = map[string]float64{"quality": 5, "volume": 5, "style": 5.5} // 5.1667

	d := CalculateScores(m)
	assert.Equal(t, 8, d.Eyes)
	assert.Equal(t, 6, d.Nose)
	assert.Equal(t, 10, d.Skin)
	assert.Equal(t, 1, d.Jawline)
	assert.Equal(t, 5, d.Hair)
}

func TestCalculateScoresHalfRoundsUp(t *testing.T) {
	m := analyzer.DefaultMetrics()
	m.Eyes.Values = map[string]float64{"size": 6, "shape": 7, "balance": 6.5} // exactly 6.5
	assert.Equal(t, 7, CalculateScores(m).Eyes)
}

func TestCalculateScoresIgnoresForeignFields(t *testing.T) {
	m := analyzer.DefaultMetrics()
	m.Eyes.Values["volume"] = 0
	m.Eyes.Values["angle"] = 0
	assert.Equal(t, 7, CalculateScores(m).Eyes)
}

func TestCalculateScoresMissingFieldCountsAsZero(t *testing.T) {
	m := analyzer.DefaultMetrics()
	m.Hair.Values = map[string]float64{"quality": 9}
	assert.Equal(t, 3, CalculateScores(m).Hair)
}

func TestCalculateTotalScores(t *testing.T) {
	tests := []struct {
		name string
		in   models.DetailedScores
		want int
	}{
		{"all max", models.DetailedScores{Eyes: 10, Nose: 10, Skin: 10, Jawline: 10, Hair: 10}, 100},
		{"all zero", models.DetailedScores{}, 0},
		{"weighted", models.DetailedScores{Eyes: 9, Nose: 6, Skin: 10, Jawline: 1, Hair: 5}, 64},
		{"eyes only", models.DetailedScores{Eyes: 10}, 25},
		{"hair only", models.DetailedScores{Hair: 10}, 15},
		{"out of range input is clamped", models.DetailedScores{Eyes: 14, Nose: -3, Skin: 10, Jawline: 10, Hair: 10}, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotalScores(tt.in)
			assert.Equal(t, tt.want, got.Total)
			assert.GreaterOrEqual(t, got.Total, 0)
			assert.LessOrEqual(t, got.Total, 100)
		})
	}
}

func TestScoringIsPure(t *testing.T) {
	m := analyzer.DefaultMetrics()
	m.Skin.Values["tone"] = 3.3

	first := CalculateTotalScores(CalculateScores(m))
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, CalculateTotalScores(CalculateScores(m)))
	}
	assert.Equal(t, 3.3, m.Skin.Values["tone"], "input must not be modified")
}

func TestCalculatePercentile(t *testing.T) {
	assert.Equal(t, 1, CalculatePercentile(100))
	assert.Equal(t, 30, CalculatePercentile(70))
	assert.Equal(t, 99, CalculatePercentile(0))
	assert.Equal(t, 99, CalculatePercentile(-10))

	prev := math.MaxInt
	for total := 0; total <= 100; total++ {
		p := CalculatePercentile(total)
		assert.GreaterOrEqual(t, p, 1)
		assert.LessOrEqual(t, p, 99)
		assert.LessOrEqual(t, p, prev, "total=%d", total)
		prev = p
	}
}
