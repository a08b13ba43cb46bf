package analyzer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/visumax/internal/models"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestValidateCategoryNonObjectReturnsDefault(t *testing.T) {
	def := DefaultMetrics().Eyes

	for _, raw := range []interface{}{nil, "eyes", 5.0, true, []interface{}{1.0, 2.0}} {
		got := ValidateCategory(raw, def)
		assert.Equal(t, def, got, "raw=%v", raw)
	}
}

func TestValidateCategoryReturnsCopy(t *testing.T) {
	def := DefaultMetrics().Eyes
	got := ValidateCategory(nil, def)

	got.Values["size"] = 1
	got.Analysis[0] = "changed"

	assert.Equal(t, DefaultFieldValue, def.Values["size"])
	assert.NotEqual(t, "changed", def.Analysis[0])
}

func TestValidateCategoryClampsAndCoerces(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"in range", `{"size": 8.5}`, 8.5},
		{"above range", `{"size": 15}`, 10},
		{"below range", `{"size": -5}`, 0},
		{"numeric string", `{"size": "6"}`, 6},
		{"padded string", `{"size": "  9 "}`, 9},
		{"empty string", `{"size": ""}`, 0},
		{"true", `{"size": true}`, 1},
		{"false", `{"size": false}`, 0},
		{"null", `{"size": null}`, 0},
		{"single element array", `{"size": [4]}`, 4},
		{"nested single element", `{"size": [["3"]]}`, 3},
		{"empty array", `{"size": []}`, 0},
		{"exponent", `{"size": "5e-1"}`, 0.5},
		{"hex string", `{"size": "0x8"}`, 8},
		{"infinity", `{"size": "Infinity"}`, 10},
		{"negative infinity", `{"size": "-Infinity"}`, 0},
		{"text keeps default", `{"size": "large"}`, DefaultFieldValue},
		{"nan keeps default", `{"size": "NaN"}`, DefaultFieldValue},
		{"object keeps default", `{"size": {"v": 3}}`, DefaultFieldValue},
		{"long array keeps default", `{"size": [1, 2]}`, DefaultFieldValue},
		{"bool in array keeps default", `{"size": [true]}`, DefaultFieldValue},
		{"go-only spelling keeps default", `{"size": "inf"}`, DefaultFieldValue},
		{"underscore keeps default", `{"size": "1_0"}`, DefaultFieldValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateCategory(decode(t, tt.raw), DefaultMetrics().Eyes)
			assert.InDelta(t, tt.want, got.Values["size"], 1e-9)
			assert.Equal(t, DefaultFieldValue, got.Values["shape"])
			assert.Equal(t, DefaultFieldValue, got.Values["balance"])
		})
	}
}

func TestValidateCategoryRecordsKnownForeignFields(t *testing.T) {
	got := ValidateCategory(decode(t, `{"size": 3, "volume": 11, "unknown": 2}`), DefaultMetrics().Eyes)

	assert.Equal(t, 3.0, got.Values["size"])
	assert.Equal(t, 10.0, got.Values["volume"])
	_, ok := got.Values["unknown"]
	assert.False(t, ok)
}

func TestValidateCategoryTextLists(t *testing.T) {
	def := DefaultMetrics().Nose

	got := ValidateCategory(decode(t, `{"analysis": ["straight", 4, null, "refined"], "improvement": "not a list"}`), def)
	assert.Equal(t, []string{"straight", "refined"}, got.Analysis)
	assert.Equal(t, def.Improvement, got.Improvement)

	got = ValidateCategory(decode(t, `{"analysis": [], "improvement": []}`), def)
	assert.NotNil(t, got.Analysis)
	assert.Empty(t, got.Analysis)
	assert.Empty(t, got.Improvement)
}

func TestValidateCategoryAlwaysInRange(t *testing.T) {
	inputs := []string{
		`{"height": 1e308, "bridge": -1e308, "shape": "99"}`,
		`{"height": "0b101", "bridge": "0o17", "shape": [[[]]]}`,
		`{"height": "12abc", "bridge": "", "shape": -0}`,
	}
	for _, in := range inputs {
		got := ValidateCategory(decode(t, in), DefaultMetrics().Nose)
		for field, v := range got.Values {
			assert.GreaterOrEqual(t, v, models.MinFieldValue, "%s in %s", field, in)
			assert.LessOrEqual(t, v, models.MaxFieldValue, "%s in %s", field, in)
		}
		assert.NotNil(t, got.Analysis)
		assert.NotNil(t, got.Improvement)
	}
}

func TestValidateMetrics(t *testing.T) {
	m := ValidateMetrics(decode(t, `{"eyes": {"size": 12, "analysis": ["ok"]}, "skin": "n/a", "hair": {"style": 2}}`))
	defaults := DefaultMetrics()

	assert.Equal(t, 10.0, m.Eyes.Values["size"])
	assert.Equal(t, []string{"ok"}, m.Eyes.Analysis)
	assert.Equal(t, defaults.Eyes.Improvement, m.Eyes.Improvement)
	assert.Equal(t, defaults.Nose, m.Nose)
	assert.Equal(t, defaults.Skin, m.Skin)
	assert.Equal(t, 2.0, m.Hair.Values["style"])

	assert.Equal(t, defaults, ValidateMetrics("not an object"))
	assert.Equal(t, defaults, ValidateMetrics(nil))
}

func TestDefaultMetricsShape(t *testing.T) {
	m := DefaultMetrics()
	for _, name := range models.CategoryNames {
		c := m.Get(name)
		require.Len(t, c.Values, len(models.CategoryFields[name]), name)
		for _, field := range models.CategoryFields[name] {
			assert.Equal(t, DefaultFieldValue, c.Values[field], "%s.%s", name, field)
		}
		assert.Len(t, c.Analysis, 1)
		assert.Len(t, c.Improvement, 1)
	}

	m.Eyes.Values["size"] = 0
	assert.Equal(t, DefaultFieldValue, DefaultMetrics().Eyes.Values["size"])
}
