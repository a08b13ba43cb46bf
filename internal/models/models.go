package models

import "time"

// Gender selects the prompt variant and progress stage labels
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a supported demographic variant
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// CategoryName identifies one of the five facial attribute groups
type CategoryName string

const (
	Eyes    CategoryName = "eyes"
	Nose    CategoryName = "nose"
	Skin    CategoryName = "skin"
	Jawline CategoryName = "jawline"
	Hair    CategoryName = "hair"
)

// CategoryNames lists the categories in display order
var CategoryNames = []CategoryName{Eyes, Nose, Skin, Jawline, Hair}

// CategoryFields maps each category to its canonical numeric sub-fields
var CategoryFields = map[CategoryName][]string{
	Eyes:    {"size", "shape", "balance"},
	Nose:    {"height", "bridge", "shape"},
	Skin:    {"texture", "tone", "clarity"},
	Jawline: {"definition", "balance", "angle"},
	Hair:    {"quality", "volume", "style"},
}

// NumericFields is the closed list of sub-field names known to any category
var NumericFields = []string{
	"size", "shape", "balance", "height", "bridge", "texture",
	"tone", "clarity", "definition", "angle", "quality", "volume", "style",
}

const (
	MinFieldValue = 0.0
	MaxFieldValue = 10.0
)

// Category holds the numeric sub-fields of one facial attribute group together
// with the model's findings and suggestions.
type Category struct {
	Values      map[string]float64 `json:"-"`
	Analysis    []string           `json:"analysis"`
	Improvement []string           `json:"improvement"`
}

// Clone returns a deep copy
func (c Category) Clone() Category {
	values := make(map[string]float64, len(c.Values))
	for k, v := range c.Values {
		values[k] = v
	}
	return Category{
		Values:      values,
		Analysis:    append([]string{}, c.Analysis...),
		Improvement: append([]string{}, c.Improvement...),
	}
}

// Metrics is the full per-category measurement set. Always fully populated.
type Metrics struct {
	Eyes    Category `json:"eyes"`
	Nose    Category `json:"nose"`
	Skin    Category `json:"skin"`
	Jawline Category `json:"jawline"`
	Hair    Category `json:"hair"`
}

// Get returns the category stored under name
func (m Metrics) Get(name CategoryName) Category {
	switch name {
	case Eyes:
		return m.Eyes
	case Nose:
		return m.Nose
	case Skin:
		return m.Skin
	case Jawline:
		return m.Jawline
	case Hair:
		return m.Hair
	}
	return Category{}
}

// Set replaces the category stored under name
func (m *Metrics) Set(name CategoryName, c Category) {
	switch name {
	case Eyes:
		m.Eyes = c
	case Nose:
		m.Nose = c
	case Skin:
		m.Skin = c
	case Jawline:
		m.Jawline = c
	case Hair:
		m.Hair = c
	}
}

// Clone returns a deep copy
func (m Metrics) Clone() Metrics {
	var out Metrics
	for _, name := range CategoryNames {
		out.Set(name, m.Get(name).Clone())
	}
	return out
}

// DetailedScores holds one integer score in [0,10] per category
type DetailedScores struct {
	Eyes    int `json:"eyes"`
	Nose    int `json:"nose"`
	Skin    int `json:"skin"`
	Jawline int `json:"jawline"`
	Hair    int `json:"hair"`
}

// Get returns the score for name
func (d DetailedScores) Get(name CategoryName) int {
	switch name {
	case Eyes:
		return d.Eyes
	case Nose:
		return d.Nose
	case Skin:
		return d.Skin
	case Jawline:
		return d.Jawline
	case Hair:
		return d.Hair
	}
	return 0
}

// Set stores the score for name
func (d *DetailedScores) Set(name CategoryName, score int) {
	switch name {
	case Eyes:
		d.Eyes = score
	case Nose:
		d.Nose = score
	case Skin:
		d.Skin = score
	case Jawline:
		d.Jawline = score
	case Hair:
		d.Hair = score
	}
}

// ScoreSet holds the display scores (0-100) and the weighted total
type ScoreSet struct {
	Total   int `json:"total"`
	Eyes    int `json:"eyes"`
	Nose    int `json:"nose"`
	Skin    int `json:"skin"`
	Jawline int `json:"jawline"`
	Hair    int `json:"hair"`
}

// Advice gathers the textual findings of every category
type Advice struct {
	Eyes         []string `json:"eyes"`
	Nose         []string `json:"nose"`
	Skin         []string `json:"skin"`
	Jawline      []string `json:"jawline"`
	Hair         []string `json:"hair"`
	Improvements []string `json:"improvements"`
}

// AnalysisResult is the caller-facing outcome of one face analysis
type AnalysisResult struct {
	ID             string         `json:"id"`
	Gender         Gender         `json:"gender"`
	Scores         ScoreSet       `json:"scores"`
	DetailedScores DetailedScores `json:"detailed_scores"`
	Percentile     int            `json:"percentile"`
	ImageURL       *string        `json:"image_url"`
	Advice         Advice         `json:"advice"`
	ScoringVersion string         `json:"scoring_version"`
	Fallback       bool           `json:"fallback"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewAdvice collects analysis and improvement text from m in category order
func NewAdvice(m Metrics) Advice {
	improvements := []string{}
	for _, name := range CategoryNames {
		improvements = append(improvements, m.Get(name).Improvement...)
	}
	return Advice{
		Eyes:         nonNil(append([]string{}, m.Eyes.Analysis...)),
		Nose:         nonNil(append([]string{}, m.Nose.Analysis...)),
		Skin:         nonNil(append([]string{}, m.Skin.Analysis...)),
		Jawline:      nonNil(append([]string{}, m.Jawline.Analysis...)),
		Hair:         nonNil(append([]string{}, m.Hair.Analysis...)),
		Improvements: improvements,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
