package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/zombar/visumax/internal/models"
)

// setupTestDB returns a path for a fresh database file that is removed with
// the test's temp directory.
func setupTestDB(t *testing.T, testName string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), testName+".db")
}

// setupTestDatabase opens and migrates a fresh database
func setupTestDatabase(t *testing.T) *DB {
	t.Helper()

	db, err := New(setupTestDB(t, "queries"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func createTestResult(id string, total int, createdAt time.Time) *models.AnalysisResult {
	url := fmt.Sprintf("https://cdn.example.com/analyses/%s.jpg", id)
	return &models.AnalysisResult{
		ID:     id,
		Gender: models.GenderFemale,
		Scores: models.ScoreSet{Total: total, Eyes: 80, Nose: 70, Skin: 70, Jawline: 70, Hair: 60},
		DetailedScores: models.DetailedScores{
			Eyes: 8, Nose: 7, Skin: 7, Jawline: 7, Hair: 6,
		},
		Percentile: 30,
		ImageURL:   &url,
		Advice: models.Advice{
			Eyes:         []string{"Bright eyes"},
			Nose:         []string{},
			Skin:         []string{"Even tone"},
			Jawline:      []string{},
			Hair:         []string{},
			Improvements: []string{"Use moisturizer"},
		},
		ScoringVersion: "v1",
		CreatedAt:      createdAt,
	}
}
