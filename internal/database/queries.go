package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/visumax/internal/models"
)

// ErrNotFound is returned when no analysis has the requested ID
var ErrNotFound = errors.New("analysis not found")

// timeLayout is fixed-width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const tracerName = "github.com/zombar/visumax/internal/database"

// SaveResult stores an analysis result
func (db *DB) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "database.save_result")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.id", result.ID))

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO analyses (id, gender, total_score, percentile, image_url, fallback, scoring_version, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		string(result.Gender),
		result.Scores.Total,
		result.Percentile,
		result.ImageURL,
		result.Fallback,
		result.ScoringVersion,
		string(resultJSON),
		result.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	return nil
}

// GetResult retrieves an analysis result by ID
func (db *DB) GetResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	var resultJSON string
	err := db.conn.QueryRowContext(ctx, `SELECT result FROM analyses WHERE id = ?`, id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return decodeResult(resultJSON)
}

// ListResults returns results newest first
func (db *DB) ListResults(ctx context.Context, limit, offset int) ([]*models.AnalysisResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT result FROM analyses
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	results := []*models.AnalysisResult{}
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		r, err := decodeResult(resultJSON)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return results, nil
}

// CountResults returns the number of stored results
func (db *DB) CountResults(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return n, nil
}

// DeleteResult deletes an analysis result by ID
func (db *DB) DeleteResult(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// PurgeBefore deletes results created before cutoff and returns how many
// were removed.
func (db *DB) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM analyses WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to purge analyses: %w", err)
	}
	return result.RowsAffected()
}

func decodeResult(resultJSON string) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &r, nil
}
