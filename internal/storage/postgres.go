/**
 * PostgreSQL client for the label scan worker
 *
 * Persists extraction job state and results for the food-log API to read.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// JobStatus values stored in the extraction_jobs table.
const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents one job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Progress         int
	OverallScore     float64
	SuccessRating    string
	ProcessingTimeMs int64
	LineCount        int
	MatchCount       int
	ErrorCode        string
	ErrorMessage     string
	Result           map[string]interface{}
}

// sanitizeConfidence rounds a confidence to 4 decimal places and clamps it
// to [0,1]. Raw float64 scores can carry excess precision (0.9632000000000001)
// which trips NUMERIC casting on the API side.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts job state. The worker creates the row on the
// first status update when the API has not created it yet.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedScore := sanitizeConfidence(update.OverallScore)

	resultJSON, err := json.Marshal(update.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO labelscan.extraction_jobs (
			id, status, progress, overall_score, success_rating,
			processing_time_ms, line_count, match_count,
			error_code, error_message, result,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, NULLIF($4::NUMERIC(5,4), 0), NULLIF($5, ''),
			NULLIF($6, 0), NULLIF($7, 0), NULLIF($8, 0),
			NULLIF($9, ''), NULLIF($10, ''), COALESCE($11::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = GREATEST(EXCLUDED.progress, labelscan.extraction_jobs.progress),
			overall_score = COALESCE(NULLIF(EXCLUDED.overall_score::NUMERIC(5,4), 0), labelscan.extraction_jobs.overall_score),
			success_rating = COALESCE(EXCLUDED.success_rating, labelscan.extraction_jobs.success_rating),
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), labelscan.extraction_jobs.processing_time_ms),
			line_count = COALESCE(NULLIF(EXCLUDED.line_count, 0), labelscan.extraction_jobs.line_count),
			match_count = COALESCE(NULLIF(EXCLUDED.match_count, 0), labelscan.extraction_jobs.match_count),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			result = COALESCE(EXCLUDED.result, labelscan.extraction_jobs.result),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.Status,
		update.Progress,
		sanitizedScore,
		update.SuccessRating,
		update.ProcessingTimeMs,
		update.LineCount,
		update.MatchCount,
		update.ErrorCode,
		update.ErrorMessage,
		resultJSON,
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, score=%.4f): %w",
			update.JobID, update.Status, sanitizedScore, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			status,
			progress,
			overall_score,
			success_rating,
			processing_time_ms,
			line_count,
			match_count,
			error_code,
			error_message,
			result,
			created_at,
			updated_at
		FROM labelscan.extraction_jobs
		WHERE id = $1::uuid
	`

	var (
		id, status              sql.NullString
		progress                sql.NullInt64
		overallScore            sql.NullFloat64
		successRating           sql.NullString
		processingTimeMs        sql.NullInt64
		lineCount, matchCount   sql.NullInt64
		errorCode, errorMessage sql.NullString
		resultJSON              []byte
		createdAt, updatedAt    time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &status, &progress, &overallScore, &successRating,
		&processingTimeMs, &lineCount, &matchCount,
		&errorCode, &errorMessage, &resultJSON,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var result map[string]interface{}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	row := map[string]interface{}{
		"id":        id.String,
		"status":    status.String,
		"result":    result,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
	}

	if progress.Valid {
		row["progress"] = progress.Int64
	}
	if overallScore.Valid {
		row["overallScore"] = overallScore.Float64
	}
	if successRating.Valid {
		row["successRating"] = successRating.String
	}
	if processingTimeMs.Valid {
		row["processingTimeMs"] = processingTimeMs.Int64
	}
	if lineCount.Valid {
		row["lineCount"] = lineCount.Int64
	}
	if matchCount.Valid {
		row["matchCount"] = matchCount.Int64
	}
	if errorCode.Valid {
		row["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		row["errorMessage"] = errorMessage.String
	}

	return row, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
