package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/infrastructure/database"
)

const defaultListLimit = 50

// ReportRepository archives every emitted report with its delivery outcome
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a new report repository
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

const insertReportSQL = `
INSERT INTO honeypot_reports (
	id, session_id, status, attempts, status_code, last_error,
	scam_type, confidence, total_messages, duration_seconds,
	payload, created_at, delivered_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

// Insert stores a report record. Re-inserting the same ID is a no-op.
func (r *ReportRepository) Insert(ctx context.Context, rec *models.ReportRecord) error {
	payload, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report payload: %w", err)
	}

	_, err = r.db.Exec(ctx, insertReportSQL,
		rec.ID,
		rec.Report.SessionID,
		string(rec.Status),
		rec.Attempts,
		nullableInt(rec.StatusCode),
		nullableString(rec.LastError),
		string(rec.Report.ScamType),
		rec.Report.ConfidenceLevel,
		rec.Report.TotalMessagesExchanged,
		rec.Report.EngagementDurationSeconds,
		payload,
		rec.CreatedAt,
		rec.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// ObserveReport archives each finished delivery
func (r *ReportRepository) ObserveReport(ctx context.Context, rec *models.ReportRecord) error {
	return r.Insert(ctx, rec)
}

const listBySessionSQL = `
SELECT id, status, attempts, COALESCE(status_code, 0), COALESCE(last_error, ''),
       payload, created_at, delivered_at
FROM honeypot_reports
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2`

// ListBySession returns a session's reports, newest first
func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ReportRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Query(ctx, listBySessionSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanReport)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}
	return records, nil
}

// StatusCounts returns the number of archived reports per delivery status
func (r *ReportRepository) StatusCounts(ctx context.Context) (map[models.DeliveryStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM honeypot_reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeliveryStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan report count: %w", err)
		}
		counts[models.DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanReport(row pgx.CollectableRow) (*models.ReportRecord, error) {
	var (
		rec         models.ReportRecord
		status      string
		payload     []byte
		deliveredAt *time.Time
	)
	if err := row.Scan(&rec.ID, &status, &rec.Attempts, &rec.StatusCode, &rec.LastError, &payload, &rec.CreatedAt, &deliveredAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report payload: %w", err)
	}
	rec.Status = models.DeliveryStatus(status)
	rec.DeliveredAt = deliveredAt
	return &rec, nil
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
