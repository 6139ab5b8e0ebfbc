package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/session"
)

// SessionRepository provides PostgreSQL-backed session and record storage.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// PersistSession upserts the session header and counts.
func (r *SessionRepository) PersistSession(ctx context.Context, state session.State) error {
	var completedAt sql.NullTime
	if !state.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: state.CompletedAt, Valid: true}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_sessions
			(id, class_id, status, started_at, grace_window_seconds, completed_at,
			 total_students, present_count, late_count, absent_count, excused_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			total_students = EXCLUDED.total_students,
			present_count = EXCLUDED.present_count,
			late_count = EXCLUDED.late_count,
			absent_count = EXCLUDED.absent_count,
			excused_count = EXCLUDED.excused_count
	`,
		state.ID, state.ClassID, state.Status, state.StartedAt,
		int(state.GraceWindow/time.Second), completedAt,
		state.Counts.Total, state.Counts.Present, state.Counts.Late,
		state.Counts.Absent, state.Counts.Excused,
	)
	if err != nil {
		return fmt.Errorf("persisting session %s: %w", state.ID, err)
	}
	return nil
}

// PersistRecord upserts one attendance record.
func (r *SessionRepository) PersistRecord(ctx context.Context, sessionID string, record session.Record) error {
	var checkIn sql.NullTime
	if !record.CheckInTime.IsZero() {
		checkIn = sql.NullTime{Time: record.CheckInTime, Valid: true}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records
			(session_id, student_id, status, detection_method, algorithm_used,
			 confidence_score, check_in_time, note, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			detection_method = EXCLUDED.detection_method,
			algorithm_used = EXCLUDED.algorithm_used,
			confidence_score = EXCLUDED.confidence_score,
			check_in_time = EXCLUDED.check_in_time,
			note = EXCLUDED.note,
			updated_at = NOW()
	`,
		sessionID, record.StudentID, record.Status, record.Method,
		record.AlgorithmID, record.Confidence, checkIn, record.Note,
	)
	if err != nil {
		return fmt.Errorf("persisting record %s/%s: %w", sessionID, record.StudentID, err)
	}
	return nil
}

// LoadRecords returns the persisted records for a session, useful for
// inspecting terminal sessions the reconciler no longer tracks.
func (r *SessionRepository) LoadRecords(ctx context.Context, sessionID string) ([]session.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, status, detection_method, algorithm_used,
		       confidence_score, check_in_time, note
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY student_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying records for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var rec session.Record
		var checkIn sql.NullTime
		if err := rows.Scan(&rec.StudentID, &rec.Status, &rec.Method, &rec.AlgorithmID,
			&rec.Confidence, &checkIn, &rec.Note); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if checkIn.Valid {
			rec.CheckInTime = checkIn.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}
