package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/session"
)

// AlertRepository writes alert intents to the absence_alerts outbox table.
// A separate consumer picks rows up and handles delivery.
type AlertRepository struct {
	pool *Pool
}

// NewAlertRepository creates a new PostgreSQL alert repository.
func NewAlertRepository(pool *Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// EmitAbsenceIntent appends one intent row to the outbox.
func (r *AlertRepository) EmitAbsenceIntent(ctx context.Context, intent session.AlertIntent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO absence_alerts (session_id, student_id, alert_type, reason)
		VALUES ($1, $2, $3, $4)
	`, intent.SessionID, intent.StudentID, intent.Type, intent.Reason)
	if err != nil {
		return fmt.Errorf("writing alert intent for %s: %w", intent.StudentID, err)
	}
	return nil
}

// UndeliveredAlerts returns intents no consumer has delivered yet, oldest
// first.
func (r *AlertRepository) UndeliveredAlerts(ctx context.Context, limit int) ([]session.AlertIntent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, student_id, alert_type, reason
		FROM absence_alerts
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying undelivered alerts: %w", err)
	}
	defer rows.Close()

	var intents []session.AlertIntent
	for rows.Next() {
		var intent session.AlertIntent
		if err := rows.Scan(&intent.SessionID, &intent.StudentID, &intent.Type, &intent.Reason); err != nil {
			return nil, fmt.Errorf("scanning alert intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert intents: %w", err)
	}
	return intents, nil
}
