package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
)

// GalleryRepository provides PostgreSQL-backed gallery entry storage.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// SwapActive deactivates the current active entry for the pair and inserts
// the new one in a single transaction, so the unique active index never
// observes two active rows.
func (r *GalleryRepository) SwapActive(ctx context.Context, entry gallery.Entry) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE gallery_entries
		SET active = FALSE
		WHERE student_id = $1 AND algorithm_id = $2 AND active
	`, entry.StudentID, entry.AlgorithmID)
	if err != nil {
		return fmt.Errorf("deactivating previous entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gallery_entries (id, student_id, algorithm_id, vector, threshold, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, entry.ID, entry.StudentID, entry.AlgorithmID, pgvector.NewVector(entry.Vector), entry.Threshold, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting gallery entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing gallery swap: %w", err)
	}
	return nil
}

// DeactivateActive retires the active entry for the pair, if any.
func (r *GalleryRepository) DeactivateActive(ctx context.Context, studentID, algorithmID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE gallery_entries
		SET active = FALSE
		WHERE student_id = $1 AND algorithm_id = $2 AND active
	`, studentID, algorithmID)
	if err != nil {
		return fmt.Errorf("deactivating gallery entry: %w", err)
	}
	return nil
}

// ActiveEntries returns the active entries for the algorithm. An empty
// studentIDs slice means all students.
func (r *GalleryRepository) ActiveEntries(ctx context.Context, studentIDs []string, algorithmID string) ([]gallery.Entry, error) {
	query := `
		SELECT id, student_id, algorithm_id, vector, threshold, active, created_at
		FROM gallery_entries
		WHERE algorithm_id = $1 AND active
	`
	args := []any{algorithmID}
	if len(studentIDs) > 0 {
		query += " AND student_id = ANY($2)"
		args = append(args, pq.Array(studentIDs))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows.Next, rows.Scan, rows.Err)
}

// EntriesByStudent returns the student's full entry history, newest first.
func (r *GalleryRepository) EntriesByStudent(ctx context.Context, studentID string) ([]gallery.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, algorithm_id, vector, threshold, active, created_at
		FROM gallery_entries
		WHERE student_id = $1
		ORDER BY created_at DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("querying entry history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows.Next, rows.Scan, rows.Err)
}

func scanEntries(next func() bool, scan func(...any) error, rowsErr func() error) ([]gallery.Entry, error) {
	var entries []gallery.Entry
	for next() {
		var e gallery.Entry
		var vec pgvector.Vector
		if err := scan(&e.ID, &e.StudentID, &e.AlgorithmID, &vec, &e.Threshold, &e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning gallery entry: %w", err)
		}
		e.Vector = vec.Slice()
		entries = append(entries, e)
	}
	if err := rowsErr(); err != nil {
		return nil, fmt.Errorf("iterating gallery entries: %w", err)
	}
	return entries, nil
}
