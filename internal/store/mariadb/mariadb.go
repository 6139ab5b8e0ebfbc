// Package mariadb reads class rosters from the legacy student information
// system. The engine never writes to it.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// LoadRoster returns the student ids currently enrolled in the class.
func (p *Pool) LoadRoster(ctx context.Context, classID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT student_id
		FROM enrollments
		WHERE class_id = ? AND dropped_at IS NULL
		ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("querying roster for class %s: %w", classID, err)
	}
	defer rows.Close()

	var students []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning student id: %w", err)
		}
		students = append(students, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster: %w", err)
	}
	return students, nil
}

// Student is a directory row from the student information system.
type Student struct {
	ID   string
	Name string
}

// FindStudentByName looks a student up by display name, tolerating
// diacritics and case differences between the SIS and what teachers type.
func (p *Pool) FindStudentByName(ctx context.Context, name string) (*Student, error) {
	normalized := NormalizePersonName(name)

	rows, err := p.db.QueryContext(ctx, `SELECT id, full_name FROM students`)
	if err != nil {
		return nil, fmt.Errorf("querying students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		if NormalizePersonName(s.Name) == normalized {
			return &s, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return nil, nil
}
