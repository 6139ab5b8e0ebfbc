// Package session reconciles match verdicts against attendance sessions.
// Each session is a small state machine: started with a frozen roster seeded
// all-absent, upgraded record by record as verdicts arrive, and closed exactly
// once with finalized counts and absence alerts.
package session

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a session. Completed and Cancelled are
// terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// RecordStatus is the attendance outcome for one student in one session.
type RecordStatus string

const (
	RecordPresent RecordStatus = "present"
	RecordAbsent  RecordStatus = "absent"
	RecordLate    RecordStatus = "late"
	RecordExcused RecordStatus = "excused"
)

// DetectionMethod records how a status was established.
type DetectionMethod string

const (
	MethodFaceRecognition DetectionMethod = "face_recognition"
	MethodManual          DetectionMethod = "manual"
)

// State machine misuse errors. These indicate a caller bug, not a transient
// condition, and are never retried by the reconciler.
var (
	ErrAlreadyActive  = errors.New("session already exists")
	ErrNotActive      = errors.New("session is not active")
	ErrUnknownStudent = errors.New("student not in session roster")
	ErrUnknownStatus  = errors.New("unknown record status")
)

// Record is the attendance outcome for one (session, student) pair. Exactly
// one record exists per pair, created absent at session start.
type Record struct {
	StudentID   string          `json:"student_id"`
	Status      RecordStatus    `json:"status"`
	Method      DetectionMethod `json:"detection_method,omitempty"`
	AlgorithmID string          `json:"algorithm_used,omitempty"`
	Confidence  float64         `json:"confidence_score,omitempty"`
	CheckInTime time.Time       `json:"check_in_time,omitzero"`
	Note        string          `json:"note,omitempty"`
}

// Counts are the aggregate attendance numbers for a session.
type Counts struct {
	Total   int `json:"total_students"`
	Present int `json:"present_count"`
	Late    int `json:"late_count"`
	Absent  int `json:"absent_count"`
	Excused int `json:"excused_count"`
}

// State is the persistable session header, without per-student records.
type State struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"class_id"`
	Status      Status        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	GraceWindow time.Duration `json:"grace_window"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Counts      Counts        `json:"counts"`
}

// Snapshot is a point-in-time copy of a session, records sorted by student id.
type Snapshot struct {
	State
	Records []Record `json:"records"`
}

// AlertIntent is a request to notify someone about an attendance outcome.
// The reconciler only produces intents; delivery is the emitter's concern.
type AlertIntent struct {
	SessionID string
	StudentID string
	Type      string
	Reason    string
}

// AlertTypeAbsence marks intents emitted for students still absent when a
// session completes.
const AlertTypeAbsence = "absence"

// RecordStore persists session headers and attendance records. Writes are
// upserts keyed by session id (and student id for records).
type RecordStore interface {
	PersistSession(ctx context.Context, state State) error
	PersistRecord(ctx context.Context, sessionID string, record Record) error
}

// AlertEmitter receives alert intents. Fire-and-forget from the reconciler's
// perspective; retries and delivery are the implementation's concern.
type AlertEmitter interface {
	EmitAbsenceIntent(ctx context.Context, intent AlertIntent) error
}

// RosterSource resolves a class id to the set of enrolled students at the
// moment of the call.
type RosterSource interface {
	LoadRoster(ctx context.Context, classID string) ([]string, error)
}
