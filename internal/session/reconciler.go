package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/matcher"
)

// tracked is one live session plus its lock. Sessions lock independently so
// verdicts for different classes never contend with each other.
type tracked struct {
	mu      sync.Mutex
	state   State
	records map[string]*Record
}

// Reconciler drives attendance sessions from start to completion. All state
// changes are persisted before they are committed in memory, so a storage
// failure leaves the in-memory session unchanged and the call retryable.
type Reconciler struct {
	store  RecordStore
	alerts AlertEmitter
	roster RosterSource

	mu       sync.RWMutex
	sessions map[string]*tracked

	now func() time.Time // swapped in tests
}

// NewReconciler creates a Reconciler with the given collaborators.
func NewReconciler(store RecordStore, alerts AlertEmitter, roster RosterSource) *Reconciler {
	return &Reconciler{
		store:    store,
		alerts:   alerts,
		roster:   roster,
		sessions: make(map[string]*tracked),
		now:      time.Now,
	}
}

// Start creates an active session for the class, freezing the roster as of
// now and seeding one absent record per student. Enrollment changes after
// this point do not affect the session. Fails with ErrAlreadyActive if the
// session id is already known, in any state. A failed start leaves nothing
// behind.
func (r *Reconciler) Start(ctx context.Context, sessionID, classID string, startedAt time.Time, graceWindow time.Duration) (Snapshot, error) {
	students, err := r.roster.LoadRoster(ctx, classID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading roster for class %s: %w", classID, err)
	}

	t := &tracked{
		state: State{
			ID:          sessionID,
			ClassID:     classID,
			Status:      StatusActive,
			StartedAt:   startedAt.UTC(),
			GraceWindow: graceWindow,
			Counts:      Counts{Total: len(students), Absent: len(students)},
		},
		records: make(map[string]*Record, len(students)),
	}
	for _, id := range students {
		t.records[id] = &Record{StudentID: id, Status: RecordAbsent}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r.mu.Lock()
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyActive)
	}
	r.sessions[sessionID] = t
	r.mu.Unlock()

	if err := r.persistAll(ctx, t); err != nil {
		// A caller that looked the session up while we held its lock still
		// has the pointer. Leave it non-active so the rolled-back session
		// cannot accept verdicts once we release the lock.
		t.state.Status = StatusCancelled
		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		return Snapshot{}, fmt.Errorf("starting session %s: %w", sessionID, err)
	}

	return snapshotLocked(t), nil
}

// ApplyVerdict applies one match verdict to the session. Non-matched verdicts
// are successful no-ops. A check-in inside the grace window marks the student
// present, after it late. When several verdicts land for the same student the
// earliest check-in wins, so the final record does not depend on arrival
// order. Manually set records are never overwritten by face verdicts.
func (r *Reconciler) ApplyVerdict(ctx context.Context, sessionID string, verdict matcher.Verdict) error {
	if verdict.Decision != matcher.Matched {
		return nil
	}

	t, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != StatusActive {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}

	rec, ok := t.records[verdict.StudentID]
	if !ok {
		return fmt.Errorf("session %s, student %s: %w", sessionID, verdict.StudentID, ErrUnknownStudent)
	}
	if rec.Method == MethodManual {
		return nil
	}
	if !rec.CheckInTime.IsZero() && !verdict.CheckInTime.Before(rec.CheckInTime) {
		return nil
	}

	updated := *rec
	updated.Method = MethodFaceRecognition
	updated.AlgorithmID = verdict.AlgorithmID
	updated.Confidence = verdict.Confidence
	updated.CheckInTime = verdict.CheckInTime.UTC()
	updated.Status = r.statusFor(t, updated.CheckInTime)

	if err := r.store.PersistRecord(ctx, sessionID, updated); err != nil {
		return fmt.Errorf("persisting record for %s: %w", verdict.StudentID, err)
	}

	*rec = updated
	recount(t)
	return nil
}

// MarkManual overrides a student's record by hand. This is the only way a
// record reaches excused. The previous check-in time is discarded.
func (r *Reconciler) MarkManual(ctx context.Context, sessionID, studentID string, status RecordStatus, note string) error {
	switch status {
	case RecordPresent, RecordAbsent, RecordLate, RecordExcused:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	t, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != StatusActive {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}

	rec, ok := t.records[studentID]
	if !ok {
		return fmt.Errorf("session %s, student %s: %w", sessionID, studentID, ErrUnknownStudent)
	}

	updated := Record{
		StudentID: studentID,
		Status:    status,
		Method:    MethodManual,
		Note:      note,
	}
	if status == RecordPresent || status == RecordLate {
		updated.CheckInTime = r.now().UTC()
	}

	if err := r.store.PersistRecord(ctx, sessionID, updated); err != nil {
		return fmt.Errorf("persisting record for %s: %w", studentID, err)
	}

	*rec = updated
	recount(t)
	return nil
}

// Complete finalizes the session: recomputes counts, transitions to
// completed, and emits one absence intent per student still absent. Excused
// students do not trigger alerts. Completing an already-completed session is
// a no-op; any other non-active state fails with ErrNotActive. Alerts are
// emitted after the completed state is committed, so retrying a failed
// emission never re-runs completion.
func (r *Reconciler) Complete(ctx context.Context, sessionID string) (Counts, error) {
	t, err := r.lookup(sessionID)
	if err != nil {
		return Counts{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state.Status {
	case StatusActive:
	case StatusCompleted:
		return t.state.Counts, nil
	default:
		return Counts{}, fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}

	recount(t)
	final := t.state
	final.Status = StatusCompleted
	final.CompletedAt = r.now().UTC()

	if err := r.store.PersistSession(ctx, final); err != nil {
		return Counts{}, fmt.Errorf("completing session %s: %w", sessionID, err)
	}
	t.state = final

	for _, id := range sortedStudents(t) {
		if t.records[id].Status != RecordAbsent {
			continue
		}
		intent := AlertIntent{
			SessionID: sessionID,
			StudentID: id,
			Type:      AlertTypeAbsence,
			Reason:    fmt.Sprintf("student %s absent for the whole session", id),
		}
		if err := r.alerts.EmitAbsenceIntent(ctx, intent); err != nil {
			return t.state.Counts, fmt.Errorf("emitting absence intent for %s: %w", id, err)
		}
	}

	return t.state.Counts, nil
}

// Cancel terminates an active session without alerts. Records keep whatever
// state they had. Terminal sessions cannot be cancelled.
func (r *Reconciler) Cancel(ctx context.Context, sessionID string) error {
	t, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != StatusActive {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}

	cancelled := t.state
	cancelled.Status = StatusCancelled
	cancelled.CompletedAt = r.now().UTC()

	if err := r.store.PersistSession(ctx, cancelled); err != nil {
		return fmt.Errorf("cancelling session %s: %w", sessionID, err)
	}
	t.state = cancelled
	return nil
}

// Snapshot returns a copy of the session in any lifecycle state.
func (r *Reconciler) Snapshot(sessionID string) (Snapshot, error) {
	t, err := r.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshotLocked(t), nil
}

// Roster returns the frozen roster of the session, sorted.
func (r *Reconciler) Roster(sessionID string) ([]string, error) {
	t, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedStudents(t), nil
}

func (r *Reconciler) lookup(sessionID string) (*tracked, error) {
	r.mu.RLock()
	t, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}
	return t, nil
}

func (r *Reconciler) statusFor(t *tracked, checkIn time.Time) RecordStatus {
	if checkIn.After(t.state.StartedAt.Add(t.state.GraceWindow)) {
		return RecordLate
	}
	return RecordPresent
}

// persistAll writes the session header and every record. Used by Start.
func (r *Reconciler) persistAll(ctx context.Context, t *tracked) error {
	if err := r.store.PersistSession(ctx, t.state); err != nil {
		return fmt.Errorf("persisting session state: %w", err)
	}
	for _, id := range sortedStudents(t) {
		if err := r.store.PersistRecord(ctx, t.state.ID, *t.records[id]); err != nil {
			return fmt.Errorf("persisting record for %s: %w", id, err)
		}
	}
	return nil
}

func recount(t *tracked) {
	counts := Counts{Total: len(t.records)}
	for _, rec := range t.records {
		switch rec.Status {
		case RecordPresent:
			counts.Present++
		case RecordLate:
			counts.Late++
		case RecordExcused:
			counts.Excused++
		default:
			counts.Absent++
		}
	}
	t.state.Counts = counts
}

func sortedStudents(t *tracked) []string {
	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func snapshotLocked(t *tracked) Snapshot {
	snap := Snapshot{
		State:   t.state,
		Records: make([]Record, 0, len(t.records)),
	}
	for _, id := range sortedStudents(t) {
		snap.Records = append(snap.Records, *t.records[id])
	}
	return snap
}
