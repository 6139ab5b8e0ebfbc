// Package mock provides in-memory implementations of the engine's storage
// interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/session"
)

// GalleryStore is an in-memory gallery.Store.
type GalleryStore struct {
	mu      sync.RWMutex
	entries []gallery.Entry

	// Error injection
	SwapError       error
	DeactivateError error
	ListError       error
	HistoryError    error
}

// NewGalleryStore creates an empty mock gallery store.
func NewGalleryStore() *GalleryStore {
	return &GalleryStore{}
}

// SwapActive retires the active entry for the pair and appends the new one.
func (m *GalleryStore) SwapActive(ctx context.Context, entry gallery.Entry) error {
	if m.SwapError != nil {
		return m.SwapError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		e := &m.entries[i]
		if e.Active && e.StudentID == entry.StudentID && e.AlgorithmID == entry.AlgorithmID {
			e.Active = false
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

// DeactivateActive retires the active entry for the pair, if any.
func (m *GalleryStore) DeactivateActive(ctx context.Context, studentID, algorithmID string) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		e := &m.entries[i]
		if e.Active && e.StudentID == studentID && e.AlgorithmID == algorithmID {
			e.Active = false
		}
	}
	return nil
}

// ActiveEntries returns active entries for the algorithm, optionally scoped
// to the given students.
func (m *GalleryStore) ActiveEntries(ctx context.Context, studentIDs []string, algorithmID string) ([]gallery.Entry, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}

	var out []gallery.Entry
	for _, e := range m.entries {
		if !e.Active || e.AlgorithmID != algorithmID {
			continue
		}
		if len(studentIDs) > 0 && !wanted[e.StudentID] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// EntriesByStudent returns the student's full history, newest first.
func (m *GalleryStore) EntriesByStudent(ctx context.Context, studentID string) ([]gallery.Entry, error) {
	if m.HistoryError != nil {
		return nil, m.HistoryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []gallery.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].StudentID == studentID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// RecordStore is an in-memory session.RecordStore.
type RecordStore struct {
	mu       sync.RWMutex
	sessions map[string]session.State
	records  map[string]map[string]session.Record

	// Error injection
	SessionError error
	RecordError  error
}

// NewRecordStore creates an empty mock record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		sessions: make(map[string]session.State),
		records:  make(map[string]map[string]session.Record),
	}
}

// PersistSession upserts the session header.
func (m *RecordStore) PersistSession(ctx context.Context, state session.State) error {
	if m.SessionError != nil {
		return m.SessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.ID] = state
	return nil
}

// PersistRecord upserts one attendance record.
func (m *RecordStore) PersistRecord(ctx context.Context, sessionID string, record session.Record) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[sessionID] == nil {
		m.records[sessionID] = make(map[string]session.Record)
	}
	m.records[sessionID][record.StudentID] = record
	return nil
}

// Session returns the stored header for assertions.
func (m *RecordStore) Session(sessionID string) (session.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Record returns the stored record for assertions.
func (m *RecordStore) Record(sessionID, studentID string) (session.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[sessionID][studentID]
	return r, ok
}

// AlertEmitter is an in-memory session.AlertEmitter.
type AlertEmitter struct {
	mu      sync.Mutex
	intents []session.AlertIntent

	// Error injection
	EmitError error
}

// NewAlertEmitter creates an empty mock alert emitter.
func NewAlertEmitter() *AlertEmitter {
	return &AlertEmitter{}
}

// EmitAbsenceIntent records the intent.
func (m *AlertEmitter) EmitAbsenceIntent(ctx context.Context, intent session.AlertIntent) error {
	if m.EmitError != nil {
		return m.EmitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, intent)
	return nil
}

// Intents returns a copy of the emitted intents.
func (m *AlertEmitter) Intents() []session.AlertIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.AlertIntent, len(m.intents))
	copy(out, m.intents)
	return out
}

// RosterSource is an in-memory session.RosterSource.
type RosterSource struct {
	mu      sync.RWMutex
	rosters map[string][]string

	// Error injection
	LoadError error
}

// NewRosterSource creates an empty mock roster source.
func NewRosterSource() *RosterSource {
	return &RosterSource{rosters: make(map[string][]string)}
}

// SetRoster registers the class roster.
func (m *RosterSource) SetRoster(classID string, students []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[classID] = students
}

// LoadRoster returns the class roster.
func (m *RosterSource) LoadRoster(ctx context.Context, classID string) ([]string, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rosters[classID], nil
}
