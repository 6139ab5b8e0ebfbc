package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-engine/internal/session"
)

// SessionsHandler drives session lifecycle over HTTP.
type SessionsHandler struct {
	reconciler   *session.Reconciler
	defaultGrace time.Duration
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(reconciler *session.Reconciler, defaultGrace time.Duration) *SessionsHandler {
	return &SessionsHandler{reconciler: reconciler, defaultGrace: defaultGrace}
}

type createSessionRequest struct {
	SessionID          string `json:"session_id"`
	ClassID            string `json:"class_id"`
	StartedAt          string `json:"started_at,omitempty"`           // RFC 3339, defaults to now
	GraceWindowSeconds int    `json:"grace_window_seconds,omitempty"` // defaults to server config
}

// Create starts a new session with the class roster frozen as of now.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SessionID == "" || req.ClassID == "" {
		respondError(w, http.StatusBadRequest, "session_id and class_id are required")
		return
	}

	startedAt := time.Now().UTC()
	if req.StartedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "started_at must be RFC 3339")
			return
		}
		startedAt = parsed
	}

	grace := h.defaultGrace
	if req.GraceWindowSeconds > 0 {
		grace = time.Duration(req.GraceWindowSeconds) * time.Second
	}

	snap, err := h.reconciler.Start(r.Context(), req.SessionID, req.ClassID, startedAt, grace)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

// Get returns the session snapshot in any lifecycle state.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reconciler.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Complete finalizes the session and returns the final counts.
func (h *SessionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	counts, err := h.reconciler.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// Cancel terminates the session without alerts.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(session.StatusCancelled)})
}

type manualRecordRequest struct {
	Status session.RecordStatus `json:"status"`
	Note   string               `json:"note,omitempty"`
}

// MarkRecord manually overrides one student's attendance record.
func (h *SessionsHandler) MarkRecord(w http.ResponseWriter, r *http.Request) {
	var req manualRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	sessionID := chi.URLParam(r, "id")
	studentID := chi.URLParam(r, "studentID")
	if err := h.reconciler.MarkManual(r.Context(), sessionID, studentID, req.Status, req.Note); err != nil {
		respondEngineError(w, err)
		return
	}

	snap, err := h.reconciler.Snapshot(sessionID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
