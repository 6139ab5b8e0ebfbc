package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
)

// StudentsHandler manages per-student gallery entries.
type StudentsHandler struct {
	processor *pipeline.Processor
	gallery   *gallery.Gallery
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(processor *pipeline.Processor, g *gallery.Gallery) *StudentsHandler {
	return &StudentsHandler{processor: processor, gallery: g}
}

type enrollResponse struct {
	EntryID     uuid.UUID `json:"entry_id"`
	StudentID   string    `json:"student_id"`
	AlgorithmID string    `json:"algorithm_id"`
	Dim         int       `json:"dim"`
	Threshold   float64   `json:"threshold"`
}

// Enroll extracts a face from the uploaded image and stores it as the
// student's active reference vector for the configured algorithm.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	image, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart image field is required")
		return
	}

	entry, err := h.processor.EnrollStudent(r.Context(), chi.URLParam(r, "id"), image)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, enrollResponse{
		EntryID:     entry.ID,
		StudentID:   entry.StudentID,
		AlgorithmID: entry.AlgorithmID,
		Dim:         len(entry.Vector),
		Threshold:   entry.Threshold,
	})
}

type historyEntry struct {
	EntryID     uuid.UUID `json:"entry_id"`
	AlgorithmID string    `json:"algorithm_id"`
	Active      bool      `json:"active"`
	CreatedAt   string    `json:"created_at"`
}

// Gallery returns the student's enrollment history, newest first.
func (h *StudentsHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	entries, err := h.gallery.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			EntryID:     e.ID,
			AlgorithmID: e.AlgorithmID,
			Active:      e.Active,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Deactivate retires the student's active entry for the given algorithm.
func (h *StudentsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	algorithmID := chi.URLParam(r, "algorithmID")

	if err := h.gallery.Deactivate(r.Context(), studentID, algorithmID); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
