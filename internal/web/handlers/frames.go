package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
)

// FramesHandler accepts captured frames for an active session.
type FramesHandler struct {
	processor *pipeline.Processor
}

// NewFramesHandler creates a new frames handler.
func NewFramesHandler(processor *pipeline.Processor) *FramesHandler {
	return &FramesHandler{processor: processor}
}

// Process runs one uploaded frame through detection, matching and
// reconciliation, and returns the verdicts. The optional captured_at form
// field (RFC 3339) overrides the server clock as the check-in time.
func (h *FramesHandler) Process(w http.ResponseWriter, r *http.Request) {
	image, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart image field is required")
		return
	}

	capturedAt := time.Now().UTC()
	if v := r.FormValue("captured_at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "captured_at must be RFC 3339")
			return
		}
		capturedAt = parsed
	}

	result, err := h.processor.ProcessFrame(r.Context(), chi.URLParam(r, "id"), pipeline.Frame{
		Image:      image,
		CapturedAt: capturedAt,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
