// Package handlers implements the HTTP API over the attendance engine.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/attendance-engine/internal/algorithm"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
	"github.com/kozaktomas/attendance-engine/internal/session"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadBytes bounds multipart image uploads.
const maxUploadBytes = 20 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors onto HTTP statuses: state-machine
// misuse is a conflict, bad input a client error, everything else a 500.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNotActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnknownStudent), errors.Is(err, pipeline.ErrNoFaceFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrUnknownStatus),
		errors.Is(err, algorithm.ErrImageDecode),
		errors.Is(err, algorithm.ErrDimensionMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, algorithm.ErrUnsupportedAlgorithm):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// readUploadedImage extracts the "image" file from a multipart request.
func readUploadedImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, maxUploadBytes))
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
