package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/session"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, report.ErrNotFound),
		errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, report.ErrLinkRevoked):
		return http.StatusGone
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNotListening),
		errors.Is(err, session.ErrNoteUnavailable),
		errors.Is(err, note.ErrNotEditing),
		errors.Is(err, note.ErrAlreadyEditing):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptySubmission):
		return http.StatusUnprocessableEntity
	case errors.Is(err, note.ErrUnknownList),
		errors.Is(err, note.ErrIndexRange),
		errors.Is(err, note.ErrEmptyItem):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRecognitionUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged and
// their detail withheld.
func fail(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
