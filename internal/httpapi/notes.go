package httpapi

import (
	"net/http"
	"strconv"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/note"
)

type addItemRequest struct {
	Item string `json:"item"`
}

type addItemResponse struct {
	Item  string     `json:"item"`
	Draft note.Draft `json:"draft"`
}

type editTextRequest struct {
	Notes   *string `json:"notes,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

func (r *Router) handleGetNote(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	n, err := s.Note()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (r *Router) handleOpenEdit(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	d, err := s.OpenEdit()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleGetDraft(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	d, err := s.Draft()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleEditAdd(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	var body addItemRequest
	if !decode(w, req, &body) {
		return
	}
	item, err := s.EditAdd(note.List(req.PathValue("list")), body.Item)
	if err != nil {
		fail(w, req, err)
		return
	}
	d, err := s.Draft()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, addItemResponse{Item: item, Draft: d})
}

func (r *Router) handleEditRemove(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	i, err := strconv.Atoi(req.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := s.EditRemove(note.List(req.PathValue("list")), i); err != nil {
		fail(w, req, err)
		return
	}
	d, err := s.Draft()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleEditText(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	var body editTextRequest
	if !decode(w, req, &body) {
		return
	}
	if err := s.EditText(body.Notes, body.Summary); err != nil {
		fail(w, req, err)
		return
	}
	d, err := s.Draft()
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleSaveEdit(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	n, err := s.SaveEdit(req.Context())
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (r *Router) handleCancelEdit(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := s.CancelEdit(); err != nil {
		fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleListAlerts(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	alerts := s.Alerts()
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (r *Router) handleAcknowledgeAlert(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := s.AcknowledgeAlert(req.PathValue("alert")); err != nil {
		fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleOverrideAlert(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := s.OverrideAlert(req.PathValue("alert")); err != nil {
		fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
