package httpapi

import (
	"net/http"

	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/session"
)

type createSessionRequest struct {
	Patient *note.Patient `json:"patient,omitempty"`
}

func (r *Router) session(w http.ResponseWriter, req *http.Request) (*session.Session, bool) {
	s, err := r.deps.Sessions.Get(req.PathValue("id"))
	if err != nil {
		fail(w, req, err)
		return nil, false
	}
	return s, true
}

func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	var body createSessionRequest
	if !decode(w, req, &body) {
		return
	}
	s := r.deps.Sessions.Create(body.Patient)
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (r *Router) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := r.deps.Sessions.List()
	out := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Sessions.Delete(req.PathValue("id")); err != nil {
		fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleSetPatient(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	var p note.Patient
	if !decode(w, req, &p) {
		return
	}
	s.SetPatient(&p)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) {
	r.transition(w, req, func(s *session.Session) error { return s.Start(req.Context()) })
}

func (r *Router) handlePause(w http.ResponseWriter, req *http.Request) {
	r.transition(w, req, func(s *session.Session) error { return s.Pause() })
}

func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) {
	r.transition(w, req, func(s *session.Session) error { return s.Resume(req.Context()) })
}

// handleStop returns once the session is Processing. With ?wait=true it
// blocks until the note is synthesised or the request is cancelled.
func (r *Router) handleStop(w http.ResponseWriter, req *http.Request) {
	r.transition(w, req, func(s *session.Session) error {
		if err := s.Stop(req.Context()); err != nil {
			return err
		}
		if req.URL.Query().Get("wait") == "true" {
			return s.WaitCompleted(req.Context())
		}
		return nil
	})
}

func (r *Router) transition(w http.ResponseWriter, req *http.Request, fn func(*session.Session) error) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	rep, err := s.Submit(req.Context())
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (r *Router) handleHistory(w http.ResponseWriter, _ *http.Request) {
	h := r.deps.Sessions.History()
	if h == nil {
		h = []session.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, h)
}
