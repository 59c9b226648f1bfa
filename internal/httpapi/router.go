// Package httpapi exposes recording sessions, notes, reports, and the
// transcription proxy over HTTP. Live audio and session events travel over
// a per-session WebSocket.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docassist/docassist/internal/health"
	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/session"
)

// RoleHeader carries the caller's role. Only [RoleDoctor] may change notes,
// submit reports, or share them.
const (
	RoleHeader = "X-User-Role"
	RoleDoctor = "doctor"
)

// Deps are the services behind the API. Sessions and Reports are required.
type Deps struct {
	Sessions *session.Manager
	Reports  report.Store

	// Transcribe serves POST /api/transcribe. Nil disables the route.
	Transcribe http.Handler

	// Health serves the probes. Nil disables them.
	Health *health.Handler

	// Metrics records request durations. Nil uses the default instruments.
	Metrics *observe.Metrics

	// MetricsHandler serves GET /metrics. Nil uses promhttp.Handler.
	MetricsHandler http.Handler

	// AllowedOrigins are extra origin patterns accepted on the stream
	// socket. Same-origin requests are always accepted.
	AllowedOrigins []string
}

// Router wires HTTP routes onto the session manager and report store.
type Router struct {
	mux  *http.ServeMux
	deps Deps
}

// New builds the router and registers every route.
func New(deps Deps) *Router {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}
	r := &Router{mux: http.NewServeMux(), deps: deps}
	r.routes()
	return r
}

func (r *Router) routes() {
	// sessions
	r.mux.HandleFunc("POST /api/sessions", r.handleCreateSession)
	r.mux.HandleFunc("GET /api/sessions", r.handleListSessions)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.handleGetSession)
	r.mux.HandleFunc("DELETE /api/sessions/{id}", r.handleDeleteSession)
	r.mux.HandleFunc("PUT /api/sessions/{id}/patient", r.handleSetPatient)
	r.mux.HandleFunc("POST /api/sessions/{id}/start", r.handleStart)
	r.mux.HandleFunc("POST /api/sessions/{id}/pause", r.handlePause)
	r.mux.HandleFunc("POST /api/sessions/{id}/resume", r.handleResume)
	r.mux.HandleFunc("POST /api/sessions/{id}/stop", r.handleStop)
	r.mux.HandleFunc("POST /api/sessions/{id}/submit", withDoctor(r.handleSubmit))
	r.mux.HandleFunc("GET /api/sessions/{id}/stream", r.handleStream)
	r.mux.HandleFunc("GET /api/history", r.handleHistory)

	// notes
	r.mux.HandleFunc("GET /api/sessions/{id}/note", r.handleGetNote)
	r.mux.HandleFunc("POST /api/sessions/{id}/note/edit", withDoctor(r.handleOpenEdit))
	r.mux.HandleFunc("GET /api/sessions/{id}/note/draft", withDoctor(r.handleGetDraft))
	r.mux.HandleFunc("PATCH /api/sessions/{id}/note/draft", withDoctor(r.handleEditText))
	r.mux.HandleFunc("POST /api/sessions/{id}/note/draft/{list}", withDoctor(r.handleEditAdd))
	r.mux.HandleFunc("DELETE /api/sessions/{id}/note/draft/{list}/{index}", withDoctor(r.handleEditRemove))
	r.mux.HandleFunc("POST /api/sessions/{id}/note/save", withDoctor(r.handleSaveEdit))
	r.mux.HandleFunc("POST /api/sessions/{id}/note/cancel", withDoctor(r.handleCancelEdit))

	// alerts
	r.mux.HandleFunc("GET /api/sessions/{id}/alerts", r.handleListAlerts)
	r.mux.HandleFunc("POST /api/sessions/{id}/alerts/{alert}/ack", r.handleAcknowledgeAlert)
	r.mux.HandleFunc("POST /api/sessions/{id}/alerts/{alert}/override", withDoctor(r.handleOverrideAlert))

	// reports
	r.mux.HandleFunc("GET /api/reports", r.handleListReports)
	r.mux.HandleFunc("GET /api/reports/{id}", r.handleGetReport)
	r.mux.HandleFunc("POST /api/reports/{id}/share", withDoctor(r.handleShareReport))
	r.mux.HandleFunc("POST /api/links/{token}/revoke", withDoctor(r.handleRevokeLink))
	r.mux.HandleFunc("GET /api/shared/{token}", r.handleResolveLink)

	if r.deps.Transcribe != nil {
		r.mux.Handle("POST /api/transcribe", r.deps.Transcribe)
	}
	if r.deps.Health != nil {
		r.deps.Health.Register(r.mux)
	}
	r.mux.Handle("GET /metrics", r.deps.MetricsHandler)
}

// Handler returns the mux wrapped in the observability middleware.
func (r *Router) Handler() http.Handler {
	return observe.Middleware(r.deps.Metrics)(r.mux)
}

// withDoctor rejects callers without the doctor role.
func withDoctor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get(RoleHeader) != RoleDoctor {
			writeError(w, http.StatusForbidden, "doctor role required")
			return
		}
		next(w, req)
	}
}
