package httpapi

import (
	"net/http"

	"github.com/docassist/docassist/internal/report"
)

func (r *Router) handleListReports(w http.ResponseWriter, req *http.Request) {
	list, err := r.deps.Reports.List(req.Context(), req.URL.Query().Get("patient"))
	if err != nil {
		fail(w, req, err)
		return
	}
	if list == nil {
		list = []*report.Report{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (r *Router) handleGetReport(w http.ResponseWriter, req *http.Request) {
	rep, err := r.deps.Reports.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (r *Router) handleShareReport(w http.ResponseWriter, req *http.Request) {
	link, err := r.deps.Reports.Share(req.Context(), req.PathValue("id"))
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (r *Router) handleRevokeLink(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Reports.Revoke(req.Context(), req.PathValue("token")); err != nil {
		fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResolveLink serves a shared report. It needs no role.
func (r *Router) handleResolveLink(w http.ResponseWriter, req *http.Request) {
	rep, err := r.deps.Reports.Resolve(req.Context(), req.PathValue("token"))
	if err != nil {
		fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
