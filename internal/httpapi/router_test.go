package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/health"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/session"
	"github.com/docassist/docassist/internal/vocab"
	"github.com/docassist/docassist/internal/vocab/phonetic"
	sttmock "github.com/docassist/docassist/pkg/provider/stt/mock"
)

type apiFixture struct {
	srv   *httptest.Server
	mgr   *session.Manager
	rec   *sttmock.Provider
	store *report.MemStore
}

func newAPI(t *testing.T, opts ...func(*Deps)) *apiFixture {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &apiFixture{rec: &sttmock.Provider{}, store: report.NewMemStore()}
	src := vocab.NewSource(nil)
	f.mgr = session.NewManager(session.Config{}, session.Deps{
		Recognizer:    f.rec,
		Vocab:         src,
		Canonicalizer: note.VocabCanonicalizer{Source: src, Matcher: phonetic.New()},
		Reports:       f.store,
		Metrics:       met,
	})
	t.Cleanup(f.mgr.Close)

	deps := Deps{
		Sessions:       f.mgr,
		Reports:        f.store,
		Health:         health.New(health.Ping("reports", f.store)),
		Metrics:        met,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
	}
	for _, o := range opts {
		o(&deps)
	}
	f.srv = httptest.NewServer(New(deps).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

// do sends a JSON request. role may be empty.
func (f *apiFixture) do(t *testing.T, method, path, role string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (f *apiFixture) expect(t *testing.T, method, path, role string, body any, want int, out any) {
	t.Helper()
	code, data := f.do(t, method, path, role, body)
	if code != want {
		t.Fatalf("%s %s = %d, want %d (body %s)", method, path, code, want, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
}

func (f *apiFixture) create(t *testing.T) string {
	t.Helper()
	var snap session.Snapshot
	f.expect(t, http.MethodPost, "/api/sessions", "", createSessionRequest{
		Patient: &note.Patient{ID: "p-1", Name: "Jane Roe", Age: 42},
	}, http.StatusCreated, &snap)
	if snap.State != session.StateIdle {
		t.Fatalf("created state = %s", snap.State)
	}
	return snap.ID
}

// record starts id, feeds finals through the recognizer and waits until
// they are all segments.
func (f *apiFixture) record(t *testing.T, id string, finals ...string) *sttmock.Session {
	t.Helper()
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/start", "", nil, http.StatusOK, nil)
	h := f.rec.Last().(*sttmock.Session)
	s, err := f.mgr.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	for i, text := range finals {
		h.EmitFinal(text)
		eventually(t, "segment", func() bool { return len(s.Snapshot().Segments) == i+1 })
	}
	return h
}

func (f *apiFixture) complete(t *testing.T, id string, finals ...string) {
	t.Helper()
	f.record(t, id, finals...)
	var snap session.Snapshot
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/stop?wait=true", "", nil, http.StatusOK, &snap)
	if snap.State != session.StateCompleted {
		t.Fatalf("state after stop = %s, want completed", snap.State)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)

	f.record(t, id, "What brings you in today", "I have a fever and a cough")

	var snap session.Snapshot
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/pause", "", nil, http.StatusOK, &snap)
	if snap.State != session.StatePaused {
		t.Fatalf("state = %s, want paused", snap.State)
	}
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/resume", "", nil, http.StatusOK, &snap)
	if snap.State != session.StateListening {
		t.Fatalf("state = %s, want listening", snap.State)
	}
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/stop?wait=true", "", nil, http.StatusOK, &snap)
	if snap.State != session.StateCompleted || !snap.HasNote || snap.ReportID == "" {
		t.Fatalf("snapshot after stop = %+v", snap)
	}

	var n note.SessionNote
	f.expect(t, http.MethodGet, "/api/sessions/"+id+"/note", "", nil, http.StatusOK, &n)
	if !strings.Contains(n.Summary, "Jane Roe") || len(n.Segments) != 2 {
		t.Errorf("note = %+v", n)
	}

	var history []session.HistoryEntry
	f.expect(t, http.MethodGet, "/api/history", "", nil, http.StatusOK, &history)
	if len(history) != 1 || history[0].SessionID != id || history[0].ReportID != snap.ReportID {
		t.Errorf("history = %+v", history)
	}

	var reports []report.Report
	f.expect(t, http.MethodGet, "/api/reports?patient=p-1", "", nil, http.StatusOK, &reports)
	if len(reports) != 1 || reports[0].ID != snap.ReportID || reports[0].Origin != report.OriginSession {
		t.Errorf("reports = %+v", reports)
	}

	var list []session.Snapshot
	f.expect(t, http.MethodGet, "/api/sessions", "", nil, http.StatusOK, &list)
	if len(list) != 1 {
		t.Errorf("sessions = %d, want 1", len(list))
	}

	f.expect(t, http.MethodDelete, "/api/sessions/"+id, "", nil, http.StatusNoContent, nil)
	f.expect(t, http.MethodGet, "/api/sessions/"+id, "", nil, http.StatusNotFound, nil)
}

func TestRouter_SetPatient(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)

	var snap session.Snapshot
	f.expect(t, http.MethodPut, "/api/sessions/"+id+"/patient", "",
		note.Patient{ID: "p-2", Name: "John Doe", Age: 60}, http.StatusOK, &snap)
	if snap.Patient == nil || snap.Patient.ID != "p-2" {
		t.Errorf("patient = %+v", snap.Patient)
	}
	f.expect(t, http.MethodPut, "/api/sessions/"+id+"/patient", "",
		map[string]any{"unknown": true}, http.StatusBadRequest, nil)
}

func TestRouter_ErrorMapping(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
		{"pause idle", http.MethodPost, "/api/sessions/" + id + "/pause", "", http.StatusConflict},
		{"resume idle", http.MethodPost, "/api/sessions/" + id + "/resume", "", http.StatusConflict},
		{"stop idle", http.MethodPost, "/api/sessions/" + id + "/stop", "", http.StatusConflict},
		{"note before stop", http.MethodGet, "/api/sessions/" + id + "/note", "", http.StatusConflict},
		{"submit as patient", http.MethodPost, "/api/sessions/" + id + "/submit", "patient", http.StatusForbidden},
		{"submit without role", http.MethodPost, "/api/sessions/" + id + "/submit", "", http.StatusForbidden},
		{"empty submit", http.MethodPost, "/api/sessions/" + id + "/submit", RoleDoctor, http.StatusUnprocessableEntity},
		{"edit before note", http.MethodPost, "/api/sessions/" + id + "/note/edit", RoleDoctor, http.StatusConflict},
		{"unknown alert", http.MethodPost, "/api/sessions/" + id + "/alerts/nope/ack", "", http.StatusNotFound},
		{"unknown report", http.MethodGet, "/api/reports/nope", "", http.StatusNotFound},
		{"unknown link", http.MethodGet, "/api/shared/nope", "", http.StatusNotFound},
		{"transcribe disabled", http.MethodPost, "/api/transcribe", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, tt.method, tt.path, tt.role, nil)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", code, tt.want, body)
			}
		})
	}
}

func TestRouter_StartUnavailable(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	f.rec.SetStartStreamErr(errors.New("dial failed"))

	code, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", code, body)
	}
	if !strings.Contains(string(body), "speech recognition unavailable") {
		t.Errorf("body = %s", body)
	}
}

func TestRouter_Submit(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	f.record(t, id, "I take aspirin every morning")

	var rep report.Report
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/submit", RoleDoctor, nil, http.StatusCreated, &rep)
	if rep.Origin != report.OriginSubmission || rep.PatientID != "p-1" || len(rep.Medications) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := f.store.Get(context.Background(), rep.ID); err != nil {
		t.Errorf("stored report: %v", err)
	}
}

func TestRouter_NoteEditing(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	f.complete(t, id, "I have a headache", "take ibuprofen")

	base := "/api/sessions/" + id + "/note"
	f.expect(t, http.MethodPost, base+"/edit", "patient", nil, http.StatusForbidden, nil)

	var d note.Draft
	f.expect(t, http.MethodPost, base+"/edit", RoleDoctor, nil, http.StatusOK, &d)
	if len(d.Medications) != 1 || d.Medications[0] != "ibuprofen" {
		t.Fatalf("draft = %+v", d)
	}
	f.expect(t, http.MethodPost, base+"/edit", RoleDoctor, nil, http.StatusConflict, nil)

	var added addItemResponse
	f.expect(t, http.MethodPost, base+"/draft/medications", RoleDoctor,
		addItemRequest{Item: "amoxicilin"}, http.StatusOK, &added)
	if added.Item != "amoxicillin" || len(added.Draft.Medications) != 2 {
		t.Errorf("added = %+v", added)
	}
	f.expect(t, http.MethodPost, base+"/draft/allergies", RoleDoctor,
		addItemRequest{Item: "pollen"}, http.StatusBadRequest, nil)
	f.expect(t, http.MethodDelete, base+"/draft/symptoms/5", RoleDoctor, nil, http.StatusBadRequest, nil)
	f.expect(t, http.MethodDelete, base+"/draft/symptoms/x", RoleDoctor, nil, http.StatusBadRequest, nil)
	f.expect(t, http.MethodDelete, base+"/draft/symptoms/0", RoleDoctor, nil, http.StatusOK, &d)
	if len(d.Symptoms) != 0 {
		t.Errorf("symptoms after remove = %v", d.Symptoms)
	}

	summary := "Reviewed with patient."
	f.expect(t, http.MethodPatch, base+"/draft", RoleDoctor,
		editTextRequest{Summary: &summary}, http.StatusOK, &d)
	if d.Summary != summary {
		t.Errorf("summary = %q", d.Summary)
	}

	var n note.SessionNote
	f.expect(t, http.MethodPost, base+"/save", RoleDoctor, nil, http.StatusOK, &n)
	if n.Summary != summary || n.EditedAt.IsZero() || len(n.Medications) != 2 {
		t.Errorf("saved note = %+v", n)
	}
	f.expect(t, http.MethodPost, base+"/cancel", RoleDoctor, nil, http.StatusConflict, nil)

	// The stored report follows the edit.
	var snap session.Snapshot
	f.expect(t, http.MethodGet, "/api/sessions/"+id, "", nil, http.StatusOK, &snap)
	var rep report.Report
	f.expect(t, http.MethodGet, "/api/reports/"+snap.ReportID, "", nil, http.StatusOK, &rep)
	if rep.Summary != summary {
		t.Errorf("report summary = %q, want edited", rep.Summary)
	}
}

func TestRouter_Alerts(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	f.record(t, id, "my father has chest pain right now")

	var alerts []alert.Alert
	f.expect(t, http.MethodGet, "/api/sessions/"+id+"/alerts", "", nil, http.StatusOK, &alerts)
	if len(alerts) != 1 || alerts[0].Type != alert.TypeEmergency {
		t.Fatalf("alerts = %+v", alerts)
	}
	aid := alerts[0].ID

	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/alerts/"+aid+"/ack", "", nil, http.StatusNoContent, nil)
	f.expect(t, http.MethodGet, "/api/sessions/"+id+"/alerts", "", nil, http.StatusOK, &alerts)
	if !alerts[0].Acknowledged {
		t.Error("alert not acknowledged")
	}

	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/alerts/"+aid+"/override", "", nil, http.StatusForbidden, nil)
	f.expect(t, http.MethodPost, "/api/sessions/"+id+"/alerts/"+aid+"/override", RoleDoctor, nil, http.StatusNoContent, nil)
	f.expect(t, http.MethodGet, "/api/sessions/"+id+"/alerts", "", nil, http.StatusOK, &alerts)
	if len(alerts) != 0 {
		t.Errorf("alerts after override = %+v", alerts)
	}
}

func TestRouter_ReportsAndLinks(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()
	rep := &report.Report{PatientID: "p-9", Origin: report.OriginSubmission, Date: time.Now(), Notes: "n"}
	if err := f.store.Save(ctx, rep); err != nil {
		t.Fatal(err)
	}

	var list []report.Report
	f.expect(t, http.MethodGet, "/api/reports?patient=p-9", "", nil, http.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("reports = %+v", list)
	}
	f.expect(t, http.MethodGet, "/api/reports?patient=p-0", "", nil, http.StatusOK, &list)
	if len(list) != 0 {
		t.Errorf("other patient reports = %+v", list)
	}

	f.expect(t, http.MethodPost, "/api/reports/"+rep.ID+"/share", "", nil, http.StatusForbidden, nil)
	var link report.Link
	f.expect(t, http.MethodPost, "/api/reports/"+rep.ID+"/share", RoleDoctor, nil, http.StatusOK, &link)
	if link.Token == "" || !link.Active || link.ReportID != rep.ID {
		t.Fatalf("link = %+v", link)
	}

	var shared report.Report
	f.expect(t, http.MethodGet, "/api/shared/"+link.Token, "", nil, http.StatusOK, &shared)
	if shared.ID != rep.ID {
		t.Errorf("shared = %+v", shared)
	}

	f.expect(t, http.MethodPost, "/api/links/"+link.Token+"/revoke", RoleDoctor, nil, http.StatusNoContent, nil)
	f.expect(t, http.MethodGet, "/api/shared/"+link.Token, "", nil, http.StatusGone, nil)
}

func TestRouter_Transcribe(t *testing.T) {
	called := false
	f := newAPI(t, func(d *Deps) {
		d.Transcribe = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	})
	code, _ := f.do(t, http.MethodPost, "/api/transcribe", "", nil)
	if code != http.StatusOK || !called {
		t.Errorf("status = %d, called = %v", code, called)
	}
}

func TestRouter_ProbesAndMetrics(t *testing.T) {
	f := newAPI(t)

	f.expect(t, http.MethodGet, "/healthz", "", nil, http.StatusOK, nil)
	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	f.expect(t, http.MethodGet, "/readyz", "", nil, http.StatusOK, &ready)
	if ready.Checks["reports"] != "ok" {
		t.Errorf("readyz = %+v", ready)
	}

	code, body := f.do(t, http.MethodGet, "/metrics", "", nil)
	if code != http.StatusOK || !strings.HasPrefix(string(body), "# metrics") {
		t.Errorf("metrics = %d %q", code, body)
	}
}

func TestRouter_CorrelationHeader(t *testing.T) {
	f := newAPI(t)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/sessions", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("X-Correlation-ID = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{report.ErrNotFound, http.StatusNotFound},
		{alert.ErrNotFound, http.StatusNotFound},
		{report.ErrLinkRevoked, http.StatusGone},
		{session.ErrInvalidTransition, http.StatusConflict},
		{session.ErrNotListening, http.StatusConflict},
		{note.ErrAlreadyEditing, http.StatusConflict},
		{session.ErrEmptySubmission, http.StatusUnprocessableEntity},
		{note.ErrEmptyItem, http.StatusBadRequest},
		{session.ErrRecognitionUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
