// Package storetest is a conformance suite run against every report.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/report"
)

// Run exercises s. s must start empty.
func Run(t *testing.T, s report.Store) {
	t.Helper()
	ctx := context.Background()
	date := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	first := &report.Report{
		PatientID:   "p-1",
		SessionID:   "s-1",
		Origin:      report.OriginSession,
		Date:        date,
		Symptoms:    []string{"headache"},
		Medications: []string{"ibuprofen"},
		Alerts: []alert.Alert{{
			ID: "a-1", Type: alert.TypeEmergency, Message: "Emergency: chest pain",
			Severity: alert.SeverityCritical, Timestamp: date,
		}},
		Summary: "Jane is currently experiencing symptoms such as headache.",
		Notes:   "Medications: ibuprofen",
	}
	second := &report.Report{PatientID: "p-2", Origin: report.OriginSubmission, Date: date.Add(time.Hour), Notes: "manual"}
	third := &report.Report{PatientID: "p-1", Origin: report.OriginSubmission, Date: date.Add(2 * time.Hour)}

	t.Run("save assigns ids", func(t *testing.T) {
		for _, r := range []*report.Report{first, second, third} {
			if err := s.Save(ctx, r); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if r.ID == "" {
				t.Fatal("ID not assigned")
			}
		}
	})

	t.Run("get round trip", func(t *testing.T) {
		got, err := s.Get(ctx, first.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.PatientID != "p-1" || got.SessionID != "s-1" || got.Origin != report.OriginSession {
			t.Errorf("got %+v", got)
		}
		if !got.Date.Equal(date) {
			t.Errorf("date = %v", got.Date)
		}
		if len(got.Symptoms) != 1 || got.Symptoms[0] != "headache" || len(got.Medications) != 1 {
			t.Errorf("lists = %v %v", got.Symptoms, got.Medications)
		}
		if len(got.Alerts) != 1 || got.Alerts[0].Message != "Emergency: chest pain" {
			t.Errorf("alerts = %+v", got.Alerts)
		}
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, report.ErrNotFound) {
			t.Errorf("Get(missing) = %v", err)
		}
	})

	t.Run("list by patient in order", func(t *testing.T) {
		got, err := s.List(ctx, "p-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 || got[0].ID != first.ID || got[1].ID != third.ID {
			t.Errorf("List(p-1) = %d reports", len(got))
		}
		all, err := s.List(ctx, "")
		if err != nil || len(all) != 3 {
			t.Errorf("List(all) = %d, %v", len(all), err)
		}
		none, err := s.List(ctx, "nobody")
		if err != nil || len(none) != 0 {
			t.Errorf("List(nobody) = %d, %v", len(none), err)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		first.Notes = "updated"
		if err := s.Save(ctx, first); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, _ := s.Get(ctx, first.ID)
		if got.Notes != "updated" {
			t.Errorf("notes = %q", got.Notes)
		}
		all, _ := s.List(ctx, "")
		if len(all) != 3 {
			t.Errorf("replace changed count to %d", len(all))
		}
	})

	t.Run("share revoke resolve", func(t *testing.T) {
		l, err := s.Share(ctx, first.ID)
		if err != nil {
			t.Fatalf("Share: %v", err)
		}
		if l.Token == "" || !l.Active || l.ReportID != first.ID || l.PatientID != "p-1" {
			t.Errorf("link = %+v", l)
		}
		again, err := s.Share(ctx, first.ID)
		if err != nil || again.Token != l.Token {
			t.Errorf("second Share = %+v, %v; want same token", again, err)
		}

		got, err := s.Resolve(ctx, l.Token)
		if err != nil || got.ID != first.ID {
			t.Fatalf("Resolve = %v, %v", got, err)
		}

		if err := s.Revoke(ctx, l.Token); err != nil {
			t.Fatalf("Revoke: %v", err)
		}
		if err := s.Revoke(ctx, l.Token); err != nil {
			t.Errorf("second Revoke: %v", err)
		}
		if _, err := s.Resolve(ctx, l.Token); !errors.Is(err, report.ErrLinkRevoked) {
			t.Errorf("Resolve(revoked) = %v", err)
		}

		fresh, err := s.Share(ctx, first.ID)
		if err != nil || fresh.Token == l.Token {
			t.Errorf("Share after revoke = %+v, %v; want new token", fresh, err)
		}
	})

	t.Run("unknown ids", func(t *testing.T) {
		if _, err := s.Share(ctx, "missing"); !errors.Is(err, report.ErrNotFound) {
			t.Errorf("Share(missing) = %v", err)
		}
		if err := s.Revoke(ctx, "missing"); !errors.Is(err, report.ErrNotFound) {
			t.Errorf("Revoke(missing) = %v", err)
		}
		if _, err := s.Resolve(ctx, "missing"); !errors.Is(err, report.ErrNotFound) {
			t.Errorf("Resolve(missing) = %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
