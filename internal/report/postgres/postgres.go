// Package postgres is a PostgreSQL-backed report.Store built on a pgx
// connection pool. [Migrate] creates the schema and is safe to run on every
// start.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docassist/docassist/internal/report"
)

var _ report.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS reports (
    id           TEXT         PRIMARY KEY,
    patient_id   TEXT         NOT NULL,
    session_id   TEXT         NOT NULL DEFAULT '',
    origin       TEXT         NOT NULL,
    report_date  TIMESTAMPTZ  NOT NULL,
    symptoms     JSONB        NOT NULL DEFAULT '[]',
    medications  JSONB        NOT NULL DEFAULT '[]',
    alerts       JSONB        NOT NULL DEFAULT '[]',
    summary      TEXT         NOT NULL DEFAULT '',
    notes        TEXT         NOT NULL DEFAULT '',
    narrative    TEXT         NOT NULL DEFAULT '',
    seq          BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_reports_patient ON reports (patient_id, seq);

CREATE TABLE IF NOT EXISTS report_links (
    token       TEXT         PRIMARY KEY,
    report_id   TEXT         NOT NULL REFERENCES reports (id) ON DELETE CASCADE,
    patient_id  TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    active      BOOLEAN      NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_report_links_report ON report_links (report_id) WHERE active;
`

// Migrate creates the report tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("report postgres: migrate: %w", err)
	}
	return nil
}

// Store implements report.Store. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings, and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("report postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("report postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) Save(ctx context.Context, r *report.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.PatientID == "" {
		r.PatientID = report.AnonymousPatient
	}
	syms, meds, alerts, err := encodeLists(r)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO reports
		    (id, patient_id, session_id, origin, report_date, symptoms, medications, alerts, summary, notes, narrative)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
		    patient_id  = EXCLUDED.patient_id,
		    session_id  = EXCLUDED.session_id,
		    origin      = EXCLUDED.origin,
		    report_date = EXCLUDED.report_date,
		    symptoms    = EXCLUDED.symptoms,
		    medications = EXCLUDED.medications,
		    alerts      = EXCLUDED.alerts,
		    summary     = EXCLUDED.summary,
		    notes       = EXCLUDED.notes,
		    narrative   = EXCLUDED.narrative`
	_, err = s.pool.Exec(ctx, q,
		r.ID, r.PatientID, r.SessionID, string(r.Origin), r.Date,
		syms, meds, alerts, r.Summary, r.Notes, r.Narrative,
	)
	if err != nil {
		return fmt.Errorf("report postgres: save: %w", err)
	}
	return nil
}

const selectReport = `
	SELECT id, patient_id, session_id, origin, report_date, symptoms, medications, alerts, summary, notes, narrative
	FROM   reports`

func (s *Store) Get(ctx context.Context, id string) (*report.Report, error) {
	rows, err := s.pool.Query(ctx, selectReport+" WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("report postgres: get: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanReport)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: report %q", report.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("report postgres: get: %w", err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, patientID string) ([]*report.Report, error) {
	q := selectReport + " ORDER BY seq"
	var args []any
	if patientID != "" {
		q = selectReport + " WHERE patient_id = $1 ORDER BY seq"
		args = append(args, patientID)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("report postgres: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanReport)
	if err != nil {
		return nil, fmt.Errorf("report postgres: list: %w", err)
	}
	return out, nil
}

func (s *Store) Share(ctx context.Context, reportID string) (report.Link, error) {
	var l report.Link
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var patientID string
		err := tx.QueryRow(ctx, `SELECT patient_id FROM reports WHERE id = $1 FOR UPDATE`, reportID).Scan(&patientID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: report %q", report.ErrNotFound, reportID)
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			SELECT token, report_id, patient_id, created_at, active
			FROM   report_links
			WHERE  report_id = $1 AND active
			LIMIT  1`, reportID,
		).Scan(&l.Token, &l.ReportID, &l.PatientID, &l.CreatedAt, &l.Active)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO report_links (token, report_id, patient_id)
			VALUES ($1, $2, $3)
			RETURNING token, report_id, patient_id, created_at, active`,
			uuid.NewString(), reportID, patientID,
		).Scan(&l.Token, &l.ReportID, &l.PatientID, &l.CreatedAt, &l.Active)
	})
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return report.Link{}, err
		}
		return report.Link{}, fmt.Errorf("report postgres: share: %w", err)
	}
	return l, nil
}

func (s *Store) Revoke(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE report_links SET active = FALSE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("report postgres: revoke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: link %q", report.ErrNotFound, token)
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, token string) (*report.Report, error) {
	var (
		reportID string
		active   bool
	)
	err := s.pool.QueryRow(ctx, `SELECT report_id, active FROM report_links WHERE token = $1`, token).Scan(&reportID, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: link %q", report.ErrNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("report postgres: resolve: %w", err)
	}
	if !active {
		return nil, report.ErrLinkRevoked
	}
	return s.Get(ctx, reportID)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func encodeLists(r *report.Report) (syms, meds, alerts []byte, err error) {
	if syms, err = json.Marshal(nonNil(r.Symptoms)); err != nil {
		return nil, nil, nil, fmt.Errorf("report postgres: encode symptoms: %w", err)
	}
	if meds, err = json.Marshal(nonNil(r.Medications)); err != nil {
		return nil, nil, nil, fmt.Errorf("report postgres: encode medications: %w", err)
	}
	if r.Alerts == nil {
		alerts = []byte("[]")
	} else if alerts, err = json.Marshal(r.Alerts); err != nil {
		return nil, nil, nil, fmt.Errorf("report postgres: encode alerts: %w", err)
	}
	return syms, meds, alerts, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanReport(row pgx.CollectableRow) (*report.Report, error) {
	var (
		r                  report.Report
		origin             string
		syms, meds, alerts []byte
	)
	if err := row.Scan(
		&r.ID, &r.PatientID, &r.SessionID, &origin, &r.Date,
		&syms, &meds, &alerts, &r.Summary, &r.Notes, &r.Narrative,
	); err != nil {
		return nil, err
	}
	r.Origin = report.Origin(origin)
	if err := json.Unmarshal(syms, &r.Symptoms); err != nil {
		return nil, fmt.Errorf("decode symptoms: %w", err)
	}
	if err := json.Unmarshal(meds, &r.Medications); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	if err := json.Unmarshal(alerts, &r.Alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return &r, nil
}
