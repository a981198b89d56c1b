package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lakeside-health/triage-api/internal/db"
	"github.com/lakeside-health/triage-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Connections
// are acquired per operation by pgxpool; nothing in the store holds a
// connection across calls, so a scorer round trip never pins one.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS patients (
	id         BIGSERIAL PRIMARY KEY,
	mrn        TEXT,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	dob        DATE,
	sex        TEXT,
	phone      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS visits (
	id              BIGSERIAL PRIMARY KEY,
	patient_id      BIGINT NOT NULL REFERENCES patients(id),
	visit_time      TIMESTAMPTZ NOT NULL DEFAULT now(),
	chief_complaint TEXT,
	symptom_text    TEXT,
	status          TEXT NOT NULL DEFAULT 'open'
);

CREATE TABLE IF NOT EXISTS triage_predictions (
	id            BIGSERIAL PRIMARY KEY,
	visit_id      BIGINT NOT NULL REFERENCES visits(id),
	risk_level    TEXT NOT NULL,
	risk_score    DOUBLE PRECISION NOT NULL,
	rationale     TEXT NOT NULL DEFAULT '',
	model_version TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(last_name, first_name);
CREATE INDEX IF NOT EXISTS idx_visits_patient_id ON visits(patient_id);
CREATE INDEX IF NOT EXISTS idx_visits_visit_time ON visits(visit_time DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_latest ON triage_predictions(visit_id, created_at DESC, id DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, p model.Patient) (*model.Patient, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO patients (mrn, first_name, last_name, dob, sex, phone)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.Phone,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert patient")
	}
	return &p, nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	var p model.Patient
	err := s.pool.QueryRow(ctx,
		`SELECT id, mrn, first_name, last_name, dob, sex, phone, created_at
		 FROM patients WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get patient %d", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListPatients(ctx context.Context, search string, limit int) ([]model.Patient, error) {
	query := `SELECT id, mrn, first_name, last_name, dob, sex, phone, created_at FROM patients`
	args := []any{}
	if search != "" {
		query += ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR mrn ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d`, len(args)+1)
	args = append(args, clampLimit(limit, MaxPatientResults, MaxPatientResults))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patients")
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Phone, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan patient")
		}
		patients = append(patients, p)
	}
	return patients, eris.Wrap(rows.Err(), "postgres: list patients iterate")
}

var patientImportColumns = []string{"mrn", "first_name", "last_name", "dob", "sex", "phone"}

func (s *PostgresStore) ImportPatients(ctx context.Context, patients []model.Patient) (int64, error) {
	rows := make([][]any, 0, len(patients))
	for _, p := range patients {
		rows = append(rows, []any{p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.Phone})
	}
	n, err := db.CopyFrom(ctx, s.pool, "patients", patientImportColumns, rows)
	return n, eris.Wrap(err, "postgres: import patients")
}

func (s *PostgresStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO visits (patient_id, chief_complaint, symptom_text)
		 VALUES ($1, $2, $3)
		 RETURNING id, visit_time, status`,
		v.PatientID, v.ChiefComplaint, v.SymptomText,
	).Scan(&v.ID, &v.VisitTime, &v.Status)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert visit")
	}
	return &v, nil
}

func (s *PostgresStore) ListVisits(ctx context.Context, limit int) ([]model.Visit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.patient_id, v.visit_time, v.chief_complaint, v.symptom_text, v.status,
		        p.first_name || ' ' || p.last_name AS patient
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 ORDER BY v.id DESC
		 LIMIT $1`,
		clampLimit(limit, MaxVisitResults, MaxVisitResults),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list visits")
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		if err := rows.Scan(&v.ID, &v.PatientID, &v.VisitTime, &v.ChiefComplaint, &v.SymptomText, &v.Status, &v.Patient); err != nil {
			return nil, eris.Wrap(err, "postgres: scan visit")
		}
		visits = append(visits, v)
	}
	return visits, eris.Wrap(rows.Err(), "postgres: list visits iterate")
}

// GetVisitContext loads the scorer input for a visit in one consistent read.
// Age is computed from date of birth at query time and is nil when dob is null.
func (s *PostgresStore) GetVisitContext(ctx context.Context, visitID int64) (*model.VisitContext, error) {
	var vc model.VisitContext
	var symptomText *string
	err := s.pool.QueryRow(ctx,
		`SELECT v.id, v.symptom_text,
		        EXTRACT(YEAR FROM age(CURRENT_DATE, p.dob))::int AS age,
		        p.sex
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 WHERE v.id = $1`,
		visitID,
	).Scan(&vc.VisitID, &symptomText, &vc.Age, &vc.Sex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get visit context %d", visitID)
	}
	if symptomText != nil {
		vc.SymptomText = *symptomText
	}
	return &vc, nil
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO triage_predictions (visit_id, risk_level, risk_score, rationale, model_version)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		p.VisitID, p.RiskLevel, p.RiskScore, p.Rationale, p.ModelVersion,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prediction for visit %d", p.VisitID)
	}
	return &p, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, limit int) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.visit_id, t.risk_level, t.risk_score, t.rationale, t.model_version, t.created_at,
		        p.first_name || ' ' || p.last_name AS patient, v.chief_complaint
		 FROM triage_predictions t
		 JOIN visits v ON v.id = t.visit_id
		 JOIN patients p ON p.id = v.patient_id
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT $1`,
		clampLimit(limit, 50, MaxPredictionResults),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.ID, &p.VisitID, &p.RiskLevel, &p.RiskScore, &p.Rationale, &p.ModelVersion, &p.CreatedAt, &p.Patient, &p.ChiefComplaint); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func (s *PostgresStore) CountPredictions(ctx context.Context, visitID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM triage_predictions WHERE visit_id = $1`,
		visitID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count predictions for visit %d", visitID)
}

// QueueRows returns candidate rows for the queue projection: every visit
// joined with its latest prediction's risk label. Latest is resolved by
// (created_at DESC, id DESC) so two predictions landing in the same instant
// still pick a deterministic winner. Rows come back newest-visit-first so
// the fetch bound degrades gracefully against the projection's result cap.
func (s *PostgresStore) QueueRows(ctx context.Context, fetchLimit int) ([]QueueRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, p.first_name, p.last_name, v.chief_complaint, v.visit_time, v.status, t.risk_level
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 LEFT JOIN LATERAL (
		     SELECT tp.risk_level
		     FROM triage_predictions tp
		     WHERE tp.visit_id = v.id
		     ORDER BY tp.created_at DESC, tp.id DESC
		     LIMIT 1
		 ) t ON true
		 ORDER BY v.visit_time DESC
		 LIMIT $1`,
		clampLimit(fetchLimit, DefaultQueueFetch, DefaultQueueFetch),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: queue rows")
	}
	defer rows.Close()

	var out []QueueRow
	for rows.Next() {
		var qr QueueRow
		if err := rows.Scan(&qr.VisitID, &qr.FirstName, &qr.LastName, &qr.ChiefComplaint, &qr.VisitTime, &qr.Status, &qr.RiskLevel); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue row")
		}
		out = append(out, qr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: queue rows iterate")
}
