package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lakeside-health/triage-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// development; the postgres driver is the deployment target.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Literal formats for time parameters. The driver's default time.Time
// binding writes Go's String() form, which SQLite's date functions cannot
// parse; binding explicit literals keeps julianday() and lexicographic
// ORDER BY working. The timestamp form is fixed-width on purpose.
const (
	sqliteDateFormat = "2006-01-02"
	sqliteTimeFormat = "2006-01-02 15:04:05.000000000-07:00"
)

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func sqliteDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteDateFormat)
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS patients (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	mrn        TEXT,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	dob        DATETIME,
	sex        TEXT,
	phone      TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS visits (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id      INTEGER NOT NULL REFERENCES patients(id),
	visit_time      DATETIME NOT NULL,
	chief_complaint TEXT,
	symptom_text    TEXT,
	status          TEXT NOT NULL DEFAULT 'open'
);

CREATE TABLE IF NOT EXISTS triage_predictions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	visit_id      INTEGER NOT NULL REFERENCES visits(id),
	risk_level    TEXT NOT NULL,
	risk_score    REAL NOT NULL,
	rationale     TEXT NOT NULL DEFAULT '',
	model_version TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(last_name, first_name);
CREATE INDEX IF NOT EXISTS idx_visits_patient_id ON visits(patient_id);
CREATE INDEX IF NOT EXISTS idx_visits_visit_time ON visits(visit_time DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_latest ON triage_predictions(visit_id, created_at DESC, id DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePatient(ctx context.Context, p model.Patient) (*model.Patient, error) {
	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (mrn, first_name, last_name, dob, sex, phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MRN, p.FirstName, p.LastName, sqliteDate(p.DOB), p.Sex, p.Phone, sqliteTime(p.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert patient")
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: patient insert id")
	}
	return &p, nil
}

func (s *SQLiteStore) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	var p model.Patient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mrn, first_name, last_name, dob, sex, phone, created_at
		 FROM patients WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Phone, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get patient %d", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPatients(ctx context.Context, search string, limit int) ([]model.Patient, error) {
	query := `SELECT id, mrn, first_name, last_name, dob, sex, phone, created_at FROM patients`
	var args []any
	if search != "" {
		// LIKE is case-insensitive for ASCII in SQLite by default.
		query += ` WHERE first_name LIKE ? OR last_name LIKE ? OR mrn LIKE ?`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY last_name, first_name LIMIT ?`
	args = append(args, clampLimit(limit, MaxPatientResults, MaxPatientResults))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patients")
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Phone, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan patient")
		}
		patients = append(patients, p)
	}
	return patients, eris.Wrap(rows.Err(), "sqlite: list patients iterate")
}

func (s *SQLiteStore) ImportPatients(ctx context.Context, patients []model.Patient) (int64, error) {
	if len(patients) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO patients (mrn, first_name, last_name, dob, sex, phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, p := range patients {
		if _, err := stmt.ExecContext(ctx, p.MRN, p.FirstName, p.LastName, sqliteDate(p.DOB), p.Sex, p.Phone, sqliteTime(now)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import patient %s %s", p.FirstName, p.LastName)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import commit")
	}
	return n, nil
}

func (s *SQLiteStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	v.VisitTime = time.Now().UTC()
	v.Status = model.VisitStatusOpen
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (patient_id, visit_time, chief_complaint, symptom_text, status)
		 VALUES (?, ?, ?, ?, ?)`,
		v.PatientID, sqliteTime(v.VisitTime), v.ChiefComplaint, v.SymptomText, string(v.Status),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert visit")
	}
	v.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: visit insert id")
	}
	return &v, nil
}

func (s *SQLiteStore) ListVisits(ctx context.Context, limit int) ([]model.Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.patient_id, v.visit_time, v.chief_complaint, v.symptom_text, v.status,
		        p.first_name || ' ' || p.last_name AS patient
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 ORDER BY v.id DESC
		 LIMIT ?`,
		clampLimit(limit, MaxVisitResults, MaxVisitResults),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list visits")
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		if err := rows.Scan(&v.ID, &v.PatientID, &v.VisitTime, &v.ChiefComplaint, &v.SymptomText, &v.Status, &v.Patient); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visit")
		}
		visits = append(visits, v)
	}
	return visits, eris.Wrap(rows.Err(), "sqlite: list visits iterate")
}

func (s *SQLiteStore) GetVisitContext(ctx context.Context, visitID int64) (*model.VisitContext, error) {
	var vc model.VisitContext
	var symptomText *string
	err := s.db.QueryRowContext(ctx,
		`SELECT v.id, v.symptom_text,
		        CAST((julianday('now') - julianday(p.dob)) / 365.2425 AS INTEGER) AS age,
		        p.sex
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 WHERE v.id = ?`,
		visitID,
	).Scan(&vc.VisitID, &symptomText, &vc.Age, &vc.Sex)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get visit context %d", visitID)
	}
	if symptomText != nil {
		vc.SymptomText = *symptomText
	}
	return &vc, nil
}

func (s *SQLiteStore) InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error) {
	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO triage_predictions (visit_id, risk_level, risk_score, rationale, model_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.VisitID, p.RiskLevel, p.RiskScore, p.Rationale, p.ModelVersion, sqliteTime(p.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prediction for visit %d", p.VisitID)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prediction insert id")
	}
	return &p, nil
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, limit int) ([]model.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.visit_id, t.risk_level, t.risk_score, t.rationale, t.model_version, t.created_at,
		        p.first_name || ' ' || p.last_name AS patient, v.chief_complaint
		 FROM triage_predictions t
		 JOIN visits v ON v.id = t.visit_id
		 JOIN patients p ON p.id = v.patient_id
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ?`,
		clampLimit(limit, 50, MaxPredictionResults),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.ID, &p.VisitID, &p.RiskLevel, &p.RiskScore, &p.Rationale, &p.ModelVersion, &p.CreatedAt, &p.Patient, &p.ChiefComplaint); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) CountPredictions(ctx context.Context, visitID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM triage_predictions WHERE visit_id = ?`,
		visitID,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count predictions for visit %d", visitID)
}

func (s *SQLiteStore) QueueRows(ctx context.Context, fetchLimit int) ([]QueueRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, p.first_name, p.last_name, v.chief_complaint, v.visit_time, v.status,
		        (SELECT tp.risk_level
		         FROM triage_predictions tp
		         WHERE tp.visit_id = v.id
		         ORDER BY tp.created_at DESC, tp.id DESC
		         LIMIT 1) AS risk_level
		 FROM visits v
		 JOIN patients p ON p.id = v.patient_id
		 ORDER BY v.visit_time DESC
		 LIMIT ?`,
		clampLimit(fetchLimit, DefaultQueueFetch, DefaultQueueFetch),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: queue rows")
	}
	defer rows.Close()

	var out []QueueRow
	for rows.Next() {
		var qr QueueRow
		if err := rows.Scan(&qr.VisitID, &qr.FirstName, &qr.LastName, &qr.ChiefComplaint, &qr.VisitTime, &qr.Status, &qr.RiskLevel); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue row")
		}
		out = append(out, qr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: queue rows iterate")
}
