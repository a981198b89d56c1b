// Package store persists patients, visits, and triage predictions. Two
// drivers implement the same interface: PostgresStore for deployments and
// SQLiteStore for local development.
package store

import (
	"context"
	"time"

	"github.com/lakeside-health/triage-api/internal/model"
)

// Limits applied to list reads. Caller-supplied limits are clamped, never
// trusted; the queue fetch limit bounds the candidate rows handed to the
// in-process projection.
const (
	MaxPatientResults    = 200
	MaxVisitResults      = 200
	MaxPredictionResults = 500
	DefaultQueueFetch    = 2000
)

// QueueRow is one candidate row for the queue projection: a visit joined
// with its patient and the risk label of its latest prediction (by
// created_at, tie-broken by id). RiskLevel is nil when no prediction exists.
type QueueRow struct {
	VisitID        int64
	FirstName      string
	LastName       string
	ChiefComplaint *string
	VisitTime      time.Time
	Status         model.VisitStatus
	RiskLevel      *string
}

// Store is the persistence interface for the triage service. Get methods
// return (nil, nil) when the row does not exist; translating that into a
// domain NotFoundError is the caller's job.
type Store interface {
	// Patients
	CreatePatient(ctx context.Context, p model.Patient) (*model.Patient, error)
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	ListPatients(ctx context.Context, search string, limit int) ([]model.Patient, error)
	ImportPatients(ctx context.Context, patients []model.Patient) (int64, error)

	// Visits
	CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error)
	ListVisits(ctx context.Context, limit int) ([]model.Visit, error)
	GetVisitContext(ctx context.Context, visitID int64) (*model.VisitContext, error)

	// Predictions (append-only)
	InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error)
	ListPredictions(ctx context.Context, limit int) ([]model.Prediction, error)
	CountPredictions(ctx context.Context, visitID int64) (int, error)

	// Queue
	QueueRows(ctx context.Context, fetchLimit int) ([]QueueRow, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// clampLimit bounds a caller-supplied limit to (0, max], applying def when
// the caller passed nothing.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
