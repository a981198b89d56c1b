// Package model defines the triage domain types shared across the store,
// pipeline, and API layers.
package model

import "time"

// VisitStatus represents the lifecycle state of a visit.
type VisitStatus string

const (
	VisitStatusOpen   VisitStatus = "open"
	VisitStatusClosed VisitStatus = "closed"
)

// Patient is one registered patient.
type Patient struct {
	ID        int64      `json:"id"`
	MRN       *string    `json:"mrn,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	DOB       *time.Time `json:"dob,omitempty"`
	Sex       *string    `json:"sex,omitempty"` // 'F', 'M', 'X'
	Phone     *string    `json:"phone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DisplayName returns the patient's full name for queue and log views.
func (p Patient) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

// Visit is one clinical encounter for a patient, the unit that gets triaged.
type Visit struct {
	ID             int64       `json:"id"`
	PatientID      int64       `json:"patient_id"`
	VisitTime      time.Time   `json:"visit_time"`
	ChiefComplaint *string     `json:"chief_complaint,omitempty"`
	SymptomText    *string     `json:"symptom_text,omitempty"`
	Status         VisitStatus `json:"status"`
	Patient        string      `json:"patient,omitempty"` // joined display name on list reads
}

// VisitContext is the single consistent read the classification pipeline
// feeds to the external scorer: symptom narrative plus demographics, with
// age computed from date of birth at read time.
type VisitContext struct {
	VisitID     int64
	SymptomText string
	Age         *int
	Sex         *string
}

// Prediction is one immutable output of a classification run. Rows are
// append-only: re-classifying a visit adds a new row, never mutates history.
type Prediction struct {
	ID           int64     `json:"id"`
	VisitID      int64     `json:"visit_id"`
	RiskLevel    string    `json:"risk_level"`
	RiskScore    float64   `json:"risk_score"`
	Rationale    string    `json:"rationale"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
	// Joined display data for the prediction log read.
	Patient        string  `json:"patient,omitempty"`
	ChiefComplaint *string `json:"chief_complaint,omitempty"`
}

// QueueEntry is one row of the triage queue projection.
type QueueEntry struct {
	VisitID        int64     `json:"visit_id"`
	Patient        string    `json:"patient"`
	ChiefComplaint *string   `json:"chief_complaint,omitempty"`
	Tier           Tier      `json:"tier"`
	RiskLevel      *string   `json:"risk_level,omitempty"` // raw latest label, nil when unclassified
	VisitTime      time.Time `json:"visit_time"`
}
