package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/triage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPatientRequest struct {
	MRN       *string `json:"mrn"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	DOB       *string `json:"dob"` // YYYY-MM-DD
	Sex       *string `json:"sex"`
	Phone     *string `json:"phone"`
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, &triage.ValidationError{Detail: "invalid request body"})
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		respondError(w, r, &triage.ValidationError{Detail: "first_name and last_name are required"})
		return
	}

	var dob *time.Time
	if req.DOB != nil && *req.DOB != "" {
		parsed, err := time.Parse("2006-01-02", *req.DOB)
		if err != nil {
			respondError(w, r, &triage.ValidationError{Detail: "dob must be YYYY-MM-DD"})
			return
		}
		dob = &parsed
	}

	patient, err := s.store.CreatePatient(r.Context(), model.Patient{
		MRN:       req.MRN,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		DOB:       dob,
		Sex:       req.Sex,
		Phone:     req.Phone,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, patient)
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.store.ListPatients(r.Context(), r.URL.Query().Get("search"), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if patients == nil {
		patients = []model.Patient{}
	}
	respondJSON(w, http.StatusOK, patients)
}

type createVisitRequest struct {
	PatientID      int64   `json:"patient_id"`
	ChiefComplaint *string `json:"chief_complaint"`
	SymptomText    *string `json:"symptom_text"`
}

func (s *Server) handleCreateVisit(w http.ResponseWriter, r *http.Request) {
	var req createVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, &triage.ValidationError{Detail: "invalid request body"})
		return
	}
	if req.PatientID <= 0 {
		respondError(w, r, &triage.ValidationError{Detail: "patient_id is required"})
		return
	}

	patient, err := s.store.GetPatient(r.Context(), req.PatientID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if patient == nil {
		respondError(w, r, &triage.NotFoundError{Resource: "patient", ID: req.PatientID})
		return
	}

	visit, err := s.store.CreateVisit(r.Context(), model.Visit{
		PatientID:      req.PatientID,
		ChiefComplaint: req.ChiefComplaint,
		SymptomText:    req.SymptomText,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, visit)
}

func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := s.store.ListVisits(r.Context(), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if visits == nil {
		visits = []model.Visit{}
	}
	respondJSON(w, http.StatusOK, visits)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	filter := triage.QueueFilter{Search: r.URL.Query().Get("search")}

	if raw := r.URL.Query().Get("risk"); raw != "" {
		tier, ok := model.ParseRiskLevel(raw)
		if !ok {
			respondError(w, r, &triage.ValidationError{Detail: "risk must be one of LOW, MEDIUM, HIGH"})
			return
		}
		filter.Risk = &tier
	}

	entries, err := s.queue.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.store.ListPredictions(r.Context(), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	respondJSON(w, http.StatusOK, preds)
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "visit_id")
	visitID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || visitID <= 0 {
		respondError(w, r, &triage.ValidationError{Detail: "visit id must be a positive integer"})
		return
	}

	pred, err := s.classifier.Classify(r.Context(), visitID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, pred)
}

// queryInt parses an integer query parameter, returning 0 when absent or
// unparseable; the store clamps limits anyway.
func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
