package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/store"
	"github.com/lakeside-health/triage-api/internal/triage"
	"github.com/lakeside-health/triage-api/pkg/scorer"
)

// stubStore implements the store methods the handlers touch; the embedded
// interface panics on anything else.
type stubStore struct {
	store.Store

	createPatient func(ctx context.Context, p model.Patient) (*model.Patient, error)
	getPatient    func(ctx context.Context, id int64) (*model.Patient, error)
	listPatients  func(ctx context.Context, search string, limit int) ([]model.Patient, error)
	createVisit   func(ctx context.Context, v model.Visit) (*model.Visit, error)
	listVisits    func(ctx context.Context, limit int) ([]model.Visit, error)
	visitContext  func(ctx context.Context, visitID int64) (*model.VisitContext, error)
	insert        func(ctx context.Context, p model.Prediction) (*model.Prediction, error)
	listPreds     func(ctx context.Context, limit int) ([]model.Prediction, error)
	queueRows     func(ctx context.Context, fetchLimit int) ([]store.QueueRow, error)
}

func (s *stubStore) CreatePatient(ctx context.Context, p model.Patient) (*model.Patient, error) {
	return s.createPatient(ctx, p)
}

func (s *stubStore) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	return s.getPatient(ctx, id)
}

func (s *stubStore) ListPatients(ctx context.Context, search string, limit int) ([]model.Patient, error) {
	return s.listPatients(ctx, search, limit)
}

func (s *stubStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	return s.createVisit(ctx, v)
}

func (s *stubStore) ListVisits(ctx context.Context, limit int) ([]model.Visit, error) {
	return s.listVisits(ctx, limit)
}

func (s *stubStore) GetVisitContext(ctx context.Context, visitID int64) (*model.VisitContext, error) {
	return s.visitContext(ctx, visitID)
}

func (s *stubStore) InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error) {
	return s.insert(ctx, p)
}

func (s *stubStore) ListPredictions(ctx context.Context, limit int) ([]model.Prediction, error) {
	return s.listPreds(ctx, limit)
}

func (s *stubStore) QueueRows(ctx context.Context, fetchLimit int) ([]store.QueueRow, error) {
	return s.queueRows(ctx, fetchLimit)
}

func (s *stubStore) CountPredictions(context.Context, int64) (int, error) { return 1, nil }

func (s *stubStore) Ping(context.Context) error { return nil }

type stubScorer struct {
	predict func(ctx context.Context, req scorer.PredictRequest) (*scorer.Prediction, error)
}

func (s *stubScorer) Predict(ctx context.Context, req scorer.PredictRequest) (*scorer.Prediction, error) {
	return s.predict(ctx, req)
}

func newTestServer(st *stubStore, sc scorer.Client) http.Handler {
	if sc == nil {
		sc = &stubScorer{predict: func(context.Context, scorer.PredictRequest) (*scorer.Prediction, error) {
			return &scorer.Prediction{RiskLevel: "LOW", RiskScore: 0.1, ModelVersion: "v1"}, nil
		}}
	}
	srv := NewServer(st, triage.NewClassifier(st, sc, time.Second), triage.NewQueue(st, 0, 0))
	return srv.Router([]string{"*"})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var payload errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreatePatient(t *testing.T) {
	st := &stubStore{
		createPatient: func(_ context.Context, p model.Patient) (*model.Patient, error) {
			p.ID = 1
			p.CreatedAt = time.Now().UTC()
			return &p, nil
		},
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodPost, "/api/patients",
		`{"first_name": "Ann", "last_name": "Lee", "dob": "1972-04-09", "sex": "F"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var p model.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Ann", p.FirstName)
	require.NotNil(t, p.DOB)
	assert.Equal(t, 1972, p.DOB.Year())
}

func TestCreatePatient_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing_names", `{"first_name": "", "last_name": ""}`, "first_name and last_name are required"},
		{"whitespace_names", `{"first_name": "  ", "last_name": "Lee"}`, "first_name and last_name are required"},
		{"bad_dob", `{"first_name": "Ann", "last_name": "Lee", "dob": "04/09/1972"}`, "dob must be YYYY-MM-DD"},
		{"bad_json", `{not json`, "invalid request body"},
	}

	h := newTestServer(&stubStore{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/patients", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, "validation", payload.Kind)
			assert.Contains(t, payload.Error, tt.want)
		})
	}
}

func TestCreateVisit_UnknownPatient(t *testing.T) {
	st := &stubStore{
		getPatient: func(context.Context, int64) (*model.Patient, error) { return nil, nil },
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodPost, "/api/visits", `{"patient_id": 42}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "not_found", payload.Kind)
	assert.Contains(t, payload.Error, "patient not found: 42")
}

func TestCreateVisit(t *testing.T) {
	st := &stubStore{
		getPatient: func(_ context.Context, id int64) (*model.Patient, error) {
			return &model.Patient{ID: id, FirstName: "Ann", LastName: "Lee"}, nil
		},
		createVisit: func(_ context.Context, v model.Visit) (*model.Visit, error) {
			v.ID = 7
			v.Status = model.VisitStatusOpen
			v.VisitTime = time.Now().UTC()
			return &v, nil
		},
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodPost, "/api/visits",
		`{"patient_id": 42, "chief_complaint": "chest pain", "symptom_text": "crushing chest pain"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var v model.Visit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, int64(7), v.ID)
	assert.Equal(t, model.VisitStatusOpen, v.Status)
}

func TestQueue_InvalidRiskFilter(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}, nil), http.MethodGet, "/api/queue?risk=SEVERE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation", payload.Kind)
	assert.Contains(t, payload.Error, "LOW, MEDIUM, HIGH")
}

func TestQueue(t *testing.T) {
	high := "HIGH"
	complaint := "chest pain"
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	st := &stubStore{
		queueRows: func(context.Context, int) ([]store.QueueRow, error) {
			return []store.QueueRow{
				{VisitID: 1, FirstName: "Bo", LastName: "Kim", VisitTime: base.Add(time.Hour), Status: model.VisitStatusOpen},
				{VisitID: 2, FirstName: "Ann", LastName: "Lee", ChiefComplaint: &complaint, VisitTime: base, Status: model.VisitStatusOpen, RiskLevel: &high},
			}, nil
		},
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []model.QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].VisitID, "classified visit outranks unclassified")
	assert.Equal(t, model.TierHigh, entries[0].Tier)
	assert.Equal(t, model.TierUnclassified, entries[1].Tier)

	// risk filter narrows to the classified entry
	rec = doRequest(t, newTestServer(st, nil), http.MethodGet, "/api/queue?risk=high", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].VisitID)
}

func TestListPredictions_EmptyIsArray(t *testing.T) {
	st := &stubStore{
		listPreds: func(context.Context, int) ([]model.Prediction, error) { return nil, nil },
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodGet, "/api/predictions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestTriage_NonNumericVisitID(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}, nil), http.MethodPost, "/api/triage/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation", payload.Kind)
}

func TestTriage_VisitNotFound(t *testing.T) {
	st := &stubStore{
		visitContext: func(context.Context, int64) (*model.VisitContext, error) { return nil, nil },
	}

	rec := doRequest(t, newTestServer(st, nil), http.MethodPost, "/api/triage/999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "not_found", payload.Kind)
}

func TestTriage_Success(t *testing.T) {
	st := &stubStore{
		visitContext: func(context.Context, int64) (*model.VisitContext, error) {
			return &model.VisitContext{VisitID: 7, SymptomText: "chest pain"}, nil
		},
		insert: func(_ context.Context, p model.Prediction) (*model.Prediction, error) {
			p.ID = 42
			p.CreatedAt = time.Now().UTC()
			return &p, nil
		},
	}
	sc := &stubScorer{
		predict: func(context.Context, scorer.PredictRequest) (*scorer.Prediction, error) {
			return &scorer.Prediction{
				RiskLevel:    "HIGH",
				RiskScore:    0.91,
				Rationale:    "Red-flag symptoms.",
				ModelVersion: "triage-scorer-v1",
			}, nil
		},
	}

	rec := doRequest(t, newTestServer(st, sc), http.MethodPost, "/api/triage/7", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var pred model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.Equal(t, int64(42), pred.ID)
	assert.Equal(t, "HIGH", pred.RiskLevel)
}

func TestTriage_ScorerFailureStatuses(t *testing.T) {
	st := &stubStore{
		visitContext: func(context.Context, int64) (*model.VisitContext, error) {
			return &model.VisitContext{VisitID: 7, SymptomText: "chest pain"}, nil
		},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "scorer_timeout"},
		{"unavailable", &scorer.StatusError{Code: 503, Body: "down"}, http.StatusBadGateway, "scorer_unavailable"},
		{"bad_response", &scorer.MalformedResponseError{Detail: "missing risk_level"}, http.StatusBadGateway, "scorer_bad_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &stubScorer{
				predict: func(context.Context, scorer.PredictRequest) (*scorer.Prediction, error) {
					return nil, tt.err
				},
			}
			rec := doRequest(t, newTestServer(st, sc), http.MethodPost, "/api/triage/7", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
		})
	}
}
