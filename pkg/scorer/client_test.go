package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   string
		wantLevel string
		wantScore float64
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"risk_level": "HIGH",
				"risk_score": 0.91,
				"rationale": "Red-flag symptom cluster.",
				"model_version": "triage-scorer-v1"
			}`,
			wantLevel: "HIGH",
			wantScore: 0.91,
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"detail": "model unavailable"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "validation_error",
			status:  http.StatusUnprocessableEntity,
			body:    `{"detail": "text is required"}`,
			wantErr: "unexpected status 422",
		},
		{
			name:    "malformed_json",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "malformed response: invalid JSON",
		},
		{
			name:    "missing_risk_level",
			status:  http.StatusOK,
			body:    `{"risk_score": 0.2, "model_version": "v1"}`,
			wantErr: "missing risk_level",
		},
		{
			name:    "missing_model_version",
			status:  http.StatusOK,
			body:    `{"risk_level": "LOW", "risk_score": 0.2}`,
			wantErr: "missing model_version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/predict", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))

			resp, err := client.Predict(context.Background(), PredictRequest{Text: "chest pain"})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantLevel, resp.RiskLevel)
			assert.Equal(t, tt.wantScore, resp.RiskScore)
		})
	}
}

func TestPredict_SendsDemographics(t *testing.T) {
	var got PredictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_level": "LOW", "risk_score": 0.1, "rationale": "", "model_version": "v1"}`))
	}))
	defer srv.Close()

	age := 54
	sex := "F"
	client := NewClient(WithBaseURL(srv.URL))

	_, err := client.Predict(context.Background(), PredictRequest{Text: "mild headache", Age: &age, Sex: &sex})
	require.NoError(t, err)

	assert.Equal(t, "mild headache", got.Text)
	require.NotNil(t, got.Age)
	assert.Equal(t, 54, *got.Age)
	require.NotNil(t, got.Sex)
	assert.Equal(t, "F", *got.Sex)
}

func TestPredict_StatusErrorType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down for maintenance"))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Predict(context.Background(), PredictRequest{Text: "anything"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Contains(t, statusErr.Body, "maintenance")
}

func TestPredict_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"risk_level": "LOW", "risk_score": 0.1, "rationale": "", "model_version": "v1"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Predict(ctx, PredictRequest{Text: "anything"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
