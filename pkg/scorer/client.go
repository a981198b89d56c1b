// Package scorer is the HTTP client for the triage risk scoring service.
// Each call is a fresh assessment: the client never retries on its own, so
// a caller that wants retries owns that policy.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "http://127.0.0.1:8001"

// Client requests a risk assessment for one visit's symptoms.
type Client interface {
	Predict(ctx context.Context, req PredictRequest) (*Prediction, error)
}

// PredictRequest is the request body for POST /predict. Age and Sex are
// optional demographics; the scorer treats them as hints.
type PredictRequest struct {
	Text string  `json:"text"`
	Age  *int    `json:"age,omitempty"`
	Sex  *string `json:"sex,omitempty"`
}

// Prediction is the scorer's assessment of one request.
type Prediction struct {
	RiskLevel    string  `json:"risk_level"`
	RiskScore    float64 `json:"risk_score"`
	Rationale    string  `json:"rationale"`
	ModelVersion string  `json:"model_version"`
}

// StatusError is returned when the scorer answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scorer: unexpected status %d: %s", e.Code, e.Body)
}

// MalformedResponseError is returned when the scorer's body cannot be
// decoded or is missing required fields.
type MalformedResponseError struct {
	Detail string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return "scorer: malformed response: " + e.Detail
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default scorer base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a scorer client. The underlying http.Client carries no
// timeout of its own; deadlines come from the caller's context.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "scorer: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result Prediction
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &MalformedResponseError{Detail: "invalid JSON", Err: err}
	}
	if result.RiskLevel == "" {
		return nil, &MalformedResponseError{Detail: "missing risk_level"}
	}
	if result.ModelVersion == "" {
		return nil, &MalformedResponseError{Detail: "missing model_version"}
	}

	return &result, nil
}
