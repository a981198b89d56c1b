package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lakeside-health/triage-api/internal/triage"
)

// Stable machine-readable error kinds carried in the error payload.
const (
	kindValidation = "validation"
	kindNotFound   = "not_found"
	kindInternal   = "internal"
)

type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps a domain error onto an HTTP status and the
// {"error", "kind"} payload. Scorer timeouts map to 504, other scorer
// failures to 502, so callers can tell "try later" from "you asked wrong".
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *triage.ValidationError
	var nf *triage.NotFoundError
	var se *triage.ScorerError

	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, errorPayload{Error: ve.Detail, Kind: kindValidation})
	case errors.As(err, &nf):
		respondJSON(w, http.StatusNotFound, errorPayload{Error: nf.Error(), Kind: kindNotFound})
	case errors.As(err, &se):
		status := http.StatusBadGateway
		if se.Kind == triage.ScorerTimeout {
			status = http.StatusGatewayTimeout
		}
		respondJSON(w, status, errorPayload{Error: se.Detail, Kind: string(se.Kind)})
	default:
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorPayload{Error: "internal error", Kind: kindInternal})
	}
}
