package triage

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/store"
	"github.com/lakeside-health/triage-api/pkg/scorer"
)

const defaultScorerTimeout = 10 * time.Second

// Classifier runs the classification pipeline for one visit: load the
// visit's symptom context, call the external scorer, persist the result as
// a new append-only prediction. It holds no per-call state and is safe for
// concurrent use.
type Classifier struct {
	store   store.Store
	scorer  scorer.Client
	timeout time.Duration
}

// NewClassifier builds a Classifier. timeout bounds each scorer call; zero
// means the default.
func NewClassifier(st store.Store, sc scorer.Client, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultScorerTimeout
	}
	return &Classifier{store: st, scorer: sc, timeout: timeout}
}

// Classify scores one visit and appends the resulting prediction. Every call
// is a fresh assessment even when an identical one already exists; earlier
// predictions are never modified. On scorer failure nothing is persisted and
// the returned ScorerError tells the caller which failure class it was.
func (c *Classifier) Classify(ctx context.Context, visitID int64) (*model.Prediction, error) {
	vc, err := c.store.GetVisitContext(ctx, visitID)
	if err != nil {
		return nil, eris.Wrapf(err, "triage: load visit %d", visitID)
	}
	if vc == nil {
		return nil, &NotFoundError{Resource: "visit", ID: visitID}
	}

	scoreCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.scorer.Predict(scoreCtx, scorer.PredictRequest{
		Text: vc.SymptomText,
		Age:  vc.Age,
		Sex:  vc.Sex,
	})
	if err != nil {
		return nil, classifyScorerError(err)
	}

	// The label is persisted verbatim. Tier resolution happens at read time,
	// so a label this build does not recognize still lands in the log.
	if model.TierOf(resp.RiskLevel) == model.TierUnclassified {
		zap.L().Warn("scorer returned unrecognized risk level",
			zap.Int64("visit_id", visitID),
			zap.String("risk_level", resp.RiskLevel),
			zap.String("model_version", resp.ModelVersion))
	}

	pred, err := c.store.InsertPrediction(ctx, model.Prediction{
		VisitID:      visitID,
		RiskLevel:    resp.RiskLevel,
		RiskScore:    resp.RiskScore,
		Rationale:    resp.Rationale,
		ModelVersion: resp.ModelVersion,
	})
	if err != nil {
		// The scorer already spent the work; log the response before the
		// insert failure surfaces so the assessment is not lost silently.
		zap.L().Error("prediction insert failed after successful scorer call",
			zap.Int64("visit_id", visitID),
			zap.String("risk_level", resp.RiskLevel),
			zap.Float64("risk_score", resp.RiskScore),
			zap.String("model_version", resp.ModelVersion),
			zap.Error(err))
		return nil, eris.Wrapf(err, "triage: persist prediction for visit %d", visitID)
	}

	// The count is informational only; a failure here must not fail the
	// classification that already persisted.
	if n, err := c.store.CountPredictions(ctx, visitID); err == nil {
		zap.L().Info("prediction appended",
			zap.Int64("visit_id", visitID),
			zap.String("risk_level", pred.RiskLevel),
			zap.Int("assessments_for_visit", n))
	} else {
		zap.L().Warn("prediction count unavailable",
			zap.Int64("visit_id", visitID),
			zap.Error(err))
	}
	return pred, nil
}

// classifyScorerError maps a scorer client failure onto the domain error
// taxonomy: deadline overruns, upstream non-2xx answers, and undecodable
// bodies each get their own class so the API layer can pick a status code.
func classifyScorerError(err error) *ScorerError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ScorerError{Kind: ScorerTimeout, Detail: "scorer did not answer in time", Err: err}
	}

	var malformed *scorer.MalformedResponseError
	if errors.As(err, &malformed) {
		return &ScorerError{Kind: ScorerBadResponse, Detail: malformed.Detail, Err: err}
	}

	var status *scorer.StatusError
	if errors.As(err, &status) {
		return &ScorerError{Kind: ScorerUnavailable, Status: status.Code, Detail: "scorer rejected the request", Err: err}
	}

	return &ScorerError{Kind: ScorerUnavailable, Detail: "scorer unreachable", Err: err}
}
