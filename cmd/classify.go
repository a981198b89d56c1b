package main

import (
	"context"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/resilience"
	"github.com/lakeside-health/triage-api/internal/triage"
)

var (
	classifyConcurrency int
	classifyRate        float64
	classifyRetries     int
)

var classifyCmd = &cobra.Command{
	Use:   "classify VISIT_ID...",
	Short: "Run the classification pipeline for one or more visits",
	Long:  "Scores each visit's symptom narrative against the external risk model and appends a prediction per visit. Scorer failures are retried; caller errors are not.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		visitIDs := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || id <= 0 {
				return eris.Errorf("visit id must be a positive integer: %q", arg)
			}
			visitIDs = append(visitIDs, id)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		classifier := initClassifier(st)

		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.MaxAttempts = classifyRetries + 1
		// Only scorer failures are worth retrying: nothing was persisted and
		// the next attempt is a fresh assessment either way.
		retryCfg.ShouldRetry = triage.IsScorerFailure
		retryCfg.OnRetry = resilience.RetryLogger("scorer", "classify")

		limiter := rate.NewLimiter(rate.Limit(classifyRate), 1)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(classifyConcurrency)

		var succeeded, failed atomic.Int64

		for _, visitID := range visitIDs {
			visitID := visitID
			g.Go(func() error {
				log := zap.L().With(zap.Int64("visit_id", visitID))

				if err := limiter.Wait(gctx); err != nil {
					return err
				}

				pred, err := resilience.DoVal(gctx, retryCfg, func(ctx context.Context) (*model.Prediction, error) {
					return classifier.Classify(ctx, visitID)
				})
				if err != nil {
					failed.Add(1)
					log.Error("classification failed", zap.Error(err))
					return nil // don't abort the batch on individual failure
				}

				succeeded.Add(1)
				log.Info("classification complete",
					zap.String("risk_level", pred.RiskLevel),
					zap.Float64("risk_score", pred.RiskScore),
					zap.String("model_version", pred.ModelVersion),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "classify batch")
		}

		zap.L().Info("classify complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		if failed.Load() > 0 {
			return eris.Errorf("%d of %d classifications failed", failed.Load(), len(visitIDs))
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().IntVar(&classifyConcurrency, "concurrency", 4, "max concurrent scorer calls")
	classifyCmd.Flags().Float64Var(&classifyRate, "rate", 10, "max scorer calls per second")
	classifyCmd.Flags().IntVar(&classifyRetries, "retries", 2, "retries per visit on scorer failure")
	rootCmd.AddCommand(classifyCmd)
}
