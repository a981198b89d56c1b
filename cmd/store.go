package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-health/triage-api/internal/store"
	"github.com/lakeside-health/triage-api/internal/triage"
	"github.com/lakeside-health/triage-api/pkg/scorer"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "triage.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initClassifier(st store.Store) *triage.Classifier {
	client := scorer.NewClient(scorer.WithBaseURL(cfg.Scorer.BaseURL))
	return triage.NewClassifier(st, client, time.Duration(cfg.Scorer.TimeoutSecs)*time.Second)
}

func initQueue(st store.Store) *triage.Queue {
	return triage.NewQueue(st, cfg.Queue.FetchLimit, cfg.Queue.MaxResults)
}
