package triage

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/store"
)

// DefaultMaxResults caps how many entries one queue read returns.
const DefaultMaxResults = 500

// QueueFilter narrows a queue read. Search is a case-folded substring match
// against patient name and chief complaint; Risk, when set, keeps only
// entries whose resolved tier equals it.
type QueueFilter struct {
	Search string
	Risk   *model.Tier
}

// Queue projects stored visits into the prioritized triage queue. The
// ordering work happens in process: the store hands over candidate rows and
// the projection resolves tiers, filters, and sorts.
type Queue struct {
	store      store.Store
	fetchLimit int
	maxResults int
}

// NewQueue builds a Queue. fetchLimit bounds the candidate rows pulled from
// the store, maxResults the entries returned; zero means the defaults.
func NewQueue(st store.Store, fetchLimit, maxResults int) *Queue {
	if fetchLimit <= 0 {
		fetchLimit = store.DefaultQueueFetch
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Queue{store: st, fetchLimit: fetchLimit, maxResults: maxResults}
}

// List returns the queue ordered by tier rank, then most recent visit first.
// Entries on the same tier with the same visit time keep a stable order
// within one call. An empty queue is a valid result, not an error.
func (q *Queue) List(ctx context.Context, filter QueueFilter) ([]model.QueueEntry, error) {
	rows, err := q.store.QueueRows(ctx, q.fetchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "triage: fetch queue rows")
	}

	// Casers are stateful, so each call gets its own.
	fold := cases.Fold()
	needle := ""
	if filter.Search != "" {
		needle = fold.String(filter.Search)
	}

	entries := make([]model.QueueEntry, 0, len(rows))
	for _, r := range rows {
		if r.Status != model.VisitStatusOpen {
			continue
		}

		patient := strings.TrimSpace(r.FirstName + " " + r.LastName)
		if needle != "" && !matchesSearch(fold, needle, patient, r.ChiefComplaint) {
			continue
		}

		tier := model.TierUnclassified
		if r.RiskLevel != nil {
			tier = model.TierOf(*r.RiskLevel)
			if tier == model.TierUnclassified && strings.TrimSpace(*r.RiskLevel) != "" {
				zap.L().Warn("queue row carries unrecognized risk level",
					zap.Int64("visit_id", r.VisitID),
					zap.String("risk_level", *r.RiskLevel))
			}
		}
		if filter.Risk != nil && tier != *filter.Risk {
			continue
		}

		entries = append(entries, model.QueueEntry{
			VisitID:        r.VisitID,
			Patient:        patient,
			ChiefComplaint: r.ChiefComplaint,
			Tier:           tier,
			RiskLevel:      r.RiskLevel,
			VisitTime:      r.VisitTime,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Tier.Rank() != entries[j].Tier.Rank() {
			return entries[i].Tier.Rank() < entries[j].Tier.Rank()
		}
		return entries[i].VisitTime.After(entries[j].VisitTime)
	})

	if len(entries) > q.maxResults {
		entries = entries[:q.maxResults]
	}
	return entries, nil
}

func matchesSearch(fold cases.Caser, needle, patient string, chiefComplaint *string) bool {
	if strings.Contains(fold.String(patient), needle) {
		return true
	}
	return chiefComplaint != nil && strings.Contains(fold.String(*chiefComplaint), needle)
}
