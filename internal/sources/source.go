// Package sources defines what every deal site integration provides and the
// pipeline pieces a fetch run hands its records to.
package sources

import (
	"context"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// Source fetches one site and pushes every record it finds through the
// pipeline. Fetch never fails as a whole; problems land in FetchResult.Errors.
type Source interface {
	Name() string
	Fetch(ctx context.Context) models.FetchResult
}

// Processor validates, deduplicates and persists one normalized deal.
type Processor interface {
	Process(ctx context.Context, deal *models.Deal) (models.Outcome, error)
	Upgrade(ctx context.Context, id string, patch models.DealPatch) error
}

// KnownIDs answers the batched "already stored?" question before any detail work.
type KnownIDs interface {
	ExistingExternalIDs(ctx context.Context, source string, ids []string) (map[string]bool, error)
}

// Monitor is the per-source circuit breaker.
type Monitor interface {
	CheckHealth() models.HealthMode
	RecordSuccess()
	RecordFailure(err error)
}

// Begin starts a result for source in the given mode.
func Begin(source string, mode models.HealthMode, now time.Time) models.FetchResult {
	return models.FetchResult{Source: source, Mode: mode, StartedAt: now, Errors: []string{}}
}

// Unknown filters ids down to those missing from known, keeping order and
// dropping repeats.
func Unknown(ids []string, known map[string]bool) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
