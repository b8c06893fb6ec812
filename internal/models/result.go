package models

import "time"

type MatchKind string

const (
	MatchNone        MatchKind = ""
	MatchGUID        MatchKind = "guid"
	MatchContentHash MatchKind = "contentHash"
)

// DuplicateResult is produced per check and never persisted.
type DuplicateResult struct {
	IsDuplicate bool
	Match       *Deal
	Kind        MatchKind
}

type HealthMode string

const (
	ModeNormal   HealthMode = "normal"
	ModeDegraded HealthMode = "degraded"
)

// HealthState is a snapshot of one source's circuit breaker.
type HealthState struct {
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Mode                HealthMode `json:"mode"`
	DegradedUntil       *time.Time `json:"degradedUntil,omitempty"`
}

// Outcome is what happened to a single normalized deal.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "skipped"
	}
}

// FetchResult aggregates one fetch run of one source.
type FetchResult struct {
	Source     string        `json:"source"`
	Mode       HealthMode    `json:"mode"`
	Fetched    int           `json:"fetched"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Duplicates int           `json:"duplicates"`
	Errors     []string      `json:"errors"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Count tallies a per-item outcome.
func (r *FetchResult) Count(o Outcome) {
	switch o {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeDuplicate:
		r.Duplicates++
	}
}

// AddError appends a per-item or fetch-level error message.
func (r *FetchResult) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}
