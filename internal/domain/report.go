package domain

import "time"

type ProblemKind string

const (
	ProblemValidation ProblemKind = "validation"
	ProblemAssetCache ProblemKind = "asset_cache"
	ProblemStore      ProblemKind = "store"
	ProblemGuard      ProblemKind = "guard"
)

// Problem is a non-fatal issue recorded during a cycle.
type Problem struct {
	Kind       ProblemKind `json:"kind"`
	ExternalID string      `json:"external_id,omitempty"`
	Detail     string      `json:"detail"`
}

// SyncReport summarizes one sync cycle.
type SyncReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`

	Fetched     int `json:"fetched"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Reactivated int `json:"reactivated"`
	Retired     int `json:"retired"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`

	Problems []Problem `json:"problems,omitempty"`

	// Aborted is set when the cycle stopped before touching the store.
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`

	// Touched lists external ids whose stored state changed.
	Touched []string `json:"-"`
}

func (r *SyncReport) AddProblem(kind ProblemKind, externalID, detail string) {
	r.Problems = append(r.Problems, Problem{Kind: kind, ExternalID: externalID, Detail: detail})
}

// Mutations is the number of records whose stored state changed.
func (r SyncReport) Mutations() int {
	return r.Created + r.Updated + r.Reactivated + r.Retired
}
