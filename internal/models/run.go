package models

import "time"

// Many-to-many relations rewritten wholesale on every sync run. The names
// double as association table names in the repository.
const (
	RelServiceTeams          = "service_teams"
	RelEscalationPolicyTeams = "escalation_policy_teams"
	RelUserTeams             = "user_teams"
	RelScheduleUsers         = "schedule_users"
	RelScheduleTeams         = "schedule_teams"
)

// RunState is the lifecycle state of a sync run.
type RunState string

const (
	RunPending         RunState = "pending"
	RunFetching        RunState = "fetching_entities"
	RunLinking         RunState = "linking_associations"
	RunCompleted       RunState = "completed"
	RunPartiallyFailed RunState = "partially_failed"
)

// StageStatus is the outcome of one entity-type stage within a run.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
)

// StageSummary tallies the outcome of syncing one entity type.
type StageSummary struct {
	Status   StageStatus `json:"status"`
	Fetched  int         `json:"fetched"`
	Upserted int         `json:"upserted"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Error    string      `json:"error,omitempty"`
}

// RunSummary is the full record of one sync run. It is an explicit value,
// not process-global state, so independent orchestrators stay isolated.
type RunSummary struct {
	ID           string                   `json:"id"`
	State        RunState                 `json:"state"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at,omitempty"`
	Stages       map[string]*StageSummary `json:"stages"`
	DroppedLinks int                      `json:"dropped_links"`
	LinkFailures int                      `json:"link_failures"`
}

// Clone returns a deep copy safe to hand to readers while the run mutates.
func (r *RunSummary) Clone() RunSummary {
	out := *r
	out.Stages = make(map[string]*StageSummary, len(r.Stages))
	for k, v := range r.Stages {
		stage := *v
		out.Stages[k] = &stage
	}
	return out
}

// HasFailedStage reports whether any stage of the run failed.
func (r *RunSummary) HasFailedStage() bool {
	for _, st := range r.Stages {
		if st.Status == StageFailed {
			return true
		}
	}
	return false
}
