package domain

import "time"

// EventBus topics published by the pipeline.
const (
	EventContestCycleCompleted = "contest:cycle:completed"
	EventCalendarSyncCompleted = "calendar:sync:completed"
)

// CycleResult summarizes one aggregator fetch cycle.
type CycleResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// PerSource maps source name to the number of contests it returned.
	PerSource map[string]int `json:"per_source"`
	Upserted  int            `json:"upserted"`
	// FailedSources lists sources that returned nothing usable this
	// cycle. Their failure never fails the cycle.
	FailedSources []string `json:"failed_sources"`
}

// SyncBatchResult summarizes one pass of the sync engine over all
// subscribed users.
type SyncBatchResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Users      int       `json:"users"`
	Added      int       `json:"added"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// SyncResult is the structured, user-visible outcome of a single
// add/remove reconcile for one user. It is always a value, never a
// raw error surfaced to the end user.
type SyncResult struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	AddedCount   int      `json:"added_count"`
	SkippedCount int      `json:"skipped_count"`
	RemovedCount int      `json:"removed_count"`
	Errors       []string `json:"errors,omitempty"`
}
