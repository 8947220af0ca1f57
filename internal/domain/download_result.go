package domain

import "time"

// State is a step of the download state machine.
type State string

const (
	StateResolving    State = "resolving"
	StateDeciding     State = "deciding"
	StateTransferring State = "transferring"
	StateVerifying    State = "verifying"
	StatePromoting    State = "promoting"
	StateDone         State = "done"
	StateSkipped      State = "skipped"
	StateFailed       State = "failed"
)

// Terminal reports whether the state ends a call successfully.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped
}

// Result represents the result of a successful Get
type Result struct {
	ID string

	// State is StateDone or StateSkipped
	State State

	// Target is the absolute path of the final file
	Target string

	// Bytes is the size of the final file
	Bytes int64

	// Transferred is the number of bytes received over the wire
	Transferred int64

	// ResumedFrom is the staging offset the first attempt started at
	ResumedFrom int64

	// Attempts is the number of transfer attempts made
	Attempts int

	Elapsed time.Duration
}

// Resumed indicates whether the download continued a previous staging file
func (r *Result) Resumed() bool {
	return r.ResumedFrom > 0
}

// JournalEntry is one recorded Get call.
type JournalEntry struct {
	ID          string
	URL         string
	RelPath     string
	Target      string
	State       State
	Bytes       int64
	ResumedFrom int64
	Attempts    int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}
