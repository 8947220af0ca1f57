package domain

import (
	"path/filepath"
	"time"
)

// PartSuffix is appended to the target path to name its staging file.
const PartSuffix = ".part"

// ResolvedPath is a relative path proven to stay under its base directory.
type ResolvedPath struct {
	BaseDir string
	RelPath string
	Target  string
	Staging string
}

// NewResolvedPath derives the target and staging paths.
func NewResolvedPath(baseDir, relPath string) ResolvedPath {
	target := filepath.Join(baseDir, relPath)
	return ResolvedPath{
		BaseDir: baseDir,
		RelPath: relPath,
		Target:  target,
		Staging: target + PartSuffix,
	}
}

// Snapshot is the observed state of a file at one point in time.
type Snapshot struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Same reports whether two snapshots describe an unchanged file.
func (s Snapshot) Same(o Snapshot) bool {
	if s.Exists != o.Exists {
		return false
	}
	if !s.Exists {
		return true
	}
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

// DecisionKind is the outcome of inspecting the target and staging files.
type DecisionKind int

const (
	DecideFresh DecisionKind = iota
	DecideResume
	DecideSkip
)

func (k DecisionKind) String() string {
	switch k {
	case DecideResume:
		return "resume"
	case DecideSkip:
		return "skip"
	default:
		return "fresh"
	}
}

// Decision tells the orchestrator what to do with a request.
type Decision struct {
	Kind   DecisionKind
	Offset int64

	// Target and Staging are what Decide observed.
	Target  Snapshot
	Staging Snapshot
}

// OutcomeStatus classifies a transfer attempt.
type OutcomeStatus int

const (
	OutcomeCompleted OutcomeStatus = iota
	OutcomeNotModified
	OutcomeInterrupted
	OutcomeTransient
	OutcomeFatal
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeCompleted:
		return "completed"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// TransferOutcome is the result of one transfer attempt.
type TransferOutcome struct {
	Status        OutcomeStatus
	Code          int
	StatusText    string
	StartOffset   int64
	EndOffset     int64
	Elapsed       time.Duration
	RemoteModTime time.Time
	Restarted     bool
	Err           error
}

// Transferred returns the bytes received in this attempt.
func (o *TransferOutcome) Transferred() int64 {
	return o.EndOffset - o.StartOffset
}

// Check is the result of one verification criterion.
type Check int

const (
	NotChecked Check = iota
	CheckPassed
	CheckFailed
)

func (c Check) String() string {
	switch c {
	case CheckPassed:
		return "passed"
	case CheckFailed:
		return "failed"
	default:
		return "not_checked"
	}
}

// VerificationResult holds the per-criterion results for a staged file.
type VerificationResult struct {
	Size    Check
	Digests map[string]Check

	// Failure describes the first failed criterion, if any.
	Failure *VerificationError
}

// Passed reports whether every checked criterion passed.
func (v *VerificationResult) Passed() bool {
	if v.Size == CheckFailed {
		return false
	}
	for _, c := range v.Digests {
		if c == CheckFailed {
			return false
		}
	}
	return true
}
