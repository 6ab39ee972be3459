package domain

import (
	"fmt"
	"time"
)

// LinkRequest is a single (source, destination) pair to reconcile.
// Source is the original location that should end up as a link;
// Destination is where the file lives now.
type LinkRequest struct {
	Source      string
	Destination string
}

// Outcome is the result of reconciling one LinkRequest
type Outcome string

const (
	// OutcomeCreated means a new link was created at the source
	OutcomeCreated Outcome = "created"

	// OutcomeAlreadyValid means the source already links to the destination
	OutcomeAlreadyValid Outcome = "already_valid"

	// OutcomeSkippedOutOfScope means the source directory is not enabled
	OutcomeSkippedOutOfScope Outcome = "skipped_out_of_scope"

	// OutcomeSkippedDestinationMissing means the destination is absent or not a regular file
	OutcomeSkippedDestinationMissing Outcome = "skipped_destination_missing"

	// OutcomeSkippedCycle means the destination already links back to the source
	OutcomeSkippedCycle Outcome = "skipped_cycle"

	// OutcomeSkippedConflictNotEnforced means something else occupies the source
	// and enforcement is off
	OutcomeSkippedConflictNotEnforced Outcome = "skipped_conflict_not_enforced"

	// OutcomeRepaired means a conflicting source was replaced by the link
	OutcomeRepaired Outcome = "repaired"

	// OutcomeFailedIO means a filesystem operation failed; see Result.Err
	OutcomeFailedIO Outcome = "failed_io"
)

// AllOutcomes lists every outcome in reporting order
var AllOutcomes = []Outcome{
	OutcomeCreated,
	OutcomeRepaired,
	OutcomeAlreadyValid,
	OutcomeSkippedOutOfScope,
	OutcomeSkippedDestinationMissing,
	OutcomeSkippedCycle,
	OutcomeSkippedConflictNotEnforced,
	OutcomeFailedIO,
}

// IsSkip reports whether the outcome is one of the skip outcomes
func (o Outcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedOutOfScope, OutcomeSkippedDestinationMissing,
		OutcomeSkippedCycle, OutcomeSkippedConflictNotEnforced:
		return true
	}
	return false
}

// Mutates reports whether reaching this outcome changed the filesystem
func (o Outcome) Mutates() bool {
	return o == OutcomeCreated || o == OutcomeRepaired
}

// Reason returns the sentinel error describing a skip outcome, nil otherwise
func (o Outcome) Reason() error {
	switch o {
	case OutcomeSkippedOutOfScope:
		return ErrOutOfScope
	case OutcomeSkippedDestinationMissing:
		return ErrDestinationMissing
	case OutcomeSkippedCycle:
		return ErrCycleDetected
	case OutcomeSkippedConflictNotEnforced:
		return ErrConflictNotEnforced
	}
	return nil
}

// ActionType is the filesystem change a reconciliation decided on
type ActionType string

const (
	// ActionNone leaves the filesystem untouched
	ActionNone ActionType = "none"

	// ActionCreate creates the parent directory if needed, then the link
	ActionCreate ActionType = "create"

	// ActionReplace removes whatever occupies the source, then creates the link
	ActionReplace ActionType = "replace"
)

// LinkAction is the decision reached for a LinkRequest before anything is mutated
type LinkAction struct {
	Type    ActionType
	Request LinkRequest

	// Outcome is what applying the action yields when nothing fails
	Outcome Outcome

	// Reason explains why this action was chosen
	Reason string

	// Err is set when deciding already hit a filesystem failure
	Err error
}

// Result is the final outcome of one LinkRequest
type Result struct {
	Request LinkRequest
	Outcome Outcome

	// Err carries the underlying failure for OutcomeFailedIO
	Err error

	// DryRun is set when the outcome was planned but not applied
	DryRun bool
}

// AsError returns the failure for FailedIO results and the skip reason for
// skipped ones. Created, Repaired and AlreadyValid results return nil.
func (r Result) AsError() error {
	if r.Outcome == OutcomeFailedIO {
		if r.Err != nil {
			return r.Err
		}
		return fmt.Errorf("%s -> %s: reverse link failed", r.Request.Source, r.Request.Destination)
	}
	if reason := r.Outcome.Reason(); reason != nil {
		return fmt.Errorf("%s -> %s: %w", r.Request.Source, r.Request.Destination, reason)
	}
	return nil
}

// TransferRecord is a historical transfer as kept by the history store
type TransferRecord struct {
	ID          int64
	Source      string
	Destination string

	// Files lists the individual files the transfer moved
	Files []string

	// Mode is the transfer mode reported upstream (move, copy, link, ...)
	Mode string

	Success   bool
	Status    bool
	CreatedAt time.Time
}

// IsSingleFile reports whether the record describes a single-file move
func (r TransferRecord) IsSingleFile() bool {
	return len(r.Files) == 1 && r.Files[0] == r.Source
}

// TransferEvent is the payload of a transfer-complete notification
type TransferEvent struct {
	Success     bool     `json:"success"`
	FileList    []string `json:"file_list"`
	FileListNew []string `json:"file_list_new"`
}
