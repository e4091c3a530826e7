package types

import (
	"errors"
	"fmt"
)

var (
	// ErrQuorumInsufficient reports a tick that was skipped because the sync
	// aggregate did not reach quorum. It is an expected outcome, not a failure.
	ErrQuorumInsufficient = errors.New("insufficient sync committee participation")

	// ErrNoFinalizedUpdate is returned when no finalized update exists for a period.
	ErrNoFinalizedUpdate = errors.New("no finalized update in period")
)

// NetworkError is a beacon node or destination RPC failure. Callers decide
// whether to retry.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DeserializationError is raised for malformed consensus JSON.
type DeserializationError struct {
	Field  string
	Reason string
}

func (e *DeserializationError) Error() string {
	if e.Field == "" {
		return "deserialize: " + e.Reason
	}
	return fmt.Sprintf("deserialize %s: %s", e.Field, e.Reason)
}

// InvariantViolation indicates a protocol or upstream bug, such as a wrong
// committee size or branch length.
type InvariantViolation struct {
	What string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.What
}

// ExternalProcessError is a missing or failing witness/prover executable.
type ExternalProcessError struct {
	Executable string
	Output     string
	Err        error
}

func (e *ExternalProcessError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("external process %q: %v: %s", e.Executable, e.Err, e.Output)
	}
	return fmt.Sprintf("external process %q: %v", e.Executable, e.Err)
}

func (e *ExternalProcessError) Unwrap() error { return e.Err }

// SubmissionError is a failed transaction towards a single destination.
type SubmissionError struct {
	Target string
	Op     string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s to %s failed: %v", e.Op, e.Target, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
