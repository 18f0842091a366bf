// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

// State is a round's position in its lifecycle.
//
//	Pending → Collecting → Evaluating → Complete
//	                    ↘ TimedOut        | PartiallyComplete
//
// Evaluating is transient: it only exists inside a round's critical
// section while detection and aggregation run, so status queries
// observe it briefly at most.
type State string

const (
	// StatePending: the round is open but has no observations yet.
	StatePending State = "pending"

	// StateCollecting: at least one observation, below quorum.
	StateCollecting State = "collecting"

	// StateEvaluating: a candidate quorum was reached; Byzantine
	// detection and score aggregation are running.
	StateEvaluating State = "evaluating"

	// StateComplete: the consensus score is computed. Terminal.
	StateComplete State = "complete"

	// StateTimedOut: the deadline passed without quorum. Terminal and
	// never auto-retried; partial data is preserved for audit.
	StateTimedOut State = "timed_out"

	// StatePartiallyComplete: quorum was reached within an isolated
	// subset of the population. Awaits reconciliation; accepts no
	// further observations.
	StatePartiallyComplete State = "partially_complete"
)

// Terminal reports whether the state accepts no further observations.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateTimedOut, StatePartiallyComplete:
		return true
	}
	return false
}

// ExclusionReason records why a node was excluded from a round. A node
// receives at most one reason per round; when several apply, the
// highest-precedence reason wins.
type ExclusionReason string

const (
	// ReasonConflictingFacts: the node submitted contradictory values
	// for the same measured quantity within one round.
	ReasonConflictingFacts ExclusionReason = "conflicting_facts"

	// ReasonSelfContradiction: a resubmission contradicted the node's
	// own prior value beyond the deviation bound.
	ReasonSelfContradiction ExclusionReason = "self_contradiction"

	// ReasonDeviation: the node's value deviates from the round's
	// running median by more than the configured bound.
	ReasonDeviation ExclusionReason = "deviation"
)

// precedence orders exclusion reasons; conflicting observations
// outrank deviation.
func (r ExclusionReason) precedence() int {
	switch r {
	case ReasonConflictingFacts:
		return 3
	case ReasonSelfContradiction:
		return 2
	case ReasonDeviation:
		return 1
	}
	return 0
}
