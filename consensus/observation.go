// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"time"

	"github.com/custodian-sys/custodian/lib/digest"
	"github.com/custodian-sys/custodian/lib/identity"
)

// Fact is one measured quantity inside an observation payload, e.g.
// {"disk_used_fraction", 0.83}. Facts are only inspected for internal
// consistency; their meaning belongs to the collaborators that produce
// them.
type Fact struct {
	Quantity string  `cbor:"quantity"`
	Value    float64 `cbor:"value"`
}

// Observation is one node's health report for one round.
type Observation struct {
	// Node is the verified identity the observation arrived under.
	Node identity.NodeID `cbor:"node"`

	// Round is the round id the observation targets.
	Round uint64 `cbor:"round"`

	// TrustScore is the node's locally computed health/trust metric,
	// the consensus input.
	TrustScore float64 `cbor:"trust_score"`

	// Facts are the measured quantities backing the score. Used by
	// the Byzantine detector to spot internally contradictory
	// submissions.
	Facts []Fact `cbor:"facts,omitempty"`

	// PayloadDigest fingerprints the raw payload the transport
	// admitted. The payload bytes themselves are not retained.
	PayloadDigest digest.Digest `cbor:"payload_digest,omitempty"`

	// ClientTime is the submitter's own wall-clock timestamp.
	// Informational only: ordering between resubmissions is by
	// arrival at the engine, never by client time.
	ClientTime time.Time `cbor:"client_time,omitempty"`

	// SubmittedAt is when the observation arrived at the engine. Set
	// by the engine; a resubmission gets a fresh value.
	SubmittedAt time.Time `cbor:"submitted_at"`
}

// RoundStatus is the externally visible snapshot of a round, taken
// under the same per-round lock as writes.
type RoundStatus struct {
	Round         uint64            `cbor:"round"`
	State         State             `cbor:"state"`
	ObservedCount int               `cbor:"observed_count"`
	ExcludedNodes []identity.NodeID `cbor:"excluded_nodes,omitempty"`

	// ConsensusScore is set if and only if State is Complete or
	// PartiallyComplete.
	ConsensusScore *float64 `cbor:"consensus_score,omitempty"`

	// Elapsed is the time from round start to finalization. Zero for
	// rounds that have not finalized.
	Elapsed time.Duration `cbor:"elapsed,omitempty"`
}

// RoundSnapshot is a full immutable copy of a round: the reconciler's
// input, the archive's record, and the audit view of superseded
// partition fragments.
type RoundSnapshot struct {
	Round        uint64                              `cbor:"round"`
	Quorum       int                                 `cbor:"quorum"`
	Start        time.Time                           `cbor:"start"`
	Deadline     time.Time                           `cbor:"deadline"`
	State        State                               `cbor:"state"`
	Observations map[identity.NodeID]Observation     `cbor:"observations"`
	Excluded     map[identity.NodeID]ExclusionReason `cbor:"excluded,omitempty"`

	// ConsensusScore mirrors the invariant on RoundStatus.
	ConsensusScore *float64  `cbor:"consensus_score,omitempty"`
	CompletedAt    time.Time `cbor:"completed_at,omitempty"`

	// SupersededFragments holds the partially-complete fragments this
	// round superseded during partition reconciliation. Retained for
	// audit; no longer authoritative.
	SupersededFragments []RoundSnapshot `cbor:"superseded_fragments,omitempty"`
}
