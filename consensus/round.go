// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/custodian-sys/custodian/lib/identity"
)

// round is the engine's internal per-round record. All fields after mu
// are guarded by mu; the engine takes mu for every mutation and every
// status read, giving the per-round serialization the concurrency
// model requires.
type round struct {
	mu sync.Mutex

	id       uint64
	quorum   int
	start    time.Time
	deadline time.Time

	state        State
	observations map[identity.NodeID]Observation

	// excluded is append-only per node: a reason is only ever
	// replaced by a higher-precedence one, never removed.
	excluded map[identity.NodeID]ExclusionReason

	// contradicted marks nodes whose resubmission contradicted their
	// own prior value beyond the deviation bound. The detector turns
	// the mark into an exclusion when the round evaluates.
	contradicted map[identity.NodeID]bool

	score       *float64
	completedAt time.Time

	superseded []RoundSnapshot
}

func newRound(id uint64, quorum int, start, deadline time.Time) *round {
	return &round{
		id:           id,
		quorum:       quorum,
		start:        start,
		deadline:     deadline,
		state:        StatePending,
		observations: make(map[identity.NodeID]Observation),
		excluded:     make(map[identity.NodeID]ExclusionReason),
		contradicted: make(map[identity.NodeID]bool),
	}
}

// effectivePopulation is the observed count minus the excluded count.
// Caller holds mu.
func (r *round) effectivePopulation() int {
	return len(r.observations) - len(r.excluded)
}

// exclude flags a node, honoring reason precedence: an existing reason
// is only replaced by a strictly higher-precedence one. Returns true
// when the node was not excluded before. Caller holds mu.
func (r *round) exclude(node identity.NodeID, reason ExclusionReason) bool {
	existing, already := r.excluded[node]
	if already {
		if reason.precedence() > existing.precedence() {
			r.excluded[node] = reason
		}
		return false
	}
	r.excluded[node] = reason
	return true
}

// status snapshots the externally visible round state. Caller holds
// mu.
func (r *round) status() RoundStatus {
	status := RoundStatus{
		Round:         r.id,
		State:         r.state,
		ObservedCount: len(r.observations),
		ExcludedNodes: r.excludedNodes(),
	}
	if r.score != nil {
		score := *r.score
		status.ConsensusScore = &score
		status.Elapsed = r.completedAt.Sub(r.start)
	}
	return status
}

// snapshot deep-copies the round for reconciliation and archiving.
// Caller holds mu.
func (r *round) snapshot() RoundSnapshot {
	snap := RoundSnapshot{
		Round:        r.id,
		Quorum:       r.quorum,
		Start:        r.start,
		Deadline:     r.deadline,
		State:        r.state,
		Observations: make(map[identity.NodeID]Observation, len(r.observations)),
		CompletedAt:  r.completedAt,
	}
	for node, obs := range r.observations {
		snap.Observations[node] = obs
	}
	if len(r.excluded) > 0 {
		snap.Excluded = make(map[identity.NodeID]ExclusionReason, len(r.excluded))
		for node, reason := range r.excluded {
			snap.Excluded[node] = reason
		}
	}
	if r.score != nil {
		score := *r.score
		snap.ConsensusScore = &score
	}
	if len(r.superseded) > 0 {
		snap.SupersededFragments = append([]RoundSnapshot(nil), r.superseded...)
	}
	return snap
}

// excludedNodes returns the excluded node ids in stable sorted order.
// Caller holds mu.
func (r *round) excludedNodes() []identity.NodeID {
	if len(r.excluded) == 0 {
		return nil
	}
	nodes := make([]identity.NodeID, 0, len(r.excluded))
	for node := range r.excluded {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}
