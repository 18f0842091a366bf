// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import "fmt"

// Reconcile merges two partially complete fragments of the same round,
// produced by node subsets that each reached local quorum while
// mutually unreachable. The observation sets are unioned (for a node
// present in both, the later-submitted entry wins), Byzantine
// detection and quorum evaluation re-run over the union, and the
// resulting round is installed as the authoritative record for the
// round id. The fragments — and any round previously installed under
// the id — are retained on the merged round for audit.
//
// The merge builds a fresh round from the two immutable snapshots;
// neither input is mutated, so superseded fragments remain exactly as
// they were when their partitions finalized them.
func (e *Engine) Reconcile(a, b RoundSnapshot) (RoundStatus, error) {
	if a.Round != b.Round {
		return RoundStatus{}, fmt.Errorf("cannot reconcile different rounds %d and %d", a.Round, b.Round)
	}
	if a.State != StatePartiallyComplete || b.State != StatePartiallyComplete {
		return RoundStatus{}, fmt.Errorf("reconcile requires two partially complete fragments, got %s and %s", a.State, b.State)
	}

	e.mu.Lock()
	if a.Round < e.floor {
		maxID := e.maxID
		e.mu.Unlock()
		return RoundStatus{}, NewError(KindStaleRound, "round %d is outside the retained window (current round %d)", a.Round, maxID)
	}
	previous := e.rounds[a.Round]
	e.mu.Unlock()

	merged := mergeFragments(a, b)

	merged.mu.Lock()
	if previous != nil {
		previous.mu.Lock()
		merged.superseded = append(merged.superseded, previous.snapshot())
		previous.mu.Unlock()
	}
	merged.superseded = append(merged.superseded, a, b)

	if newlyExcluded := detect(merged, e.opts.DeviationBound); newlyExcluded > 0 && e.metrics != nil {
		e.metrics.NodesExcluded.Add(uint64(newlyExcluded))
	}

	if merged.effectivePopulation() >= merged.quorum {
		score, ok := medianScore(merged)
		if ok {
			merged.score = &score
			merged.completedAt = e.clk.Now()
			merged.state = StateComplete
		}
	}
	if merged.state != StateComplete {
		// Exclusions over the union dropped it below quorum; the
		// merged round keeps collecting.
		merged.state = StateCollecting
	}
	status := merged.status()
	merged.mu.Unlock()

	e.install(merged)

	if e.logger != nil {
		e.logger.Info("partition fragments reconciled",
			"round", status.Round,
			"state", status.State,
			"observed", status.ObservedCount,
			"excluded", len(status.ExcludedNodes),
		)
	}
	return status, nil
}

// mergeFragments unions two fragments into a fresh round. The earlier
// start and the later deadline are kept so elapsed-time accounting
// spans the whole partition episode.
func mergeFragments(a, b RoundSnapshot) *round {
	start := a.Start
	if b.Start.Before(start) {
		start = b.Start
	}
	deadline := a.Deadline
	if b.Deadline.After(deadline) {
		deadline = b.Deadline
	}

	quorum := a.Quorum
	if b.Quorum > quorum {
		quorum = b.Quorum
	}

	merged := newRound(a.Round, quorum, start, deadline)
	merged.state = StateCollecting
	for _, fragment := range []RoundSnapshot{a, b} {
		for node, obs := range fragment.Observations {
			existing, present := merged.observations[node]
			if !present || obs.SubmittedAt.After(existing.SubmittedAt) {
				merged.observations[node] = obs
			}
		}
	}
	return merged
}

// install makes merged the authoritative round for its id.
func (e *Engine) install(merged *round) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, present := e.rounds[merged.id]; !present {
		e.ids = append(e.ids, merged.id)
		if merged.id > e.maxID {
			e.maxID = merged.id
		}
		if e.floor == 0 || merged.id < e.floor {
			e.floor = merged.id
		}
	}
	e.rounds[merged.id] = merged
}
