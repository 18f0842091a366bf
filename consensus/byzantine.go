// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import "math"

// detect runs Byzantine detection over a round: internally
// contradictory facts, self-contradicting resubmissions, then
// deviation from the running median. Pure computation over the
// round's current observations; returns the number of newly excluded
// nodes. Caller holds the round's lock.
//
// Detection order encodes reason precedence: conflict-based reasons
// are applied before the deviation pass, and round.exclude never
// downgrades a reason.
func detect(r *round, deviationBound float64) int {
	newlyExcluded := 0

	for node, obs := range r.observations {
		if hasConflictingFacts(obs.Facts) {
			if r.exclude(node, ReasonConflictingFacts) {
				newlyExcluded++
			}
		}
	}

	for node := range r.contradicted {
		if r.exclude(node, ReasonSelfContradiction) {
			newlyExcluded++
		}
	}

	// Deviation pass: the running median is computed over the nodes
	// that survived the conflict passes, then each survivor is
	// checked against it. One pass; exclusions here do not cascade
	// into a recomputed median.
	median, ok := medianScore(r)
	if !ok {
		return newlyExcluded
	}
	for node, obs := range r.observations {
		if _, excluded := r.excluded[node]; excluded {
			continue
		}
		if math.Abs(obs.TrustScore-median) > deviationBound {
			if r.exclude(node, ReasonDeviation) {
				newlyExcluded++
			}
		}
	}

	return newlyExcluded
}

// hasConflictingFacts reports whether a payload states two different
// values for the same measured quantity.
func hasConflictingFacts(facts []Fact) bool {
	seen := make(map[string]float64, len(facts))
	for _, fact := range facts {
		if prior, ok := seen[fact.Quantity]; ok && prior != fact.Value {
			return true
		}
		seen[fact.Quantity] = fact.Value
	}
	return false
}
