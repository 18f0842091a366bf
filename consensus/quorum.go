// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import "sort"

// medianScore computes the statistical median of the non-excluded
// observations' trust scores: the middle value for an odd effective
// population, the average of the two middle values for an even one.
// Returns false when no non-excluded observations exist. Caller holds
// the round's lock.
func medianScore(r *round) (float64, bool) {
	scores := make([]float64, 0, len(r.observations))
	for node, obs := range r.observations {
		if _, excluded := r.excluded[node]; excluded {
			continue
		}
		scores = append(scores, obs.TrustScore)
	}
	if len(scores) == 0 {
		return 0, false
	}

	sort.Float64s(scores)
	middle := len(scores) / 2
	if len(scores)%2 == 1 {
		return scores[middle], true
	}
	return (scores[middle-1] + scores[middle]) / 2, true
}
