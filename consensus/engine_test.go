// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/custodian-sys/custodian/lib/clock"
	"github.com/custodian-sys/custodian/lib/identity"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, opts Options) (*Engine, *clock.FakeClock, *Metrics) {
	t.Helper()
	fake := clock.Fake(testStart)
	metrics := &Metrics{}
	engine := NewEngine(opts, fake, nil, metrics, nil)
	return engine, fake, metrics
}

func submit(t *testing.T, engine *Engine, node identity.NodeID, round uint64, score float64) RoundStatus {
	t.Helper()
	status, err := engine.Submit(node, Observation{Round: round, TrustScore: score})
	if err != nil {
		t.Fatalf("Submit(%s, round %d): %v", node, round, err)
	}
	return status
}

func TestQuorumBoundary(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2})

	status := submit(t, engine, "node/a", 1, 0.5)
	if status.State != StateCollecting {
		t.Fatalf("after 1 observation state = %s, want collecting", status.State)
	}
	if status.ConsensusScore != nil {
		t.Fatal("consensus score set while collecting")
	}

	status = submit(t, engine, "node/b", 1, 0.75)
	if status.State != StateComplete {
		t.Fatalf("after 2 observations state = %s, want complete", status.State)
	}
	if status.ConsensusScore == nil {
		t.Fatal("complete round has no consensus score")
	}
	if got := *status.ConsensusScore; got != 0.625 {
		t.Errorf("consensus score = %v, want 0.625 (mean of two middle values)", got)
	}
}

func TestMedianOddPopulation(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 3})

	submit(t, engine, "node/a", 1, 0.2)
	submit(t, engine, "node/b", 1, 0.3)
	status := submit(t, engine, "node/c", 1, 0.4)

	if status.State != StateComplete {
		t.Fatalf("state = %s, want complete", status.State)
	}
	if got := *status.ConsensusScore; got != 0.3 {
		t.Errorf("consensus score = %v, want middle value 0.3", got)
	}
}

func TestIdempotentResubmission(t *testing.T) {
	engine, fake, _ := testEngine(t, Options{QuorumThreshold: 3})

	first := submit(t, engine, "node/a", 1, 0.8)
	fake.Advance(time.Second)
	second := submit(t, engine, "node/a", 1, 0.8)

	if first.ObservedCount != 1 || second.ObservedCount != 1 {
		t.Errorf("observed counts = %d then %d, want 1 and 1", first.ObservedCount, second.ObservedCount)
	}
	if second.State != StateCollecting {
		t.Errorf("state = %s, want collecting", second.State)
	}

	// The overwrite refreshed the arrival timestamp.
	snap, err := engine.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := snap.Observations["node/a"].SubmittedAt; !got.Equal(testStart.Add(time.Second)) {
		t.Errorf("SubmittedAt = %v, want %v", got, testStart.Add(time.Second))
	}
}

func TestRoundClosedAfterComplete(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2})

	submit(t, engine, "node/a", 1, 0.8)
	submit(t, engine, "node/b", 1, 0.8)

	_, err := engine.Submit("node/c", Observation{Round: 1, TrustScore: 0.8})
	if !IsKind(err, KindRoundClosed) {
		t.Fatalf("err = %v, want RoundClosed", err)
	}
}

func TestByzantineConflictingFacts(t *testing.T) {
	engine, _, metrics := testEngine(t, Options{QuorumThreshold: 2})

	// node/c's payload states two different values for the same
	// quantity: internally contradictory.
	_, err := engine.Submit("node/c", Observation{
		Round:      1,
		TrustScore: 0.1,
		Facts: []Fact{
			{Quantity: "disk_used_fraction", Value: 0.2},
			{Quantity: "disk_used_fraction", Value: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	submit(t, engine, "node/a", 1, 0.75)
	status := submit(t, engine, "node/b", 1, 0.5)

	if status.State != StateComplete {
		t.Fatalf("state = %s, want complete (quorum reachable with reduced population)", status.State)
	}
	if status.ObservedCount != 3 {
		t.Errorf("observed count = %d, want 3", status.ObservedCount)
	}
	if len(status.ExcludedNodes) != 1 || status.ExcludedNodes[0] != "node/c" {
		t.Fatalf("excluded = %v, want [node/c]", status.ExcludedNodes)
	}
	// Effective population 2; the excluded node's 0.1 is absent from
	// the median.
	if got := *status.ConsensusScore; got != 0.625 {
		t.Errorf("consensus score = %v, want 0.625", got)
	}

	snap, err := engine.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if reason := snap.Excluded["node/c"]; reason != ReasonConflictingFacts {
		t.Errorf("exclusion reason = %s, want conflicting_facts", reason)
	}
	if got := metrics.NodesExcluded.Load(); got != 1 {
		t.Errorf("NodesExcluded = %d, want 1", got)
	}
}

func TestByzantineDeviation(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 4, DeviationBound: 0.2})

	submit(t, engine, "node/a", 1, 0.80)
	submit(t, engine, "node/b", 1, 0.82)
	submit(t, engine, "node/outlier", 1, 0.05)
	status := submit(t, engine, "node/c", 1, 0.78)

	// The outlier is flagged when the candidate quorum evaluates;
	// effective population drops to 3, below the threshold of 4, so
	// the round keeps collecting.
	if status.State != StateCollecting {
		t.Fatalf("state = %s, want collecting after exclusion drops below quorum", status.State)
	}
	if len(status.ExcludedNodes) != 1 || status.ExcludedNodes[0] != "node/outlier" {
		t.Fatalf("excluded = %v, want [node/outlier]", status.ExcludedNodes)
	}

	// A fourth honest node restores quorum; the score is the median
	// of the survivors.
	status = submit(t, engine, "node/d", 1, 0.80)
	if status.State != StateComplete {
		t.Fatalf("state = %s, want complete", status.State)
	}
	if got := *status.ConsensusScore; got != 0.80 {
		t.Errorf("consensus score = %v, want 0.80", got)
	}
}

func TestSelfContradictionExclusion(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2, DeviationBound: 0.2})

	submit(t, engine, "node/a", 1, 0.9)
	// node/a resubmits a value contradicting its prior beyond the
	// bound before quorum is reached.
	submit(t, engine, "node/a", 1, 0.3)

	submit(t, engine, "node/b", 1, 0.5)
	status := submit(t, engine, "node/c", 1, 0.5)

	if status.State != StateComplete {
		t.Fatalf("state = %s, want complete", status.State)
	}
	snap, err := engine.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if reason := snap.Excluded["node/a"]; reason != ReasonSelfContradiction {
		t.Errorf("exclusion reason = %s, want self_contradiction", reason)
	}
	if got := *status.ConsensusScore; got != 0.5 {
		t.Errorf("consensus score = %v, want 0.5", got)
	}
}

func TestExcludedSubsetOfObserved(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2, DeviationBound: 0.1})

	submit(t, engine, "node/a", 7, 0.9)
	submit(t, engine, "node/b", 7, 0.9)
	submit(t, engine, "node/a", 8, 0.1)

	for _, id := range []uint64{7, 8} {
		snap, err := engine.Snapshot(id)
		if err != nil {
			t.Fatalf("Snapshot(%d): %v", id, err)
		}
		for node := range snap.Excluded {
			if _, observed := snap.Observations[node]; !observed {
				t.Errorf("round %d: excluded node %s has no observation", id, node)
			}
		}
	}
}

func TestDeadlineTimeout(t *testing.T) {
	engine, fake, _ := testEngine(t, Options{QuorumThreshold: 3, RoundDuration: time.Minute})

	submit(t, engine, "node/a", 1, 0.8)

	engine.expireDeadlines(fake.Now().Add(30 * time.Second))
	status, err := engine.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != StateCollecting {
		t.Fatalf("state before deadline = %s, want collecting", status.State)
	}

	engine.expireDeadlines(fake.Now().Add(61 * time.Second))
	status, err = engine.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != StateTimedOut {
		t.Fatalf("state past deadline = %s, want timed_out", status.State)
	}
	if status.ConsensusScore != nil {
		t.Error("timed out round has a consensus score")
	}
	// Partial data preserved for audit.
	if status.ObservedCount != 1 {
		t.Errorf("observed count = %d, want 1", status.ObservedCount)
	}

	// Terminal: further submissions are refused, never auto-retried.
	_, err = engine.Submit("node/b", Observation{Round: 1, TrustScore: 0.8})
	if !IsKind(err, KindRoundClosed) {
		t.Fatalf("err = %v, want RoundClosed", err)
	}
}

func TestDeadlineTickerDrivesTimeout(t *testing.T) {
	engine, fake, _ := testEngine(t, Options{
		QuorumThreshold:  3,
		RoundDuration:    time.Minute,
		DeadlineInterval: time.Second,
	})
	submit(t, engine, "node/a", 1, 0.8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		engine.RunDeadlines(ctx)
		close(done)
	}()

	// Let the goroutine register its ticker before advancing.
	waitForTickerRegistration(fake)

	fake.Advance(61 * time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := engine.Status(1)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.State == StateTimedOut {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("round never timed out, state = %s", status.State)
		}
		fake.Advance(time.Second)
		runtime.Gosched()
	}

	cancel()
	<-done
}

// waitForTickerRegistration spins until the fake clock has a pending
// waiter, i.e. RunDeadlines has created its ticker.
func waitForTickerRegistration(fake *clock.FakeClock) {
	deadline := time.Now().Add(5 * time.Second)
	for fake.PendingWaiters() == 0 && time.Now().Before(deadline) {
		runtime.Gosched()
	}
}

func TestStaleRound(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2, Retention: 2})

	submit(t, engine, "node/a", 1, 0.5)
	submit(t, engine, "node/a", 2, 0.5)
	submit(t, engine, "node/a", 3, 0.5) // evicts round 1

	_, err := engine.Submit("node/a", Observation{Round: 1, TrustScore: 0.5})
	if !IsKind(err, KindStaleRound) {
		t.Fatalf("err = %v, want StaleRound", err)
	}
	if _, err := engine.Status(1); !IsKind(err, KindStaleRound) {
		t.Fatalf("Status err = %v, want StaleRound", err)
	}

	if got := engine.CurrentRound(); got != 3 {
		t.Errorf("CurrentRound = %d, want 3", got)
	}
}

func TestRetentionEvictsOldestFirst(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2, Retention: 3})

	for id := uint64(1); id <= 5; id++ {
		submit(t, engine, "node/a", id, 0.5)
	}

	for _, stale := range []uint64{1, 2} {
		if _, err := engine.Status(stale); !IsKind(err, KindStaleRound) {
			t.Errorf("round %d: err = %v, want StaleRound", stale, err)
		}
	}
	for _, retained := range []uint64{3, 4, 5} {
		if _, err := engine.Status(retained); err != nil {
			t.Errorf("round %d: unexpected error %v", retained, err)
		}
	}
}

func TestOpenRoundMonotonic(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2})

	status, err := engine.OpenRound(5)
	if err != nil {
		t.Fatalf("OpenRound: %v", err)
	}
	if status.State != StatePending {
		t.Errorf("state = %s, want pending", status.State)
	}

	if _, err := engine.OpenRound(5); err == nil {
		t.Fatal("reopening an existing round id succeeded")
	}
	if _, err := engine.OpenRound(4); err == nil {
		t.Fatal("opening a lower round id succeeded")
	}
}

func TestPartitionedFinalizesPartiallyComplete(t *testing.T) {
	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2})
	engine.SetPartitioned(true)

	submit(t, engine, "node/a", 1, 0.6)
	status := submit(t, engine, "node/b", 1, 0.8)

	if status.State != StatePartiallyComplete {
		t.Fatalf("state = %s, want partially_complete", status.State)
	}
	if status.ConsensusScore == nil {
		t.Fatal("partially complete round has no consensus score")
	}
}
