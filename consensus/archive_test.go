// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"os"
	"testing"

	"github.com/custodian-sys/custodian/lib/clock"
)

func TestArchiveRoundTrip(t *testing.T) {
	archiver, err := NewArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	engine, _, _ := testEngine(t, Options{QuorumThreshold: 2})
	submit(t, engine, "node/a", 1, 0.5)
	submit(t, engine, "node/b", 1, 0.75)
	snap, err := engine.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := archiver.Write(snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	restored, err := archiver.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if restored.Round != 1 {
		t.Errorf("restored round = %d, want 1", restored.Round)
	}
	if restored.State != StateComplete {
		t.Errorf("restored state = %s, want complete", restored.State)
	}
	if restored.ConsensusScore == nil || *restored.ConsensusScore != 0.625 {
		t.Errorf("restored consensus score = %v, want 0.625", restored.ConsensusScore)
	}
	if len(restored.Observations) != 2 {
		t.Fatalf("restored observations = %d, want 2", len(restored.Observations))
	}
	obs := restored.Observations["node/a"]
	if obs.TrustScore != 0.5 {
		t.Errorf("restored node/a score = %v, want 0.5", obs.TrustScore)
	}
	if !obs.SubmittedAt.Equal(testStart) {
		t.Errorf("restored node/a SubmittedAt = %v, want %v", obs.SubmittedAt, testStart)
	}
}

func TestArchiveWriteOnEviction(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewArchiver(dir)
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	engine := NewEngine(Options{QuorumThreshold: 1, Retention: 1}, clock.Fake(testStart), nil, nil, archiver)
	submit(t, engine, "node/a", 1, 0.5)
	submit(t, engine, "node/a", 2, 0.5) // evicts round 1 into the archive

	if _, err := os.Stat(archiver.Path(1)); err != nil {
		t.Fatalf("archive entry for evicted round: %v", err)
	}
	restored, err := archiver.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if restored.Round != 1 || restored.State != StateComplete {
		t.Errorf("restored round %d state %s, want round 1 complete", restored.Round, restored.State)
	}
}

func TestArchiveReadMissing(t *testing.T) {
	archiver, err := NewArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	if _, err := archiver.Read(99); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
