// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package consensus implements the round state machine at the heart of
// the custodian maintenance daemon: nodes submit local health
// observations, rounds collect them until a quorum of non-excluded
// observers is reached, a Byzantine detector flags nodes whose data is
// internally inconsistent or deviates from the emerging consensus, and
// the quorum evaluator reduces the surviving observations to a single
// consensus health score (the statistical median).
//
// The Engine exclusively owns all Round and Observation state.
// Mutation of a given round is serialized by a per-round lock;
// distinct rounds proceed concurrently. Deadline enforcement runs on
// its own clock tick, independent of connection activity.
//
// Rounds that complete inside a network partition are only partially
// complete; Reconcile merges two such fragments into one superseding
// complete round once connectivity returns, keeping the fragments
// inspectable for audit.
package consensus
