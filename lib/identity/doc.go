// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity establishes and checks the OS-level identity of
// processes connecting to the consensus socket. A connection's
// uid/gid/pid are read from the kernel via SO_PEERCRED and resolved
// against an explicitly constructed allow-list; the resulting
// NodeIdentity is the only identity the rest of the core trusts.
//
// Any cryptographic peer verification for inter-node links happens
// upstream of this core. This package deals purely in kernel-reported
// process credentials.
package identity
