// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package identity

// NodeID is the stable identifier of a participating node process,
// e.g. "node/storage-1" or "control/custodian".
type NodeID string

// Role determines which operations an authenticated identity may
// invoke on the consensus socket.
type Role string

const (
	// RoleControl is the privileged maintenance-daemon control
	// process. Control identities may invoke every operation,
	// including metrics queries.
	RoleControl Role = "control"

	// RolePeer is a restricted peer: it may submit observations and
	// query round status, but not read daemon metrics.
	RolePeer Role = "peer"
)

// Credentials are the kernel-reported credentials of a connecting
// process, as returned by SO_PEERCRED.
type Credentials struct {
	UID uint32
	GID uint32
	PID int32
}

// NodeIdentity is a verified identity: the node the credentials
// resolved to, its role, and the raw credentials for audit logging.
type NodeIdentity struct {
	Node        NodeID
	Role        Role
	Credentials Credentials
}
