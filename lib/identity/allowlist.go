// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownIdentity is returned by Authenticate when no allow-list
// entry matches the connecting credentials.
var ErrUnknownIdentity = errors.New("identity: no allow-list entry for peer")

// ErrRevokedIdentity is returned by Authenticate when the matching
// entry has been revoked. Revocation is one-way for the lifetime of
// the allow-list.
var ErrRevokedIdentity = errors.New("identity: peer identity revoked")

// Entry describes one admitted identity: the UID it connects as, the
// node it resolves to, its role, and optionally the GIDs it must
// belong to.
type Entry struct {
	Node NodeID
	Role Role

	// UID is the kernel uid this node's process runs as. One entry
	// per uid; two nodes must not share a uid.
	UID uint32

	// GIDs, when non-empty, restricts the entry to connections whose
	// primary gid is in this set. Empty means any gid.
	GIDs []uint32
}

// AllowList resolves kernel credentials to node identities. It is an
// explicitly constructed registry, not process-wide state: build one
// at daemon startup from configuration and hand it to the transport.
//
// AllowList is safe for concurrent use.
type AllowList struct {
	mu      sync.RWMutex
	byUID   map[uint32]Entry
	revoked map[NodeID]bool
}

// NewAllowList builds an allow-list from entries. Returns an error on
// duplicate UIDs or entries with an empty node id or unknown role.
func NewAllowList(entries []Entry) (*AllowList, error) {
	byUID := make(map[uint32]Entry, len(entries))
	for _, entry := range entries {
		if entry.Node == "" {
			return nil, fmt.Errorf("identity: allow-list entry for uid %d has empty node id", entry.UID)
		}
		if entry.Role != RoleControl && entry.Role != RolePeer {
			return nil, fmt.Errorf("identity: entry %s has unknown role %q", entry.Node, entry.Role)
		}
		if existing, dup := byUID[entry.UID]; dup {
			return nil, fmt.Errorf("identity: uid %d claimed by both %s and %s", entry.UID, existing.Node, entry.Node)
		}
		byUID[entry.UID] = entry
	}
	return &AllowList{
		byUID:   byUID,
		revoked: make(map[NodeID]bool),
	}, nil
}

// Authenticate resolves credentials to a NodeIdentity. Fails with
// ErrUnknownIdentity when the uid has no entry or the gid restriction
// does not match, and ErrRevokedIdentity when the node was revoked.
func (l *AllowList) Authenticate(creds Credentials) (NodeIdentity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.byUID[creds.UID]
	if !ok {
		return NodeIdentity{}, fmt.Errorf("uid %d: %w", creds.UID, ErrUnknownIdentity)
	}
	if len(entry.GIDs) > 0 && !containsGID(entry.GIDs, creds.GID) {
		return NodeIdentity{}, fmt.Errorf("uid %d gid %d: %w", creds.UID, creds.GID, ErrUnknownIdentity)
	}
	if l.revoked[entry.Node] {
		return NodeIdentity{}, fmt.Errorf("%s: %w", entry.Node, ErrRevokedIdentity)
	}

	return NodeIdentity{
		Node:        entry.Node,
		Role:        entry.Role,
		Credentials: creds,
	}, nil
}

// Revoke marks a node's identity as revoked. Subsequent Authenticate
// calls for it fail. There is no un-revoke; build a new allow-list to
// readmit a node.
func (l *AllowList) Revoke(node NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[node] = true
}

// Nodes returns the node ids of all entries, revoked or not. Used by
// the daemon to size the expected population.
func (l *AllowList) Nodes() []NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	nodes := make([]NodeID, 0, len(l.byUID))
	for _, entry := range l.byUID {
		nodes = append(nodes, entry.Node)
	}
	return nodes
}

func containsGID(gids []uint32, gid uint32) bool {
	for _, candidate := range gids {
		if candidate == gid {
			return true
		}
	}
	return false
}
