// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"testing"
)

func testAllowList(t *testing.T) *AllowList {
	t.Helper()
	list, err := NewAllowList([]Entry{
		{Node: "control/custodian", Role: RoleControl, UID: 1000},
		{Node: "node/storage-1", Role: RolePeer, UID: 1001, GIDs: []uint32{500}},
		{Node: "node/storage-2", Role: RolePeer, UID: 1002},
	})
	if err != nil {
		t.Fatalf("NewAllowList: %v", err)
	}
	return list
}

func TestAuthenticateKnown(t *testing.T) {
	list := testAllowList(t)

	id, err := list.Authenticate(Credentials{UID: 1000, GID: 1000, PID: 42})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Node != "control/custodian" {
		t.Errorf("Node = %q, want %q", id.Node, "control/custodian")
	}
	if id.Role != RoleControl {
		t.Errorf("Role = %q, want %q", id.Role, RoleControl)
	}
	if id.Credentials.PID != 42 {
		t.Errorf("PID = %d, want 42", id.Credentials.PID)
	}
}

func TestAuthenticateUnknownUID(t *testing.T) {
	list := testAllowList(t)

	_, err := list.Authenticate(Credentials{UID: 9999, GID: 9999, PID: 1})
	if !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("err = %v, want ErrUnknownIdentity", err)
	}
}

func TestAuthenticateGIDRestriction(t *testing.T) {
	list := testAllowList(t)

	if _, err := list.Authenticate(Credentials{UID: 1001, GID: 500, PID: 7}); err != nil {
		t.Fatalf("matching gid rejected: %v", err)
	}

	_, err := list.Authenticate(Credentials{UID: 1001, GID: 501, PID: 7})
	if !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("err = %v, want ErrUnknownIdentity for gid mismatch", err)
	}
}

func TestRevoke(t *testing.T) {
	list := testAllowList(t)

	if _, err := list.Authenticate(Credentials{UID: 1002, GID: 1002, PID: 9}); err != nil {
		t.Fatalf("pre-revocation Authenticate: %v", err)
	}

	list.Revoke("node/storage-2")

	_, err := list.Authenticate(Credentials{UID: 1002, GID: 1002, PID: 9})
	if !errors.Is(err, ErrRevokedIdentity) {
		t.Fatalf("err = %v, want ErrRevokedIdentity", err)
	}
}

func TestNewAllowListDuplicateUID(t *testing.T) {
	_, err := NewAllowList([]Entry{
		{Node: "node/a", Role: RolePeer, UID: 1000},
		{Node: "node/b", Role: RolePeer, UID: 1000},
	})
	if err == nil {
		t.Fatal("duplicate uid accepted")
	}
}

func TestNewAllowListBadRole(t *testing.T) {
	_, err := NewAllowList([]Entry{{Node: "node/a", Role: "admin", UID: 1000}})
	if err == nil {
		t.Fatal("unknown role accepted")
	}
}
