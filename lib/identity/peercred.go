// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads the connecting process's credentials from the
// kernel via SO_PEERCRED. The kernel records uid/gid/pid at connect
// time, so the values cannot be forged by the peer after the fact.
func PeerCredentials(conn *net.UnixConn) (Credentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Credentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}

	var (
		ucred   *unix.Ucred
		sockErr error
	)
	if err := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return Credentials{}, fmt.Errorf("reading peer credentials: %w", err)
	}
	if sockErr != nil {
		return Credentials{}, fmt.Errorf("reading peer credentials: %w", sockErr)
	}

	return Credentials{
		UID: ucred.Uid,
		GID: ucred.Gid,
		PID: ucred.Pid,
	}, nil
}
