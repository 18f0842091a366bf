// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport serves the consensus protocol on a Unix domain
// socket. Connections are authenticated once from kernel peer
// credentials, then carry a loop of length-prefixed CBOR frames. Each
// admitted frame passes the rate limiter and the deny-list scanner
// before it is parsed; a frame that fails any gate is answered with a
// classified error and never touches round state.
package transport
