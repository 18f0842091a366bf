// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR encoding configuration for the
// custodian wire protocol and round archives. Encoding is Core
// Deterministic (RFC 8949 §4.2): the same logical value always
// produces identical bytes, so archived round snapshots and response
// frames are byte-stable across processes and runs.
package codec
