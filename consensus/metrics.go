// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import "sync/atomic"

// Metrics counts admission and exclusion events across the transport
// and the engine. One instance is shared by both; counters are atomic
// so reads never block request handling.
type Metrics struct {
	// Handshakes counts connections whose peer credentials were read,
	// whether or not authentication succeeded.
	Handshakes atomic.Uint64

	// AuthRejections counts connections refused for an unknown or
	// revoked identity.
	AuthRejections atomic.Uint64

	// RateLimited counts requests rejected by admission control.
	RateLimited atomic.Uint64

	// OversizedPayloads counts frames rejected for exceeding the size
	// ceiling.
	OversizedPayloads atomic.Uint64

	// DangerousPayloads counts frames rejected by the deny-list.
	DangerousPayloads atomic.Uint64

	// NodesExcluded counts Byzantine exclusions across all rounds.
	NodesExcluded atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters, the
// QueryMetrics response body.
type MetricsSnapshot struct {
	Handshakes        uint64 `cbor:"handshakes"`
	AuthRejections    uint64 `cbor:"auth_rejections"`
	RateLimited       uint64 `cbor:"rate_limited"`
	OversizedPayloads uint64 `cbor:"oversized_payloads"`
	DangerousPayloads uint64 `cbor:"dangerous_payloads"`
	NodesExcluded     uint64 `cbor:"nodes_excluded"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Handshakes:        m.Handshakes.Load(),
		AuthRejections:    m.AuthRejections.Load(),
		RateLimited:       m.RateLimited.Load(),
		OversizedPayloads: m.OversizedPayloads.Load(),
		DangerousPayloads: m.DangerousPayloads.Load(),
		NodesExcluded:     m.NodesExcluded.Load(),
	}
}
