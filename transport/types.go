// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"time"

	"github.com/custodian-sys/custodian/consensus"
	"github.com/custodian-sys/custodian/lib/codec"
)

// Protocol actions.
const (
	ActionSubmitObservation = "submit_observation"
	ActionQueryRoundStatus  = "query_round_status"
	ActionQueryMetrics      = "query_metrics"
)

// Request is the wire envelope for every frame. Action selects the
// operation; the remaining fields are read by the actions that need
// them. The submitting node's identity is never carried in the
// request: it comes from the connection's verified credentials.
type Request struct {
	Action string `cbor:"action"`

	// Round targets a round for submit_observation and
	// query_round_status.
	Round uint64 `cbor:"round,omitempty"`

	// TrustScore and Facts are the observation body for
	// submit_observation.
	TrustScore float64          `cbor:"trust_score,omitempty"`
	Facts      []consensus.Fact `cbor:"facts,omitempty"`

	// ClientTime is the submitter's wall clock. Informational; the
	// engine orders resubmissions by arrival, never by this.
	ClientTime time.Time `cbor:"client_time,omitempty"`
}

// Response is the wire envelope for every reply. A failure carries the
// error kind when the failure is classified, so clients can
// reconstruct a *consensus.Error.
type Response struct {
	OK    bool           `cbor:"ok"`
	Kind  consensus.Kind `cbor:"kind,omitempty"`
	Error string         `cbor:"error,omitempty"`

	// RetryAfterMS advertises the rate-limit backoff in milliseconds.
	// Only set for kind rate_limited.
	RetryAfterMS int64 `cbor:"retry_after_ms,omitempty"`

	Data codec.RawMessage `cbor:"data,omitempty"`
}
