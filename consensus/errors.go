// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a request-surface failure. Every admitted,
// well-formed request either transitions round state or fails with
// exactly one of these kinds; the core never silently drops a request.
type Kind string

const (
	// KindAuthRejected: the connecting identity is unknown or
	// revoked. Never retried.
	KindAuthRejected Kind = "auth_rejected"

	// KindRateLimited: the identity's admission window is exhausted.
	// The error carries a retry-after interval.
	KindRateLimited Kind = "rate_limited"

	// KindPayloadTooLarge: the request exceeds the frame size
	// ceiling. Rejected before any parsing; never retried as-is.
	KindPayloadTooLarge Kind = "payload_too_large"

	// KindDangerousPayload: the raw payload matched the deny-list.
	// Never retried; always audit-logged.
	KindDangerousPayload Kind = "dangerous_payload"

	// KindStaleRound: the round id falls outside the retained window.
	// The caller must refetch the current round id.
	KindStaleRound Kind = "stale_round"

	// KindRoundClosed: the round is terminal and accepts no further
	// observations. The caller must fetch the next round id.
	KindRoundClosed Kind = "round_closed"
)

// Error is a classified request failure. Extract it with errors.As:
//
//	var reqErr *consensus.Error
//	if errors.As(err, &reqErr) && reqErr.Kind == consensus.KindRateLimited {
//	    wait(reqErr.RetryAfter)
//	}
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is the advertised wait before the caller may retry.
	// Only set for KindRateLimited.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// RateLimitedError builds a KindRateLimited error advertising when the
// caller may retry.
func RateLimitedError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("admission window exhausted, retry in %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Kind == kind
}
