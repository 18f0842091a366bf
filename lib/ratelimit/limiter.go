// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-identity sliding-window admission
// control for the consensus socket. Each identity gets its own window
// and its own lock; admitting one identity never contends with
// another.
package ratelimit

import (
	"sync"
	"time"

	"github.com/custodian-sys/custodian/lib/identity"
	"github.com/custodian-sys/custodian/lib/window"
)

// Limiter admits up to limit requests per identity within a rolling
// span. The default policy is 120 requests per 60 seconds.
type Limiter struct {
	limit int
	span  time.Duration

	// mu guards the shards map only. Admission for a given identity
	// takes the shard's own lock, so identities never contend with
	// each other.
	mu     sync.Mutex
	shards map[identity.NodeID]*shard
}

type shard struct {
	mu     sync.Mutex
	window *window.Window
}

// New creates a Limiter admitting limit requests per span per
// identity. Panics on non-positive limit or span; both come from
// validated configuration.
func New(limit int, span time.Duration) *Limiter {
	if limit <= 0 {
		panic("ratelimit: non-positive limit")
	}
	return &Limiter{
		limit:  limit,
		span:   span,
		shards: make(map[identity.NodeID]*shard),
	}
}

// Admit records a request from node at time now. When the window is
// exhausted, the request is rejected and retryAfter advertises how
// long until the oldest admitted entry leaves the window and one slot
// opens.
func (l *Limiter) Admit(node identity.NodeID, now time.Time) (admitted bool, retryAfter time.Duration) {
	s := l.shardFor(node)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.window.Count(now) < l.limit {
		s.window.Add(now)
		return true, 0
	}

	oldest, ok := s.window.Oldest(now)
	if !ok {
		// Unreachable with limit > 0: a full window has an oldest
		// entry.
		return true, 0
	}
	return false, oldest.Add(l.span).Sub(now)
}

func (l *Limiter) shardFor(node identity.NodeID) *shard {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.shards[node]
	if !ok {
		s = &shard{window: window.New(l.span, l.limit)}
		l.shards[node] = s
	}
	return s
}
