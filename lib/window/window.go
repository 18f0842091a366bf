// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package window provides a sliding-window ring of timestamps. The
// rate limiter counts admissions per identity with it, and anything
// else needing "how many events in the last span" bookkeeping shares
// the same abstraction.
package window

import "time"

// Window is a fixed-capacity ring of event timestamps with a rolling
// span. Entries older than the span relative to the observation time
// are discarded; the ring never retains more than capacity entries.
//
// Window is not safe for concurrent use. Owners serialize access
// (the rate limiter holds one Window per identity behind a
// per-identity lock).
type Window struct {
	span     time.Duration
	entries  []time.Time
	head     int // index of the oldest entry
	occupied int
}

// New creates a Window with the given rolling span and entry capacity.
// Panics on a non-positive span or capacity; both come from validated
// configuration.
func New(span time.Duration, capacity int) *Window {
	if span <= 0 {
		panic("window: non-positive span")
	}
	if capacity <= 0 {
		panic("window: non-positive capacity")
	}
	return &Window{
		span:    span,
		entries: make([]time.Time, capacity),
	}
}

// Add records an event at time t. If the ring is full after expiry,
// the oldest entry is dropped to make room.
func (w *Window) Add(t time.Time) {
	w.expire(t)
	if w.occupied == len(w.entries) {
		w.head = (w.head + 1) % len(w.entries)
		w.occupied--
	}
	w.entries[(w.head+w.occupied)%len(w.entries)] = t
	w.occupied++
}

// Count returns the number of entries still inside the span as of now,
// discarding expired ones.
func (w *Window) Count(now time.Time) int {
	w.expire(now)
	return w.occupied
}

// Oldest returns the oldest entry still inside the span as of now.
// The second return is false when the window is empty.
func (w *Window) Oldest(now time.Time) (time.Time, bool) {
	w.expire(now)
	if w.occupied == 0 {
		return time.Time{}, false
	}
	return w.entries[w.head], true
}

// Span returns the window's rolling span.
func (w *Window) Span() time.Duration { return w.span }

// expire drops entries older than span relative to now. Entries are
// stored in arrival order, so expiry only ever advances head.
func (w *Window) expire(now time.Time) {
	cutoff := now.Add(-w.span)
	for w.occupied > 0 && !w.entries[w.head].After(cutoff) {
		w.head = (w.head + 1) % len(w.entries)
		w.occupied--
	}
}
