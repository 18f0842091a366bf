// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCountWithinSpan(t *testing.T) {
	w := New(time.Minute, 10)

	w.Add(base)
	w.Add(base.Add(10 * time.Second))
	w.Add(base.Add(20 * time.Second))

	if got := w.Count(base.Add(30 * time.Second)); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

func TestExpiryNeverRetainsOldEntries(t *testing.T) {
	w := New(time.Minute, 10)

	w.Add(base)
	w.Add(base.Add(30 * time.Second))

	// base is exactly span old at base+60s and must be gone.
	if got := w.Count(base.Add(60 * time.Second)); got != 1 {
		t.Errorf("Count at +60s = %d, want 1", got)
	}
	if got := w.Count(base.Add(2 * time.Minute)); got != 0 {
		t.Errorf("Count at +2m = %d, want 0", got)
	}
}

func TestOldest(t *testing.T) {
	w := New(time.Minute, 4)

	if _, ok := w.Oldest(base); ok {
		t.Fatal("Oldest on empty window reported an entry")
	}

	w.Add(base)
	w.Add(base.Add(5 * time.Second))

	oldest, ok := w.Oldest(base.Add(10 * time.Second))
	if !ok {
		t.Fatal("Oldest reported empty")
	}
	if !oldest.Equal(base) {
		t.Errorf("Oldest = %v, want %v", oldest, base)
	}

	// After the first entry expires, the second becomes oldest.
	oldest, ok = w.Oldest(base.Add(61 * time.Second))
	if !ok {
		t.Fatal("Oldest reported empty after partial expiry")
	}
	if !oldest.Equal(base.Add(5 * time.Second)) {
		t.Errorf("Oldest = %v, want %v", oldest, base.Add(5*time.Second))
	}
}

func TestCapacityDropsOldest(t *testing.T) {
	w := New(time.Hour, 3)

	for i := 0; i < 5; i++ {
		w.Add(base.Add(time.Duration(i) * time.Second))
	}

	if got := w.Count(base.Add(10 * time.Second)); got != 3 {
		t.Errorf("Count = %d, want capacity 3", got)
	}
	oldest, _ := w.Oldest(base.Add(10 * time.Second))
	if !oldest.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Oldest = %v, want %v", oldest, base.Add(2*time.Second))
	}
}
