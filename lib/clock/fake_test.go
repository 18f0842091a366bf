// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("Now = %v, want %v", got, start)
	}

	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Now after Advance = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	fired := fake.After(time.Minute)
	select {
	case <-fired:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(59 * time.Second)
	select {
	case <-fired:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case at := <-fired:
		want := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
		if !at.Equal(want) {
			t.Errorf("fire time = %v, want %v", at, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ticker := fake.NewTicker(10 * time.Second)
	defer ticker.Stop()

	// A span covering several intervals delivers one tick per
	// Advance step that is consumed; unread ticks are dropped like
	// time.Ticker's.
	fake.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}

	fake.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after second interval")
	}

	ticker.Stop()
	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("tick delivered after Stop")
	default:
	}
}
