// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	t.Parallel()

	initial := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(initial)

	if got := fake.Now(); !got.Equal(initial) {
		t.Errorf("Now() = %v, want %v", got, initial)
	}

	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(initial.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, initial.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ch := fake.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After channel fired before Advance")
	default:
	}

	fake.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("After channel fired before its deadline")
	default:
	}

	fake.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeSleepUnblocks(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	done := make(chan struct{})

	go func() {
		fake.Sleep(time.Second)
		close(done)
	}()

	fake.BlockUntilWaiters(1)
	fake.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance past its deadline")
	}
}

func TestFakeWaiterCount(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fake.After(time.Second)
	fake.After(2 * time.Second)

	if got := fake.WaiterCount(); got != 2 {
		t.Errorf("WaiterCount() = %d, want 2", got)
	}

	fake.Advance(time.Second)
	if got := fake.WaiterCount(); got != 1 {
		t.Errorf("WaiterCount() after partial advance = %d, want 1", got)
	}
}
