// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFunc(t *testing.T) {
	t.Run("fires in deadline order", func(t *testing.T) {
		fake := Fake(time.Unix(0, 0))
		var order []int
		fake.AfterFunc(2*time.Second, func() { order = append(order, 2) })
		fake.AfterFunc(1*time.Second, func() { order = append(order, 1) })

		fake.Advance(3 * time.Second)

		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Fatalf("unexpected firing order: %v", order)
		}
	})

	t.Run("stop prevents firing", func(t *testing.T) {
		fake := Fake(time.Unix(0, 0))
		fired := false
		timer := fake.AfterFunc(time.Second, func() { fired = true })

		if !timer.Stop() {
			t.Fatal("Stop should report the timer was pending")
		}
		fake.Advance(2 * time.Second)
		if fired {
			t.Fatal("stopped timer fired")
		}
	})

	t.Run("reset reschedules", func(t *testing.T) {
		fake := Fake(time.Unix(0, 0))
		count := 0
		timer := fake.AfterFunc(time.Second, func() { count++ })

		timer.Reset(5 * time.Second)
		fake.Advance(2 * time.Second)
		if count != 0 {
			t.Fatal("timer fired before the reset deadline")
		}
		fake.Advance(4 * time.Second)
		if count != 1 {
			t.Fatalf("timer fired %d times, want 1", count)
		}
	})

	t.Run("callback can schedule a new timer", func(t *testing.T) {
		fake := Fake(time.Unix(0, 0))
		count := 0
		fake.AfterFunc(time.Second, func() {
			count++
			fake.AfterFunc(time.Second, func() { count++ })
		})

		fake.Advance(3 * time.Second)
		if count != 2 {
			t.Fatalf("chained timers fired %d times, want 2", count)
		}
	})
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(time.Unix(100, 0))
	ch := fake.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("channel received before advance")
	default:
	}

	fake.Advance(time.Minute)
	select {
	case at := <-ch:
		if !at.Equal(time.Unix(160, 0)) {
			t.Errorf("unexpected fire time: %v", at)
		}
	default:
		t.Fatal("channel did not receive after advance")
	}
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
