// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyorci/conveyor/lib/clock"
)

// ErrSuperseded is the cancellation cause set on an in-flight run's
// context when a newer run in the same concurrency group starts with
// cancel_in_progress. Check it with context.Cause.
var ErrSuperseded = errors.New("superseded by a newer run in the same concurrency group")

// Coordinator serializes runs by concurrency group. Groups are plain
// strings (already expanded against event variables); a group admits
// at most one run at a time.
type Coordinator struct {
	// Clock is used to measure queue wait times. Defaults to the
	// real clock.
	Clock clock.Clock

	// Logger receives queueing decisions. When nil, logging is
	// discarded.
	Logger *slog.Logger

	mu     sync.Mutex
	groups map[string]*groupSlot
}

// groupSlot is one in-flight run holding a concurrency group.
type groupSlot struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Begin claims the concurrency group for a new run. It returns a run
// context derived from ctx and a release function the caller must
// invoke when the run finishes (typically via defer).
//
// When the group is free, Begin returns immediately. When another run
// holds the group:
//
//   - with cancelInProgress, the in-flight run's context is cancelled
//     with ErrSuperseded and Begin waits for it to release;
//   - without, Begin waits for the in-flight run to finish on its own.
//
// Either way the wait also ends if ctx is cancelled, in which case
// Begin returns ctx.Err(). An empty group means no serialization: the
// run proceeds immediately and is not cancellable by later runs.
func (c *Coordinator) Begin(ctx context.Context, group string, cancelInProgress bool) (context.Context, func(), error) {
	if group == "" {
		return ctx, func() {}, nil
	}

	waitStart := c.clock().Now()

	c.mu.Lock()
	for {
		if c.groups == nil {
			c.groups = make(map[string]*groupSlot)
		}
		current, held := c.groups[group]
		if !held {
			break
		}

		if cancelInProgress {
			c.logger().Info("cancelling in-flight run",
				"group", group)
			current.cancel(ErrSuperseded)
		} else {
			c.logger().Info("waiting for in-flight run",
				"group", group)
		}

		// Wait for the holder to release, then re-check: another
		// waiter may have claimed the group first.
		c.mu.Unlock()
		select {
		case <-current.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		c.mu.Lock()
	}

	runContext, cancel := context.WithCancelCause(ctx)
	slot := &groupSlot{cancel: cancel, done: make(chan struct{})}
	c.groups[group] = slot
	c.mu.Unlock()

	if waited := c.clock().Now().Sub(waitStart); waited > 50*time.Millisecond {
		c.logger().Info("run admitted after wait",
			"group", group,
			"waited", waited.Round(time.Millisecond))
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			if c.groups[group] == slot {
				delete(c.groups, group)
			}
			c.mu.Unlock()
			cancel(nil)
			close(slot.done)
		})
	}
	return runContext, release, nil
}

// InFlight reports whether any run currently holds the group.
func (c *Coordinator) InFlight(group string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.groups[group]
	return held
}

func (c *Coordinator) clock() clock.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clock.Real()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
