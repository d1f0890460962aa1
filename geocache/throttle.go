// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval is the default gap between outbound geocoding calls.
const DefaultMinInterval = time.Second

// Clock is the time source of the throttle.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// Throttle spaces outbound calls at least interval apart, measured between
// call starts. It is global: one Throttle guards every coordinate.
//
// The wait is not cancellable; a caller blocked in Wait only returns after the
// interval elapsed.
type Throttle struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	limiter  *rate.Limiter
	lastCall time.Time
}

// NewThrottle returns a throttle for interval. A nil clock means the wall clock.
func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	if clock == nil {
		clock = SystemClock()
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Throttle{
		clock:    clock,
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next call may start, records the call start and
// returns how long it waited.
func (t *Throttle) Wait() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	delay := t.limiter.ReserveN(now, 1).DelayFrom(now)

	// the limiter works in float tokens; the last call timestamp is the exact floor.
	if !t.lastCall.IsZero() {
		if floor := t.interval - now.Sub(t.lastCall); floor > delay {
			delay = floor
		}
	}

	if delay > 0 {
		t.clock.Sleep(delay)
	}

	t.lastCall = t.clock.Now()

	return delay
}

// LastCall returns when the last call started, zero if none did.
func (t *Throttle) LastCall() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastCall
}

// Interval returns the configured minimum interval.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
