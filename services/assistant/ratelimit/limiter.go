// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements per-client sliding-window admission control.
//
// Each client identity owns an independent window of request timestamps.
// A check purges entries older than the window, rejects once the remaining
// count reaches the maximum, and otherwise records the request. The
// purge+check+append sequence runs under the identity's mutex, so two
// near-simultaneous requests from the same client can never both take the
// last slot.
package ratelimit

import (
	"sync"
	"time"
)

// window holds the admission timestamps for one client identity.
// All access goes through mu.
type window struct {
	mu       sync.Mutex
	admitted []time.Time
}

// Limiter enforces a sliding request-count window per client identity.
//
// Rejection is a normal outcome, not an error: Check returns false and the
// caller maps it to a 429 response. Identities that go quiet keep an empty
// window around until the janitor sweeps them.
type Limiter struct {
	windowSize  time.Duration
	maxRequests int

	mu      sync.RWMutex
	clients map[string]*window
}

// New creates a Limiter with the given window size and per-window request
// maximum.
func New(windowSize time.Duration, maxRequests int) *Limiter {
	return &Limiter{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		clients:     make(map[string]*window),
	}
}

// Check admits or rejects a request from identity at time now.
//
// Expired timestamps are purged first. If the remaining count has reached
// the maximum the request is rejected without being recorded; otherwise
// now is appended and the request is admitted.
func (l *Limiter) Check(identity string, now time.Time) bool {
	w := l.clientWindow(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-l.windowSize)
	kept := w.admitted[:0]
	for _, ts := range w.admitted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.admitted = kept

	if len(w.admitted) >= l.maxRequests {
		return false
	}
	w.admitted = append(w.admitted, now)
	return true
}

// clientWindow returns the window owned by identity, creating it on the
// first request. Double-checked under the registry lock so concurrent
// first requests share a single window.
func (l *Limiter) clientWindow(identity string) *window {
	l.mu.RLock()
	w, ok := l.clients[identity]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.clients[identity]; ok {
		return w
	}
	w = &window{}
	l.clients[identity] = w
	return w
}

// Sweep drops identities whose windows hold no live timestamps as of now.
// Intended to be called periodically from a background goroutine so the
// registry stays bounded in long-running deployments.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.windowSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, w := range l.clients {
		w.mu.Lock()
		live := false
		for _, ts := range w.admitted {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		w.mu.Unlock()
		if !live {
			delete(l.clients, identity)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps stale identities every interval until stop is closed.
func (l *Limiter) RunJanitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
