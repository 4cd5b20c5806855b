// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheck_AdmitsUpToMax(t *testing.T) {
	limiter := New(60*time.Second, 10)
	now := time.Now()

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Check("1.2.3.4", now), "request %d should be admitted", i)
	}
}

func TestCheck_RejectsBeyondMax(t *testing.T) {
	limiter := New(60*time.Second, 10)
	now := time.Now()

	for i := 0; i < 10; i++ {
		limiter.Check("1.2.3.4", now)
	}

	assert.False(t, limiter.Check("1.2.3.4", now))
	assert.False(t, limiter.Check("1.2.3.4", now.Add(time.Second)))
}

func TestCheck_RejectionDoesNotExtendTheWindow(t *testing.T) {
	limiter := New(60*time.Second, 10)
	now := time.Now()

	for i := 0; i < 10; i++ {
		limiter.Check("1.2.3.4", now)
	}
	// Hammering while blocked must not push the recovery point out.
	for i := 0; i < 100; i++ {
		limiter.Check("1.2.3.4", now.Add(30*time.Second))
	}

	assert.True(t, limiter.Check("1.2.3.4", now.Add(61*time.Second)))
}

func TestCheck_RecoversAfterWindowElapses(t *testing.T) {
	limiter := New(60*time.Second, 10)
	now := time.Now()

	for i := 0; i < 10; i++ {
		limiter.Check("1.2.3.4", now)
	}
	assert.False(t, limiter.Check("1.2.3.4", now))

	assert.True(t, limiter.Check("1.2.3.4", now.Add(60*time.Second+time.Millisecond)))
}

func TestCheck_ClientsAreIndependent(t *testing.T) {
	limiter := New(60*time.Second, 2)
	now := time.Now()

	limiter.Check("1.2.3.4", now)
	limiter.Check("1.2.3.4", now)
	assert.False(t, limiter.Check("1.2.3.4", now))

	assert.True(t, limiter.Check("5.6.7.8", now))
}

func TestCheck_ConcurrentAdmissionsNeverExceedMax(t *testing.T) {
	const max = 10
	limiter := New(60*time.Second, max)
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check("1.2.3.4", now) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(max), admitted.Load())
}

func TestSweep_DropsIdleClients(t *testing.T) {
	limiter := New(60*time.Second, 10)
	now := time.Now()

	for i := 0; i < 5; i++ {
		limiter.Check(fmt.Sprintf("10.0.0.%d", i), now)
	}
	limiter.Check("10.0.0.99", now.Add(50*time.Second))

	removed := limiter.Sweep(now.Add(70 * time.Second))

	assert.Equal(t, 5, removed)
	// The surviving client still has its request on record.
	for i := 0; i < 9; i++ {
		limiter.Check("10.0.0.99", now.Add(70*time.Second))
	}
	assert.False(t, limiter.Check("10.0.0.99", now.Add(70*time.Second)))
}
