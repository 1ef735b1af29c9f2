/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Package ratelimiter is a token-bucket limiter keyed by device name. It
// is used by the dispatcher to cap how often it will emit an error
// message in response to repeated updates to undefined or read-only
// properties from the same device, the protocol-level analogue of the
// handshake flood guard this package originally implemented per source IP.
package ratelimiter

import (
	"sync"
	"time"
)

const (
	eventsPerSecond    = 20
	eventsBurstable    = 5
	garbageCollectTime = time.Second
	eventCost          = 1000000000 / eventsPerSecond
	maxTokens          = eventCost * eventsBurstable
)

type entry struct {
	mu       sync.Mutex
	lastTime time.Time
	tokens   int64
}

// Ratelimiter grants at most eventsPerSecond events per key, with a burst
// allowance of eventsBurstable, using a token bucket refilled over time.
type Ratelimiter struct {
	mu      sync.RWMutex
	timeNow func() time.Time

	stopReset chan struct{} // send to reset, close to stop
	table     map[string]*entry
}

// Close stops the background garbage-collection goroutine.
func (rate *Ratelimiter) Close() {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	if rate.stopReset != nil {
		close(rate.stopReset)
	}
}

// Init prepares the limiter for use and starts its garbage collector.
func (rate *Ratelimiter) Init() {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	if rate.timeNow == nil {
		rate.timeNow = time.Now
	}

	if rate.stopReset != nil {
		close(rate.stopReset)
	}

	rate.stopReset = make(chan struct{})
	rate.table = make(map[string]*entry)

	stopReset := rate.stopReset // store in case Init is called again.

	go func() {
		ticker := time.NewTicker(time.Second)
		ticker.Stop()
		for {
			select {
			case _, ok := <-stopReset:
				ticker.Stop()
				if !ok {
					return
				}
				ticker = time.NewTicker(time.Second)
			case <-ticker.C:
				if rate.cleanup() {
					ticker.Stop()
				}
			}
		}
	}()
}

func (rate *Ratelimiter) cleanup() (empty bool) {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	for key, e := range rate.table {
		e.mu.Lock()
		if rate.timeNow().Sub(e.lastTime) > garbageCollectTime {
			delete(rate.table, key)
		}
		e.mu.Unlock()
	}

	return len(rate.table) == 0
}

// Allow reports whether an event for key is within its rate budget,
// creating a fresh full bucket for keys seen for the first time.
func (rate *Ratelimiter) Allow(key string) bool {
	rate.mu.RLock()
	e := rate.table[key]
	rate.mu.RUnlock()

	if e == nil {
		e = new(entry)
		e.tokens = maxTokens - eventCost
		e.lastTime = rate.timeNow()
		rate.mu.Lock()
		rate.table[key] = e
		if len(rate.table) == 1 {
			rate.stopReset <- struct{}{}
		}
		rate.mu.Unlock()
		return true
	}

	e.mu.Lock()
	now := rate.timeNow()
	e.tokens += now.Sub(e.lastTime).Nanoseconds()
	e.lastTime = now
	if e.tokens > maxTokens {
		e.tokens = maxTokens
	}

	if e.tokens > eventCost {
		e.tokens -= eventCost
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()
	return false
}
