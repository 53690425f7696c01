// Copyright 2026 The RepeatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vdf

import (
	"sync"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/metrics"
)

// State is a VDF Cache Entry's position in its state machine:
//
//	absent → Pending → Building → Ready
//	                       ↘ Failed
//	Ready|Failed → absent   (eviction)
type State int

const (
	StateAbsent State = iota
	StatePending
	StateBuilding
	StateReady
	StateFailed
)

// Entry is one VDF Cache Entry. External synchronization of state and buf
// is via mu/cond; readers is guarded by the same mutex.
type Entry struct {
	mu   sync.Mutex
	cond *sync.Cond

	key   string
	state State
	buf   []byte
	err   error

	readers    int
	lastAccess int64 // unix nanos, written under Cache.mu
}

func newEntry(key string) *Entry {
	e := &Entry{key: key, state: StatePending}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// append grows the buffer with a chunk produced by the derivation and wakes
// any readers blocked waiting for more bytes.
func (e *Entry) append(chunk []byte) {
	e.mu.Lock()
	e.buf = append(e.buf, chunk...)
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *Entry) finish(err error) {
	e.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateReady
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

// waitForBytes blocks until either at least upTo bytes are available, or
// the build has reached a terminal state. It returns the current buffer
// length and terminal state (StateBuilding means more may still arrive).
func (e *Entry) waitForBytes(upTo int64) (int64, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for int64(len(e.buf)) < upTo && e.state == StateBuilding {
		e.cond.Wait()
	}
	return int64(len(e.buf)), e.state
}

// Cache holds VDF Cache Entries keyed by (virtual leaf path, rule identity).
// Per spec §4.6/§5, entry-level locks are fine-grained; only the LRU
// bookkeeping and total-bytes counter share a single short-held mutex.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]*Entry
	totalBytes    int64
	highWaterMark int64
	clock         clock.Clock
	metrics       *metrics.Handle
}

// SetMetrics attaches a metrics Handle that Evict and recordSize report
// into. A nil Cache.metrics (the default) disables reporting entirely, so
// tests and degraded mounts that never call this still work.
func (c *Cache) SetMetrics(h *metrics.Handle) {
	c.mu.Lock()
	c.metrics = h
	c.mu.Unlock()
}

// NewCache creates a Cache that begins evicting once cached bytes exceed
// highWaterMark. highWaterMark <= 0 disables size-triggered eviction.
func NewCache(highWaterMark int64, c clock.Clock) *Cache {
	return &Cache{
		entries:       map[string]*Entry{},
		highWaterMark: highWaterMark,
		clock:         c,
	}
}

// getOrCreate returns the existing entry for key, or creates one in
// StatePending. The second return value is true when a new entry was
// created — the caller is then responsible for driving it to Building.
func (c *Cache) getOrCreate(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if e.state != StateFailed {
			e.lastAccess = c.clock.Now().UnixNano()
			return e, false
		}
		// The existing entry is Failed and is about to be replaced by a
		// fresh retry below; reclaim its buffered bytes now, since Evict
		// only ever sweeps the current map and would never see this one
		// again once it's overwritten.
		e.mu.Lock()
		c.totalBytes -= int64(len(e.buf))
		e.mu.Unlock()
	}

	e := newEntry(key)
	e.lastAccess = c.clock.Now().UnixNano()
	c.entries[key] = e
	return e, true
}

func (c *Cache) touch(key string) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.lastAccess = c.clock.Now().UnixNano()
	}
	c.mu.Unlock()
}

func (c *Cache) recordSize(key string, n int64) {
	c.mu.Lock()
	c.totalBytes += n
	m := c.metrics
	total := c.totalBytes
	c.mu.Unlock()
	if m != nil {
		m.CacheBytesInUse.Set(float64(total))
	}
}

// Evict sweeps the cache: every Failed entry is dropped unconditionally;
// Ready entries with no active readers are dropped oldest-first until
// total cached bytes is back under the high-water mark.
func (c *Cache) Evict() {
	c.mu.Lock()

	var ready []evictCandidate
	var evicted int

	for key, e := range c.entries {
		e.mu.Lock()
		switch e.state {
		case StateFailed:
			c.totalBytes -= int64(len(e.buf))
			delete(c.entries, key)
			evicted++
		case StateReady:
			if e.readers == 0 {
				ready = append(ready, evictCandidate{key: key, lastAccess: e.lastAccess, size: int64(len(e.buf))})
			}
		}
		e.mu.Unlock()
	}

	if c.highWaterMark > 0 && c.totalBytes > c.highWaterMark {
		sortByLastAccess(ready)
		for _, cand := range ready {
			if c.totalBytes <= c.highWaterMark {
				break
			}
			if e, ok := c.entries[cand.key]; ok {
				e.mu.Lock()
				stillIdle := e.readers == 0 && e.state == StateReady
				e.mu.Unlock()
				if stillIdle {
					delete(c.entries, cand.key)
					c.totalBytes -= cand.size
					evicted++
				}
			}
		}
	}

	m := c.metrics
	total := c.totalBytes
	c.mu.Unlock()

	if m != nil {
		if evicted > 0 {
			m.CacheEvictions.Add(float64(evicted))
		}
		m.CacheBytesInUse.Set(float64(total))
	}
}

type evictCandidate struct {
	key        string
	lastAccess int64
	size       int64
}

func sortByLastAccess(rows []evictCandidate) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].lastAccess < rows[j-1].lastAccess; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

// acquireReader/releaseReader pin an entry against eviction while a client
// holds an open read handle on it.
func (e *Entry) acquireReader() {
	e.mu.Lock()
	e.readers++
	e.mu.Unlock()
}

func (e *Entry) releaseReader() {
	e.mu.Lock()
	if e.readers > 0 {
		e.readers--
	}
	e.mu.Unlock()
}
