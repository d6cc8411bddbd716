// =================================================================================
//
//			fourtrack - a multitrack composer audio engine
//
//		 Fourtrack is a headless engine for scheduling, recording and
//	  rendering multitrack projects against a shared musical clock
//
//		 Copyright (c) 2026 the fourtrack authors
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package engine is the scheduling and signal-graph core: it owns the
// sample clock, the master bus and the per-track chains, maps project clips
// onto scheduled events, and replays the identical logic offline for
// export. Live playout and offline rendering differ only in who pulls the
// engine's output streamer.
package engine

import (
	"sync"

	"github.com/gopxl/beep"
)

// Bus mixes a keyed set of streamers. Unlike beep's own mixer it supports
// removing one specific source, which unscheduling depends on: releasing a
// clip must detach exactly that clip's nodes. A bus never drains; with no
// sources it streams silence, so effect tails downstream keep ringing.
type Bus struct {
	mu      sync.Mutex
	entries []busEntry
	scratch [][2]float64
}

type busEntry struct {
	key string
	s   beep.Streamer
}

func NewBus() *Bus {
	return &Bus{}
}

// Add attaches a streamer under a key, replacing any previous holder of the
// same key.
func (b *Bus) Add(key string, s beep.Streamer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries[i].s = s
			return
		}
	}

	b.entries = append(b.entries, busEntry{key: key, s: s})
}

// Remove detaches the streamer under key. Removing an absent key is a
// no-op, so release paths stay idempotent.
func (b *Bus) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}

func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = nil
}

func (b *Bus) Stream(samples [][2]float64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range samples {
		samples[i] = [2]float64{}
	}

	if cap(b.scratch) < len(samples) {
		b.scratch = make([][2]float64, len(samples))
	}

	scratch := b.scratch[:len(samples)]

	keep := b.entries[:0]
	for _, e := range b.entries {
		n, ok := e.s.Stream(scratch)

		for i := 0; i < n; i++ {
			samples[i][0] += scratch[i][0]
			samples[i][1] += scratch[i][1]
		}

		// drained streamers drop out of the mix
		if ok {
			keep = append(keep, e)
		}
	}

	b.entries = keep

	return len(samples), true
}

func (b *Bus) Err() error {
	return nil
}
