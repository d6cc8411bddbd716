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
package engine

import (
	"container/heap"
	"math"
	"sort"
	"sync"

	"github.com/gopxl/beep"
)

// Handle identifies one scheduled event for cancellation.
type Handle uint64

// Scheduler registers callbacks against a timeline measured in seconds.
// Implementations fire each callback exactly once, in timestamp order, with
// registration order breaking ties; a cancelled event never fires. Scheduling
// in the past fires on the next pull rather than erroring.
type Scheduler interface {
	ScheduleAt(sec float64, fn func()) Handle
	Cancel(h Handle)
	Now() float64
}

type event struct {
	at     int64 // sample position
	handle Handle
	fn     func()
}

// eventHeap orders events by sample position, then by handle. Handles are
// monotonic, so equal timestamps fire in registration order.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].handle < h[j].handle
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// SampleClock is the timing authority. It sits on the pull path wrapping the
// bus it times: every Stream call advances its sample counter by exactly the
// frames pulled through it, and scheduled callbacks fire at their exact
// sample offset by splitting the requested buffer at event boundaries. The
// same pull drives live playback and offline rendering, so both hear events
// at identical sample positions.
//
// While paused the clock emits silence without advancing, holding every
// pending event where it is. The clock itself never drains.
type SampleClock struct {
	sampleRate int

	mu        sync.Mutex
	src       beep.Streamer
	pos       int64
	running   bool
	events    eventHeap
	cancelled map[Handle]struct{}
	nextID    Handle
}

// NewSampleClock returns a running clock at position zero with no source;
// until SetSource it times silence.
func NewSampleClock(sampleRate int) *SampleClock {
	return &SampleClock{
		sampleRate: sampleRate,
		running:    true,
		cancelled:  make(map[Handle]struct{}),
		nextID:     1,
	}
}

// SetSource attaches the streamer the clock pulls through. Passing nil
// detaches it; the clock then times silence.
func (c *SampleClock) SetSource(src beep.Streamer) {
	c.mu.Lock()
	c.src = src
	c.mu.Unlock()
}

// ScheduleAt registers fn to fire when the clock reaches sec. Times already
// passed are clamped to the current position, so the event fires on the next
// pull.
func (c *SampleClock) ScheduleAt(sec float64, fn func()) Handle {
	at := int64(math.Round(sec * float64(c.sampleRate)))

	c.mu.Lock()
	if at < c.pos {
		at = c.pos
	}
	h := c.nextID
	c.nextID++
	heap.Push(&c.events, &event{at: at, handle: h, fn: fn})
	c.mu.Unlock()

	return h
}

// Cancel withdraws a pending event. Cancelling an already-fired or unknown
// handle is a no-op. After Cancel returns the callback will not run.
func (c *SampleClock) Cancel(h Handle) {
	c.mu.Lock()
	c.cancelled[h] = struct{}{}
	c.mu.Unlock()
}

// CancelAll drops every pending event.
func (c *SampleClock) CancelAll() {
	c.mu.Lock()
	c.events = c.events[:0]
	c.cancelled = make(map[Handle]struct{})
	c.mu.Unlock()
}

// Now reports the clock position in seconds.
func (c *SampleClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.pos) / float64(c.sampleRate)
}

// Position reports the clock position in samples.
func (c *SampleClock) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// SetPosition moves the clock to sec without firing anything. Events left
// behind the new position fire on the next pull; callers seeking the
// transport cancel and re-register instead.
func (c *SampleClock) SetPosition(sec float64) {
	c.mu.Lock()
	c.pos = int64(math.Round(sec * float64(c.sampleRate)))
	c.mu.Unlock()
}

// Running reports whether pulls advance the clock.
func (c *SampleClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetRunning pauses or resumes the clock. A paused clock streams silence in
// place.
func (c *SampleClock) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// Pending reports how many live events remain registered.
func (c *SampleClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if _, dead := c.cancelled[ev.handle]; !dead {
			n++
		}
	}
	return n
}

// PendingTimes reports the timestamps of every live event in seconds,
// ascending.
func (c *SampleClock) PendingTimes() []float64 {
	c.mu.Lock()
	times := make([]float64, 0, len(c.events))
	for _, ev := range c.events {
		if _, dead := c.cancelled[ev.handle]; !dead {
			times = append(times, float64(ev.at)/float64(c.sampleRate))
		}
	}
	c.mu.Unlock()

	sort.Float64s(times)
	return times
}

// SampleRate reports the rate the clock counts at.
func (c *SampleClock) SampleRate() int {
	return c.sampleRate
}

func (c *SampleClock) Stream(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	c.mu.Unlock()

	filled := 0
	for filled < len(samples) {
		c.fireDue()

		c.mu.Lock()
		chunk := len(samples) - filled
		if next, ok := c.nextEventLocked(); ok {
			if gap := int(next - c.pos); gap < chunk {
				chunk = gap
			}
		}
		src := c.src
		c.mu.Unlock()

		if chunk <= 0 {
			// A due event arrived between firing and the gap computation; go
			// around and fire it before pulling more audio.
			continue
		}

		dst := samples[filled : filled+chunk]
		n := 0
		if src != nil {
			n, _ = src.Stream(dst)
		}
		for i := n; i < chunk; i++ {
			dst[i] = [2]float64{}
		}

		c.mu.Lock()
		c.pos += int64(chunk)
		c.mu.Unlock()
		filled += chunk
	}

	return len(samples), true
}

func (c *SampleClock) Err() error {
	return nil
}

// fireDue pops and runs every event at or before the current position, one
// at a time with the lock released around the callback so callbacks may
// schedule and cancel freely.
func (c *SampleClock) fireDue() {
	for {
		c.mu.Lock()
		c.dropCancelledLocked()
		if len(c.events) == 0 || c.events[0].at > c.pos {
			c.mu.Unlock()
			return
		}
		ev := heap.Pop(&c.events).(*event)
		c.mu.Unlock()

		ev.fn()
	}
}

// nextEventLocked reports the sample position of the earliest live event.
func (c *SampleClock) nextEventLocked() (int64, bool) {
	c.dropCancelledLocked()
	if len(c.events) == 0 {
		return 0, false
	}
	return c.events[0].at, true
}

func (c *SampleClock) dropCancelledLocked() {
	for len(c.events) > 0 {
		if _, dead := c.cancelled[c.events[0].handle]; !dead {
			return
		}
		ev := heap.Pop(&c.events).(*event)
		delete(c.cancelled, ev.handle)
	}
}

// VirtualClock is a SampleClock driven by explicit Advance calls instead of
// an audio pull. Tests use it to walk the timeline deterministically through
// the exact event machinery production uses.
type VirtualClock struct {
	*SampleClock
}

// NewVirtualClock returns a virtual clock counting at sampleRate.
func NewVirtualClock(sampleRate int) *VirtualClock {
	return &VirtualClock{SampleClock: NewSampleClock(sampleRate)}
}

// Advance moves the clock forward by sec, firing every event the move
// crosses in order.
func (v *VirtualClock) Advance(sec float64) {
	remaining := int(sec * float64(v.sampleRate))
	buf := make([][2]float64, 512)
	for remaining > 0 {
		chunk := len(buf)
		if remaining < chunk {
			chunk = remaining
		}
		v.Stream(buf[:chunk])
		remaining -= chunk
	}
	// Events landing exactly on the final position fire now rather than on
	// the next advance.
	v.fireDue()
}
