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
	"testing"
)

const testRate = 1000 // 1 ms per sample keeps event math readable

func pull(c *SampleClock, frames int, chunk int) {
	buf := make([][2]float64, chunk)
	for frames > 0 {
		n := chunk
		if frames < n {
			n = frames
		}
		c.Stream(buf[:n])
		frames -= n
	}
}

func TestEventFiresAtExactSample(t *testing.T) {
	c := NewSampleClock(testRate)

	var firedAt int64 = -1
	c.ScheduleAt(0.5, func() {
		firedAt = c.Position()
	})

	// 256-frame pulls never land a boundary on sample 500 by accident; the
	// clock has to split the buffer there itself.
	pull(c, testRate, 256)

	if firedAt != 500 {
		t.Errorf("event fired at sample %d, want 500", firedAt)
	}
}

func TestEventsFireInTimestampThenRegistrationOrder(t *testing.T) {
	c := NewSampleClock(testRate)

	var order []string
	log := func(name string) func() {
		return func() { order = append(order, name) }
	}

	// Registered out of timestamp order on purpose; b and c share one
	// timestamp so registration order must break the tie.
	c.ScheduleAt(0.3, log("d"))
	c.ScheduleAt(0.1, log("a"))
	c.ScheduleAt(0.2, log("b"))
	c.ScheduleAt(0.2, log("c"))

	pull(c, testRate, 128)

	want := []string{"a", "b", "c", "d"}
	if len(order) != len(want) {
		t.Fatalf("fired %d events, want %d (%v)", len(order), len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fire order %v, want %v", order, want)
		}
	}
}

func TestCancelledEventNeverFires(t *testing.T) {
	c := NewSampleClock(testRate)

	fired := false
	h := c.ScheduleAt(0.25, func() { fired = true })
	c.Cancel(h)

	pull(c, testRate, 100)

	if fired {
		t.Error("cancelled event fired")
	}
	if got := c.Pending(); got != 0 {
		t.Errorf("Pending() = %d after drain, want 0", got)
	}
}

func TestSchedulingInThePastFiresOnNextPull(t *testing.T) {
	c := NewSampleClock(testRate)
	pull(c, 600, 100)

	var firedAt int64 = -1
	c.ScheduleAt(0.1, func() { firedAt = c.Position() })

	pull(c, 100, 100)

	if firedAt != 600 {
		t.Errorf("past event fired at sample %d, want 600 (clamped to schedule position)", firedAt)
	}
}

func TestPausedClockEmitsSilenceWithoutAdvancing(t *testing.T) {
	c := NewSampleClock(testRate)
	c.SetSource(constStreamer(0.5))

	fired := false
	c.ScheduleAt(0.05, func() { fired = true })

	c.SetRunning(false)

	buf := make([][2]float64, 200)
	for i := range buf {
		buf[i] = [2]float64{9, 9}
	}
	n, ok := c.Stream(buf)

	if n != len(buf) || !ok {
		t.Fatalf("paused Stream = (%d, %v), want (%d, true)", n, ok, len(buf))
	}
	for i := range buf {
		if buf[i][0] != 0 || buf[i][1] != 0 {
			t.Fatalf("paused clock leaked audio at frame %d: %v", i, buf[i])
		}
	}
	if fired {
		t.Error("event fired while paused")
	}
	if c.Position() != 0 {
		t.Errorf("paused clock advanced to %d", c.Position())
	}

	c.SetRunning(true)
	pull(c, 100, 100)
	if !fired {
		t.Error("event did not fire after resume")
	}
}

func TestCallbackSchedulingImmediateEventFiresSamePull(t *testing.T) {
	c := NewSampleClock(testRate)

	var order []string
	c.ScheduleAt(0.1, func() {
		order = append(order, "first")
		c.ScheduleAt(0, func() { order = append(order, "chained") })
	})

	pull(c, 200, 200)

	if len(order) != 2 || order[0] != "first" || order[1] != "chained" {
		t.Errorf("fire order %v, want [first chained]", order)
	}
}

func TestClockPullsSourceBetweenEvents(t *testing.T) {
	c := NewSampleClock(testRate)
	c.SetSource(constStreamer(0.25))

	c.ScheduleAt(0.128, func() {})

	buf := make([][2]float64, 300)
	n, ok := c.Stream(buf)
	if n != 300 || !ok {
		t.Fatalf("Stream = (%d, %v), want (300, true)", n, ok)
	}
	for i := range buf {
		if buf[i][0] != 0.25 || buf[i][1] != 0.25 {
			t.Fatalf("frame %d = %v, want source audio either side of the event boundary", i, buf[i])
		}
	}
}

func TestCancelAllAndPendingTimes(t *testing.T) {
	c := NewSampleClock(testRate)

	c.ScheduleAt(0.4, func() {})
	c.ScheduleAt(0.2, func() {})
	h := c.ScheduleAt(0.3, func() {})
	c.Cancel(h)

	times := c.PendingTimes()
	if len(times) != 2 || times[0] != 0.2 || times[1] != 0.4 {
		t.Errorf("PendingTimes() = %v, want [0.2 0.4]", times)
	}

	c.CancelAll()
	if got := c.Pending(); got != 0 {
		t.Errorf("Pending() = %d after CancelAll, want 0", got)
	}
}

func TestVirtualClockAdvance(t *testing.T) {
	v := NewVirtualClock(testRate)

	var fired []float64
	for _, at := range []float64{0.1, 0.25, 0.5, 0.75} {
		at := at
		v.ScheduleAt(at, func() { fired = append(fired, at) })
	}

	v.Advance(0.25)
	if len(fired) != 2 {
		t.Fatalf("after 0.25s: fired %v, want events at 0.1 and 0.25", fired)
	}

	v.Advance(0.25)
	if len(fired) != 3 {
		t.Fatalf("after 0.5s: fired %v, want one more at 0.5", fired)
	}

	v.Advance(1)
	if len(fired) != 4 {
		t.Fatalf("after 1.5s: fired %v, want all four", fired)
	}
}

// constStreamer fills every requested frame with one value and never drains.
type constStreamer float64

func (s constStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i][0] = float64(s)
		samples[i][1] = float64(s)
	}
	return len(samples), true
}

func (s constStreamer) Err() error {
	return nil
}
