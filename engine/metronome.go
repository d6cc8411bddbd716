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
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
)

// Click pitches. Beat one of every bar gets the higher, louder click so the
// performer hears the bar line.
const (
	accentClickHz = 1318
	weakClickHz   = 880

	clickLength = 30 * time.Millisecond
)

// ScheduleCountIn registers count-in clicks for the given number of bars at
// the scheduled project's tempo, starting on the next wall-clock pull. The
// clicks live in the wall domain, so they sound even while the transport is
// still holding. Returns the count-in length in seconds.
func (e *Engine) ScheduleCountIn(bars int) float64 {
	e.mu.Lock()
	m := e.musical
	e.mu.Unlock()

	if bars <= 0 {
		return 0
	}

	beatDur := m.BeatsToSeconds(1)
	start := e.wall.Now()

	beat := 0
	for bar := 0; bar < bars; bar++ {
		for b := 0; b < m.BeatsPerBar; b++ {
			accent := b == 0
			n := beat
			e.wall.ScheduleAt(start+float64(beat)*beatDur, func() {
				e.fireClick(n, accent)
			})
			beat++
		}
	}

	return m.BarsToSeconds(float64(bars))
}

// fireClick attaches one click voice to the click bus. Drained clicks drop
// off the bus on their own.
func (e *Engine) fireClick(n int, accent bool) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}

	freq := weakClickHz
	gain := -0.4
	if accent {
		freq = accentClickHz
		gain = 0
	}

	sr := beep.SampleRate(e.cfg.SampleRate)
	tone, err := generators.SineTone(sr, float64(freq))
	if err != nil {
		return
	}

	length := sr.N(clickLength)
	voice := &effects.Gain{
		Streamer: &clickDecay{src: beep.Take(length, tone), total: length},
		Gain:     gain,
	}
	e.clicks.Add(fmt.Sprintf("click:%d", n), voice)
}

// clickDecay fades a click linearly to silence over its whole length, enough
// to keep a 30 ms tone burst from ticking at its tail.
type clickDecay struct {
	src   beep.Streamer
	total int
	pos   int
}

func (c *clickDecay) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.src.Stream(samples)
	for i := 0; i < n; i++ {
		g := 1 - float64(c.pos)/float64(c.total)
		if g < 0 {
			g = 0
		}
		samples[i][0] *= g
		samples[i][1] *= g
		c.pos++
	}
	return n, ok
}

func (c *clickDecay) Err() error {
	return c.src.Err()
}
