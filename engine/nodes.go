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
	"math"
	"sync"

	"github.com/gopxl/beep"

	"fourtrack/codec"
)

// RampGain scales its source by a gain that walks toward the last requested
// target in per-sample linear steps. Parameter writes never jump the applied
// value, so concurrent volume and mute edits cannot click; they only move the
// same target.
type RampGain struct {
	mu      sync.Mutex
	src     beep.Streamer
	cur     float64
	target  float64
	step    float64
	rampLen int
}

// NewRampGain wraps src at the given initial gain. rampLen is the ramp length
// in samples; values below 1 are treated as 1.
func NewRampGain(src beep.Streamer, gain float64, rampLen int) *RampGain {
	if rampLen < 1 {
		rampLen = 1
	}
	return &RampGain{src: src, cur: gain, target: gain, rampLen: rampLen}
}

// SetGain moves the target. The applied gain reaches it rampLen samples from
// now, restarting the ramp from wherever the previous one had gotten.
func (g *RampGain) SetGain(target float64) {
	g.mu.Lock()
	g.target = target
	g.step = (target - g.cur) / float64(g.rampLen)
	g.mu.Unlock()
}

// Gain reports the current target.
func (g *RampGain) Gain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}

func (g *RampGain) Stream(samples [][2]float64) (int, bool) {
	n, ok := g.src.Stream(samples)

	g.mu.Lock()
	for i := 0; i < n; i++ {
		if g.cur != g.target {
			g.cur += g.step
			if (g.step > 0 && g.cur >= g.target) || (g.step < 0 && g.cur <= g.target) {
				g.cur = g.target
			}
		}
		samples[i][0] *= g.cur
		samples[i][1] *= g.cur
	}
	g.mu.Unlock()

	return n, ok
}

func (g *RampGain) Err() error {
	return g.src.Err()
}

// RampPan places its source in the stereo field with the constant-power law:
// for a position p in [-1, 1] the channel gains are cos and sin of
// (p+1)·π/4, so moving the knob trades the channels without changing the
// summed power. Like RampGain the position ramps per sample toward the
// target.
type RampPan struct {
	mu      sync.Mutex
	src     beep.Streamer
	cur     float64
	target  float64
	step    float64
	rampLen int
}

// NewRampPan wraps src at the given initial position. Positions outside
// [-1, 1] are clamped.
func NewRampPan(src beep.Streamer, pan float64, rampLen int) *RampPan {
	if rampLen < 1 {
		rampLen = 1
	}
	pan = clampPan(pan)
	return &RampPan{src: src, cur: pan, target: pan, rampLen: rampLen}
}

// SetPan moves the target position, clamped to [-1, 1].
func (p *RampPan) SetPan(target float64) {
	target = clampPan(target)
	p.mu.Lock()
	p.target = target
	p.step = (target - p.cur) / float64(p.rampLen)
	p.mu.Unlock()
}

// Pan reports the current target.
func (p *RampPan) Pan() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func (p *RampPan) Stream(samples [][2]float64) (int, bool) {
	n, ok := p.src.Stream(samples)

	p.mu.Lock()
	for i := 0; i < n; i++ {
		if p.cur != p.target {
			p.cur += p.step
			if (p.step > 0 && p.cur >= p.target) || (p.step < 0 && p.cur <= p.target) {
				p.cur = p.target
			}
		}
		angle := (p.cur + 1) * math.Pi / 4
		samples[i][0] *= math.Cos(angle)
		samples[i][1] *= math.Sin(angle)
	}
	p.mu.Unlock()

	return n, ok
}

func (p *RampPan) Err() error {
	return p.src.Err()
}

func clampPan(pan float64) float64 {
	if pan < -1 {
		return -1
	}
	if pan > 1 {
		return 1
	}
	return pan
}

// clipWindow describes the slice of a take a clip player renders. All fields
// are seconds. trimStart/trimEnd cut material off the head and tail of the
// take; limit caps the played duration (0 means play the whole window);
// offset starts playback that far into the window, which is how seeking lands
// mid-clip. edgeFade is the declick floor: explicit fades shorter than it are
// raised to it.
type clipWindow struct {
	trimStart float64
	trimEnd   float64
	limit     float64
	fadeIn    float64
	fadeOut   float64
	offset    float64
	edgeFade  float64
}

// clipPlayer streams a decoded take through a trim window with constant-power
// edge fades, resampling from the take's native rate to the engine rate by
// linear interpolation. It drains once the window is exhausted, which is what
// detaches it from its track bus.
type clipPlayer struct {
	dec *codec.Decoded

	step     float64 // source frames per output frame
	startF   float64 // window start, source frames
	totalOut int     // window length, output frames
	outPos   int
	fadeIn   int // output frames
	fadeOut  int
}

func newClipPlayer(dec *codec.Decoded, outRate int, w clipWindow) *clipPlayer {
	srcRate := float64(dec.SampleRate)
	step := srcRate / float64(outRate)

	startF := w.trimStart * srcRate
	endF := float64(dec.Frames()) - w.trimEnd*srcRate
	if startF < 0 {
		startF = 0
	}
	if endF > float64(dec.Frames()) {
		endF = float64(dec.Frames())
	}
	if w.limit > 0 && startF+w.limit*srcRate < endF {
		endF = startF + w.limit*srcRate
	}
	if endF < startF {
		endF = startF
	}

	totalOut := int((endF - startF) / step)

	fadeIn := w.fadeIn
	if fadeIn < w.edgeFade {
		fadeIn = w.edgeFade
	}
	fadeOut := w.fadeOut
	if fadeOut < w.edgeFade {
		fadeOut = w.edgeFade
	}
	fin := int(fadeIn * float64(outRate))
	fout := int(fadeOut * float64(outRate))
	if fin+fout > totalOut {
		// Overlapping fades on a tiny window: shrink both proportionally.
		if fin+fout > 0 {
			scale := float64(totalOut) / float64(fin+fout)
			fin = int(float64(fin) * scale)
			fout = int(float64(fout) * scale)
		}
	}

	outPos := int(w.offset * float64(outRate))
	if outPos < 0 {
		outPos = 0
	}

	return &clipPlayer{
		dec:      dec,
		step:     step,
		startF:   startF,
		totalOut: totalOut,
		outPos:   outPos,
		fadeIn:   fin,
		fadeOut:  fout,
	}
}

func (c *clipPlayer) Stream(samples [][2]float64) (int, bool) {
	if c.outPos >= c.totalOut {
		return 0, false
	}

	n := len(samples)
	if remain := c.totalOut - c.outPos; n > remain {
		n = remain
	}

	for i := 0; i < n; i++ {
		src := c.startF + float64(c.outPos)*c.step
		frame := int(src)
		frac := src - float64(frame)

		l0, r0 := c.frameAt(frame)
		l1, r1 := c.frameAt(frame + 1)
		l := l0 + (l1-l0)*frac
		r := r0 + (r1-r0)*frac

		gain := c.gainAt(c.outPos)
		samples[i][0] = l * gain
		samples[i][1] = r * gain
		c.outPos++
	}

	return n, true
}

func (c *clipPlayer) Err() error {
	return nil
}

// gainAt is the constant-power fade envelope at one output frame: sine rise
// over the fade-in zone, cosine fall over the fade-out zone, unity between.
func (c *clipPlayer) gainAt(pos int) float64 {
	gain := 1.0
	if c.fadeIn > 0 && pos < c.fadeIn {
		gain *= math.Sin(float64(pos+1) / float64(c.fadeIn) * math.Pi / 2)
	}
	if c.fadeOut > 0 && pos >= c.totalOut-c.fadeOut {
		into := pos - (c.totalOut - c.fadeOut)
		gain *= math.Cos(float64(into) / float64(c.fadeOut) * math.Pi / 2)
	}
	return gain
}

func (c *clipPlayer) frameAt(frame int) (float64, float64) {
	if frame < 0 || frame >= c.dec.Frames() {
		return 0, 0
	}
	if c.dec.Channels == 1 {
		v := float64(c.dec.PCM[frame]) / 32768
		return v, v
	}
	l := float64(c.dec.PCM[frame*2]) / 32768
	r := float64(c.dec.PCM[frame*2+1]) / 32768
	return l, r
}
