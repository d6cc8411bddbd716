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
package synth

import (
	"context"
	"math"
	"strings"

	"github.com/gopxl/beep"

	"fourtrack/model"
)

// Node is one insert effect in a track chain. Nodes wrap their upstream
// source and stream processed audio; the chain builder wires them in the
// track's declared order.
type Node interface {
	beep.Streamer

	SetSource(s beep.Streamer)

	// Ready completes any deferred preparation (impulse responses and the
	// like). Most nodes return immediately.
	Ready(ctx context.Context) error

	// Release drops buffered state so a torn-down chain holds no audio.
	Release()
}

// NewEffect builds the node for a descriptor. Unsupported types return nil
// and the caller inserts nothing; this is policy, not an error, so a
// project carrying an effect this build does not know keeps playing.
func (f *Factory) NewEffect(desc model.EffectDescriptor) Node {
	switch strings.ToLower(desc.Type) {
	case "delay", "echo":
		return newDelay(f.sampleRate, desc.Params)
	case "lowpass", "filter":
		return newLowPass(f.sampleRate, desc.Params)
	case "reverb":
		return newReverb(f.sampleRate, desc.Params)
	case "gain", "trim":
		return newGainTrim(desc.Params)
	}

	return nil
}

func param(params map[string]float64, key string, fallback float64) float64 {
	if v, found := params[key]; found {
		return v
	}

	return fallback
}

// delayNode is a feedback echo with a dry/wet mix.
type delayNode struct {
	src      beep.Streamer
	buf      [][2]float64
	idx      int
	feedback float64
	mix      float64
}

func newDelay(sampleRate int, params map[string]float64) *delayNode {
	seconds := param(params, "time", 0.3)
	if seconds <= 0 {
		seconds = 0.3
	}

	size := int(seconds * float64(sampleRate))
	if size < 1 {
		size = 1
	}

	return &delayNode{
		buf:      make([][2]float64, size),
		feedback: clampUnit(param(params, "feedback", 0.35)),
		mix:      clampUnit(param(params, "mix", 0.4)),
	}
}

func (d *delayNode) SetSource(s beep.Streamer) {
	d.src = s
}

func (d *delayNode) Ready(ctx context.Context) error {
	return nil
}

func (d *delayNode) Release() {
	for i := range d.buf {
		d.buf[i] = [2]float64{}
	}
}

func (d *delayNode) Stream(samples [][2]float64) (int, bool) {
	n, ok := d.src.Stream(samples)

	for i := 0; i < n; i++ {
		echo := d.buf[d.idx]

		dry := samples[i]
		samples[i][0] = dry[0] + echo[0]*d.mix
		samples[i][1] = dry[1] + echo[1]*d.mix

		d.buf[d.idx][0] = dry[0] + echo[0]*d.feedback
		d.buf[d.idx][1] = dry[1] + echo[1]*d.feedback

		d.idx++
		if d.idx >= len(d.buf) {
			d.idx = 0
		}
	}

	return n, ok
}

func (d *delayNode) Err() error {
	if d.src == nil {
		return nil
	}

	return d.src.Err()
}

// lowPassNode is a biquad low-pass filter (RBJ cookbook coefficients).
type lowPassNode struct {
	src beep.Streamer

	b0, b1, b2, a1, a2 float64

	// per-channel filter memory
	x1, x2, y1, y2 [2]float64
}

func newLowPass(sampleRate int, params map[string]float64) *lowPassNode {
	cutoff := param(params, "cutoff", 2000)
	q := param(params, "resonance", 0.707)

	nyquist := float64(sampleRate) / 2
	if cutoff <= 0 || cutoff >= nyquist {
		cutoff = nyquist * 0.45
	}

	if q <= 0 {
		q = 0.707
	}

	omega := 2 * math.Pi * cutoff / float64(sampleRate)
	sin, cos := math.Sin(omega), math.Cos(omega)
	alpha := sin / (2 * q)

	a0 := 1 + alpha

	return &lowPassNode{
		b0: (1 - cos) / 2 / a0,
		b1: (1 - cos) / a0,
		b2: (1 - cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

func (l *lowPassNode) SetSource(s beep.Streamer) {
	l.src = s
}

func (l *lowPassNode) Ready(ctx context.Context) error {
	return nil
}

func (l *lowPassNode) Release() {
	l.x1, l.x2, l.y1, l.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
}

func (l *lowPassNode) Stream(samples [][2]float64) (int, bool) {
	n, ok := l.src.Stream(samples)

	for i := 0; i < n; i++ {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			y := l.b0*x + l.b1*l.x1[ch] + l.b2*l.x2[ch] - l.a1*l.y1[ch] - l.a2*l.y2[ch]

			l.x2[ch] = l.x1[ch]
			l.x1[ch] = x
			l.y2[ch] = l.y1[ch]
			l.y1[ch] = y

			samples[i][ch] = y
		}
	}

	return n, ok
}

func (l *lowPassNode) Err() error {
	if l.src == nil {
		return nil
	}

	return l.src.Err()
}

// gainTrimNode is a static level trim, useful for taming a hot chain
// without touching the track fader.
type gainTrimNode struct {
	src  beep.Streamer
	gain float64
}

func newGainTrim(params map[string]float64) *gainTrimNode {
	return &gainTrimNode{gain: param(params, "gain", 1.0)}
}

func (g *gainTrimNode) SetSource(s beep.Streamer) {
	g.src = s
}

func (g *gainTrimNode) Ready(ctx context.Context) error {
	return nil
}

func (g *gainTrimNode) Release() {}

func (g *gainTrimNode) Stream(samples [][2]float64) (int, bool) {
	n, ok := g.src.Stream(samples)

	for i := 0; i < n; i++ {
		samples[i][0] *= g.gain
		samples[i][1] *= g.gain
	}

	return n, ok
}

func (g *gainTrimNode) Err() error {
	if g.src == nil {
		return nil
	}

	return g.src.Err()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
