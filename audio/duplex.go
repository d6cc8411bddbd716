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
package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gordonklaus/portaudio"
)

// Duplex is the full-duplex session behind latency calibration: it plays a
// short tone pulse on the output on demand while continuously tracking the
// peak level of the input. Both run in the device callback so the pulse
// reaches the output buffer with no scheduling detour.
type Duplex struct {
	stream duplexStream

	mu     sync.Mutex
	level  float64
	pulse  []float32
	cursor int
}

// duplexStream is what Duplex needs from PortAudio; split out so tests can
// run the callback without a device.
type duplexStream interface {
	Start() error
	Stop() error
	Close() error
}

const (
	pulseHz     = 1000
	pulseLength = 10 * time.Millisecond
)

// OpenDuplex opens the default full-duplex device, mono in and mono out, and
// starts it. Input open failures surface as ErrMicAccessDenied like capture.
func OpenDuplex(sampleRate int, bufferFrames int) (*Duplex, error) {
	if bufferFrames <= 0 {
		bufferFrames = 512
	}

	d := &Duplex{pulse: renderPulse(sampleRate)}
	d.cursor = len(d.pulse)

	stream, err := openDuplexStream(1, 1, sampleRate, bufferFrames, d.process)
	if err != nil {
		return nil, fmt.Errorf("%w: opening duplex stream: %v", ErrMicAccessDenied, err)
	}
	d.stream = stream

	if err := d.stream.Start(); err != nil {
		d.stream.Close()
		return nil, fmt.Errorf("starting duplex stream: %w", err)
	}

	return d, nil
}

// EmitPulse queues the tone burst to start on the next output buffer.
func (d *Duplex) EmitPulse() error {
	d.mu.Lock()
	d.cursor = 0
	d.mu.Unlock()
	return nil
}

// Level reports the peak amplitude of the most recent input buffer.
func (d *Duplex) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

func (d *Duplex) Close() error {
	if err := d.stream.Stop(); err != nil {
		d.stream.Close()
		return fmt.Errorf("stopping duplex stream: %w", err)
	}
	if err := d.stream.Close(); err != nil {
		return fmt.Errorf("closing duplex stream: %w", err)
	}
	return nil
}

// process is the device callback: peak-track the input, play out the pulse
// where one is queued, silence otherwise.
func (d *Duplex) process(in, out []float32) {
	d.mu.Lock()

	peak := 0.0
	for _, s := range in {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	d.level = peak

	for i := range out {
		if d.cursor < len(d.pulse) {
			out[i] = d.pulse[d.cursor]
			d.cursor++
		} else {
			out[i] = 0
		}
	}

	d.mu.Unlock()
}

func openDuplexStream(inCh, outCh, sampleRate, bufferFrames int, cb func(in, out []float32)) (duplexStream, error) {
	return portaudio.OpenDefaultStream(inCh, outCh, float64(sampleRate), bufferFrames, cb)
}

// renderPulse bakes the calibration tone once: a 10 ms full-scale sine burst
// with a linear decay so the tail does not click.
func renderPulse(sampleRate int) []float32 {
	sr := beep.SampleRate(sampleRate)

	tone, err := generators.SinTone(sr, pulseHz)
	if err != nil {
		return nil
	}

	frames := sr.N(pulseLength)
	buf := make([][2]float64, frames)
	tone.Stream(buf)

	pulse := make([]float32, frames)
	for i := range buf {
		decay := 1 - float64(i)/float64(frames)
		pulse[i] = float32(buf[i][0] * decay)
	}

	return pulse
}
