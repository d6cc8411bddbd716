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

	"github.com/gopxl/beep"
)

type waveFunc func(phase float64) float64

func sineWave(p float64) float64 {
	return math.Sin(2 * math.Pi * p)
}

func squareWave(p float64) float64 {
	if p < 0.5 {
		return 1
	}

	return -1
}

func sawWave(p float64) float64 {
	return 2*p - 1
}

func triangleWave(p float64) float64 {
	return 4*math.Abs(p-0.5) - 1
}

func waveByName(name string) waveFunc {
	switch name {
	case "sine":
		return sineWave
	case "square":
		return squareWave
	case "saw":
		return sawWave
	case "triangle":
		return triangleWave
	}

	return sineWave
}

// PitchToFreq converts a MIDI note number to Hz (equal temperament, A4=440).
func PitchToFreq(pitch int) float64 {
	return 440.0 * math.Pow(2, float64(pitch-69)/12.0)
}

// voice is one sounding note: an oscillator shaped by an ADSR envelope.
// It streams duration + release worth of samples and then drains.
type voice struct {
	sr    float64
	freq  float64
	amp   float64
	wave  waveFunc
	phase float64

	attack  int
	decay   int
	sustain float64
	release int

	holdFor int // samples before the release stage begins
	pos     int

	releasing bool
	relPos    int
	relFrom   float64

	done bool
}

func newVoice(p Preset, sampleRate int, pitch int, velocity float64, duration float64) *voice {
	sr := float64(sampleRate)

	secs := func(s float64) int {
		n := int(s * sr)
		if n < 1 {
			n = 1
		}
		return n
	}

	return &voice{
		sr:      sr,
		freq:    PitchToFreq(pitch),
		amp:     velocity * p.Gain,
		wave:    waveByName(p.Wave),
		attack:  secs(p.Attack),
		decay:   secs(p.Decay),
		sustain: p.Sustain,
		release: secs(p.Release),
		holdFor: secs(duration),
	}
}

// level is the envelope value at the current position.
func (v *voice) level() float64 {
	if v.releasing {
		if v.relPos >= v.release {
			return 0
		}

		return v.relFrom * (1 - float64(v.relPos)/float64(v.release))
	}

	switch {
	case v.pos < v.attack:
		return float64(v.pos) / float64(v.attack)
	case v.pos < v.attack+v.decay:
		t := float64(v.pos-v.attack) / float64(v.decay)
		return 1 - (1-v.sustain)*t
	default:
		return v.sustain
	}
}

func (v *voice) startRelease() {
	if v.releasing {
		return
	}

	v.relFrom = v.level()
	v.releasing = true
	v.relPos = 0
}

// cut fades the voice out over a few milliseconds. Used for monophonic
// voice stealing; a hard stop would click.
func (v *voice) cut() {
	fast := int(0.005 * v.sr)
	if fast < 1 {
		fast = 1
	}

	v.startRelease()
	if v.release > fast {
		v.release = fast
	}
}

func (v *voice) Stream(samples [][2]float64) (int, bool) {
	if v.done {
		return 0, false
	}

	step := v.freq / v.sr

	for i := range samples {
		if !v.releasing && v.pos >= v.holdFor {
			v.startRelease()
		}

		if v.releasing && v.relPos >= v.release {
			v.done = true

			return i, i > 0
		}

		s := v.wave(v.phase) * v.level() * v.amp
		samples[i][0] = s
		samples[i][1] = s

		v.phase += step
		if v.phase >= 1 {
			v.phase -= 1
		}

		v.pos++
		if v.releasing {
			v.relPos++
		}
	}

	return len(samples), true
}

func (v *voice) Err() error {
	return nil
}

// synthInstrument is the oscillator-based instrument. All trigger calls run
// on the engine's scheduling goroutine, so the mono voice-stealing state
// needs no lock.
type synthInstrument struct {
	preset Preset
	sr     int
	last   *voice
}

func newSynth(p Preset, sampleRate int) *synthInstrument {
	return &synthInstrument{
		preset: p,
		sr:     sampleRate,
	}
}

func (s *synthInstrument) Name() string {
	return s.preset.Name
}

func (s *synthInstrument) Capabilities() Capabilities {
	return Capabilities{Polyphonic: s.preset.Polyphonic}
}

func (s *synthInstrument) Ready(ctx context.Context) error {
	return nil
}

func (s *synthInstrument) Trigger(pitch int, velocity float64, duration float64) beep.Streamer {
	if !s.preset.Polyphonic && s.last != nil && !s.last.done {
		s.last.cut()
	}

	v := newVoice(s.preset, s.sr, pitch, velocity, duration)
	s.last = v

	return v
}
