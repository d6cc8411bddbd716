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
	"math/rand"

	"github.com/gopxl/beep"
)

// kitInstrument synthesizes percussion keyed by general-MIDI drum pitches.
// Every hit is an independent voice, so the kit is always polyphonic and
// note duration is ignored in favor of each piece's natural decay.
type kitInstrument struct {
	preset Preset
	sr     int
}

func newKit(p Preset, sampleRate int) *kitInstrument {
	return &kitInstrument{
		preset: p,
		sr:     sampleRate,
	}
}

func (k *kitInstrument) Name() string {
	return k.preset.Name
}

func (k *kitInstrument) Capabilities() Capabilities {
	return Capabilities{Polyphonic: true}
}

func (k *kitInstrument) Ready(ctx context.Context) error {
	return nil
}

// drumShape parameterizes one kit piece: a pitched body that sweeps down
// plus a noise component, both under an exponential decay.
type drumShape struct {
	baseFreq  float64
	freqDrop  float64 // fraction of baseFreq lost over the decay
	noiseMix  float64
	decay     float64 // seconds to fall 60 dB
	amp       float64
}

func shapeForPitch(pitch int) drumShape {
	switch pitch {
	case 35, 36: // kick
		return drumShape{baseFreq: 150, freqDrop: 0.7, noiseMix: 0.05, decay: 0.3, amp: 1.0}
	case 38, 40: // snare
		return drumShape{baseFreq: 190, freqDrop: 0.3, noiseMix: 0.6, decay: 0.18, amp: 0.9}
	case 39: // clap
		return drumShape{noiseMix: 1, decay: 0.15, amp: 0.8}
	case 42, 44: // closed hat
		return drumShape{noiseMix: 1, decay: 0.06, amp: 0.6}
	case 46: // open hat
		return drumShape{noiseMix: 1, decay: 0.35, amp: 0.6}
	case 49, 57: // crash
		return drumShape{noiseMix: 1, decay: 1.1, amp: 0.7}
	case 51, 59: // ride
		return drumShape{baseFreq: 5200, freqDrop: 0, noiseMix: 0.8, decay: 0.6, amp: 0.5}
	case 41, 43, 45, 47, 48, 50: // toms
		f := 90.0 + float64(pitch-41)*12
		return drumShape{baseFreq: f, freqDrop: 0.4, noiseMix: 0.1, decay: 0.25, amp: 0.85}
	}

	// generic short percussion tick
	return drumShape{baseFreq: 880, freqDrop: 0.2, noiseMix: 0.7, decay: 0.05, amp: 0.6}
}

func (k *kitInstrument) Trigger(pitch int, velocity float64, duration float64) beep.Streamer {
	shape := shapeForPitch(pitch)

	return &drumVoice{
		sr:    float64(k.sr),
		shape: shape,
		amp:   velocity * k.preset.Gain * shape.amp,
		total: int(shape.decay * float64(k.sr)),
		rng:   rand.New(rand.NewSource(int64(pitch))),
	}
}

type drumVoice struct {
	sr    float64
	shape drumShape
	amp   float64

	phase float64
	pos   int
	total int
	rng   *rand.Rand
}

func (v *drumVoice) Stream(samples [][2]float64) (int, bool) {
	if v.pos >= v.total {
		return 0, false
	}

	for i := range samples {
		if v.pos >= v.total {
			return i, i > 0
		}

		t := float64(v.pos) / float64(v.total)
		env := math.Exp(-6.9 * t)

		var s float64
		if v.shape.baseFreq > 0 {
			freq := v.shape.baseFreq * (1 - v.shape.freqDrop*t)
			v.phase += freq / v.sr
			if v.phase >= 1 {
				v.phase -= 1
			}

			s = math.Sin(2*math.Pi*v.phase) * (1 - v.shape.noiseMix)
		}

		if v.shape.noiseMix > 0 {
			s += (v.rng.Float64()*2 - 1) * v.shape.noiseMix
		}

		s *= env * v.amp
		samples[i][0] = s
		samples[i][1] = s

		v.pos++
	}

	return len(samples), true
}

func (v *drumVoice) Err() error {
	return nil
}
