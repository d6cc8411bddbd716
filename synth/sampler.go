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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gopxl/beep"

	"fourtrack/codec"
)

// samplerInstrument plays a WAV asset pitched around a root note. The
// sample payload loads after construction, so the instrument carries the
// RequiresAsyncReady capability and must not be triggered before Ready
// returns.
type samplerInstrument struct {
	preset Preset
	sr     int
	dir    string

	once    sync.Once
	loadErr error
	data    [][2]float64
	srcRate int
}

func newSampler(p Preset, sampleRate int, assetDir string) *samplerInstrument {
	return &samplerInstrument{
		preset: p,
		sr:     sampleRate,
		dir:    assetDir,
	}
}

func (s *samplerInstrument) Name() string {
	return s.preset.Name
}

func (s *samplerInstrument) Capabilities() Capabilities {
	return Capabilities{
		Polyphonic:         s.preset.Polyphonic,
		RequiresAsyncReady: true,
	}
}

// Ready loads and decodes the sample payload exactly once. Safe to call
// repeatedly; later calls return the first outcome.
func (s *samplerInstrument) Ready(ctx context.Context) error {
	s.once.Do(func() {
		if err := ctx.Err(); err != nil {
			s.loadErr = err
			return
		}

		path := filepath.Join(s.dir, s.preset.SampleFile)

		raw, err := os.ReadFile(path)
		if err != nil {
			s.loadErr = fmt.Errorf("synth: load sample %s: %w", path, err)
			return
		}

		dec, err := codec.DecodeWAV(raw)
		if err != nil {
			s.loadErr = fmt.Errorf("synth: decode sample %s: %w", path, err)
			return
		}

		s.data = dec.Stereo()
		s.srcRate = dec.SampleRate
	})

	return s.loadErr
}

func (s *samplerInstrument) Trigger(pitch int, velocity float64, duration float64) beep.Streamer {
	if s.data == nil {
		return nil
	}

	root := s.preset.RootPitch
	if root == 0 {
		root = 60
	}

	// resample ratio: pitch shift around the root, corrected for the
	// asset's own sample rate
	step := PitchToFreq(pitch) / PitchToFreq(root)
	step *= float64(s.srcRate) / float64(s.sr)

	release := int(s.preset.Release * float64(s.sr))
	if release < 1 {
		release = 1
	}

	return &samplerVoice{
		data:    s.data,
		step:    step,
		amp:     velocity * s.preset.Gain,
		holdFor: int(duration * float64(s.sr)),
		release: release,
	}
}

type samplerVoice struct {
	data [][2]float64
	step float64
	amp  float64

	pos     float64
	played  int
	holdFor int
	release int
	relPos  int
	done    bool
}

func (v *samplerVoice) gain() float64 {
	if v.played < v.holdFor {
		return v.amp
	}

	if v.relPos >= v.release {
		return 0
	}

	return v.amp * (1 - float64(v.relPos)/float64(v.release))
}

func (v *samplerVoice) Stream(samples [][2]float64) (int, bool) {
	if v.done {
		return 0, false
	}

	for i := range samples {
		idx := int(v.pos)
		if idx+1 >= len(v.data) || (v.played >= v.holdFor && v.relPos >= v.release) {
			v.done = true

			return i, i > 0
		}

		// linear interpolation between neighboring source frames
		frac := v.pos - float64(idx)
		g := v.gain()

		samples[i][0] = (v.data[idx][0]*(1-frac) + v.data[idx+1][0]*frac) * g
		samples[i][1] = (v.data[idx][1]*(1-frac) + v.data[idx+1][1]*frac) * g

		v.pos += v.step
		v.played++
		if v.played >= v.holdFor {
			v.relPos++
		}
	}

	return len(samples), true
}

func (v *samplerVoice) Err() error {
	return nil
}
