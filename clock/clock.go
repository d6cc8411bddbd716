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

// Package clock converts between bars, beats and seconds. Every conversion
// is a pure function of (value, bpm, beats per bar); there is no hidden
// state, so the live engine, the offline renderer and the interchange
// layer all agree on musical time by construction.
package clock

import "math"

const (
	MinBPM = 20.0
	MaxBPM = 300.0

	defaultBeatsPerBar = 4
)

// ClampBPM forces a tempo into the supported [20, 300] range. Out-of-range
// input is clamped, never rejected.
func ClampBPM(bpm float64) float64 {
	if bpm < MinBPM {
		return MinBPM
	}

	if bpm > MaxBPM {
		return MaxBPM
	}

	return bpm
}

// Musical carries the two parameters every conversion depends on. The zero
// value is unusable; construct with FromTempo (or fill the fields) so the
// clamp is applied exactly once.
type Musical struct {
	BPM         float64
	BeatsPerBar int
}

func FromTempo(bpm float64, beatsPerBar int) Musical {
	if beatsPerBar <= 0 {
		beatsPerBar = defaultBeatsPerBar
	}

	return Musical{
		BPM:         ClampBPM(bpm),
		BeatsPerBar: beatsPerBar,
	}
}

func (m Musical) secondsPerBeat() float64 {
	return 60.0 / ClampBPM(m.BPM)
}

func (m Musical) beatsPerBar() float64 {
	if m.BeatsPerBar <= 0 {
		return defaultBeatsPerBar
	}

	return float64(m.BeatsPerBar)
}

func (m Musical) BeatsToSeconds(beats float64) float64 {
	return beats * m.secondsPerBeat()
}

func (m Musical) SecondsToBeats(seconds float64) float64 {
	return seconds / m.secondsPerBeat()
}

func (m Musical) BarsToSeconds(bars float64) float64 {
	return bars * m.beatsPerBar() * m.secondsPerBeat()
}

func (m Musical) SecondsToBars(seconds float64) float64 {
	return seconds / (m.beatsPerBar() * m.secondsPerBeat())
}

func (m Musical) BarsToBeats(bars float64) float64 {
	return bars * m.beatsPerBar()
}

func (m Musical) BeatsToBars(beats float64) float64 {
	return beats / m.beatsPerBar()
}

// BarDuration is the length of one bar in seconds.
func (m Musical) BarDuration() float64 {
	return m.BarsToSeconds(1)
}

// BarsToSamples converts a bar position to a sample offset at the given
// rate, rounded to the nearest whole sample.
func (m Musical) BarsToSamples(bars float64, sampleRate int) int64 {
	return int64(math.Round(m.BarsToSeconds(bars) * float64(sampleRate)))
}

// SamplesToBars converts a sample offset at the given rate to a bar
// position.
func (m Musical) SamplesToBars(samples int64, sampleRate int) float64 {
	return m.SecondsToBars(float64(samples) / float64(sampleRate))
}
