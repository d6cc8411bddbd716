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
package clock

import (
	"math"
	"testing"
)

func TestBarsSecondsRoundTrip(t *testing.T) {
	bpms := []float64{20, 33.3, 60, 97.25, 120, 128, 174, 240, 300}
	bars := []float64{0, 0.25, 1, 2.5, 7.125, 16, 33.333333, 128, 9999}
	meters := []int{3, 4, 5, 6, 7, 12}

	for _, bpm := range bpms {
		for _, bpb := range meters {
			m := FromTempo(bpm, bpb)

			for _, b := range bars {
				got := m.SecondsToBars(m.BarsToSeconds(b))

				if math.Abs(got-b) > 1e-9 {
					t.Errorf("round trip at bpm=%v bpb=%d: bars %v -> %v", bpm, bpb, b, got)
				}
			}
		}
	}
}

func TestBeatsSecondsRoundTrip(t *testing.T) {
	m := FromTempo(97.5, 4)

	for _, beats := range []float64{0, 0.5, 1, 3.75, 17, 1024} {
		got := m.SecondsToBeats(m.BeatsToSeconds(beats))

		if math.Abs(got-beats) > 1e-9 {
			t.Errorf("beats round trip: %v -> %v", beats, got)
		}
	}
}

func TestBPMClamping(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 20},
		{-10, 20},
		{19.999, 20},
		{20, 20},
		{120, 120},
		{300, 300},
		{301, 300},
		{100000, 300},
	}

	for _, tc := range cases {
		if got := ClampBPM(tc.in); got != tc.want {
			t.Errorf("ClampBPM(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	// out-of-range tempo is clamped on conversion too, not rejected
	m := FromTempo(1000, 4)
	if got := m.BeatsToSeconds(1); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("clamped beat duration = %v, want 0.2", got)
	}
}

func TestKnownConversions(t *testing.T) {
	m := FromTempo(120, 4)

	// at 120 bpm a beat is 0.5 s, a 4/4 bar is 2 s
	if got := m.BeatsToSeconds(1); got != 0.5 {
		t.Errorf("beat duration = %v, want 0.5", got)
	}

	if got := m.BarsToSeconds(1); got != 2 {
		t.Errorf("bar duration = %v, want 2", got)
	}

	if got := m.SecondsToBars(5); got != 2.5 {
		t.Errorf("SecondsToBars(5) = %v, want 2.5", got)
	}

	waltz := FromTempo(90, 3)
	if got := waltz.BarsToSeconds(1); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("waltz bar duration = %v, want 2", got)
	}
}

func TestSampleConversions(t *testing.T) {
	m := FromTempo(120, 4)

	// a 2 s bar at 48 kHz is 96000 samples
	if got := m.BarsToSamples(1, 48000); got != 96000 {
		t.Errorf("BarsToSamples(1) = %v, want 96000", got)
	}

	if got := m.SamplesToBars(96000, 48000); got != 1 {
		t.Errorf("SamplesToBars(96000) = %v, want 1", got)
	}

	// fractional bars round to the nearest sample
	if got := m.BarsToSamples(0.25, 44100); got != 22050 {
		t.Errorf("BarsToSamples(0.25) = %v, want 22050", got)
	}

	for _, bars := range []float64{0, 0.5, 1.185, 7, 64} {
		back := m.SamplesToBars(m.BarsToSamples(bars, 44100), 44100)

		// one sample at 44.1 kHz is well under 1e-4 bars at 120 bpm
		if math.Abs(back-bars) > 1e-4 {
			t.Errorf("sample round trip: %v bars -> %v", bars, back)
		}
	}
}

func TestZeroValueMeterFallsBack(t *testing.T) {
	// a zero BeatsPerBar is treated as 4/4 rather than dividing by zero
	m := Musical{BPM: 120}

	if got := m.BarsToSeconds(1); got != 2 {
		t.Errorf("fallback bar duration = %v, want 2", got)
	}

	if got := m.BeatsToBars(4); got != 1 {
		t.Errorf("fallback BeatsToBars(4) = %v, want 1", got)
	}
}
