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

const (
	kindSynth   = "synth"
	kindSampler = "sampler"
	kindKit     = "kit"
)

const (
	// DefaultPresetID is the fallback for unknown or absent preset ids.
	DefaultPresetID = "keys-soft"

	// DrumKitPresetID backs drum tracks that name no preset of their own.
	DrumKitPresetID = "drums-standard"
)

// Preset rows are data, not engineering: envelope times are seconds,
// Sustain is a level in [0, 1] and Gain scales the voice output.
type Preset struct {
	Name       string
	Kind       string
	Polyphonic bool

	Wave    string
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
	Gain    float64

	// sampler presets only
	SampleFile string
	RootPitch  int
}

var presets = map[string]Preset{
	"keys-soft": {
		Name:       "Soft Keys",
		Kind:       kindSynth,
		Polyphonic: true,
		Wave:       "triangle",
		Attack:     0.01,
		Decay:      0.15,
		Sustain:    0.7,
		Release:    0.25,
		Gain:       0.5,
	},
	"pad-warm": {
		Name:       "Warm Pad",
		Kind:       kindSynth,
		Polyphonic: true,
		Wave:       "saw",
		Attack:     0.25,
		Decay:      0.3,
		Sustain:    0.8,
		Release:    0.6,
		Gain:       0.35,
	},
	"lead-square": {
		Name:    "Square Lead",
		Kind:    kindSynth,
		Wave:    "square",
		Attack:  0.005,
		Decay:   0.1,
		Sustain: 0.6,
		Release: 0.12,
		Gain:    0.4,
	},
	"bass-round": {
		Name:    "Round Bass",
		Kind:    kindSynth,
		Wave:    "sine",
		Attack:  0.008,
		Decay:   0.12,
		Sustain: 0.9,
		Release: 0.15,
		Gain:    0.6,
	},
	"pluck-bright": {
		Name:       "Bright Pluck",
		Kind:       kindSynth,
		Polyphonic: true,
		Wave:       "saw",
		Attack:     0.002,
		Decay:      0.18,
		Sustain:    0,
		Release:    0.15,
		Gain:       0.45,
	},
	"drums-standard": {
		Name:       "Standard Kit",
		Kind:       kindKit,
		Polyphonic: true,
		Gain:       0.8,
	},
	"sampler-keys": {
		Name:       "Sampled Keys",
		Kind:       kindSampler,
		Polyphonic: true,
		Release:    0.08,
		Gain:       0.7,
		SampleFile: "keys.wav",
		RootPitch:  60,
	},
	"sampler-strings": {
		Name:       "Sampled Strings",
		Kind:       kindSampler,
		Polyphonic: true,
		Release:    0.2,
		Gain:       0.6,
		SampleFile: "strings.wav",
		RootPitch:  60,
	},
}

// rolePresets maps a track's color/role tag to an instrument when the track
// names no preset. This is the only place the role tag is consulted.
var rolePresets = map[string]string{
	"keys":       "keys-soft",
	"pad":        "pad-warm",
	"lead":       "lead-square",
	"bass":       "bass-round",
	"pluck":      "pluck-bright",
	"drums":      DrumKitPresetID,
	"percussion": DrumKitPresetID,
}

// KnownPreset reports whether an id resolves without falling back.
func KnownPreset(id string) bool {
	_, found := presets[id]
	return found
}
