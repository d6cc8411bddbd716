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

// Package synth builds playable instruments and insert effects from preset
// identifiers. The factory is stateless with respect to the project and is
// shared by the live and offline paths; unknown presets fall back to a
// documented default instrument so a scheduling pass never fails over
// missing preset data.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gopxl/beep"

	"fourtrack/model"
)

// Capabilities are fixed at construction. Callers branch on these tags
// instead of inspecting concrete instrument types.
type Capabilities struct {
	// Polyphonic instruments sound overlapping notes; monophonic ones cut
	// the previous voice, so same-timestamp notes need scheduling stagger.
	Polyphonic bool

	// RequiresAsyncReady marks instruments whose payload loads after
	// construction. Ready must complete before the first Trigger.
	RequiresAsyncReady bool
}

// Instrument is one playable sound source. Trigger returns a finite voice
// streamer that the caller attaches to the signal graph; it returns nil when
// the instrument cannot voice the note, which the caller treats as a skip.
type Instrument interface {
	Name() string
	Capabilities() Capabilities
	Ready(ctx context.Context) error
	Trigger(pitch int, velocity float64, duration float64) beep.Streamer
}

// Factory constructs instruments and effects for one sample rate. It holds
// no project state; an engine and an offline render each build their own.
type Factory struct {
	sampleRate int
	assetDir   string
}

func NewFactory(sampleRate int, assetDir string) *Factory {
	return &Factory{
		sampleRate: sampleRate,
		assetDir:   assetDir,
	}
}

// NewInstrument builds the instrument for a preset id. Unknown or absent
// ids yield the default preset rather than an error.
func (f *Factory) NewInstrument(presetID string) Instrument {
	preset, found := presets[presetID]
	if !found {
		if presetID != "" {
			slog.Debug(fmt.Sprintf("unknown instrument preset '%s', using '%s'", presetID, DefaultPresetID))
		}

		preset = presets[DefaultPresetID]
	}

	switch preset.Kind {
	case kindSampler:
		return newSampler(preset, f.sampleRate, f.assetDir)
	case kindKit:
		return newKit(preset, f.sampleRate)
	default:
		return newSynth(preset, f.sampleRate)
	}
}

// ForTrack resolves a track to an instrument: its preset id when known,
// otherwise its role tag, otherwise a per-track-type default. Drum tracks
// with no usable preset always land on the kit.
func (f *Factory) ForTrack(track *model.Track) Instrument {
	if _, found := presets[track.InstrumentPreset]; found {
		return f.NewInstrument(track.InstrumentPreset)
	}

	if id, found := rolePresets[track.Role]; found {
		return f.NewInstrument(id)
	}

	if track.Type == model.TrackDrum {
		return f.NewInstrument(DrumKitPresetID)
	}

	return f.NewInstrument(DefaultPresetID)
}
