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
package model

import (
	"time"

	"github.com/google/uuid"
)

type TrackType string

const (
	TrackAudio TrackType = "audio"
	TrackMIDI  TrackType = "midi"
	TrackDrum  TrackType = "drum"
)

// Project is the declarative document the engine plays, records into and
// renders. It is consumed read-only by the engine; clip and take creation
// flows back through the store.
type Project struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	BPM                float64 `json:"bpm"`
	TimeSigNumerator   int     `json:"timeSigNumerator"`
	TimeSigDenominator int     `json:"timeSigDenominator"`
	Key                string  `json:"key,omitempty"`
	Scale              string  `json:"scale,omitempty"`
	LatencyOffsetMs    float64 `json:"latencyOffsetMs,omitempty"`
	Tracks             []Track `json:"tracks"`
	Clips              []Clip  `json:"clips"`
}

type Track struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Type             TrackType          `json:"type"`
	Role             string             `json:"role,omitempty"`
	Volume           float64            `json:"volume"`
	Pan              float64            `json:"pan"`
	Muted            bool               `json:"muted"`
	Solo             bool               `json:"solo"`
	Armed            bool               `json:"armed"`
	InstrumentPreset string             `json:"instrumentPreset,omitempty"`
	Effects          []EffectDescriptor `json:"effects,omitempty"`
}

// EffectDescriptor names an insert effect and its parameters. Parameter
// values are preset data, not engineering; unknown types yield no insert.
type EffectDescriptor struct {
	Type   string             `json:"type"`
	Params map[string]float64 `json:"params,omitempty"`
}

type Clip struct {
	ID         string    `json:"id"`
	TrackID    string    `json:"trackId"`
	Type       TrackType `json:"type"`
	Name       string    `json:"name,omitempty"`
	StartBar   float64   `json:"startBar"`
	LengthBars float64   `json:"lengthBars"`

	// audio clips only
	ActiveTakeID string  `json:"activeTakeId,omitempty"`
	TrimStart    float64 `json:"trimStart,omitempty"`
	TrimEnd      float64 `json:"trimEnd,omitempty"`
	FadeIn       float64 `json:"fadeIn,omitempty"`
	FadeOut      float64 `json:"fadeOut,omitempty"`

	// midi/drum clips only
	Notes []Note `json:"notes,omitempty"`
}

type Note struct {
	Pitch         int     `json:"pitch"`
	StartBeat     float64 `json:"startBeat"`
	DurationBeats float64 `json:"durationBeats"`
	Velocity      int     `json:"velocity"`
}

// AudioTake is one recorded performance attached to a clip. The PCM payload
// is a complete self-describing WAV container, never raw samples, so a take
// can be handed to anything that reads RIFF. Takes are persisted separately
// from the project document.
type AudioTake struct {
	ID              string    `json:"id"`
	ClipID          string    `json:"clipId"`
	SampleRate      int       `json:"sampleRate"`
	Channels        int       `json:"channels"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
	PCM             []byte    `json:"-"`
}

func NewID() string {
	return uuid.NewString()
}

func (c *Clip) EndBar() float64 {
	return c.StartBar + c.LengthBars
}

func (p *Project) TrackByID(id string) *Track {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return &p.Tracks[i]
		}
	}

	return nil
}

func (p *Project) ClipByID(id string) *Clip {
	for i := range p.Clips {
		if p.Clips[i].ID == id {
			return &p.Clips[i]
		}
	}

	return nil
}

func (p *Project) ClipsForTrack(trackID string) []*Clip {
	clips := make([]*Clip, 0)

	for i := range p.Clips {
		if p.Clips[i].TrackID == trackID {
			clips = append(clips, &p.Clips[i])
		}
	}

	return clips
}

// FurthestEndBar is the end of the latest-ending clip, in bars. A project
// with no clips reports 0.
func (p *Project) FurthestEndBar() float64 {
	furthest := 0.0

	for i := range p.Clips {
		if end := p.Clips[i].EndBar(); end > furthest {
			furthest = end
		}
	}

	return furthest
}

// AnySolo reports whether at least one track has solo enabled, which turns
// every non-soloed track into a computed mute.
func (p *Project) AnySolo() bool {
	for i := range p.Tracks {
		if p.Tracks[i].Solo {
			return true
		}
	}

	return false
}
