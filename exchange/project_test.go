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
package exchange

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"fourtrack/model"
)

// docProject builds a small but fully cross-referenced project: an audio
// clip pointing at a take, and a midi clip carrying notes.
func docProject() (*model.Project, []model.AudioTake) {
	p := &model.Project{
		ID:                 "p-src",
		Name:               "Demo Song",
		BPM:                96,
		TimeSigNumerator:   4,
		TimeSigDenominator: 4,
		Tracks: []model.Track{
			{ID: "t-vox", Name: "vox", Type: model.TrackAudio, Volume: 1},
			{ID: "t-keys", Name: "keys", Type: model.TrackMIDI, Volume: 0.8, InstrumentPreset: "keys-soft"},
		},
		Clips: []model.Clip{
			{ID: "c-take", TrackID: "t-vox", Type: model.TrackAudio, StartBar: 1, LengthBars: 2, ActiveTakeID: "tk-1"},
			{ID: "c-riff", TrackID: "t-keys", Type: model.TrackMIDI, StartBar: 0, LengthBars: 1,
				Notes: []model.Note{{Pitch: 60, StartBeat: 0, DurationBeats: 1, Velocity: 100}}},
		},
	}

	takes := []model.AudioTake{{
		ID:              "tk-1",
		ClipID:          "c-take",
		SampleRate:      8000,
		Channels:        1,
		DurationSeconds: 0.25,
		CreatedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PCM:             []byte{'R', 'I', 'F', 'F', 0x01, 0x02, 0x03, 0x04},
	}}

	return p, takes
}

func TestProjectDocumentRoundTrip(t *testing.T) {
	p, takes := docProject()

	data, err := MarshalProject(p, takes)
	if err != nil {
		t.Fatalf("MarshalProject: %v", err)
	}
	if !strings.Contains(string(data), `"version": "1.2"`) {
		t.Errorf("document does not carry the current schema version:\n%s", data)
	}

	got, gotTakes, err := UnmarshalProject(data)
	if err != nil {
		t.Fatalf("UnmarshalProject: %v", err)
	}

	if got.ID != p.ID || got.Name != p.Name || got.BPM != p.BPM {
		t.Errorf("project header changed: got %s/%s/%.0f", got.ID, got.Name, got.BPM)
	}
	if len(got.Tracks) != 2 || len(got.Clips) != 2 {
		t.Fatalf("got %d tracks, %d clips, want 2 and 2", len(got.Tracks), len(got.Clips))
	}
	if got.Clips[0].ActiveTakeID != "tk-1" {
		t.Errorf("audio clip lost its take reference: %q", got.Clips[0].ActiveTakeID)
	}
	if len(got.Clips[1].Notes) != 1 || got.Clips[1].Notes[0].Pitch != 60 {
		t.Errorf("midi clip notes changed: %+v", got.Clips[1].Notes)
	}

	if len(gotTakes) != 1 {
		t.Fatalf("got %d takes, want 1", len(gotTakes))
	}
	if !bytes.Equal(gotTakes[0].PCM, takes[0].PCM) {
		t.Errorf("take payload changed: got % x, want % x", gotTakes[0].PCM, takes[0].PCM)
	}
	if gotTakes[0].SampleRate != 8000 || gotTakes[0].Channels != 1 {
		t.Errorf("take format changed: %d Hz %d ch", gotTakes[0].SampleRate, gotTakes[0].Channels)
	}
}

func TestUnmarshalVersionPolicy(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "newer major rejected",
			doc:     `{"version":"2.0","project":{"id":"p1","name":"x","bpm":120,"timeSigNumerator":4,"timeSigDenominator":4,"tracks":[],"clips":[]}}`,
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "newer minor accepted",
			doc:  `{"version":"1.99","project":{"id":"p1","name":"x","bpm":120,"timeSigNumerator":4,"timeSigDenominator":4,"tracks":[],"clips":[]}}`,
		},
		{
			name: "older version accepted",
			doc:  `{"version":"1.0","project":{"id":"p1","name":"x","bpm":120,"timeSigNumerator":4,"timeSigDenominator":4,"tracks":[],"clips":[]}}`,
		},
		{
			name:    "malformed version",
			doc:     `{"version":"latest","project":{"id":"p1","name":"x","bpm":120,"timeSigNumerator":4,"timeSigDenominator":4,"tracks":[],"clips":[]}}`,
			wantErr: ErrNotProjectDocument,
		},
		{
			name:    "missing project entry",
			doc:     `{"version":"1.2"}`,
			wantErr: ErrNotProjectDocument,
		},
		{
			name:    "not json at all",
			doc:     "four chords and the truth",
			wantErr: ErrNotProjectDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, err := UnmarshalProject([]byte(tt.doc))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != "p1" {
				t.Errorf("got project id %q, want p1", p.ID)
			}
		})
	}
}

func TestImportProjectRegeneratesAndRemapsIDs(t *testing.T) {
	p, takes := docProject()

	data, err := MarshalProject(p, takes)
	if err != nil {
		t.Fatalf("MarshalProject: %v", err)
	}

	var reports []float64
	imp, impTakes, err := ImportProject(data, func(f float64) { reports = append(reports, f) })
	if err != nil {
		t.Fatalf("ImportProject: %v", err)
	}

	if imp.ID == p.ID {
		t.Error("project id was not regenerated")
	}
	for i := range imp.Tracks {
		if imp.Tracks[i].ID == p.Tracks[i].ID {
			t.Errorf("track %d id was not regenerated", i)
		}
	}
	for i := range imp.Clips {
		if imp.Clips[i].ID == p.Clips[i].ID {
			t.Errorf("clip %d id was not regenerated", i)
		}
	}

	// The fresh ids must still point at each other the way the originals did.
	if imp.Clips[0].TrackID != imp.Tracks[0].ID {
		t.Errorf("audio clip points at track %q, want %q", imp.Clips[0].TrackID, imp.Tracks[0].ID)
	}
	if imp.Clips[1].TrackID != imp.Tracks[1].ID {
		t.Errorf("midi clip points at track %q, want %q", imp.Clips[1].TrackID, imp.Tracks[1].ID)
	}
	if len(impTakes) != 1 {
		t.Fatalf("got %d takes, want 1", len(impTakes))
	}
	if imp.Clips[0].ActiveTakeID != impTakes[0].ID {
		t.Errorf("clip active take %q does not match imported take %q", imp.Clips[0].ActiveTakeID, impTakes[0].ID)
	}
	if impTakes[0].ClipID != imp.Clips[0].ID {
		t.Errorf("take clip reference %q does not match imported clip %q", impTakes[0].ClipID, imp.Clips[0].ID)
	}
	if !bytes.Equal(impTakes[0].PCM, takes[0].PCM) {
		t.Error("take payload changed during import")
	}

	if len(reports) == 0 || reports[len(reports)-1] != 1 {
		t.Errorf("progress reports %v do not end at 1.0", reports)
	}
}

func TestImportProjectClearsUnknownTakeReference(t *testing.T) {
	p, _ := docProject()
	p.Clips[0].ActiveTakeID = "ghost"

	data, err := MarshalProject(p, nil)
	if err != nil {
		t.Fatalf("MarshalProject: %v", err)
	}

	imp, _, err := ImportProject(data, nil)
	if err != nil {
		t.Fatalf("ImportProject: %v", err)
	}

	if imp.Clips[0].ActiveTakeID != "" {
		t.Errorf("dangling take reference survived import: %q", imp.Clips[0].ActiveTakeID)
	}
}

func TestMarshalProjectRejectsNil(t *testing.T) {
	if _, err := MarshalProject(nil, nil); err == nil {
		t.Fatal("expected an error for a nil project")
	}
}
