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
package engine

import (
	"context"
	"fmt"
	"math"
	"testing"

	"fourtrack/codec"
	"fourtrack/model"
)

// testConfig keeps fixtures fast: a low engine rate shrinks every pull and
// render in these tests without changing any scheduling math.
func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.SampleRate = 8000
	cfg.BufferFrames = 256
	cfg.TailSeconds = 0.5
	return cfg
}

// noteProject is one midi track with two notes, a bar apart in feel:
// beat 0 and beat 2 at 120 BPM 4/4, so 0 s and 1 s.
func noteProject() *model.Project {
	return &model.Project{
		ID:               "p1",
		Name:             "fixture",
		BPM:              120,
		TimeSigNumerator: 4,
		Tracks: []model.Track{
			{ID: "t1", Name: "keys", Type: model.TrackMIDI, Volume: 1, InstrumentPreset: "keys-soft"},
		},
		Clips: []model.Clip{
			{ID: "c1", TrackID: "t1", Type: model.TrackMIDI, StartBar: 0, LengthBars: 1,
				Notes: []model.Note{
					{Pitch: 60, StartBeat: 0, DurationBeats: 1, Velocity: 100},
					{Pitch: 64, StartBeat: 2, DurationBeats: 1, Velocity: 90},
				}},
		},
	}
}

// flatWAVTake wraps constant half-scale mono PCM in the take container.
func flatWAVTake(id, clipID string, rate, frames int) *model.AudioTake {
	pcm := make([]int16, frames)
	for i := range pcm {
		pcm[i] = 16384
	}
	return &model.AudioTake{
		ID:              id,
		ClipID:          clipID,
		SampleRate:      rate,
		Channels:        1,
		DurationSeconds: float64(frames) / float64(rate),
		PCM:             codec.EncodeWAV(pcm, rate, 1),
	}
}

type takeMap map[string]*model.AudioTake

func (m takeMap) ActiveTake(clipID string) (*model.AudioTake, error) {
	take, ok := m[clipID]
	if !ok {
		return nil, fmt.Errorf("no take for clip %s", clipID)
	}
	return take, nil
}

func pullOutput(e *Engine, frames int) [][2]float64 {
	out := make([][2]float64, frames)
	chunk := 256
	for at := 0; at < frames; at += chunk {
		n := chunk
		if frames-at < n {
			n = frames - at
		}
		e.Output().Stream(out[at : at+n])
	}
	return out
}

func maxAbsIn(frames [][2]float64, from, to int) float64 {
	peak := 0.0
	for i := from; i < to && i < len(frames); i++ {
		if v := math.Abs(frames[i][0]); v > peak {
			peak = v
		}
		if v := math.Abs(frames[i][1]); v > peak {
			peak = v
		}
	}
	return peak
}

func TestScheduleProjectRegistersNoteEvents(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	if got := e.ScheduledClips(); got != 1 {
		t.Errorf("ScheduledClips() = %d, want 1", got)
	}
	if got := e.Scheduler().Pending(); got != 2 {
		t.Errorf("Pending() = %d, want one event per note", got)
	}
}

func TestScheduleProjectSkipsComputedMutes(t *testing.T) {
	p := noteProject()
	p.Tracks = append(p.Tracks, model.Track{
		ID: "t2", Name: "lead", Type: model.TrackMIDI, Volume: 1, InstrumentPreset: "lead-square",
	})
	p.Clips = append(p.Clips, model.Clip{
		ID: "c2", TrackID: "t2", Type: model.TrackMIDI, StartBar: 0, LengthBars: 1,
		Notes: []model.Note{{Pitch: 72, StartBeat: 0, DurationBeats: 1, Velocity: 100}},
	})

	e := New(testConfig())
	defer e.Close()

	p.Tracks[0].Muted = true
	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}
	if got := e.ScheduledClips(); got != 1 {
		t.Errorf("muted track scheduled: ScheduledClips() = %d, want 1", got)
	}

	// Soloing t1 mutes t2 by computation, even with t1's own mute set.
	p.Tracks[0].Solo = true
	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}
	if got := e.ScheduledClips(); got != 0 {
		t.Errorf("solo computation: ScheduledClips() = %d, want 0 (t1 muted, t2 computed-muted)", got)
	}
}

func TestUnscheduleClipCancelsEverything(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	e.UnscheduleClip("c1")
	e.UnscheduleClip("c1") // second call is a no-op

	if got := e.ScheduledClips(); got != 0 {
		t.Errorf("ScheduledClips() = %d after unschedule, want 0", got)
	}
	if got := e.Scheduler().Pending(); got != 0 {
		t.Errorf("Pending() = %d after unschedule, want 0", got)
	}
}

func TestRescheduleClipDoesNotLeak(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	p := noteProject()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := e.ScheduleClip(ctx, &p.Clips[0], &p.Tracks[0], p); err != nil {
			t.Fatalf("ScheduleClip #%d: %v", i, err)
		}
	}

	if got := e.Scheduler().Pending(); got != 2 {
		t.Errorf("Pending() = %d after rescheduling five times, want 2", got)
	}
	if got := e.ScheduledClips(); got != 1 {
		t.Errorf("ScheduledClips() = %d, want 1", got)
	}
}

func TestMonophonicNotesStaggerIdenticalTimestamps(t *testing.T) {
	p := noteProject()
	p.Tracks[0].InstrumentPreset = "lead-square" // monophonic
	p.Clips[0].Notes = []model.Note{
		{Pitch: 60, StartBeat: 1, DurationBeats: 1, Velocity: 100},
		{Pitch: 64, StartBeat: 1, DurationBeats: 1, Velocity: 100},
		{Pitch: 67, StartBeat: 1, DurationBeats: 1, Velocity: 100},
	}

	e := New(testConfig())
	defer e.Close()
	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	times := e.Scheduler().PendingTimes()
	if len(times) != 3 {
		t.Fatalf("PendingTimes() = %v, want 3 events", times)
	}
	for i := 1; i < len(times); i++ {
		gap := times[i] - times[i-1]
		if gap < 0.0009 || gap > 0.0011 {
			t.Errorf("stagger gap %d = %v s, want ~1 ms", i, gap)
		}
	}
}

func TestPolyphonicNotesShareTimestamps(t *testing.T) {
	p := noteProject()
	p.Clips[0].Notes = []model.Note{
		{Pitch: 60, StartBeat: 1, DurationBeats: 1, Velocity: 100},
		{Pitch: 64, StartBeat: 1, DurationBeats: 1, Velocity: 100},
	}

	e := New(testConfig())
	defer e.Close()
	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	times := e.Scheduler().PendingTimes()
	if len(times) != 2 || times[0] != times[1] {
		t.Errorf("PendingTimes() = %v, want two identical timestamps", times)
	}
}

func TestAudioClipWithoutTakeIsSkipped(t *testing.T) {
	p := &model.Project{
		ID: "p2", BPM: 120, TimeSigNumerator: 4,
		Tracks: []model.Track{{ID: "t1", Name: "gtr", Type: model.TrackAudio, Volume: 1}},
		Clips: []model.Clip{
			{ID: "c1", TrackID: "t1", Type: model.TrackAudio, StartBar: 0, LengthBars: 1},
		},
	}

	e := New(testConfig())
	defer e.Close()
	e.SetTakeSource(takeMap{})

	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}
	if got := e.ScheduledClips(); got != 0 {
		t.Errorf("ScheduledClips() = %d, want 0 (clip awaiting a recording)", got)
	}
}

func TestUndecodableTakeSkipsOnlyThatClip(t *testing.T) {
	p := noteProject()
	p.Tracks = append(p.Tracks, model.Track{ID: "t2", Name: "gtr", Type: model.TrackAudio, Volume: 1})
	p.Clips = append(p.Clips, model.Clip{
		ID: "c2", TrackID: "t2", Type: model.TrackAudio, StartBar: 0, LengthBars: 1,
		ActiveTakeID: "take-bad",
	})

	e := New(testConfig())
	defer e.Close()
	e.SetTakeSource(takeMap{
		"c2": {ID: "take-bad", ClipID: "c2", PCM: []byte("not a riff container")},
	})

	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}
	if got := e.ScheduledClips(); got != 1 {
		t.Errorf("ScheduledClips() = %d, want 1 (bad take skips its clip only)", got)
	}
}

func TestAudioClipSoundsAtItsBarPosition(t *testing.T) {
	cfg := testConfig()
	sr := cfg.SampleRate

	p := &model.Project{
		ID: "p3", BPM: 120, TimeSigNumerator: 4,
		Tracks: []model.Track{{ID: "t1", Name: "gtr", Type: model.TrackAudio, Volume: 1}},
		Clips: []model.Clip{
			{ID: "c1", TrackID: "t1", Type: model.TrackAudio, StartBar: 1, LengthBars: 1,
				ActiveTakeID: "take1"},
		},
	}

	e := New(cfg)
	defer e.Close()
	e.SetTakeSource(takeMap{"c1": flatWAVTake("take1", "c1", sr, sr)})

	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	e.Play()
	out := pullOutput(e, 3*sr) // bar 1 starts at 2.0 s

	if peak := maxAbsIn(out, 0, 2*sr); peak != 0 {
		t.Errorf("audio before the clip start: peak %v, want exact silence", peak)
	}
	if peak := maxAbsIn(out, 2*sr+sr/10, 2*sr+sr/2); peak < 0.1 {
		t.Errorf("audio after the clip start: peak %v, want the take audible", peak)
	}
}

func TestUnscheduleSilencesSoundingClip(t *testing.T) {
	cfg := testConfig()
	sr := cfg.SampleRate

	p := &model.Project{
		ID: "p4", BPM: 120, TimeSigNumerator: 4,
		Tracks: []model.Track{{ID: "t1", Name: "gtr", Type: model.TrackAudio, Volume: 1}},
		Clips: []model.Clip{
			{ID: "c1", TrackID: "t1", Type: model.TrackAudio, StartBar: 0, LengthBars: 2,
				ActiveTakeID: "take1"},
		},
	}

	e := New(cfg)
	defer e.Close()
	e.SetTakeSource(takeMap{"c1": flatWAVTake("take1", "c1", sr, 2*sr)})

	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	e.Play()
	sounding := pullOutput(e, sr/4)
	if peak := maxAbsIn(sounding, sr/10, sr/4); peak < 0.1 {
		t.Fatalf("clip not sounding before unschedule: peak %v", peak)
	}

	e.UnscheduleClip("c1")

	after := pullOutput(e, sr/4)
	if peak := maxAbsIn(after, 0, sr/4); peak != 0 {
		t.Errorf("audio after unschedule: peak %v, want exact silence", peak)
	}
}
