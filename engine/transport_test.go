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
	"math"
	"testing"

	"fourtrack/model"
)

func TestPauseHoldsPositionAndEvents(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	e.Play()
	pullOutput(e, e.SampleRate()/2) // 0.5 s: past the first note, before the second

	pos := e.PositionSeconds()
	pending := e.Scheduler().Pending()

	e.Pause()
	out := pullOutput(e, e.SampleRate())

	if got := e.PositionSeconds(); got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}
	if got := e.Scheduler().Pending(); got != pending {
		t.Errorf("events fired while paused: %d -> %d", pending, got)
	}
	if peak := maxAbsIn(out, 0, len(out)); peak != 0 {
		t.Errorf("paused transport leaked audio: peak %v", peak)
	}
}

func TestStopCancelsRewindsAndSilences(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	e.Play()
	pullOutput(e, e.SampleRate()/4)
	e.Stop()

	if got := e.PositionSeconds(); got != 0 {
		t.Errorf("PositionSeconds() = %v after Stop, want 0", got)
	}
	if got := e.Scheduler().Pending(); got != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", got)
	}
	if got := e.ScheduledClips(); got != 0 {
		t.Errorf("ScheduledClips() = %d after Stop, want 0", got)
	}
	if e.Running() {
		t.Error("transport still running after Stop")
	}
}

func TestSeekSkipsNotesBeforeTarget(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	// Notes at 0 s and 1 s; seeking to half a bar (1 s) keeps only the
	// second.
	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	if err := e.Seek(context.Background(), 0.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if got := e.PositionSeconds(); math.Abs(got-1) > 1e-6 {
		t.Errorf("PositionSeconds() = %v after Seek(0.5 bars), want 1", got)
	}
	if got := e.PositionBars(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("PositionBars() = %v, want 0.5", got)
	}

	times := e.Scheduler().PendingTimes()
	if len(times) != 1 {
		t.Fatalf("PendingTimes() = %v, want only the 1 s note", times)
	}
	if math.Abs(times[0]-1) > 1e-6 {
		t.Errorf("remaining event at %v s, want 1 s", times[0])
	}
}

func TestSeekStartsStraddledAudioClipMidWindow(t *testing.T) {
	cfg := testConfig()
	sr := cfg.SampleRate

	p := &model.Project{
		ID: "p5", BPM: 120, TimeSigNumerator: 4,
		Tracks: []model.Track{{ID: "t1", Name: "gtr", Type: model.TrackAudio, Volume: 1}},
		Clips: []model.Clip{
			{ID: "c1", TrackID: "t1", Type: model.TrackAudio, StartBar: 0, LengthBars: 2,
				ActiveTakeID: "take1"},
		},
	}

	e := New(cfg)
	defer e.Close()
	e.SetTakeSource(takeMap{"c1": flatWAVTake("take1", "c1", sr, 4*sr)})

	if err := e.ScheduleProject(context.Background(), p); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	// The clip spans 0-4 s; land in the middle of it.
	if err := e.Seek(context.Background(), 0.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	e.Play()
	out := pullOutput(e, 4*sr) // transport 1 s -> 5 s

	// Three seconds of window remain after the seek point.
	if peak := maxAbsIn(out, sr/10, sr/2); peak < 0.1 {
		t.Errorf("straddled clip silent right after seek: peak %v", peak)
	}
	if peak := maxAbsIn(out, 3*sr+sr/10, 4*sr); peak != 0 {
		t.Errorf("straddled clip still sounding past its window: peak %v", peak)
	}
}

func TestSeekPreservesRunningState(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	if err := e.Seek(context.Background(), 0.25); err != nil {
		t.Fatalf("Seek while paused: %v", err)
	}
	if e.Running() {
		t.Error("Seek started a paused transport")
	}

	e.Play()
	if err := e.Seek(context.Background(), 0); err != nil {
		t.Fatalf("Seek while running: %v", err)
	}
	if !e.Running() {
		t.Error("Seek paused a running transport")
	}
}

func TestSeekWithoutProjectErrors(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	if err := e.Seek(context.Background(), 1); err == nil {
		t.Error("Seek with no project scheduled returned nil error")
	}
}

func TestCountInClicksSoundWhileTransportHolds(t *testing.T) {
	cfg := testConfig()
	e := New(cfg)
	defer e.Close()

	if err := e.ScheduleProject(context.Background(), noteProject()); err != nil {
		t.Fatalf("ScheduleProject: %v", err)
	}

	length := e.ScheduleCountIn(1)
	if math.Abs(length-2) > 1e-9 {
		t.Errorf("ScheduleCountIn(1) = %v s at 120 BPM 4/4, want 2", length)
	}
	if got := e.WallScheduler().Pending(); got != 4 {
		t.Errorf("wall clock Pending() = %d, want 4 clicks", got)
	}

	// Transport stays paused: any audio in the output is the count-in.
	out := pullOutput(e, int(length*float64(cfg.SampleRate)))

	if peak := maxAbsIn(out, 0, len(out)); peak < 0.1 {
		t.Errorf("count-in inaudible: peak %v", peak)
	}
	if got := e.PositionSeconds(); got != 0 {
		t.Errorf("transport moved during count-in: %v", got)
	}
	if got := e.Scheduler().Pending(); got != 2 {
		t.Errorf("transport events fired during count-in: Pending() = %d, want 2", got)
	}
}
