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
package record

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"fourtrack/codec"
	"fourtrack/engine"
	"fourtrack/model"
)

func sessionConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.SampleRate = 8000
	cfg.BufferFrames = 256
	cfg.TailSeconds = 0.5
	return cfg
}

func sessionProject() *model.Project {
	return &model.Project{
		ID:                 "p1",
		Name:               "session test",
		BPM:                120,
		TimeSigNumerator:   4,
		TimeSigDenominator: 4,
		Tracks: []model.Track{
			{ID: "t1", Name: "vox", Type: model.TrackAudio, Volume: 1},
		},
	}
}

// fakeClipStore snapshots every write so tests can assert on the order the
// session manager persisted things in.
type fakeClipStore struct {
	mu      sync.Mutex
	takes   []*model.AudioTake
	added   []*model.Clip
	updated []*model.Clip
}

func (f *fakeClipStore) SaveTakeImmediate(take *model.AudioTake) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *take
	f.takes = append(f.takes, &copied)
	return nil
}

func (f *fakeClipStore) AddClip(projectID string, clip *model.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *clip
	f.added = append(f.added, &copied)
	return nil
}

func (f *fakeClipStore) UpdateClip(projectID string, clip *model.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *clip
	f.updated = append(f.updated, &copied)
	return nil
}

func (f *fakeClipStore) counts() (takes, added, updated int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.takes), len(f.added), len(f.updated)
}

func newTestSession(t *testing.T, script [][]float32) (*SessionManager, *scriptCapture, *fakeClipStore, *engine.Engine) {
	t.Helper()

	eng := engine.New(sessionConfig())
	t.Cleanup(eng.Close)

	fake := newScriptCapture(8000, 1, 80, script)
	store := &fakeClipStore{}

	rec := NewRecorder(fake, 0.008)
	rec.now = func() time.Time { return time.Unix(200, 0) }

	mgr := NewSessionManager(eng, rec, store)
	mgr.sleep = func(time.Duration) {}

	return mgr, fake, store, eng
}

func TestSessionRecordsExactDurationClip(t *testing.T) {
	// 2.37 s of capture at 8 kHz: 18960 frames.
	mgr, fake, store, eng := newTestSession(t, [][]float32{
		flatBuf(8000, 0.2),
		flatBuf(8000, 0.2),
		flatBuf(2960, 0.2),
	})

	if err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "t1"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !mgr.Active() {
		t.Fatal("session not active after Start")
	}
	if !eng.Running() {
		t.Fatal("transport not running after Start")
	}

	<-fake.drained
	var reports []float64
	clip, take, err := mgr.Stop(context.Background(), func(f float64) { reports = append(reports, f) })
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if math.Abs(take.DurationSeconds-2.37) > 1e-12 {
		t.Fatalf("take duration = %v, want exactly 2.37", take.DurationSeconds)
	}

	// The clip's bar length converts back to the captured duration within
	// one frame; it is never rounded up to a whole bar.
	m := eng.Musical()
	if back := m.BarsToSeconds(clip.LengthBars); math.Abs(back-2.37) > 1.0/8000 {
		t.Fatalf("clip length %v bars converts back to %vs, want 2.37s", clip.LengthBars, back)
	}
	if math.Abs(clip.LengthBars-1.185) > 1e-9 {
		t.Fatalf("clip length = %v bars, want 1.185 (2.37s at 120 BPM 4/4)", clip.LengthBars)
	}

	takes, added, updated := store.counts()
	if takes != 1 || added != 1 || updated != 1 {
		t.Fatalf("store writes = %d takes / %d adds / %d updates, want 1 each", takes, added, updated)
	}

	if len(reports) == 0 || reports[len(reports)-1] != 1 {
		t.Fatalf("persistence progress %v does not end at 1", reports)
	}

	// The clip is added before its take exists and updated with the take
	// attached afterwards.
	if store.added[0].ActiveTakeID != "" {
		t.Fatalf("clip added with ActiveTakeID %q, want empty", store.added[0].ActiveTakeID)
	}
	if store.updated[0].ActiveTakeID != take.ID {
		t.Fatalf("updated clip ActiveTakeID = %q, want %q", store.updated[0].ActiveTakeID, take.ID)
	}
	if take.ClipID != clip.ID {
		t.Fatalf("take.ClipID = %q, want %q", take.ClipID, clip.ID)
	}

	dec, err := codec.DecodeWAV(take.PCM)
	if err != nil {
		t.Fatalf("decoding persisted take: %v", err)
	}
	if dec.Frames() != 18960 {
		t.Fatalf("persisted take has %d frames, want 18960", dec.Frames())
	}

	if mgr.Active() {
		t.Fatal("session still active after Stop")
	}
}

func TestSessionSecondStartIsNoOp(t *testing.T) {
	mgr, fake, store, _ := newTestSession(t, [][]float32{flatBuf(80, 0.5)})

	if err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "t1"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Likely a double key-press: ignored, not an error.
	if err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "t1"}); err != nil {
		t.Fatalf("second Start() error = %v, want nil no-op", err)
	}

	fake.mu.Lock()
	startN := fake.startN
	fake.mu.Unlock()
	if startN != 1 {
		t.Fatalf("capture stream started %d times, want 1", startN)
	}

	<-fake.drained
	if _, _, err := mgr.Stop(context.Background(), nil); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	takes, added, updated := store.counts()
	if takes != 1 || added != 1 || updated != 1 {
		t.Fatalf("store writes = %d/%d/%d after double start, want 1 each", takes, added, updated)
	}
}

func TestSessionStopWithoutStart(t *testing.T) {
	mgr, _, _, _ := newTestSession(t, nil)

	if _, _, err := mgr.Stop(context.Background(), nil); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Stop() error = %v, want ErrNoActiveSession", err)
	}
}

func TestSessionCountInPrecedesCapture(t *testing.T) {
	mgr, fake, _, eng := newTestSession(t, [][]float32{flatBuf(80, 0.5)})

	var sawCountIn bool
	var countInWait time.Duration
	mgr.sleep = func(d time.Duration) {
		if d >= time.Second {
			countInWait = d
			sawCountIn = mgr.Session().CountingIn
		}
	}

	err := mgr.Start(context.Background(), SessionOptions{
		Project:     sessionProject(),
		TrackID:     "t1",
		CountInBars: 1,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !sawCountIn {
		t.Fatal("CountingIn flag not visible during the count-in wait")
	}
	if countInWait != 2*time.Second {
		t.Fatalf("count-in wait = %v, want 2s (one 4/4 bar at 120 BPM)", countInWait)
	}
	if mgr.Session().CountingIn {
		t.Fatal("CountingIn still set after Start returned")
	}

	// One bar of 4/4 schedules four clicks on the wall clock.
	if pending := eng.WallScheduler().Pending(); pending != 4 {
		t.Fatalf("wall clock has %d pending events after count-in, want 4", pending)
	}

	<-fake.drained
	if _, _, err := mgr.Stop(context.Background(), nil); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestSessionCompensatesInputLatency(t *testing.T) {
	mgr, fake, _, eng := newTestSession(t, [][]float32{flatBuf(8000, 0.3)})

	// Run the transport forward one second before the session starts.
	eng.Play()
	buf := make([][2]float64, 8000)
	eng.Output().Stream(buf)

	if pos := eng.PositionSeconds(); math.Abs(pos-1.0) > 1e-9 {
		t.Fatalf("PositionSeconds() = %v after pulling 1s, want 1.0", pos)
	}

	err := mgr.Start(context.Background(), SessionOptions{
		Project:        sessionProject(),
		TrackID:        "t1",
		InputLatencyMs: 50,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if st := mgr.Session().StartTime; math.Abs(st-0.95) > 1e-9 {
		t.Fatalf("session StartTime = %v, want 0.95 (1.0s minus 50ms input latency)", st)
	}

	<-fake.drained
	clip, _, err := mgr.Stop(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if math.Abs(clip.StartBar-0.475) > 1e-9 {
		t.Fatalf("clip StartBar = %v, want 0.475 (0.95s at 120 BPM 4/4)", clip.StartBar)
	}
}

func TestSessionLoopRecordTrimsToRegion(t *testing.T) {
	mgr, fake, _, _ := newTestSession(t, [][]float32{
		flatBuf(8000, 0.2),
		flatBuf(8000, 0.2),
		flatBuf(8000, 0.2),
	})

	err := mgr.Start(context.Background(), SessionOptions{
		Project:      sessionProject(),
		TrackID:      "t1",
		LoopRecord:   true,
		LoopStartBar: 0,
		LoopEndBar:   1,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	<-fake.drained
	clip, take, err := mgr.Stop(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if clip.StartBar != 0 {
		t.Fatalf("clip StartBar = %v, want 0", clip.StartBar)
	}
	if math.Abs(clip.LengthBars-1.0) > 1e-9 {
		t.Fatalf("clip length = %v bars, want 1.0 (trimmed to the loop region)", clip.LengthBars)
	}
	if math.Abs(take.DurationSeconds-2.0) > 1e-9 {
		t.Fatalf("take duration = %v, want 2.0 (one 4/4 bar at 120 BPM)", take.DurationSeconds)
	}
}

func TestSessionRejectsUnknownTrack(t *testing.T) {
	mgr, _, store, _ := newTestSession(t, nil)

	err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "nope"})
	if err == nil {
		t.Fatal("Start() with unknown track succeeded")
	}
	if mgr.Active() {
		t.Fatal("session active after rejected Start")
	}

	takes, added, updated := store.counts()
	if takes+added+updated != 0 {
		t.Fatal("store written despite rejected Start")
	}
}

func TestSessionEmptyCaptureClearsSession(t *testing.T) {
	mgr, _, store, _ := newTestSession(t, nil)

	if err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "t1"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	_, _, err := mgr.Stop(context.Background(), nil)
	if !errors.Is(err, ErrEmptyCapture) {
		t.Fatalf("Stop() error = %v, want ErrEmptyCapture", err)
	}

	if mgr.Active() {
		t.Fatal("session still active after failed Stop")
	}

	takes, added, updated := store.counts()
	if takes+added+updated != 0 {
		t.Fatal("store written despite empty capture")
	}

	// The failed session does not wedge the manager.
	if err := mgr.Start(context.Background(), SessionOptions{Project: sessionProject(), TrackID: "t1"}); err != nil {
		t.Fatalf("Start() after failed session error: %v", err)
	}
	if _, _, err := mgr.Stop(context.Background(), nil); !errors.Is(err, ErrEmptyCapture) {
		t.Fatalf("cleanup Stop() error = %v, want ErrEmptyCapture", err)
	}
}
