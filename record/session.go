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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fourtrack/engine"
	"fourtrack/model"
)

var (
	ErrNoActiveSession     = errors.New("record: no active recording session")
	ErrTransportNotRunning = errors.New("record: transport did not confirm running")
)

// ClipStore is the persistence surface the session manager writes through:
// the take is saved the moment it exists, then attached to its clip.
type ClipStore interface {
	SaveTakeImmediate(take *model.AudioTake) error
	AddClip(projectID string, clip *model.Clip) error
	UpdateClip(projectID string, clip *model.Clip) error
}

// SessionOptions describe one recording pass.
type SessionOptions struct {
	Project *model.Project
	TrackID string

	// StartBar positions a stopped transport before the count-in. A
	// running transport is never repositioned.
	StartBar float64

	// CountInBars of metronome clicks sound before the transport starts
	// and capture begins. Zero skips the count-in.
	CountInBars int

	// LoopRecord trims the finished capture to the loop region.
	LoopRecord   bool
	LoopStartBar float64
	LoopEndBar   float64

	// InputLatencyMs shifts the capture start earlier to compensate for
	// the measured input chain delay (calibration InputMs).
	InputLatencyMs float64
}

// SessionManager runs recording sessions end to end: count-in, transport
// start, capture, and turning the captured segment into a persisted clip and
// active take. At most one session is active at a time; starting a second is
// a no-op, since it almost always reflects a double key-press.
type SessionManager struct {
	eng   *engine.Engine
	rec   *Recorder
	store ClipStore

	sleep func(time.Duration)

	mu      sync.Mutex
	session *model.RecordingSession
	project *model.Project
}

func NewSessionManager(eng *engine.Engine, rec *Recorder, store ClipStore) *SessionManager {
	return &SessionManager{
		eng:   eng,
		rec:   rec,
		store: store,
		sleep: time.Sleep,
	}
}

// Active reports whether a session is in flight.
func (s *SessionManager) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.Active
}

// Session is a snapshot of the current session state; the zero value means
// no session has run yet.
func (s *SessionManager) Session() model.RecordingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return model.RecordingSession{}
	}

	return *s.session
}

// Start runs the pre-roll and begins capturing: optional count-in clicks,
// transport start if it is not already running, a short wait for the
// transport to confirm, then the recorder armed with the actual transport
// time as its start. The recorder is started last so the capture start is
// read from a transport that is really moving.
func (s *SessionManager) Start(ctx context.Context, opts SessionOptions) error {
	if opts.Project == nil {
		return errors.New("record: session needs a project")
	}
	if opts.Project.TrackByID(opts.TrackID) == nil {
		return fmt.Errorf("record: unknown track %q", opts.TrackID)
	}

	s.mu.Lock()
	if s.session != nil && s.session.Active {
		s.mu.Unlock()
		slog.Warn("recording session already active; ignoring start")
		return nil
	}

	sess := &model.RecordingSession{
		TrackID:    opts.TrackID,
		StartBar:   opts.StartBar,
		Active:     true,
		CountingIn: opts.CountInBars > 0,
		LoopRecord: opts.LoopRecord,
	}
	s.session = sess
	s.project = opts.Project
	s.mu.Unlock()

	if opts.StartBar > 0 && !s.eng.Running() {
		if err := s.eng.Seek(ctx, opts.StartBar); err != nil {
			s.clearSession()
			return fmt.Errorf("positioning transport: %w", err)
		}
	}

	if opts.CountInBars > 0 {
		wait := s.eng.ScheduleCountIn(opts.CountInBars)
		s.sleep(time.Duration(wait * float64(time.Second)))

		s.mu.Lock()
		sess.CountingIn = false
		s.mu.Unlock()
	}

	if !s.eng.Running() {
		s.eng.Play()
	}

	if err := s.waitRunning(); err != nil {
		s.clearSession()
		return err
	}

	start := s.eng.PositionSeconds() - opts.InputLatencyMs/1000
	if start < 0 {
		start = 0
	}

	var loop *LoopRegion
	if opts.LoopRecord {
		m := s.eng.Musical()
		loop = &LoopRegion{
			StartSec: m.BarsToSeconds(opts.LoopStartBar),
			EndSec:   m.BarsToSeconds(opts.LoopEndBar),
		}
	}

	if err := s.rec.Start(start, loop); err != nil {
		s.clearSession()
		return fmt.Errorf("starting recorder: %w", err)
	}

	s.mu.Lock()
	sess.StartTime = start
	s.mu.Unlock()

	return nil
}

// Stop ends the capture and persists its outcome: a new clip on the session
// track whose bar length is converted from the exact captured duration, plus
// a newly minted take saved immediately and attached as the clip's active
// take. Progress is reported as the capture drains and each piece persists,
// ending at 1 on success.
func (s *SessionManager) Stop(ctx context.Context, progress model.Progress) (*model.Clip, *model.AudioTake, error) {
	s.mu.Lock()
	sess := s.session
	project := s.project
	s.mu.Unlock()

	if sess == nil || !sess.Active {
		return nil, nil, ErrNoActiveSession
	}

	defer s.clearSession()

	seg, err := s.rec.Stop()
	if err != nil {
		return nil, nil, fmt.Errorf("finishing capture: %w", err)
	}
	progress.Report(0.25)

	m := s.eng.Musical()

	clip := &model.Clip{
		ID:         model.NewID(),
		TrackID:    sess.TrackID,
		Type:       model.TrackAudio,
		Name:       "Take " + time.Now().Format("15:04:05"),
		StartBar:   m.SecondsToBars(seg.StartTime),
		LengthBars: m.SecondsToBars(seg.Duration),
	}

	if err := s.store.AddClip(project.ID, clip); err != nil {
		return nil, nil, fmt.Errorf("saving clip: %w", err)
	}
	progress.Report(0.5)

	take := &model.AudioTake{
		ID:              model.NewID(),
		ClipID:          clip.ID,
		SampleRate:      seg.SampleRate,
		Channels:        seg.Channels,
		DurationSeconds: seg.Duration,
		CreatedAt:       time.Now(),
		PCM:             seg.WAV,
	}

	if err := s.store.SaveTakeImmediate(take); err != nil {
		return nil, nil, fmt.Errorf("saving take: %w", err)
	}
	progress.Report(0.75)

	clip.ActiveTakeID = take.ID
	if err := s.store.UpdateClip(project.ID, clip); err != nil {
		return nil, nil, fmt.Errorf("attaching take to clip: %w", err)
	}
	progress.Report(1)

	slog.Info(fmt.Sprintf("recorded clip %s: %.2f bars starting at bar %.2f",
		clip.ID, clip.LengthBars, clip.StartBar))

	return clip, take, nil
}

// Pause and Resume forward to the recorder without ending the session.
func (s *SessionManager) Pause()  { s.rec.Pause() }
func (s *SessionManager) Resume() { s.rec.Resume() }

func (s *SessionManager) clearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Active = false
		s.session.CountingIn = false
	}
}

// waitRunning polls briefly for the transport to confirm it is moving.
func (s *SessionManager) waitRunning() error {
	for i := 0; i < 50; i++ {
		if s.eng.Running() {
			return nil
		}
		s.sleep(10 * time.Millisecond)
	}

	return ErrTransportNotRunning
}
