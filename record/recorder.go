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

// Package record owns everything that pulls audio INTO a project: the
// capture state machine, the loopback latency calibrator and the recording
// session manager that turns a captured segment into a persisted clip+take.
//
// The capture device is reached only through audio.CaptureStream and
// Loopback, so every state machine in here runs against scripted fakes in
// tests.
package record

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"fourtrack/audio"
	"fourtrack/codec"
)

var (
	ErrRecorderActive = errors.New("record: recorder already active")
	ErrNotRecording   = errors.New("record: recorder is not active")
	ErrEmptyCapture   = errors.New("record: capture produced no samples")
)

// State is the recorder's position in its lifecycle. Pause/resume is
// reversible; Stop is terminal for the session.
type State int

const (
	StateInactive State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "inactive"
	}
}

// LoopRegion bounds a loop-record pass in transport seconds. On stop the
// captured audio is trimmed to this window and the segment's start time and
// duration are adjusted to the retained slice.
type LoopRegion struct {
	StartSec float64
	EndSec   float64
}

// Segment is one finished capture: a complete WAV payload plus the placement
// metadata the session manager needs to mint a clip from it.
type Segment struct {
	StartTime  float64
	Duration   float64
	SampleRate int
	Channels   int
	WAV        []byte
}

// Recorder drains a capture stream into memory and turns the result into a
// Segment. The stream is the microphone-access grant: it is handed over open
// at construction and held across recordings until Close.
//
// The true capture start is not the moment Start was called. The device
// begins delivering asynchronously, so the start is derived from the first
// buffer's arrival instant minus that buffer's duration.
type Recorder struct {
	stream   audio.CaptureStream
	edgeFade float64
	now      func() time.Time

	mu        sync.Mutex
	state     State
	samples   []float32
	loop      *LoopRegion
	startTime float64
	trueStart float64
	startWall time.Time
	gotFirst  bool
	stopping  bool
	readErr   error
	done      chan struct{}
}

// NewRecorder wraps an open capture stream. edgeFadeSeconds is the length of
// the equal-power fade applied to both ends of every finished capture,
// normally Config.EdgeFadeSeconds().
func NewRecorder(stream audio.CaptureStream, edgeFadeSeconds float64) *Recorder {
	return &Recorder{
		stream:   stream,
		edgeFade: edgeFadeSeconds,
		now:      time.Now,
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins capturing. startTime is the transport time the caller read
// back immediately before starting; the recorder refines it by the device's
// actual spin-up delay. loop is nil unless loop-record is enabled.
func (r *Recorder) Start(startTime float64, loop *LoopRegion) error {
	r.mu.Lock()
	if r.state != StateInactive {
		r.mu.Unlock()
		return ErrRecorderActive
	}

	r.state = StateRecording
	r.samples = nil
	r.loop = loop
	r.startTime = startTime
	r.trueStart = startTime
	r.gotFirst = false
	r.stopping = false
	r.readErr = nil
	r.done = make(chan struct{})
	r.startWall = r.now()
	r.mu.Unlock()

	if err := r.stream.Start(); err != nil {
		r.mu.Lock()
		r.state = StateInactive
		close(r.done)
		r.mu.Unlock()
		return fmt.Errorf("starting capture: %w", err)
	}

	go r.drain()

	slog.Info(fmt.Sprintf("recording started at %.3fs (%d Hz, %d ch)",
		startTime, r.stream.SampleRate(), r.stream.Channels()))

	return nil
}

// Pause keeps the device running but stops retaining its buffers, so the
// eventual segment splices straight across the gap.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		r.state = StatePaused
		slog.Info("recording paused")
	}
}

func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StatePaused {
		r.state = StateRecording
		slog.Info("recording resumed")
	}
}

// Stop ends the session and assembles the captured audio: loop trim if a
// region was set, equal-power edge fades, then re-encode into the WAV
// container regardless of what the device delivered.
func (r *Recorder) Stop() (*Segment, error) {
	r.mu.Lock()
	if r.state == StateInactive {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.stopping = true
	done := r.done
	r.mu.Unlock()

	// Stopping the stream unblocks the drain goroutine's pending Read.
	if err := r.stream.Stop(); err != nil {
		slog.Warn(fmt.Sprintf("stopping capture stream: %v", err))
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = StateInactive

	if r.readErr != nil {
		return nil, fmt.Errorf("capture failed: %w", r.readErr)
	}

	return r.buildSegmentLocked()
}

// Close releases the capture stream and with it the microphone grant.
func (r *Recorder) Close() error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state != StateInactive {
		if _, err := r.Stop(); err != nil && !errors.Is(err, ErrEmptyCapture) {
			slog.Warn(fmt.Sprintf("stopping recorder on close: %v", err))
		}
	}

	return r.stream.Close()
}

// drain pulls device buffers until Stop. The first arrival latches the true
// capture start; buffers delivered while paused are dropped.
func (r *Recorder) drain() {
	defer close(r.done)

	bufSeconds := float64(r.stream.BufferFrames()) / float64(r.stream.SampleRate())

	for {
		buf, err := r.stream.Read()

		r.mu.Lock()
		if r.stopping {
			r.mu.Unlock()
			return
		}

		if err != nil {
			r.readErr = err
			r.mu.Unlock()
			slog.Error(fmt.Sprintf("capture read failed: %v", err))
			return
		}

		if !r.gotFirst {
			r.gotFirst = true
			delay := r.now().Sub(r.startWall).Seconds() - bufSeconds
			if delay < 0 {
				delay = 0
			}
			r.trueStart = r.startTime + delay
		}

		if r.state == StateRecording {
			r.samples = append(r.samples, buf...)
		}
		r.mu.Unlock()
	}
}

func (r *Recorder) buildSegmentLocked() (*Segment, error) {
	samples := r.samples
	rate := r.stream.SampleRate()
	channels := r.stream.Channels()
	start := r.trueStart

	if len(samples) == 0 {
		return nil, ErrEmptyCapture
	}

	if r.loop != nil {
		samples, start = trimToLoop(samples, rate, channels, start, *r.loop)
		if len(samples) == 0 {
			return nil, fmt.Errorf("%w: nothing captured inside the loop region", ErrEmptyCapture)
		}
	}

	applyEdgeFades(samples, rate, channels, r.edgeFade)

	seg := &Segment{
		StartTime:  start,
		Duration:   float64(len(samples)/channels) / float64(rate),
		SampleRate: rate,
		Channels:   channels,
		WAV:        codec.EncodeWAV(codec.Float32ToPCM(samples), rate, channels),
	}

	slog.Info(fmt.Sprintf("recording stopped: %.3fs captured starting at %.3fs",
		seg.Duration, seg.StartTime))

	return seg, nil
}

// trimToLoop cuts the capture down to the loop window. Both the returned
// slice and the returned start time describe only the retained audio.
func trimToLoop(samples []float32, rate, channels int, start float64, loop LoopRegion) ([]float32, float64) {
	total := float64(len(samples)/channels) / float64(rate)

	fromSec := loop.StartSec - start
	if fromSec < 0 {
		fromSec = 0
	}

	toSec := loop.EndSec - start
	if toSec > total {
		toSec = total
	}

	if toSec <= fromSec {
		return nil, start
	}

	fromFrame := int(math.Round(fromSec * float64(rate)))
	toFrame := int(math.Round(toSec * float64(rate)))

	return samples[fromFrame*channels : toFrame*channels], start + float64(fromFrame)/float64(rate)
}

// applyEdgeFades shapes both ends of the capture with an equal-power curve
// so splice points never click.
func applyEdgeFades(samples []float32, rate, channels int, fadeSeconds float64) {
	frames := len(samples) / channels

	fadeFrames := int(math.Round(fadeSeconds * float64(rate)))
	if fadeFrames > frames/2 {
		fadeFrames = frames / 2
	}

	for f := 0; f < fadeFrames; f++ {
		gain := float32(math.Sin(float64(f) / float64(fadeFrames) * math.Pi / 2))

		for c := 0; c < channels; c++ {
			samples[f*channels+c] *= gain
			samples[(frames-1-f)*channels+c] *= gain
		}
	}
}
