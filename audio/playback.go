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
package audio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Playback is the live output session: the speaker pulls the given streamer
// until Close. There is one speaker per process; opening a second Playback
// before closing the first re-initializes the device.
type Playback struct {
	sampleRate beep.SampleRate
}

// StartPlayback initializes the speaker at the engine rate and starts
// pulling src. bufferFrames sets the device buffer; values under 10 ms are
// raised to 10 ms to keep the pull goroutine ahead of the device.
func StartPlayback(sampleRate int, bufferFrames int, src beep.Streamer) (*Playback, error) {
	sr := beep.SampleRate(sampleRate)

	minFrames := sr.N(10 * time.Millisecond)
	if bufferFrames < minFrames {
		bufferFrames = minFrames
	}

	if err := speaker.Init(sr, bufferFrames); err != nil {
		return nil, fmt.Errorf("initializing speaker: %w", err)
	}

	slog.Debug(fmt.Sprintf("speaker running at %d Hz, %d frames/buffer", sampleRate, bufferFrames))
	speaker.Play(src)

	return &Playback{sampleRate: sr}, nil
}

// Close detaches every playing streamer and shuts the device down.
func (p *Playback) Close() {
	speaker.Clear()
	speaker.Close()
}
