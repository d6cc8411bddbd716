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

// Package audio is the device edge: PortAudio capture and duplex sessions,
// speaker playback of the engine output, and the buffered WAV disk writer.
// Everything above this package is device-free; tests swap these types for
// fakes.
package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// ErrMicAccessDenied wraps input-device open failures. On the desktop the
// dominant cause is a missing microphone permission grant.
var ErrMicAccessDenied = errors.New("audio: microphone access denied")

// Init brings up the PortAudio host layer. Call once at process start and
// pair with Terminate.
func Init() error {
	slog.Debug("initializing audio host layer")

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing audio host: %w", err)
	}

	return nil
}

// Terminate tears the host layer down. Safe to call once after a successful
// Init, even with streams already closed.
func Terminate() {
	if err := portaudio.Terminate(); err != nil {
		slog.Error(fmt.Sprintf("failed to terminate audio host: %v", err))
	}
}
