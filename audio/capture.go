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

	"github.com/gordonklaus/portaudio"
)

// CaptureStream is one live input session. Read blocks until the device
// delivers a buffer and returns interleaved float32 samples the caller owns.
// The recorder drains it on a goroutine; tests feed scripted buffers through
// the same interface.
type CaptureStream interface {
	Start() error
	Read() ([]float32, error)
	Stop() error
	Close() error
	SampleRate() int
	Channels() int
	BufferFrames() int
}

type captureStream struct {
	stream   *portaudio.Stream
	buf      []float32
	rate     int
	channels int
	frames   int
}

// OpenCapture opens the default input device. A failure here is surfaced as
// ErrMicAccessDenied: the grant (or its absence) is held by this stream
// until Close.
func OpenCapture(sampleRate int, channels int, bufferFrames int) (CaptureStream, error) {
	if channels < 1 {
		channels = 1
	}
	if bufferFrames <= 0 {
		bufferFrames = 512
	}

	c := &captureStream{
		buf:      make([]float32, bufferFrames*channels),
		rate:     sampleRate,
		channels: channels,
		frames:   bufferFrames,
	}

	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), bufferFrames, c.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: opening default input: %v", ErrMicAccessDenied, err)
	}
	c.stream = stream

	slog.Debug(fmt.Sprintf("opened capture stream: %d Hz, %d ch, %d frames/buffer",
		sampleRate, channels, bufferFrames))

	return c, nil
}

func (c *captureStream) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("starting capture stream: %w", err)
	}
	return nil
}

// Read blocks for one device buffer and returns a copy; the internal buffer
// is reused on the next call.
func (c *captureStream) Read() ([]float32, error) {
	if err := c.stream.Read(); err != nil {
		return nil, fmt.Errorf("reading capture stream: %w", err)
	}

	out := make([]float32, len(c.buf))
	copy(out, c.buf)
	return out, nil
}

func (c *captureStream) Stop() error {
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("stopping capture stream: %w", err)
	}
	return nil
}

func (c *captureStream) Close() error {
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("closing capture stream: %w", err)
	}
	return nil
}

func (c *captureStream) SampleRate() int {
	return c.rate
}

func (c *captureStream) Channels() int {
	return c.channels
}

func (c *captureStream) BufferFrames() int {
	return c.frames
}
