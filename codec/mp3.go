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
package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"fourtrack/model"
)

var (
	ErrBadBitrate = errors.New("codec: bitrate must be 128, 192 or 320 kbps")

	// progress fires every progressEvery chunks so multi-second encodes
	// stay observable without flooding the callback.
	progressEvery = 100
)

// mp3FrameSamples is the number of PCM frames in one MPEG-1 layer III
// frame; stdin feeds are sized to it so the encoder sees whole frames.
const mp3FrameSamples = 1152

// MP3Options configures a compressed export.
type MP3Options struct {
	// BitrateKbps must be one of 128, 192 or 320. Zero selects 192.
	BitrateKbps int

	// FfmpegPath is the resolved encoder binary. Empty means "ffmpeg" on
	// the PATH.
	FfmpegPath string

	// ChunkFrames overrides the per-write frame count. Zero selects one
	// MPEG frame (1152).
	ChunkFrames int

	Progress model.Progress
}

func (o *MP3Options) bitrate() (int, error) {
	switch o.BitrateKbps {
	case 0:
		return 192, nil
	case 128, 192, 320:
		return o.BitrateKbps, nil
	}

	return 0, fmt.Errorf("%w: got %d", ErrBadBitrate, o.BitrateKbps)
}

// EncodeMP3 streams interleaved 16-bit PCM through an ffmpeg libmp3lame
// encoder into w. The PCM is fed to the encoder stdin in frame-sized chunks
// while a second goroutine drains the encoded stream, so memory stays flat
// regardless of project length. Progress is reported every ~100 chunks and
// once more at 1.0 after the encoder exits cleanly.
func EncodeMP3(ctx context.Context, pcm []int16, sampleRate int, channels int, w io.Writer, opts MP3Options) error {
	kbps, err := opts.bitrate()
	if err != nil {
		return err
	}

	ffmpeg := opts.FfmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	chunkFrames := opts.ChunkFrames
	if chunkFrames <= 0 {
		chunkFrames = mp3FrameSamples
	}

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", kbps),
		"-f", "mp3",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("codec: encoder stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("codec: encoder stdout: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("codec: start %s: %w", ffmpeg, err)
	}

	drained := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(w, stdout)
		drained <- copyErr
	}()

	chunkSamples := chunkFrames * channels
	totalChunks := (len(pcm) + chunkSamples - 1) / chunkSamples
	chunkBytes := make([]byte, chunkSamples*2)

	feedErr := func() error {
		for chunk := 0; chunk < totalChunks; chunk++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			lo := chunk * chunkSamples
			hi := lo + chunkSamples
			if hi > len(pcm) {
				hi = len(pcm)
			}

			n := 0
			for _, s := range pcm[lo:hi] {
				binary.LittleEndian.PutUint16(chunkBytes[n:], uint16(s))
				n += 2
			}

			if _, err := stdin.Write(chunkBytes[:n]); err != nil {
				return fmt.Errorf("codec: feed encoder: %w", err)
			}

			if chunk%progressEvery == 0 {
				opts.Progress.Report(float64(chunk) / float64(totalChunks))
			}
		}

		return nil
	}()

	// the encoder only flushes its last frames once stdin closes
	stdin.Close()

	copyErr := <-drained

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("codec: %s: %w (%s)", ffmpeg, err, bytes.TrimSpace(stderr.Bytes()))
	}

	if feedErr != nil {
		return feedErr
	}

	if copyErr != nil {
		return fmt.Errorf("codec: drain encoder: %w", copyErr)
	}

	opts.Progress.Report(1.0)

	return nil
}
