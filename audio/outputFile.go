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
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

// OutputBitDepth is the sample width of every exported WAV file.
const OutputBitDepth = 16

// OutputFile streams PCM to a WAV file on disk in buffered chunks: floats
// in, scaled integer samples out. The header is finalized on Close, so an
// abandoned file is invalid rather than silently short.
type OutputFile struct {
	FilePath     string
	FileHandle   *os.File
	Encoder      *wav.Encoder
	ChannelCount int
	BitDepth     int
	SampleRate   int
}

// CreateOutputFile opens path for writing and prepares a PCM WAV encoder on
// it.
func CreateOutputFile(path string, sampleRate int, channels int) (*OutputFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	return &OutputFile{
		FilePath:     path,
		FileHandle:   f,
		Encoder:      wav.NewEncoder(f, sampleRate, OutputBitDepth, channels, 1),
		ChannelCount: channels,
		BitDepth:     OutputBitDepth,
		SampleRate:   sampleRate,
	}, nil
}

// WriteFrames appends stereo frames. The file must have been created with
// two channels.
func (of *OutputFile) WriteFrames(frames [][2]float64) error {
	if of.ChannelCount != 2 {
		return fmt.Errorf("writing stereo frames to a %d-channel file", of.ChannelCount)
	}

	samples := make([]float32, len(frames)*2)
	for i, frame := range frames {
		samples[i*2] = float32(frame[0])
		samples[i*2+1] = float32(frame[1])
	}

	return of.WriteSamples(samples)
}

// WriteSamples appends interleaved float samples, scaling them to the output
// bit depth on the way through.
func (of *OutputFile) WriteSamples(samples []float32) error {
	fBuf := &audio.Float32Buffer{
		Data: samples,
		Format: &audio.Format{
			NumChannels: of.ChannelCount,
			SampleRate:  of.SampleRate,
		},
	}

	if err := transforms.PCMScaleF32(fBuf, of.BitDepth); err != nil {
		return fmt.Errorf("scaling samples: %w", err)
	}

	if err := of.Encoder.Write(fBuf.AsIntBuffer()); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}

	return nil
}

// Close finalizes the WAV header and releases the file handle.
func (of *OutputFile) Close() error {
	if of.Encoder != nil {
		if err := of.Encoder.Close(); err != nil {
			of.FileHandle.Close()
			return fmt.Errorf("finalizing output file: %w", err)
		}
	}

	if of.FileHandle != nil {
		if err := of.FileHandle.Close(); err != nil {
			return fmt.Errorf("closing output file: %w", err)
		}
	}

	return nil
}
