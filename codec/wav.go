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

// Package codec reads and writes the audio byte formats the engine exchanges
// with the outside world: the self-describing RIFF/WAVE container used for
// take payloads and uncompressed export, MP3 for compressed export, and
// ffmpeg-assisted decoding for foreign formats.
//
// The WAV writer here is deliberately hand-rolled: take payloads live in
// memory and the 44-byte header must be byte-identical for identical
// (channels, sampleRate, frameCount) inputs. File-sized WAV output goes
// through go-audio instead (see the audio package).
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderSize is the fixed size of the canonical RIFF/WAVE header this
	// package produces: RIFF chunk + fmt subchunk + data subchunk header.
	HeaderSize = 44

	// BitDepth is the only sample width the container carries.
	BitDepth = 16

	pcmFormatTag = 1
	bytesPerSamp = BitDepth / 8
)

var (
	ErrNotWAV            = errors.New("codec: not a RIFF/WAVE stream")
	ErrTruncated         = errors.New("codec: truncated WAV stream")
	ErrUnsupportedFormat = errors.New("codec: unsupported WAV encoding")
)

// Header returns the canonical 44-byte RIFF/WAVE header for a 16-bit PCM
// stream. The layout is fixed: RIFF id, chunk size, WAVE id, "fmt " subchunk
// (PCM tag, channels, sample rate, byte rate, block align, bit depth) and
// the "data" subchunk header.
func Header(channels int, sampleRate int, frameCount int) []byte {
	dataSize := uint32(frameCount * channels * bytesPerSamp)
	byteRate := uint32(sampleRate * channels * bytesPerSamp)
	blockAlign := uint16(channels * bytesPerSamp)

	h := make([]byte, HeaderSize)

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], BitDepth)

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)

	return h
}

// EncodeWAV wraps interleaved 16-bit samples in a complete WAV container.
func EncodeWAV(pcm []int16, sampleRate int, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}

	frames := len(pcm) / channels
	out := make([]byte, HeaderSize+len(pcm)*bytesPerSamp)
	copy(out, Header(channels, sampleRate, frames))

	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[HeaderSize+i*2:], uint16(s))
	}

	return out
}

// Decoded is a fully parsed PCM stream.
type Decoded struct {
	PCM        []int16
	SampleRate int
	Channels   int
}

func (d *Decoded) Frames() int {
	if d.Channels == 0 {
		return 0
	}

	return len(d.PCM) / d.Channels
}

func (d *Decoded) Duration() float64 {
	if d.SampleRate == 0 {
		return 0
	}

	return float64(d.Frames()) / float64(d.SampleRate)
}

// Stereo expands the stream to two channels of float64 in [-1, 1]. Mono is
// duplicated to both sides; streams wider than stereo keep their first two
// channels.
func (d *Decoded) Stereo() [][2]float64 {
	frames := d.Frames()
	out := make([][2]float64, frames)

	for f := 0; f < frames; f++ {
		l := float64(d.PCM[f*d.Channels]) / math.MaxInt16
		r := l

		if d.Channels > 1 {
			r = float64(d.PCM[f*d.Channels+1]) / math.MaxInt16
		}

		out[f] = [2]float64{l, r}
	}

	return out
}

// DecodeWAV parses a WAV container into PCM. Only 16-bit PCM data is
// supported; anything else is a decode error so the caller can skip the
// affected clip. Unknown chunks (LIST, peak caches and the like) are
// skipped, since takes that round-trip through other tools pick those up.
func DecodeWAV(data []byte) (*Decoded, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		dec      Decoded
		sawFmt   bool
		sawData  bool
		dataBody []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		if body+size > len(data) {
			return nil, ErrTruncated
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrTruncated
			}

			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])

			if format != pcmFormatTag || bits != BitDepth {
				return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, format, bits)
			}

			dec.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			dec.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			sawFmt = true

		case "data":
			dataBody = data[body : body+size]
			sawData = true
		}

		// chunk bodies are padded to even length
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !sawFmt || !sawData {
		return nil, ErrTruncated
	}

	if dec.Channels <= 0 || dec.SampleRate <= 0 {
		return nil, ErrUnsupportedFormat
	}

	dec.PCM = make([]int16, len(dataBody)/2)
	for i := range dec.PCM {
		dec.PCM[i] = int16(binary.LittleEndian.Uint16(dataBody[i*2:]))
	}

	return &dec, nil
}

// FloatToInt16 converts one float sample in [-1, 1] to 16-bit, clamping
// anything outside the legal range.
func FloatToInt16(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}

	return int16(math.Round(s * (math.MaxInt16 - 1)))
}

// Float32ToPCM converts a float32 stream to interleaved 16-bit samples.
func Float32ToPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))

	for i, s := range samples {
		out[i] = FloatToInt16(float64(s))
	}

	return out
}

// StereoToPCM interleaves stereo float frames into 16-bit samples.
func StereoToPCM(frames [][2]float64) []int16 {
	out := make([]int16, len(frames)*2)

	for i, f := range frames {
		out[i*2] = FloatToInt16(f[0])
		out[i*2+1] = FloatToInt16(f[1])
	}

	return out
}
