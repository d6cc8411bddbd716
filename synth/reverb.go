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
package synth

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/gopxl/beep"
	"github.com/mjibson/go-dsp/fft"
)

// reverbBlock is the partition size for the convolution. Processing walks
// the signal one block at a time, so FFT buffers are 2*reverbBlock wide.
const reverbBlock = 1024

// reverbNode convolves the signal with a generated impulse response: white
// noise under an exponential decay, the classic synthetic room. Generating
// and transforming the response is deferred work; Ready must complete
// before the node produces a wet signal, which matters in the offline
// rendering context where nothing else can yield while the graph runs.
//
// The wet path is mono (the dry signal keeps the stereo image); input
// blocks are folded to mono, convolved via overlap-add across the response
// partitions, and added equally to both channels.
type reverbNode struct {
	src beep.Streamer
	sr  int

	decay float64
	mix   float64

	prep    sync.Once
	prepErr error

	parts   [][]complex128 // FFT per impulse-response partition
	history [][]complex128 // ring of past input-block FFTs
	histIdx int

	inBlock  []complex128 // staging for the current input block FFT
	carry    []float64    // overlap tail carried into the next block
	outDry   [][2]float64
	outWet   []float64
	outPos   int
	outLen   int
}

func newReverb(sampleRate int, params map[string]float64) *reverbNode {
	decay := param(params, "decay", 1.6)
	if decay < 0.1 {
		decay = 0.1
	} else if decay > 8 {
		decay = 8
	}

	return &reverbNode{
		sr:      sampleRate,
		decay:   decay,
		mix:     clampUnit(param(params, "mix", 0.25)),
		inBlock: make([]complex128, 2*reverbBlock),
		carry:   make([]float64, reverbBlock),
		outDry:  make([][2]float64, reverbBlock),
		outWet:  make([]float64, reverbBlock),
	}
}

func (r *reverbNode) SetSource(s beep.Streamer) {
	r.src = s
}

// Ready generates the impulse response and precomputes the FFT of every
// partition. The generator is seeded deterministically so repeated offline
// renders of the same project are sample-identical.
func (r *reverbNode) Ready(ctx context.Context) error {
	r.prep.Do(func() {
		irLen := int(r.decay * float64(r.sr))
		if irLen < reverbBlock {
			irLen = reverbBlock
		}

		rng := rand.New(rand.NewSource(7))
		ir := make([]float64, irLen)

		var energy float64
		for i := range ir {
			t := float64(i) / float64(irLen)
			ir[i] = (rng.Float64()*2 - 1) * math.Exp(-6.9*t)
			energy += ir[i] * ir[i]
		}

		// normalize so the tail adds ambience without swamping the dry path
		scale := 0.5 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= scale
		}

		nParts := (irLen + reverbBlock - 1) / reverbBlock
		r.parts = make([][]complex128, 0, nParts)

		for p := 0; p < nParts; p++ {
			if err := ctx.Err(); err != nil {
				r.prepErr = err
				return
			}

			padded := make([]complex128, 2*reverbBlock)
			for i := 0; i < reverbBlock; i++ {
				if idx := p*reverbBlock + i; idx < irLen {
					padded[i] = complex(ir[idx], 0)
				}
			}

			r.parts = append(r.parts, fft.FFT(padded))
		}

		r.history = make([][]complex128, len(r.parts))
		for i := range r.history {
			r.history[i] = make([]complex128, 2*reverbBlock)
		}
	})

	return r.prepErr
}

func (r *reverbNode) Release() {
	for i := range r.carry {
		r.carry[i] = 0
	}

	for _, h := range r.history {
		for i := range h {
			h[i] = 0
		}
	}

	r.outLen, r.outPos = 0, 0
}

// processBlock pulls one partition worth of source audio, convolves it and
// refills the output staging buffers.
func (r *reverbNode) processBlock() {
	n, _ := r.src.Stream(r.outDry)
	for i := n; i < reverbBlock; i++ {
		r.outDry[i] = [2]float64{}
	}

	if r.parts == nil {
		// not prepared: pass the dry signal through untouched
		for i := range r.outWet {
			r.outWet[i] = 0
		}

		r.outLen, r.outPos = reverbBlock, 0
		return
	}

	for i := 0; i < reverbBlock; i++ {
		mono := (r.outDry[i][0] + r.outDry[i][1]) * 0.5
		r.inBlock[i] = complex(mono, 0)
		r.inBlock[i+reverbBlock] = 0
	}

	r.history[r.histIdx] = fft.FFT(r.inBlock)

	acc := make([]complex128, 2*reverbBlock)
	for k := range r.parts {
		past := r.history[(r.histIdx-k+len(r.history))%len(r.history)]
		part := r.parts[k]

		for i := range acc {
			acc[i] += part[i] * past[i]
		}
	}

	wet := fft.IFFT(acc)

	for i := 0; i < reverbBlock; i++ {
		r.outWet[i] = real(wet[i]) + r.carry[i]
		r.carry[i] = real(wet[i+reverbBlock])
	}

	r.histIdx = (r.histIdx + 1) % len(r.history)
	r.outLen, r.outPos = reverbBlock, 0
}

func (r *reverbNode) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if r.outPos >= r.outLen {
			r.processBlock()
		}

		dry := r.outDry[r.outPos]
		wet := r.outWet[r.outPos] * r.mix

		samples[i][0] = dry[0] + wet
		samples[i][1] = dry[1] + wet

		r.outPos++
	}

	return len(samples), true
}

func (r *reverbNode) Err() error {
	if r.src == nil {
		return nil
	}

	return r.src.Err()
}
