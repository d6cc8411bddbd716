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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"fourtrack/model"
)

var (
	ErrCalibrationBusy      = errors.New("record: calibration already in progress")
	ErrNoCalibrationSamples = errors.New("record: no valid latency samples")
)

const (
	// pulseTimeoutMs caps the wait for one pulse to come back; the
	// configured margin is added on top.
	pulseTimeoutMs = 500

	// levelPoll is how often the input level is sampled while waiting.
	levelPoll = time.Millisecond
)

// Loopback is the calibration device surface: emit a tone pulse out the
// speaker, watch the microphone's current peak level. audio.Duplex is the
// production implementation.
type Loopback interface {
	EmitPulse() error
	Level() float64
}

// Calibrator measures round-trip audio latency by timing tone pulses through
// a physical loopback. Input and output latency are each reported as half
// the filtered round-trip mean; no independent one-way measurement is
// possible with loopback alone, and downstream recording offsets depend on
// exactly this split.
type Calibrator struct {
	loop Loopback
	opts model.CalibrationOptions

	now   func() time.Time
	sleep func(time.Duration)

	mu   sync.Mutex
	busy bool
}

// NewCalibrator builds a calibrator over a loopback device. Zero option
// fields fall back to the config defaults.
func NewCalibrator(loop Loopback, opts *model.CalibrationOptions) *Calibrator {
	normalized := *model.DefaultConfig().Calibration
	if opts != nil {
		if opts.Pulses > 0 {
			normalized.Pulses = opts.Pulses
		}
		if opts.PulseIntervalMs > 0 {
			normalized.PulseIntervalMs = opts.PulseIntervalMs
		}
		if opts.Threshold > 0 {
			normalized.Threshold = opts.Threshold
		}
		if opts.TimeoutMarginMs > 0 {
			normalized.TimeoutMarginMs = opts.TimeoutMarginMs
		}
	}

	return &Calibrator{
		loop:  loop,
		opts:  normalized,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Run performs one full calibration pass and reports per-pulse progress. A
// run that collects zero valid samples is a failed result, never a
// zero-latency one. Only one run may be in flight; a concurrent call fails
// with ErrCalibrationBusy.
func (c *Calibrator) Run(progress model.Progress) (*model.LatencyCalibrationResult, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrCalibrationBusy
	}
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	timeout := time.Duration(pulseTimeoutMs+c.opts.TimeoutMarginMs) * time.Millisecond
	samples := make([]float64, 0, c.opts.Pulses)

	for i := 0; i < c.opts.Pulses; i++ {
		if i > 0 {
			c.sleep(time.Duration(c.opts.PulseIntervalMs) * time.Millisecond)
		}

		ms, ok := c.measureOnce(timeout)
		if ok {
			samples = append(samples, ms)
			slog.Debug(fmt.Sprintf("latency pulse %d/%d: %.1fms", i+1, c.opts.Pulses, ms))
		} else {
			slog.Warn(fmt.Sprintf("latency pulse %d/%d: timed out", i+1, c.opts.Pulses))
		}

		progress.Report(float64(i+1) / float64(c.opts.Pulses))
	}

	result := summarize(samples, c.opts.Pulses)

	if result.Success {
		slog.Info(fmt.Sprintf("latency calibration: %.1fms round trip over %d samples, confidence %.2f",
			result.RoundTripMs, result.SampleCount, result.Confidence))
	} else {
		slog.Warn("latency calibration failed: " + result.Error)
	}

	return result, nil
}

// measureOnce emits one pulse and polls the input until it crosses the
// threshold or the timeout lapses.
func (c *Calibrator) measureOnce(timeout time.Duration) (float64, bool) {
	if err := c.loop.EmitPulse(); err != nil {
		slog.Warn(fmt.Sprintf("emitting calibration pulse: %v", err))
		return 0, false
	}

	begin := c.now()
	deadline := begin.Add(timeout)

	for c.now().Before(deadline) {
		if c.loop.Level() >= c.opts.Threshold {
			return c.now().Sub(begin).Seconds() * 1000, true
		}
		c.sleep(levelPoll)
	}

	return 0, false
}

// ManualResult wraps a user-supplied round-trip figure in the same result
// shape a measured run produces, bypassing measurement entirely.
func ManualResult(totalMs float64) *model.LatencyCalibrationResult {
	return &model.LatencyCalibrationResult{
		RoundTripMs: totalMs,
		InputMs:     totalMs / 2,
		OutputMs:    totalMs / 2,
		TotalMs:     totalMs,
		Confidence:  1,
		SampleCount: 0,
		Success:     true,
	}
}

// summarize turns raw round-trip samples into the persisted result: outliers
// discarded, mean and deviation recomputed from what remains, confidence
// blended from sample sufficiency and consistency.
func summarize(samples []float64, wanted int) *model.LatencyCalibrationResult {
	if len(samples) == 0 {
		return &model.LatencyCalibrationResult{
			Success: false,
			Error:   ErrNoCalibrationSamples.Error(),
		}
	}

	kept := filterOutliers(samples)
	mean, dev := meanStddev(kept)

	sufficiency := float64(len(kept)) / float64(wanted)
	if sufficiency > 1 {
		sufficiency = 1
	}

	consistency := 0.0
	switch {
	case mean > 0:
		consistency = 1 - dev/mean
		if consistency < 0 {
			consistency = 0
		}
	case dev == 0:
		consistency = 1
	}

	confidence := 0.5*sufficiency + 0.5*consistency
	confidence = math.Max(0, math.Min(1, confidence))

	return &model.LatencyCalibrationResult{
		RoundTripMs: mean,
		InputMs:     mean / 2,
		OutputMs:    mean / 2,
		TotalMs:     mean,
		Confidence:  confidence,
		SampleCount: len(kept),
		SamplesMs:   kept,
		Success:     true,
	}
}

// filterOutliers drops samples lying more than two standard deviations out.
// Each candidate is compared against the mean and deviation of the OTHER
// samples: a single wild outlier inflates the global deviation enough to
// hide itself behind the 2-sigma fence, so the fence is built without it.
func filterOutliers(samples []float64) []float64 {
	if len(samples) < 3 {
		return samples
	}

	kept := make([]float64, 0, len(samples))
	rest := make([]float64, 0, len(samples)-1)

	for i, s := range samples {
		rest = rest[:0]
		for j, other := range samples {
			if j != i {
				rest = append(rest, other)
			}
		}

		mean, dev := meanStddev(rest)
		if math.Abs(s-mean) <= 2*dev {
			kept = append(kept, s)
		}
	}

	if len(kept) == 0 {
		return samples
	}

	return kept
}

func meanStddev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	sq := 0.0
	for _, s := range samples {
		sq += (s - mean) * (s - mean)
	}

	return mean, math.Sqrt(sq / float64(len(samples)))
}
