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
package model

// Progress reports a fraction in [0, 1]. Long-running operations accept a
// nil-able Progress and guarantee a final call at 1.0 on success.
type Progress func(fraction float64)

// Report is a nil-safe invoke.
func (p Progress) Report(fraction float64) {
	if p != nil {
		p(fraction)
	}
}

// RecordingSession is runtime-only state: at most one exists at a time and
// it is never persisted.
type RecordingSession struct {
	TrackID    string
	StartBar   float64
	StartTime  float64
	Active     bool
	CountingIn bool
	LoopRecord bool
}

// LatencyCalibrationResult is the persisted outcome of a loopback
// calibration run. Success distinguishes "measured as zero" from "could not
// measure"; callers must never treat a failed run as zero latency.
type LatencyCalibrationResult struct {
	RoundTripMs float64   `json:"roundTripMs"`
	InputMs     float64   `json:"inputMs"`
	OutputMs    float64   `json:"outputMs"`
	TotalMs     float64   `json:"totalMs"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sampleCount"`
	SamplesMs   []float64 `json:"samplesMs,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}
