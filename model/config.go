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

type CommandLineArgs struct {
	ConfigFile   string
	DatabasePath string
	LogLevel     string
}

type Config struct {
	SampleRate     int     `yaml:"sample_rate,omitempty"`
	BufferFrames   int     `yaml:"buffer_frames,omitempty"`
	RampMs         float64 `yaml:"ramp_ms,omitempty"`
	EdgeFadeMs     float64 `yaml:"edge_fade_ms,omitempty"`
	CountInBars    int     `yaml:"count_in_bars,omitempty"`
	TailSeconds    float64 `yaml:"tail_seconds,omitempty"`
	AssetDirectory string  `yaml:"asset_directory,omitempty"`
	DatabasePath   string  `yaml:"database_path,omitempty"`
	FfmpegBinary   string  `yaml:"ffmpeg_binary,omitempty"`
	LogLevel       string  `yaml:"log_level,omitempty"`

	Calibration *CalibrationOptions `yaml:"calibration"`
}

type CalibrationOptions struct {
	Pulses          int     `yaml:"pulses,omitempty"`
	PulseIntervalMs int     `yaml:"pulse_interval_ms,omitempty"`
	Threshold       float64 `yaml:"threshold,omitempty"`
	TimeoutMarginMs int     `yaml:"timeout_margin_ms,omitempty"`
}

// DefaultConfig is the baseline every config file is merged over, so a
// missing or partial file still yields a usable engine.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:     44100,
		BufferFrames:   512,
		RampMs:         30,
		EdgeFadeMs:     8,
		CountInBars:    1,
		TailSeconds:    2,
		AssetDirectory: "assets",
		DatabasePath:   "fourtrack.db",
		LogLevel:       "info",
		Calibration: &CalibrationOptions{
			Pulses:          5,
			PulseIntervalMs: 250,
			Threshold:       0.1,
			TimeoutMarginMs: 100,
		},
	}
}

// RampSeconds clamps the configured ramp time to the 10-50 ms window used
// for every gain/pan/mute transition.
func (c *Config) RampSeconds() float64 {
	ms := c.RampMs
	if ms < 10 {
		ms = 10
	} else if ms > 50 {
		ms = 50
	}
	return ms / 1000.0
}

// EdgeFadeSeconds clamps the recorder edge fade to the 5-10 ms window.
func (c *Config) EdgeFadeSeconds() float64 {
	ms := c.EdgeFadeMs
	if ms < 5 {
		ms = 5
	} else if ms > 10 {
		ms = 10
	}
	return ms / 1000.0
}
