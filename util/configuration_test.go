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
package util

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fourtrack/model"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	return file
}

func TestLoadConfigMergesFileOverDefaults(t *testing.T) {
	file := writeConfigFile(t, strings.Join([]string{
		"sample_rate: 48000",
		"log_level: debug",
		"calibration:",
		"  pulses: 9",
	}, "\n"))

	config, err := LoadConfig(&model.CommandLineArgs{ConfigFile: file})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000 from file", config.SampleRate)
	}
	if config.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from file", config.LogLevel)
	}

	// fields the file does not mention keep their defaults
	if config.BufferFrames != 512 {
		t.Errorf("BufferFrames = %d, want default 512", config.BufferFrames)
	}
	if config.Calibration.Pulses != 9 {
		t.Errorf("Calibration.Pulses = %d, want 9 from file", config.Calibration.Pulses)
	}
	if config.Calibration.PulseIntervalMs != 250 {
		t.Errorf("Calibration.PulseIntervalMs = %d, want default 250", config.Calibration.PulseIntervalMs)
	}
}

func TestLoadConfigCommandLineWins(t *testing.T) {
	file := writeConfigFile(t, strings.Join([]string{
		"database_path: from-file.db",
		"log_level: debug",
	}, "\n"))

	config, err := LoadConfig(&model.CommandLineArgs{
		ConfigFile:   file,
		DatabasePath: "/tmp/from-cli.db",
		LogLevel:     "error",
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.DatabasePath != "/tmp/from-cli.db" {
		t.Errorf("DatabasePath = %q, want the command line value", config.DatabasePath)
	}
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want the command line value", config.LogLevel)
	}
}

func TestLoadConfigMissingExplicitFileFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := LoadConfig(&model.CommandLineArgs{ConfigFile: missing}); err == nil {
		t.Error("expected an error for an explicitly named missing config file")
	}
}

func TestLoadConfigExpandsHomeDatabasePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}

	file := writeConfigFile(t, "database_path: ~/fourtrack-test.db\n")

	config, err := LoadConfig(&model.CommandLineArgs{ConfigFile: file})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !strings.HasPrefix(config.DatabasePath, home) {
		t.Errorf("DatabasePath = %q, want it expanded under %q", config.DatabasePath, home)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := ParseLogLevel(tc.in); got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
