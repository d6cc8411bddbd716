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
	"os"
	"path"
	"path/filepath"
	"testing"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{1.5, "00:00:01.500"},
		{59, "00:00:59.000"},
		{60, "00:01:00.000"},
		{61.25, "00:01:01.250"},
		{3600, "01:00:00.000"},
		{3723.125, "01:02:03.125"},
	}

	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes uint64
		want  string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1536, "1.50 KiB"},
		{2048, "2.00 KiB"},
		{5 * 1024 * 1024, "5.00 MiB"},
		{3 * 1024 * 1024 * 1024, "3.00 GiB"},
	}

	for _, tc := range cases {
		if got := FormatSize(tc.bytes); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestResolveHomeDirPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}

	got, err := ResolveHomeDirPath("~/takes/demo.db")
	if err != nil {
		t.Fatalf("ResolveHomeDirPath: %v", err)
	}
	if want := path.Join(home, "takes", "demo.db"); got != want {
		t.Errorf("expanded path = %q, want %q", got, want)
	}

	// anything without the prefix passes through untouched
	for _, p := range []string{"/abs/path.db", "relative.db", "sub/dir.db"} {
		if got, _ := ResolveHomeDirPath(p); got != p {
			t.Errorf("ResolveHomeDirPath(%q) = %q, want unchanged", p, got)
		}
	}
}

func TestFileAndDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present.txt")

	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(file) {
		t.Error("FileExists = false for an existing file")
	}
	if FileExists(dir) {
		t.Error("FileExists = true for a directory")
	}
	if FileExists(filepath.Join(dir, "missing.txt")) {
		t.Error("FileExists = true for a missing file")
	}

	if !DirectoryExists(dir) {
		t.Error("DirectoryExists = false for an existing directory")
	}
	if DirectoryExists(file) {
		t.Error("DirectoryExists = true for a file")
	}
}

func TestReadYamlFileAbsolutePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(file, []byte("sample_rate: 48000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var cfg struct {
		SampleRate int `yaml:"sample_rate"`
	}

	if err := ReadYamlFile(&cfg, file); err != nil {
		t.Fatalf("ReadYamlFile: %v", err)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("sample_rate = %d, want 48000", cfg.SampleRate)
	}
}
