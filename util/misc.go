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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrNoYamlFile means none of the search locations held the requested file.
// Callers that treat a missing config as "use defaults" test for it.
var ErrNoYamlFile = errors.New("util: no yaml file found")

func FileExists(path string) bool {
	if stat, err := os.Stat(path); err != nil || stat.IsDir() {
		return false
	}

	return true
}

func DirectoryExists(testDir string) bool {
	if stat, err := os.Stat(testDir); err != nil || !stat.IsDir() {
		return false
	}

	return true
}

// ResolveHomeDirPath expands a leading ~/ to the user's home directory.
// Paths without the prefix pass through untouched.
func ResolveHomeDirPath(testPath string) (string, error) {
	if strings.HasPrefix(testPath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not find user home dir: %w", err)
		}

		return path.Join(homeDir, testPath[2:]), nil
	}

	return testPath, nil
}

// ReadYamlFile decodes the named yaml file into cfg. Relative names are
// searched next to the executable, in the working directory, under
// ~/.config/fourtrack and finally /etc/fourtrack; absolute and ~-prefixed
// paths are taken as given.
func ReadYamlFile(cfg interface{}, fileName string) error {
	filePath := ""

	if path.IsAbs(fileName) {
		filePath = fileName

	} else if strings.HasPrefix(fileName, "~/") {
		testFilePath, err := ResolveHomeDirPath(fileName)
		if err != nil {
			return err
		}

		if FileExists(testFilePath) {
			filePath = testFilePath
		}

	} else {
		for _, dir := range searchDirs() {
			candidate := path.Join(dir, fileName)

			if FileExists(candidate) {
				filePath = candidate
				break
			}
		}
	}

	if filePath == "" {
		return fmt.Errorf("%w: %s", ErrNoYamlFile, fileName)
	}

	if !FileExists(filePath) {
		return fmt.Errorf("the specified yaml file does not exist: %s", filePath)
	}

	slog.Debug("reading yaml from " + filePath)

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	return yaml.NewDecoder(f).Decode(cfg)
}

func searchDirs() []string {
	dirs := make([]string, 0, 4)

	if binPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(binPath))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, path.Join(homeDir, ".config", "fourtrack"))
	}
	dirs = append(dirs, "/etc/fourtrack")

	return dirs
}

// FindFfmpegBinary locates ffmpeg for mp3 export and foreign-format decode.
// PATH wins; the usual install locations are fallbacks. Empty means not
// installed.
func FindFfmpegBinary() string {
	if found, err := exec.LookPath("ffmpeg"); err == nil {
		return found
	}

	possiblePaths := []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
	}

	for _, p := range possiblePaths {
		if FileExists(p) {
			return p
		}
	}

	return ""
}

// CatchSigint invokes callback on every interrupt. The callback is expected
// to trigger the reaper; the process exits when the main goroutine finishes
// waiting.
func CatchSigint(callback func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		for range c {
			callback()
		}
	}()
}

func FormatSize(bytes uint64) string {
	suffix := []string{"B", "KiB", "MiB", "GiB", "TiB"}

	i := 0
	bytesFloat := float64(bytes)

	if bytes > 1024 {
		for i = 0; (bytes/1024) > 0 && i < len(suffix); i++ {
			bytesFloat = float64(bytes) / 1024.0
			bytes /= 1024
		}
	}

	return fmt.Sprintf("%.02f %s", bytesFloat, suffix[i])
}

// FormatDuration renders seconds as HH:MM:SS.mmm for transport and take
// listings.
func FormatDuration(duration float64) string {
	hours := 0
	minutes := 0
	seconds := 0

	if duration >= 3600 {
		hours = int(duration) / 3600
		duration -= float64(hours) * 3600.0
	}

	if duration >= 60 {
		minutes = int(duration) / 60
		duration -= float64(minutes) * 60
	}

	seconds = int(duration)
	duration -= float64(seconds)

	mseconds := int(duration * 1000)

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, mseconds)
}
