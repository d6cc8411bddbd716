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
package app

import (
	"log/slog"
	"os"

	"fourtrack/util"
)

// ConfigureTextLogger routes slog to stderr so result lines on stdout stay
// pipeable.
func ConfigureTextLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: util.ParseLogLevel(level),
	}))
	slog.SetDefault(logger)
}

// ConfigureFileLogger sends slog to a file instead, for long recording
// sessions where stderr scroll is unwanted.
func ConfigureFileLogger(path string, level string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: util.ParseLogLevel(level),
	}))
	slog.SetDefault(logger)

	return nil
}
