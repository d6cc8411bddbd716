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
	"strings"

	"fourtrack/model"
)

// defaultConfigFile is the name searched for when no --config is given.
const defaultConfigFile = "fourtrack.yaml"

// LoadConfig merges the yaml config file over the built-in defaults and
// applies command line overrides. A missing default config file is fine; a
// missing explicitly named one is an error.
func LoadConfig(args *model.CommandLineArgs) (*model.Config, error) {
	config := model.DefaultConfig()

	fileName := args.ConfigFile
	if fileName == "" {
		fileName = defaultConfigFile
	}

	if err := ReadYamlFile(config, fileName); err != nil {
		if !errors.Is(err, ErrNoYamlFile) || args.ConfigFile != "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		slog.Debug("no config file found, using defaults")
	}

	if args.DatabasePath != "" {
		config.DatabasePath = args.DatabasePath
	}
	if args.LogLevel != "" {
		config.LogLevel = args.LogLevel
	}

	if config.FfmpegBinary == "" {
		config.FfmpegBinary = FindFfmpegBinary()
	}

	dbPath, err := ResolveHomeDirPath(config.DatabasePath)
	if err != nil {
		return nil, err
	}
	config.DatabasePath = dbPath

	return config, nil
}

// ParseLogLevel maps the config's log_level string onto slog. Unknown values
// fall back to info rather than failing startup.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
