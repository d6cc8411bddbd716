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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fourtrack/engine"
	"fourtrack/exchange"
	"fourtrack/model"
	"fourtrack/reaper"
	"fourtrack/store"
	"fourtrack/util"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// persistent arguments
	argConfigFile   string
	argDatabasePath string
	argLogLevel     string
	argLogFile      string

	appConfig *model.Config

	resultLine = color.New(color.FgGreen)
	detailLine = color.New(color.FgCyan)

	rootCmd = &cobra.Command{
		Use:          "fourtrack",
		Short:        "Play, record and render multitrack projects",
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := util.LoadConfig(&model.CommandLineArgs{
				ConfigFile:   argConfigFile,
				DatabasePath: argDatabasePath,
				LogLevel:     argLogLevel,
			})
			if err != nil {
				return err
			}

			appConfig = config

			if argLogFile != "" {
				return ConfigureFileLogger(argLogFile, config.LogLevel)
			}
			ConfigureTextLogger(config.LogLevel)

			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfigFile, "config", "c", "", "Path of the config file to load")
	rootCmd.PersistentFlags().StringVarP(&argDatabasePath, "db", "", "", "Path of the project database (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&argLogLevel, "log-level", "", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&argLogFile, "log-file", "", "", "Write logs to this file instead of stderr")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()

	if err != nil {
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	return store.Open(appConfig.DatabasePath)
}

// documentTakes resolves active takes from a loaded project document first
// and falls back to the store for clips the document does not carry.
type documentTakes struct {
	byClip   map[string]*model.AudioTake
	fallback engine.TakeSource
}

func (d *documentTakes) ActiveTake(clipID string) (*model.AudioTake, error) {
	if take, ok := d.byClip[clipID]; ok {
		return take, nil
	}

	return d.fallback.ActiveTake(clipID)
}

// loadProject resolves a project argument. A path ending in .json is read as
// a project document, with any embedded takes overlaid on the store; anything
// else is treated as a project id in the database.
func loadProject(st *store.Store, arg string) (*model.Project, engine.TakeSource, error) {
	if !strings.EqualFold(filepath.Ext(arg), ".json") {
		project, err := st.GetProject(arg)
		return project, st, err
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, nil, err
	}

	project, takes, err := exchange.UnmarshalProject(data)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*model.AudioTake, len(takes))
	for i := range takes {
		byID[takes[i].ID] = &takes[i]
	}

	byClip := make(map[string]*model.AudioTake)
	for _, clip := range project.Clips {
		if take, ok := byID[clip.ActiveTakeID]; ok {
			byClip[clip.ID] = take
		}
	}

	return project, &documentTakes{byClip: byClip, fallback: st}, nil
}

// progressPrinter writes a single self-updating percentage line to stdout.
func progressPrinter(label string) model.Progress {
	last := -1

	return func(fraction float64) {
		percent := int(fraction * 100)

		if percent == last {
			return
		}
		last = percent

		fmt.Printf("\r%s: %3d%%", label, percent)

		if percent >= 100 {
			fmt.Println()
		}
	}
}

// processOnInterval runs process immediately and then on a ticker until the
// reaper fires, holding a registration so Reap waits for the final pass.
func processOnInterval(name string, milliseconds int, process func()) {
	go func() {
		reaper.Register(name)

		process()

		t := time.NewTicker(time.Duration(milliseconds) * time.Millisecond)
		defer t.Stop()

		for range t.C {
			if reaper.Reaped() {
				break
			}

			process()
		}

		reaper.Done(name)
	}()
}
