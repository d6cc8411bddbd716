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
	"log/slog"
	"time"

	"fourtrack/audio"
	"fourtrack/engine"
	"fourtrack/reaper"
	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argPlayFromBar float64

	playCmd = &cobra.Command{
		Use:   "play <project>",
		Short: "Play a project through the default output device",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlay,
	}
)

func init() {
	playCmd.Flags().Float64VarP(&argPlayFromBar, "from", "", 0, "Bar to start playback from")

	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	reaper.Callback("close store", func() { st.Close() })
	defer reaper.Reap()

	project, takes, err := loadProject(st, args[0])
	if err != nil {
		return err
	}

	eng := engine.New(appConfig)
	eng.SetTakeSource(takes)
	reaper.Callback("close engine", eng.Close)

	if err := eng.ScheduleProject(cmd.Context(), project); err != nil {
		return err
	}

	if eng.ScheduledClips() == 0 || project.FurthestEndBar() <= 0 {
		slog.Warn(fmt.Sprintf("project '%s' has nothing to play", project.Name))
		return nil
	}

	// speaker goes in last so the reaper closes it first; the engine must
	// not be pulled after Close
	playback, err := audio.StartPlayback(eng.SampleRate(), appConfig.BufferFrames, eng.Output())
	if err != nil {
		return err
	}
	reaper.Callback("close speaker", playback.Close)

	util.CatchSigint(func() {
		slog.Info("shutting down")
		reaper.Reap()
	})

	if argPlayFromBar > 0 {
		if err := eng.Seek(cmd.Context(), argPlayFromBar); err != nil {
			return err
		}
	}

	endSeconds := eng.Musical().BarsToSeconds(project.FurthestEndBar()) + appConfig.TailSeconds

	eng.Play()
	resultLine.Printf("playing '%s' (%d tracks, %d clips)\n", project.Name, len(project.Tracks), len(project.Clips))

	processOnInterval("position display", 500, func() {
		detailLine.Printf("\r  bar %6.2f  %s ", eng.PositionBars(), util.FormatDuration(eng.PositionSeconds()))
	})

	for !reaper.Reaped() && eng.PositionSeconds() < endSeconds {
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()
	eng.Stop()

	reaper.Reap()
	reaper.Wait()

	return nil
}
