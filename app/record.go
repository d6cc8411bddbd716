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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fourtrack/audio"
	"fourtrack/engine"
	"fourtrack/exchange"
	"fourtrack/model"
	"fourtrack/reaper"
	"fourtrack/record"
	"fourtrack/store"
	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argRecordTrack     string
	argRecordStartBar  float64
	argRecordBars      int
	argRecordCountIn   int
	argRecordLoop      bool
	argRecordLoopStart float64
	argRecordLoopEnd   float64

	recordCmd = &cobra.Command{
		Use:   "record <project>",
		Short: "Record onto a track while the project plays",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecord,
	}
)

func init() {
	recordCmd.Flags().StringVarP(&argRecordTrack, "track", "t", "", "Id of the track to record onto, REQUIRED")
	recordCmd.Flags().Float64VarP(&argRecordStartBar, "start-bar", "", 0, "Bar to position the transport at before the count-in")
	recordCmd.Flags().IntVarP(&argRecordBars, "bars", "", 0, "Stop automatically after this many bars (0 records until SIGINT)")
	recordCmd.Flags().IntVarP(&argRecordCountIn, "count-in", "", -1, "Count-in bars before capture starts (-1 uses the config value)")
	recordCmd.Flags().BoolVarP(&argRecordLoop, "loop", "", false, "Trim the finished capture to the loop region")
	recordCmd.Flags().Float64VarP(&argRecordLoopStart, "loop-start", "", 0, "Loop region start bar")
	recordCmd.Flags().Float64VarP(&argRecordLoopEnd, "loop-end", "", 0, "Loop region end bar")
	recordCmd.MarkFlagRequired("track")

	rootCmd.AddCommand(recordCmd)
}

// storedProject loads the record target, persisting it first when the
// argument is a document file: clips and takes land in the database, so the
// project must live there too.
func storedProject(st *store.Store, arg string) (*model.Project, error) {
	if !strings.EqualFold(filepath.Ext(arg), ".json") {
		return st.GetProject(arg)
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}

	project, takes, err := exchange.UnmarshalProject(data)
	if err != nil {
		return nil, err
	}

	if err := st.SaveProject(project); err != nil {
		return nil, err
	}

	for i := range takes {
		if err := st.SaveTakeImmediate(&takes[i]); err != nil {
			return nil, err
		}
	}

	return project, nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	project, err := storedProject(st, args[0])
	if err != nil {
		return err
	}

	eng := engine.New(appConfig)
	eng.SetTakeSource(st)
	defer eng.Close()

	if err := eng.ScheduleProject(cmd.Context(), project); err != nil {
		return err
	}

	playback, err := audio.StartPlayback(eng.SampleRate(), appConfig.BufferFrames, eng.Output())
	if err != nil {
		return err
	}
	defer playback.Close()

	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	capture, err := audio.OpenCapture(appConfig.SampleRate, 1, appConfig.BufferFrames)
	if err != nil {
		return err
	}

	rec := record.NewRecorder(capture, appConfig.EdgeFadeSeconds())
	defer rec.Close()

	mgr := record.NewSessionManager(eng, rec, st)

	latencyMs := 0.0
	if calibration, err := st.LoadCalibration(); err == nil && calibration.Success {
		latencyMs = calibration.InputMs
	} else {
		slog.Warn("no latency calibration found, run 'fourtrack calibrate' for tighter take alignment")
	}

	countIn := argRecordCountIn
	if countIn < 0 {
		countIn = appConfig.CountInBars
	}

	opts := record.SessionOptions{
		Project:        project,
		TrackID:        argRecordTrack,
		StartBar:       argRecordStartBar,
		CountInBars:    countIn,
		LoopRecord:     argRecordLoop,
		LoopStartBar:   argRecordLoopStart,
		LoopEndBar:     argRecordLoopEnd,
		InputLatencyMs: latencyMs,
	}

	if err := mgr.Start(cmd.Context(), opts); err != nil {
		return err
	}

	// no reaper callbacks here: teardown must wait for mgr.Stop to drain
	// and persist the capture, so the defers above own it
	util.CatchSigint(func() {
		slog.Info("stopping recording")
		reaper.Reap()
	})

	resultLine.Printf("recording on track %s, ^C to stop\n", argRecordTrack)

	processOnInterval("record position", 500, func() {
		detailLine.Printf("\r  bar %6.2f  %s ", eng.PositionBars(), util.FormatDuration(eng.PositionSeconds()))
	})

	endBar := argRecordStartBar + float64(argRecordBars)
	for !reaper.Reaped() {
		if argRecordBars > 0 && eng.PositionBars() >= endBar {
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()

	clip, take, err := mgr.Stop(cmd.Context(), progressPrinter("saving take"))
	eng.Stop()
	reaper.Reap()
	reaper.Wait()

	if err != nil {
		if errors.Is(err, record.ErrEmptyCapture) {
			slog.Warn("nothing was captured, no take saved")
			return nil
		}

		return err
	}

	resultLine.Printf("saved take %s on clip %s (%s)\n",
		take.ID, clip.ID, util.FormatDuration(take.DurationSeconds))

	return nil
}
