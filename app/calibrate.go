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

	"fourtrack/audio"
	"fourtrack/model"
	"fourtrack/record"

	"github.com/spf13/cobra"
)

var (
	argCalibrateManualMs float64

	calibrateCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the speaker-to-microphone round trip latency",
		Long: "Plays a series of pulses through the speakers and times their arrival at " +
			"the microphone. The filtered result is stored and applied to every " +
			"subsequent recording. Use --manual to skip measurement and store a known value.",
		Args: cobra.NoArgs,
		RunE: runCalibrate,
	}
)

func init() {
	calibrateCmd.Flags().Float64VarP(&argCalibrateManualMs, "manual", "", -1, "Store this round trip in milliseconds instead of measuring")

	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	var result *model.LatencyCalibrationResult

	if argCalibrateManualMs >= 0 {
		result = record.ManualResult(argCalibrateManualMs)
	} else {
		measured, err := measureLatency()
		if err != nil {
			return err
		}

		result = measured
	}

	if !result.Success {
		return fmt.Errorf("calibration failed: %s", result.Error)
	}

	for i, sample := range result.SamplesMs {
		detailLine.Printf("  pulse %2d: %7.2f ms\n", i+1, sample)
	}

	detailLine.Printf("round trip %.2f ms, input %.2f ms, output %.2f ms (%d pulses kept, confidence %.2f)\n",
		result.RoundTripMs, result.InputMs, result.OutputMs, result.SampleCount, result.Confidence)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveCalibration(result); err != nil {
		return err
	}

	resultLine.Println("calibration saved")

	return nil
}

func measureLatency() (*model.LatencyCalibrationResult, error) {
	if err := audio.Init(); err != nil {
		return nil, err
	}
	defer audio.Terminate()

	duplex, err := audio.OpenDuplex(appConfig.SampleRate, appConfig.BufferFrames)
	if err != nil {
		return nil, err
	}
	defer duplex.Close()

	calibrator := record.NewCalibrator(duplex, appConfig.Calibration)

	return calibrator.Run(progressPrinter("calibrating"))
}
