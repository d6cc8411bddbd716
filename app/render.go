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

	"fourtrack/audio"
	"fourtrack/codec"
	"fourtrack/engine"
	"fourtrack/model"
	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argRenderOutput  string
	argRenderBitrate int

	renderCmd = &cobra.Command{
		Use:   "render <project>",
		Short: "Render a project offline to a WAV or MP3 file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}
)

func init() {
	renderCmd.Flags().StringVarP(&argRenderOutput, "output", "o", "", "Output file path (.wav or .mp3), REQUIRED")
	renderCmd.Flags().IntVarP(&argRenderBitrate, "bitrate", "", 192, "MP3 bitrate in kbps: 128, 192 or 320")
	renderCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	project, takes, err := loadProject(st, args[0])
	if err != nil {
		return err
	}

	started := time.Now()

	switch strings.ToLower(filepath.Ext(argRenderOutput)) {
	case ".wav":
		err = renderWAV(cmd, project, takes)
	case ".mp3":
		err = renderMP3(cmd, project, takes)
	default:
		return fmt.Errorf("unsupported output format '%s', use .wav or .mp3", filepath.Ext(argRenderOutput))
	}

	if err != nil {
		return err
	}

	info, err := os.Stat(argRenderOutput)
	if err != nil {
		return err
	}

	resultLine.Printf("wrote %s (%s) in %s\n",
		argRenderOutput, util.FormatSize(uint64(info.Size())), time.Since(started).Round(time.Millisecond))

	return nil
}

// renderWAV renders in memory and streams frames to disk one second at a
// time, so multi-minute projects never hold two copies of themselves.
func renderWAV(cmd *cobra.Command, project *model.Project, takes engine.TakeSource) error {
	frames, sampleRate, err := engine.RenderProject(cmd.Context(), appConfig, project, takes, progressPrinter("rendering"))
	if err != nil {
		return err
	}

	out, err := audio.CreateOutputFile(argRenderOutput, sampleRate, 2)
	if err != nil {
		return err
	}

	for start := 0; start < len(frames); start += sampleRate {
		end := min(start+sampleRate, len(frames))

		if err := out.WriteFrames(frames[start:end]); err != nil {
			out.Close()
			return err
		}
	}

	return out.Close()
}

func renderMP3(cmd *cobra.Command, project *model.Project, takes engine.TakeSource) error {
	if appConfig.FfmpegBinary == "" {
		return fmt.Errorf("mp3 output requires ffmpeg: install it or set ffmpeg_binary in the config")
	}

	out, err := os.Create(argRenderOutput)
	if err != nil {
		return err
	}

	opts := codec.MP3Options{
		BitrateKbps: argRenderBitrate,
		FfmpegPath:  appConfig.FfmpegBinary,
	}

	if err := engine.RenderToMP3(cmd.Context(), appConfig, project, takes, out, opts, progressPrinter("rendering")); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
