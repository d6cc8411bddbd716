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

	"fourtrack/clock"
	"fourtrack/codec"
	"fourtrack/exchange"
	"fourtrack/model"
	"fourtrack/store"
	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argImportProject string
	argImportTrack   string

	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import a MIDI file, a project document or an audio file",
		Long: "MIDI files (.mid, .midi) and project documents (.json) become new projects " +
			"with freshly minted ids. Anything else is decoded as audio and lands as a " +
			"clip with its take in the project named by --project.",
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
)

func init() {
	importCmd.Flags().StringVarP(&argImportProject, "project", "p", "", "Target project id for audio imports")
	importCmd.Flags().StringVarP(&argImportTrack, "track", "t", "", "Target track id for audio imports (default: a new track)")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	path := args[0]

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		return importMIDIFile(st, path)
	case ".json":
		return importProjectFile(st, path)
	default:
		return importAudioFile(cmd, st, path)
	}
}

func importMIDIFile(st *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	project, err := exchange.ImportMIDI(data)
	if err != nil {
		return err
	}

	if err := st.SaveProject(project); err != nil {
		return err
	}

	resultLine.Printf("imported '%s' as project %s (%d tracks, %d clips)\n",
		project.Name, project.ID, len(project.Tracks), len(project.Clips))

	return nil
}

func importProjectFile(st *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	project, takes, err := exchange.ImportProject(data, progressPrinter("importing"))
	if err != nil {
		return err
	}

	if err := st.SaveProject(project); err != nil {
		return err
	}

	for i := range takes {
		if err := st.SaveTakeImmediate(&takes[i]); err != nil {
			return err
		}
	}

	resultLine.Printf("imported '%s' as project %s (%d tracks, %d clips, %d takes)\n",
		project.Name, project.ID, len(project.Tracks), len(project.Clips), len(takes))

	return nil
}

// importAudioFile decodes any format ffmpeg understands into a clip and
// active take on the target project. Without --track the clip gets a fresh
// audio track named after the file.
func importAudioFile(cmd *cobra.Command, st *store.Store, path string) error {
	if argImportProject == "" {
		return fmt.Errorf("audio imports need a target project, pass --project")
	}

	project, err := st.GetProject(argImportProject)
	if err != nil {
		return err
	}

	decoded, err := codec.DecodeFile(cmd.Context(), path, appConfig.SampleRate, 1, appConfig.FfmpegBinary)
	if err != nil {
		return err
	}
	if len(decoded.PCM) == 0 {
		return fmt.Errorf("'%s' decoded to no audio", path)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	trackID := argImportTrack
	if trackID == "" {
		track := model.Track{
			ID:     model.NewID(),
			Name:   base,
			Type:   model.TrackAudio,
			Volume: 1,
		}

		project.Tracks = append(project.Tracks, track)
		trackID = track.ID

		if err := st.SaveProject(project); err != nil {
			return err
		}
	} else if project.TrackByID(trackID) == nil {
		return fmt.Errorf("project '%s' has no track %s", project.Name, trackID)
	}

	duration := float64(len(decoded.PCM)/decoded.Channels) / float64(decoded.SampleRate)

	take := &model.AudioTake{
		ID:              model.NewID(),
		SampleRate:      decoded.SampleRate,
		Channels:        decoded.Channels,
		DurationSeconds: duration,
		CreatedAt:       time.Now(),
		PCM:             codec.EncodeWAV(decoded.PCM, decoded.SampleRate, decoded.Channels),
	}

	m := clock.FromTempo(project.BPM, project.TimeSigNumerator)

	clip := &model.Clip{
		ID:           model.NewID(),
		TrackID:      trackID,
		Type:         model.TrackAudio,
		Name:         base,
		StartBar:     0,
		LengthBars:   m.SecondsToBars(duration),
		ActiveTakeID: take.ID,
	}

	take.ClipID = clip.ID

	if err := st.SaveTakeImmediate(take); err != nil {
		return err
	}
	if err := st.AddClip(project.ID, clip); err != nil {
		return err
	}

	resultLine.Printf("imported '%s' as clip %s on track %s (%s)\n",
		path, clip.ID, trackID, util.FormatDuration(duration))

	return nil
}
