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

	"fourtrack/exchange"
	"fourtrack/model"
	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argExportOutput string

	exportCmd = &cobra.Command{
		Use:   "export <project>",
		Short: "Export a project as a MIDI file or a self-contained document",
		Long: "MIDI export (.mid) writes the note content of every MIDI and drum track. " +
			"Document export (.json) embeds every take, so the file restores completely " +
			"on another machine.",
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
)

func init() {
	exportCmd.Flags().StringVarP(&argExportOutput, "output", "o", "", "Output file path (.mid or .json), REQUIRED")
	exportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		project *model.Project
		takes   []model.AudioTake
	)

	if strings.EqualFold(filepath.Ext(args[0]), ".json") {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		project, takes, err = exchange.UnmarshalProject(data)
		if err != nil {
			return err
		}
	} else {
		project, err = st.GetProject(args[0])
		if err != nil {
			return err
		}

		for _, clip := range project.Clips {
			clipTakes, err := st.LoadTakesForClip(clip.ID)
			if err != nil {
				return err
			}

			takes = append(takes, clipTakes...)
		}
	}

	var data []byte

	switch strings.ToLower(filepath.Ext(argExportOutput)) {
	case ".mid", ".midi":
		data, err = exchange.ExportMIDI(project)
	case ".json":
		data, err = exchange.MarshalProject(project, takes)
	default:
		return fmt.Errorf("unsupported export format '%s', use .mid or .json", filepath.Ext(argExportOutput))
	}

	if err != nil {
		return err
	}

	if err := os.WriteFile(argExportOutput, data, 0644); err != nil {
		return err
	}

	resultLine.Printf("exported '%s' to %s (%s)\n",
		project.Name, argExportOutput, util.FormatSize(uint64(len(data))))

	return nil
}
