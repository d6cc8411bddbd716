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

	"fourtrack/util"

	"github.com/spf13/cobra"
)

var (
	argTakesClip string

	takesCmd = &cobra.Command{
		Use:   "takes",
		Short: "List the recorded takes of a clip",
		Args:  cobra.NoArgs,
		RunE:  runTakes,
	}
)

func init() {
	takesCmd.Flags().StringVarP(&argTakesClip, "clip", "", "", "Id of the clip, REQUIRED")
	takesCmd.MarkFlagRequired("clip")

	rootCmd.AddCommand(takesCmd)
}

func runTakes(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	takes, err := st.LoadTakesForClip(argTakesClip)
	if err != nil {
		return err
	}

	if len(takes) == 0 {
		fmt.Printf("no takes recorded for clip %s\n", argTakesClip)
		return nil
	}

	for _, take := range takes {
		detailLine.Printf("%s  %s  %d Hz x%d  %8s  %s\n",
			take.ID,
			util.FormatDuration(take.DurationSeconds),
			take.SampleRate,
			take.Channels,
			util.FormatSize(uint64(len(take.PCM))),
			take.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}
