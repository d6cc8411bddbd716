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

	"github.com/spf13/cobra"
)

var (
	argProjectsDelete string

	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "List the projects in the database",
		Args:  cobra.NoArgs,
		RunE:  runProjects,
	}
)

func init() {
	projectsCmd.Flags().StringVarP(&argProjectsDelete, "delete", "", "", "Delete the project with this id, along with its takes")

	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if argProjectsDelete != "" {
		if err := st.DeleteProject(argProjectsDelete); err != nil {
			return err
		}

		resultLine.Printf("deleted project %s\n", argProjectsDelete)

		return nil
	}

	projects, err := st.ListProjects()
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Println("no projects yet, record something or import a file")
		return nil
	}

	for _, info := range projects {
		detailLine.Printf("%s  %s  %s\n",
			info.ID, info.UpdatedAt.Format("2006-01-02 15:04:05"), info.Name)
	}

	return nil
}
