// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scriptjob-toolkit/pkg/archive"
	"scriptjob-toolkit/pkg/logging"
)

var packOutput string

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "Path of the archive to produce. A temporary file is used when empty.")
}

var packCmd = &cobra.Command{
	Use:   "pack FILE...",
	Short: "Packages code files into a flat job archive.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		archivePath, err := archive.Pack(args, packOutput)
		if err != nil {
			logging.Fatal("scriptjob pack failed: %v", err)
		}
		fmt.Println(archivePath)
	},
	SilenceUsage: true,
}
