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
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"scriptjob-toolkit/pkg/bootstrap"
	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/trainenv"
)

var bootstrapRoot string

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapCmd.Flags().StringVar(&bootstrapRoot, "root", trainenv.DefaultRoot, "Root of the training input/output layout.")
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Container entrypoint that fetches and runs the user code.",
	Long: `The 'bootstrap' command runs inside the training container. It reads the
job parameters the platform materialized, downloads and extracts the code
archive named by the reserved parameters, materializes the data channels and
invokes the entry module. The entry module's exit status becomes the job
status, unchanged.`,
	Run:          runBootstrapCmd,
	SilenceUsage: true,
}

func runBootstrapCmd(cmd *cobra.Command, args []string) {
	env := trainenv.NewWithFs(afero.NewOsFs(), bootstrapRoot)
	b := bootstrap.New(env)

	exitCode, err := b.Run(cmd.Context())
	if err != nil {
		logging.Error("Bootstrap terminated in state %s: %v", b.State(), err)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
