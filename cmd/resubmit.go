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

	"vhbbtools/pkg/logging"
	"vhbbtools/pkg/orchestrator"
	"vhbbtools/pkg/orchestrator/htcondor"

	"github.com/spf13/cobra"
)

var (
	resubmitName     string
	resubmitNoSubmit bool
)

func init() {
	rootCmd.AddCommand(resubmitCmd)

	resubmitCmd.Flags().StringVarP(&resubmitName, "name", "n", "", "Name of the new submission directory. Defaults to the current time.")
	resubmitCmd.Flags().BoolVar(&resubmitNoSubmit, "no-submit", false, "Copy the submission directory without calling the scheduler.")
}

var resubmitCmd = &cobra.Command{
	Use:   "resubmit SUBMISSION_DIR",
	Short: "Copies an existing submission and submits it again.",
	Long: `The 'resubmit' command copies a submission directory next to itself,
leaving out the HTCondor logs and anything matched by .vhbbignore, and
submits the copy with the same payloads and rendered files.`,
	Args:         cobra.ExactArgs(1),
	Run:          runResubmitCmd,
	SilenceUsage: true,
}

func runResubmitCmd(cmd *cobra.Command, args []string) {
	logging.Info("Executing vhbbtools resubmit command...")

	o, err := htcondor.NewHTCondorOrchestrator()
	if err != nil {
		logging.Fatal("Failed to create HTCondor orchestrator: %v", err)
	}
	res, err := o.Resubmit(orchestrator.ResubmitOptions{
		SourceDir: args[0],
		Name:      resubmitName,
		NoSubmit:  resubmitNoSubmit,
	})
	if err != nil {
		logging.Fatal("vhbbtools resubmit failed: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Dir)
}
