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
	batchFile      string
	submissionName string
	noSubmit       bool
	useDAG         bool
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&batchFile, "batch", "b", "", "Path to the batch file (.yaml, .toml or .hcl). Required.")
	submitCmd.Flags().StringVarP(&submissionName, "name", "n", "", "Name of the submission directory. Defaults to the current time.")
	submitCmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Prepare the submission directory without calling the scheduler.")
	submitCmd.Flags().BoolVar(&useDAG, "dag", false, "Submit the jobs as independent nodes of a DAGMan workflow.")
	addEnvironmentFlags(submitCmd)

	_ = submitCmd.MarkFlagRequired("batch")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Packages a batch of jobs and submits it to HTCondor.",
	Long: `The 'submit' command reads a batch file, serializes every job to
jobs/<id>.pklz, renders the HTCondor submit description and the worker
script into a new submission directory, and runs condor_submit there
(condor_submit_dag with --dag).

The worker environment is taken from --scram-arch and --cmssw-version or
from SCRAM_ARCH and CMSSW_VERSION.`,
	Args:         cobra.NoArgs,
	Run:          runSubmitCmd,
	SilenceUsage: true,
}

func runSubmitCmd(cmd *cobra.Command, args []string) {
	logging.Info("Executing vhbbtools submit command...")

	opts := orchestrator.SubmitOptions{
		BatchFile:   batchFile,
		Environment: environment(),
		DataDir:     resolveDataDir(),
		Name:        submissionName,
		DAG:         useDAG,
		NoSubmit:    noSubmit,
	}

	o, err := htcondor.NewHTCondorOrchestrator()
	if err != nil {
		logging.Fatal("Failed to create HTCondor orchestrator: %v", err)
	}
	res, err := o.SubmitBatch(opts)
	if err != nil {
		logging.Fatal("vhbbtools submit failed: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Dir)
}
