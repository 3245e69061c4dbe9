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

// Package cmd defines the vhbbtools command line.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vhbbtools/pkg/config"
	"vhbbtools/pkg/logging"
	"vhbbtools/pkg/workspace"
)

var (
	logLevel string
	dataDir  string

	// environment overrides shared by submit and render
	scramArch    string
	cmsswVersion string
	layout       string
	requirements []string
)

var rootCmd = &cobra.Command{
	Use:   "vhbbtools",
	Short: "Packages analysis jobs and submits them to HTCondor.",
	Long: `vhbbtools turns a batch file describing analysis jobs into an HTCondor
submission: one payload per job, a submit description file and a worker
bootstrap script that sets up the CMSSW release on the execute node.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := logging.SetLevel(logLevel); err != nil {
			logging.Fatal("%v", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error).")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Root of the submission directories. Defaults to $"+workspace.EnvDataDir+", $XDG_DATA_HOME/vhbbtools or ~/.local/share/vhbbtools.")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func addEnvironmentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&scramArch, "scram-arch", "", "SCRAM architecture of the release. Defaults to $"+config.EnvScramArch+".")
	cmd.Flags().StringVar(&cmsswVersion, "cmssw-version", "", "CMSSW release to deploy on the worker. Defaults to $"+config.EnvCMSSWVersion+".")
	cmd.Flags().StringVar(&layout, "layout", "", "Worker layout, 'release' or 'standalone'. Defaults to $"+config.EnvWorkerLayout+" or 'release'.")
	cmd.Flags().StringSliceVar(&requirements, "requirements", nil, "Python packages installed on the worker. Defaults to $"+config.EnvRequirements+" or msgpack.")
}

// environment builds the worker environment from the flags, falling back to
// the process environment.
func environment() config.Environment {
	flags := map[string]string{
		config.EnvScramArch:    scramArch,
		config.EnvCMSSWVersion: cmsswVersion,
		config.EnvWorkerLayout: layout,
	}
	if len(requirements) > 0 {
		flags[config.EnvRequirements] = strings.Join(requirements, ",")
	}
	env, err := config.EnvironmentFromLookup(func(key string) (string, bool) {
		if v := flags[key]; v != "" {
			return v, true
		}
		return os.LookupEnv(key)
	})
	if err != nil {
		logging.Fatal("%v", err)
	}
	return env
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	dir, err := workspace.DataDir(os.LookupEnv)
	if err != nil {
		logging.Fatal("%v", err)
	}
	return dir
}

