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
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"vhbbtools/pkg/config"
	"vhbbtools/pkg/job"
	"vhbbtools/pkg/logging"
	"vhbbtools/pkg/render"
	"vhbbtools/pkg/workspace"
)

var (
	renderBatchFile string
	renderOutputDir string
	renderTimestamp string
	renderDAG       bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderBatchFile, "batch", "b", "", "Path to the batch file (.yaml, .toml or .hcl). Required.")
	renderCmd.Flags().StringVarP(&renderOutputDir, "output-dir", "o", "", "Directory to write the rendered files and payloads to instead of printing them.")
	renderCmd.Flags().StringVar(&renderTimestamp, "timestamp", "", "Timestamp shown in the generated headers, RFC 3339 or '"+render.TimestampFormat+"'. Defaults to now.")
	renderCmd.Flags().BoolVar(&renderDAG, "dag", false, "Render the DAG input file and node submit descriptions.")
	addEnvironmentFlags(renderCmd)

	_ = renderCmd.MarkFlagRequired("batch")
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Renders the HTCondor files of a batch without submitting it.",
	Long: `The 'render' command prints the submit description and the worker
script a submission of the batch file would use. With --output-dir the
files are written there together with the job payloads and run.py.

Remote input files are not staged.`,
	Args:         cobra.NoArgs,
	Run:          runRenderCmd,
	SilenceUsage: true,
}

func runRenderCmd(cmd *cobra.Command, args []string) {
	ts, err := parseTimestamp(renderTimestamp, time.Now())
	if err != nil {
		logging.Fatal("%v", err)
	}
	env := environment()

	fs := afero.NewOsFs()
	b, err := config.LoadBatchFile(fs, renderBatchFile)
	if err != nil {
		logging.Fatal("Failed to load batch file: %v", err)
	}

	files, err := renderBatch(b, env, ts, renderDAG)
	if err != nil {
		logging.Fatal("Failed to render batch %q: %v", b.Name, err)
	}

	if renderOutputDir == "" {
		printFiles(cmd.OutOrStdout(), files)
		return
	}
	if err := writeFiles(fs, renderOutputDir, b, files); err != nil {
		logging.Fatal("%v", err)
	}
	logging.Info("Rendered %d file(s) to %s", len(files), renderOutputDir)
}

type renderedFile struct {
	path       string
	content    string
	executable bool
}

func renderBatch(b *job.Batch, env config.Environment, ts time.Time, dag bool) ([]renderedFile, error) {
	var files []renderedFile
	var worker string
	if dag {
		r, err := render.RenderDAG(b, env, ts)
		if err != nil {
			return nil, err
		}
		files = append(files, renderedFile{path: render.DAGFile, content: r.DAGInputFile})
		for _, n := range r.Nodes {
			files = append(files, renderedFile{path: n.Path, content: n.SubmitDescription})
		}
		worker = r.WorkerScript
	} else {
		r, err := render.Render(b, env, ts)
		if err != nil {
			return nil, err
		}
		files = append(files, renderedFile{path: render.SubmitFile, content: r.SubmitDescription})
		worker = r.WorkerScript
	}
	return append(files, renderedFile{path: render.WorkerScriptFile, content: worker, executable: true}), nil
}

func printFiles(out io.Writer, files []renderedFile) {
	for i, f := range files {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "==> %s <==\n%s", f.path, f.content)
	}
}

func writeFiles(fs afero.Fs, dir string, b *job.Batch, files []renderedFile) error {
	if _, err := job.NewPackager(fs).Package(dir, b.Normalized()); err != nil {
		return fmt.Errorf("failed to package jobs: %w", err)
	}
	w := &workspace.Workspace{Fs: fs, Dir: dir}
	for _, f := range files {
		write := w.WriteFile
		if f.executable {
			write = w.WriteExecutable
		}
		if err := write(f.path, []byte(f.content)); err != nil {
			return err
		}
	}
	return w.WriteFile(render.RunScriptFile, []byte(render.RunScript))
}

func parseTimestamp(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	for _, layout := range []string{time.RFC3339, render.TimestampFormat} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339 or %q", value, render.TimestampFormat)
}
