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

package htcondor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"vhbbtools/pkg/config"
	"vhbbtools/pkg/job"
	"vhbbtools/pkg/logging"
	"vhbbtools/pkg/orchestrator"
	"vhbbtools/pkg/render"
	"vhbbtools/pkg/shell"
	"vhbbtools/pkg/stage"
	"vhbbtools/pkg/workspace"
)

// Scheduler commands.
const (
	SubmitCommand    = "condor_submit"
	SubmitDAGCommand = "condor_submit_dag"
)

// HTCondorOrchestrator implements the Orchestrator interface for HTCondor.
type HTCondorOrchestrator struct {
	fs       afero.Fs
	run      func(cmd *shell.Command) shell.CommandResult
	now      func() time.Time
	revision func(dir string) (string, error)
}

var _ orchestrator.Orchestrator = (*HTCondorOrchestrator)(nil)

// NewHTCondorOrchestrator creates and returns a new HTCondorOrchestrator
// working on the local disk.
func NewHTCondorOrchestrator() (*HTCondorOrchestrator, error) {
	return &HTCondorOrchestrator{
		fs: afero.NewOsFs(),
		run: func(cmd *shell.Command) shell.CommandResult {
			return cmd.Execute()
		},
		now:      time.Now,
		revision: workspace.SourceRevision,
	}, nil
}

// file is a rendered file waiting to be written to the submission directory.
type file struct {
	path       string
	data       []byte
	executable bool
}

// SubmitBatch loads the batch file, renders and packages every job, writes
// the submission directory and hands it to condor_submit.
func (h *HTCondorOrchestrator) SubmitBatch(opts orchestrator.SubmitOptions) (*orchestrator.Result, error) {
	logging.Info("Starting vhbbtools submit workflow...")
	now := opts.Now
	if now.IsZero() {
		now = h.now()
	}

	logging.Info("Loading batch file %s...", opts.BatchFile)
	batch, err := config.LoadBatchFile(h.fs, opts.BatchFile)
	if err != nil {
		return nil, err
	}
	nb := batch.Normalized()
	if err := nb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch %q: %w", nb.Name, err)
	}
	env := opts.Environment.WithDefaults()
	if err := env.Validate(); err != nil {
		return nil, err
	}

	dir := workspace.SubmissionDir(opts.DataDir, nb.Name, opts.Name, now)
	stager := stage.New(dir)
	for i := range nb.Jobs {
		nb.Jobs[i].InputFiles = stager.Stage(nb.Jobs[i].InputFiles)
	}

	mode := workspace.ModePlain
	if opts.DAG {
		mode = workspace.ModeDAG
	}
	logging.Info("Rendering %d job(s) of batch %q in %s mode...", len(nb.Jobs), nb.Name, mode)
	files, err := renderFiles(nb, env, now, mode)
	if err != nil {
		return nil, err
	}

	m := workspace.NewManifest(nb.Name, filepath.Base(dir), mode, now)
	m.Environment = workspace.ManifestEnvironment{
		ScramArch:    env.ScramArch,
		CMSSWVersion: env.CMSSWVersion,
		Layout:       string(env.Layout),
	}
	m.Jobs = jobIDs(nb)
	m.SourceRevision = h.sourceRevision(filepath.Dir(opts.BatchFile))

	if stager.Staged() > 0 && !isLocal(h.fs) {
		return nil, fmt.Errorf("batch %q has remote inputs, which can only be staged on the local filesystem", nb.Name)
	}

	logging.Info("Writing submission directory %s...", dir)
	w, err := workspace.Create(h.fs, dir)
	if err != nil {
		return nil, err
	}
	if err := populate(w, files, stager, m); err != nil {
		h.discard(dir)
		return nil, err
	}

	res, err := h.finish(w, m, opts.NoSubmit)
	if err != nil {
		return nil, err
	}
	logging.Info("vhbbtools submit workflow completed.")
	return res, nil
}

// Resubmit clones a previous submission directory next to it and submits
// the copy. The payloads and rendered files are reused as they are.
func (h *HTCondorOrchestrator) Resubmit(opts orchestrator.ResubmitOptions) (*orchestrator.Result, error) {
	logging.Info("Starting vhbbtools resubmit workflow...")
	now := opts.Now
	if now.IsZero() {
		now = h.now()
	}

	if !isLocal(h.fs) {
		return nil, fmt.Errorf("resubmission copies directories on the local filesystem only")
	}
	src, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", opts.SourceDir, err)
	}
	prev, err := workspace.Open(h.fs, src)
	if err != nil {
		return nil, err
	}
	pm, err := prev.ReadManifest()
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = now.Format(workspace.NameFormat)
	}
	dst := filepath.Join(filepath.Dir(src), name)
	if err := workspace.Clone(src, dst); err != nil {
		return nil, err
	}
	m := workspace.NewManifest(pm.Batch, name, pm.Mode, now)
	m.SourceRevision = pm.SourceRevision
	m.ClonedFrom = pm.ID
	m.Environment = pm.Environment
	m.Jobs = pm.Jobs
	w := &workspace.Workspace{Fs: h.fs, Dir: dst}
	if err := w.WriteManifest(m); err != nil {
		h.discard(dst)
		return nil, err
	}

	res, err := h.finish(w, m, opts.NoSubmit)
	if err != nil {
		return nil, err
	}
	logging.Info("vhbbtools resubmit workflow completed.")
	return res, nil
}

// populate writes the rendered files, fetches the staged inputs and writes
// the manifest last.
func populate(w *workspace.Workspace, files []file, stager *stage.Stager, m *workspace.Manifest) error {
	for _, f := range files {
		write := w.WriteFile
		if f.executable {
			write = w.WriteExecutable
		}
		if err := write(f.path, f.data); err != nil {
			return err
		}
	}
	if stager.Staged() > 0 {
		logging.Info("Staging %d remote input(s)...", stager.Staged())
		if err := stager.Fetch(); err != nil {
			return err
		}
	}
	return w.WriteManifest(m)
}

// discard removes a submission directory that could not be completed.
func (h *HTCondorOrchestrator) discard(dir string) {
	logging.Debug("Removing incomplete submission directory %s", dir)
	if err := h.fs.RemoveAll(dir); err != nil {
		logging.Warn("Failed to remove incomplete submission directory %s: %v", dir, err)
	}
}

// isLocal reports whether fs is the local disk. Staging and cloning always
// work on the local disk.
func isLocal(fs afero.Fs) bool {
	_, ok := fs.(*afero.OsFs)
	return ok
}

func renderFiles(b *job.Batch, env config.Environment, now time.Time, mode string) ([]file, error) {
	var files []file
	for _, j := range b.Jobs {
		data, err := job.EncodePayload(j)
		if err != nil {
			return nil, fmt.Errorf("failed to package job %s: %w", j.ID, err)
		}
		files = append(files, file{path: j.PayloadPath(), data: data})
	}

	var worker string
	switch mode {
	case workspace.ModeDAG:
		r, err := render.RenderDAG(b, env, now)
		if err != nil {
			return nil, err
		}
		files = append(files, file{path: render.DAGFile, data: []byte(r.DAGInputFile)})
		for _, n := range r.Nodes {
			files = append(files, file{path: n.Path, data: []byte(n.SubmitDescription)})
		}
		worker = r.WorkerScript
	default:
		r, err := render.Render(b, env, now)
		if err != nil {
			return nil, err
		}
		files = append(files, file{path: render.SubmitFile, data: []byte(r.SubmitDescription)})
		worker = r.WorkerScript
	}

	return append(files,
		file{path: render.WorkerScriptFile, data: []byte(worker), executable: true},
		file{path: render.RunScriptFile, data: []byte(render.RunScript)},
	), nil
}

func (h *HTCondorOrchestrator) finish(w *workspace.Workspace, m *workspace.Manifest, noSubmit bool) (*orchestrator.Result, error) {
	res := &orchestrator.Result{Dir: w.Dir, Jobs: m.Jobs}
	if noSubmit {
		logging.Info("Submission directory %s prepared, not submitting as requested.", w.Dir)
		return res, nil
	}

	clusterID, err := h.submit(w.Dir, m.Mode)
	if err != nil {
		return nil, err
	}
	res.Submitted = true
	res.ClusterID = clusterID
	if clusterID == "" {
		logging.Info("Batch submitted successfully. Check 'condor_q' for status.")
		return res, nil
	}
	logging.Info("Batch submitted successfully to cluster %s.", clusterID)
	m.ClusterID = clusterID
	if err := w.WriteManifest(m); err != nil {
		return nil, err
	}
	return res, nil
}

func (h *HTCondorOrchestrator) submit(dir, mode string) (string, error) {
	var cmd *shell.Command
	if mode == workspace.ModeDAG {
		cmd = shell.NewCommand(SubmitDAGCommand, "-usedagdir", render.DAGFile)
	} else {
		cmd = shell.NewCommand(SubmitCommand, render.SubmitFile)
	}
	cmd.SetDir(dir)

	logging.Info("Running '%s' in %s...", cmd, dir)
	res := h.run(cmd)
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s failed with exit code %d: %s\n%s", cmd.Name(), res.ExitCode, res.Stderr, res.Stdout)
	}
	logging.Debug("%s output:\n%s", cmd.Name(), res.Stdout)
	return extractClusterID(res.Stdout), nil
}

func (h *HTCondorOrchestrator) sourceRevision(dir string) string {
	rev, err := h.revision(dir)
	if err != nil {
		logging.Warn("Could not determine the source revision of %s: %v", dir, err)
		return ""
	}
	return rev
}

func jobIDs(b *job.Batch) []string {
	ids := make([]string, len(b.Jobs))
	for i, j := range b.Jobs {
		ids[i] = j.ID
	}
	return ids
}
