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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"vhbbtools/pkg/config"
	"vhbbtools/pkg/orchestrator"
	"vhbbtools/pkg/shell"
	"vhbbtools/pkg/workspace"
)

const batchFile = `
name: Skim
entry: analysis.skim:main
input_files: [weights.root]
commands:
  request_memory: 2 GB
jobs:
  - args: [ZH.root]
  - id: wh
    args: [WH.root]
    output_files: [wh.root]
`

var submitTime = time.Date(2017, time.March, 14, 9, 26, 53, 0, time.UTC)

type fakeRunner struct {
	cmds   []*shell.Command
	result shell.CommandResult
}

func (f *fakeRunner) run(cmd *shell.Command) shell.CommandResult {
	f.cmds = append(f.cmds, cmd)
	return f.result
}

func newTestOrchestrator(runner *fakeRunner) *HTCondorOrchestrator {
	return &HTCondorOrchestrator{
		fs:  afero.NewOsFs(),
		run: runner.run,
		now: func() time.Time { return submitTime },
		revision: func(string) (string, error) {
			return "0123abcd", nil
		},
	}
}

func testEnvironment() config.Environment {
	return config.Environment{
		ScramArch:    "slc7_amd64_gcc700",
		CMSSWVersion: "CMSSW_10_2_13",
	}
}

// setup writes the batch file and returns its path and a data directory.
func setup(t *testing.T) (string, string) {
	t.Helper()
	src := t.TempDir()
	path := filepath.Join(src, "skim.yaml")
	if err := os.WriteFile(path, []byte(batchFile), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, t.TempDir()
}

func readManifest(t *testing.T, dir string) *workspace.Manifest {
	t.Helper()
	w, err := workspace.Open(afero.NewOsFs(), dir)
	if err != nil {
		t.Fatal(err)
	}
	m, err := w.ReadManifest()
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	return m
}

func TestSubmitBatch(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{result: shell.CommandResult{
		Stdout: "Submitting job(s)..\n2 job(s) submitted to cluster 4711.\n",
	}}
	h := newTestOrchestrator(runner)

	res, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		Name:        "first",
	})
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}

	wantDir := filepath.Join(dataDir, "batches", "skim", "first")
	want := &orchestrator.Result{Dir: wantDir, Jobs: []string{"0", "wh"}, Submitted: true, ClusterID: "4711"}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"submit", "worker.sh", "run.py", "jobs/0.pklz", "jobs/wh.pklz", "batch.yaml"} {
		if _, err := os.Stat(filepath.Join(wantDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if info, err := os.Stat(filepath.Join(wantDir, "logs")); err != nil || !info.IsDir() {
		t.Errorf("expected logs directory, got %v", err)
	}
	if info, err := os.Stat(filepath.Join(wantDir, "worker.sh")); err == nil && info.Mode().Perm()&0o111 == 0 {
		t.Errorf("worker.sh is not executable: %v", info.Mode())
	}

	submit, err := os.ReadFile(filepath.Join(wantDir, "submit"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(submit), "\nqueue\n"); got != 2 {
		t.Errorf("submit description has %d queue statements, want 2", got)
	}
	weights := filepath.Join(filepath.Dir(path), "weights.root")
	if !strings.Contains(string(submit), "transfer_input_files = run.py,jobs/wh.pklz,"+weights+"\n") {
		t.Errorf("submit description lacks resolved inputs:\n%s", submit)
	}

	if len(runner.cmds) != 1 {
		t.Fatalf("expected one scheduler call, got %d", len(runner.cmds))
	}
	cmd := runner.cmds[0]
	if cmd.String() != "condor_submit submit" || cmd.Dir() != wantDir {
		t.Errorf("unexpected scheduler call %q in %q", cmd, cmd.Dir())
	}

	m := readManifest(t, wantDir)
	if m.ClusterID != "4711" || m.Mode != workspace.ModePlain || m.SourceRevision != "0123abcd" {
		t.Errorf("unexpected manifest %+v", m)
	}
	wantEnv := workspace.ManifestEnvironment{ScramArch: "slc7_amd64_gcc700", CMSSWVersion: "CMSSW_10_2_13", Layout: "release"}
	if diff := cmp.Diff(wantEnv, m.Environment); diff != "" {
		t.Errorf("manifest environment mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitBatchDAG(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{}
	h := newTestOrchestrator(runner)

	res, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		DAG:         true,
	})
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}

	wantDir := filepath.Join(dataDir, "batches", "skim", "20170314_092653")
	if res.Dir != wantDir {
		t.Errorf("submission directory = %q, want %q", res.Dir, wantDir)
	}
	dag, err := os.ReadFile(filepath.Join(wantDir, "dag"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dag), "JOB 0 nodes/0.sub\nJOB wh nodes/wh.sub\n") {
		t.Errorf("unexpected DAG input file:\n%s", dag)
	}
	for _, node := range []string{"nodes/0.sub", "nodes/wh.sub"} {
		if _, err := os.Stat(filepath.Join(wantDir, node)); err != nil {
			t.Errorf("expected %s to exist: %v", node, err)
		}
	}
	if _, err := os.Stat(filepath.Join(wantDir, "submit")); !os.IsNotExist(err) {
		t.Errorf("plain submit description written in DAG mode: %v", err)
	}

	if len(runner.cmds) != 1 || runner.cmds[0].String() != "condor_submit_dag -usedagdir dag" {
		t.Fatalf("unexpected scheduler calls %v", runner.cmds)
	}
	if res.ClusterID != "" {
		t.Errorf("cluster ID = %q, want none", res.ClusterID)
	}
	if m := readManifest(t, wantDir); m.Mode != workspace.ModeDAG {
		t.Errorf("manifest mode = %q, want %q", m.Mode, workspace.ModeDAG)
	}
}

func TestSubmitBatchNoSubmit(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{}
	h := newTestOrchestrator(runner)

	res, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		NoSubmit:    true,
	})
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}
	if res.Submitted || len(runner.cmds) != 0 {
		t.Errorf("batch was submitted: %+v, %d calls", res, len(runner.cmds))
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "submit")); err != nil {
		t.Errorf("submit description not written: %v", err)
	}
}

func TestSubmitBatchIncompleteEnvironment(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{}
	h := newTestOrchestrator(runner)

	env := testEnvironment()
	env.CMSSWVersion = ""
	_, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: env,
		DataDir:     dataDir,
	})
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) || cfgErr.Key != config.EnvCMSSWVersion {
		t.Fatalf("expected configuration error for %s, got %v", config.EnvCMSSWVersion, err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "batches")); !os.IsNotExist(err) {
		t.Errorf("files were written despite the configuration error: %v", err)
	}
	if len(runner.cmds) != 0 {
		t.Errorf("scheduler was called %d times", len(runner.cmds))
	}
}

func TestSubmitBatchSchedulerFailure(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{result: shell.CommandResult{
		Stdout:   "Submitting job(s)",
		Stderr:   "ERROR: Failed to parse command file (line 9).",
		ExitCode: 1,
	}}
	h := newTestOrchestrator(runner)

	_, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
	})
	want := "condor_submit failed with exit code 1: ERROR: Failed to parse command file (line 9).\nSubmitting job(s)"
	if err == nil || err.Error() != want {
		t.Errorf("unexpected error:\ngot:  %v\nwant: %s", err, want)
	}
}

func TestSubmitBatchExistingDirectory(t *testing.T) {
	path, dataDir := setup(t)
	h := newTestOrchestrator(&fakeRunner{})
	opts := orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		Name:        "again",
		NoSubmit:    true,
	}
	if _, err := h.SubmitBatch(opts); err != nil {
		t.Fatalf("first SubmitBatch failed: %v", err)
	}
	_, err := h.SubmitBatch(opts)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected an existing directory error, got %v", err)
	}
}

func TestSubmitBatchInvalidBatch(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "bad.yaml")
	content := "entry: analysis.skim:main\njobs:\n  - commands:\n      queue: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newTestOrchestrator(&fakeRunner{})

	_, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     t.TempDir(),
	})
	if err == nil || !strings.Contains(err.Error(), "queue") {
		t.Errorf("expected a reserved command error, got %v", err)
	}
}

func TestResubmit(t *testing.T) {
	path, dataDir := setup(t)
	runner := &fakeRunner{result: shell.CommandResult{Stdout: "2 job(s) submitted to cluster 90.\n"}}
	h := newTestOrchestrator(runner)

	first, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		Name:        "first",
		NoSubmit:    true,
	})
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(first.Dir, "logs", "0.log"), []byte("000 (001.000.000)"), 0o644); err != nil {
		t.Fatal(err)
	}
	prev := readManifest(t, first.Dir)

	res, err := h.Resubmit(orchestrator.ResubmitOptions{SourceDir: first.Dir, Name: "retry"})
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}

	wantDir := filepath.Join(dataDir, "batches", "skim", "retry")
	want := &orchestrator.Result{Dir: wantDir, Jobs: []string{"0", "wh"}, Submitted: true, ClusterID: "90"}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(wantDir, "logs", "0.log")); !os.IsNotExist(err) {
		t.Errorf("logs were copied: %v", err)
	}
	for _, name := range []string{"submit", "worker.sh", "jobs/wh.pklz"} {
		if _, err := os.Stat(filepath.Join(wantDir, name)); err != nil {
			t.Errorf("expected %s to be cloned: %v", name, err)
		}
	}

	m := readManifest(t, wantDir)
	if m.ClonedFrom != prev.ID || m.ID == prev.ID {
		t.Errorf("manifest IDs: cloned_from %q, id %q, previous %q", m.ClonedFrom, m.ID, prev.ID)
	}
	if m.Name != "retry" || m.ClusterID != "90" || m.SourceRevision != prev.SourceRevision {
		t.Errorf("unexpected manifest %+v", m)
	}
	if len(runner.cmds) != 1 || runner.cmds[0].Dir() != wantDir {
		t.Errorf("unexpected scheduler calls %v", runner.cmds)
	}
}

func TestResubmitWithoutManifest(t *testing.T) {
	h := newTestOrchestrator(&fakeRunner{})
	_, err := h.Resubmit(orchestrator.ResubmitOptions{SourceDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "failed to read manifest") {
		t.Errorf("expected a manifest error, got %v", err)
	}
}

func TestExtractClusterID(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   string
	}{
		{"condor_submit", "Submitting job(s)...\n3 job(s) submitted to cluster 1234.\n", "1234"},
		{"condor_submit_dag", "File for submitting this DAG to HTCondor : dag.condor.sub\n-----\nSubmitting job(s).\n1 job(s) submitted to cluster 57.\n-----\n", "57"},
		{"no cluster", "Submitting job(s)", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractClusterID(tt.stdout); got != tt.want {
				t.Errorf("extractClusterID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitBatchStagesRemoteInputs(t *testing.T) {
	src := filepath.Join(t.TempDir(), "xsec.json")
	if err := os.WriteFile(src, []byte(`{"ZH": 0.88}`), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeBatchFile(t, "entry: analysis.skim:main\njobs:\n  - input_files: [\"file::"+src+"\"]\n")
	h := newTestOrchestrator(&fakeRunner{})

	res, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     t.TempDir(),
		NoSubmit:    true,
	})
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}

	submit, err := os.ReadFile(filepath.Join(res.Dir, "submit"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(submit), "transfer_input_files = run.py,jobs/0.pklz,inputs/xsec.json\n") {
		t.Errorf("submit description does not transfer the staged input:\n%s", submit)
	}
	data, err := os.ReadFile(filepath.Join(res.Dir, "inputs", "xsec.json"))
	if err != nil {
		t.Fatalf("staged input is missing: %v", err)
	}
	if string(data) != `{"ZH": 0.88}` {
		t.Errorf("unexpected staged content %q", data)
	}
}

func TestSubmitBatchStagingFailureLeavesNothing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.root")
	path := writeBatchFile(t, "name: skim\nentry: analysis.skim:main\njobs:\n  - input_files: [\"file::"+missing+"\"]\n")
	dataDir := t.TempDir()
	runner := &fakeRunner{}
	h := newTestOrchestrator(runner)
	opts := orchestrator.SubmitOptions{
		BatchFile:   path,
		Environment: testEnvironment(),
		DataDir:     dataDir,
		Name:        "run1",
	}

	// A retry with the same name must hit the same error, not an existing
	// directory.
	for attempt := 1; attempt <= 2; attempt++ {
		_, err := h.SubmitBatch(opts)
		if err == nil || !strings.Contains(err.Error(), "failed to stage input file::"+missing) {
			t.Fatalf("attempt %d: expected a staging error, got %v", attempt, err)
		}
		if _, err := os.Stat(filepath.Join(dataDir, "batches", "skim", "run1")); !os.IsNotExist(err) {
			t.Fatalf("attempt %d: incomplete submission directory left behind: %v", attempt, err)
		}
	}
	if len(runner.cmds) != 0 {
		t.Errorf("scheduler was called %d times", len(runner.cmds))
	}
}

func TestSubmitBatchRemoteInputsNeedLocalFilesystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "name: skim\nentry: analysis.skim:main\njobs:\n  - input_files: [\"https://example.org/xsec.json\"]\n"
	if err := afero.WriteFile(fs, "/src/skim.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newTestOrchestrator(&fakeRunner{})
	h.fs = fs

	_, err := h.SubmitBatch(orchestrator.SubmitOptions{
		BatchFile:   "/src/skim.yaml",
		Environment: testEnvironment(),
		DataDir:     "/data",
		NoSubmit:    true,
	})
	if err == nil || !strings.Contains(err.Error(), "only be staged on the local filesystem") {
		t.Fatalf("expected a local filesystem error, got %v", err)
	}
	if exists, _ := afero.DirExists(fs, "/data/batches"); exists {
		t.Error("submission directory created despite the error")
	}
}

func TestResubmitNeedsLocalFilesystem(t *testing.T) {
	h := newTestOrchestrator(&fakeRunner{})
	h.fs = afero.NewMemMapFs()

	_, err := h.Resubmit(orchestrator.ResubmitOptions{SourceDir: "/data/batches/skim/first"})
	if err == nil || !strings.Contains(err.Error(), "local filesystem only") {
		t.Errorf("expected a local filesystem error, got %v", err)
	}
}
