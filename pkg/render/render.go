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

// Package render generates the HTCondor submission files of a batch: the
// submit description, the worker bootstrap script and, in DAG mode, the DAG
// input file with one submit description per node.
//
// Rendering is a pure function of its arguments. The process environment is
// never consulted; callers pass a config.Environment instead.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"vhbbtools/pkg/config"
	"vhbbtools/pkg/job"
)

// Names of the generated files, relative to the submission directory.
const (
	SubmitFile       = "submit"
	DAGFile          = "dag"
	NodesDir         = "nodes"
	WorkerScriptFile = "worker.sh"
	RunScriptFile    = "run.py"
)

// TimestampFormat is the layout of the generation timestamp in file headers.
const TimestampFormat = "Mon Jan 02 15:04:05 MST 2006"

var (
	funcs = template.FuncMap{
		"transferInputs":  transferInputs,
		"transferOutputs": transferOutputs,
		"shquote":         shellQuote,
	}

	submitTmpl = template.Must(template.New("submit").Funcs(funcs).Option("missingkey=error").Parse(SubmitDescriptionTemplate))
	dagTmpl    = template.Must(template.New("dag").Funcs(funcs).Option("missingkey=error").Parse(DAGInputFileTemplate))
	workerTmpl = template.Must(template.New("worker").Funcs(funcs).Option("missingkey=error").Parse(WorkerScriptTemplate))

	shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=+@%-]+$`)
)

// Rendered holds the files of a plain batch submission.
type Rendered struct {
	SubmitDescription string
	WorkerScript      string
}

// Node is the submit description of one DAG node.
type Node struct {
	JobID string
	// Path is relative to the submission directory.
	Path              string
	SubmitDescription string
}

// RenderedDAG holds the files of a DAG submission.
type RenderedDAG struct {
	DAGInputFile string
	Nodes        []Node
	WorkerScript string
}

// FormatTimestamp formats t the way generated file headers show it.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampFormat)
}

// Render produces the submit description and the worker script of a batch.
// An incomplete environment is reported as a *config.Error and nothing is
// rendered.
func Render(b *job.Batch, env config.Environment, timestamp time.Time) (*Rendered, error) {
	nb, env, err := prepare(b, env)
	if err != nil {
		return nil, err
	}
	ts := FormatTimestamp(timestamp)

	submit, err := execute(submitTmpl, submitData{Timestamp: ts, Jobs: nb.Jobs})
	if err != nil {
		return nil, fmt.Errorf("failed to execute submit description template: %w", err)
	}
	worker, err := execute(workerTmpl, workerData{Timestamp: ts, Env: env})
	if err != nil {
		return nil, fmt.Errorf("failed to execute worker script template: %w", err)
	}
	return &Rendered{SubmitDescription: submit, WorkerScript: worker}, nil
}

// RenderDAG produces the DAG input file, one single-job submit description
// per node, and the worker script.
func RenderDAG(b *job.Batch, env config.Environment, timestamp time.Time) (*RenderedDAG, error) {
	nb, env, err := prepare(b, env)
	if err != nil {
		return nil, err
	}
	ts := FormatTimestamp(timestamp)

	dag, err := execute(dagTmpl, submitData{Timestamp: ts, Jobs: nb.Jobs})
	if err != nil {
		return nil, fmt.Errorf("failed to execute DAG input file template: %w", err)
	}
	out := &RenderedDAG{DAGInputFile: dag, Nodes: make([]Node, 0, len(nb.Jobs))}
	for _, j := range nb.Jobs {
		node, err := execute(submitTmpl, submitData{Timestamp: ts, Jobs: []job.Job{j}})
		if err != nil {
			return nil, fmt.Errorf("failed to execute submit description template for node %s: %w", j.ID, err)
		}
		out.Nodes = append(out.Nodes, Node{
			JobID:             j.ID,
			Path:              NodePath(j.ID),
			SubmitDescription: node,
		})
	}
	out.WorkerScript, err = execute(workerTmpl, workerData{Timestamp: ts, Env: env})
	if err != nil {
		return nil, fmt.Errorf("failed to execute worker script template: %w", err)
	}
	return out, nil
}

// NodePath returns the path of a DAG node submit description relative to
// the submission directory.
func NodePath(jobID string) string {
	return NodesDir + "/" + jobID + ".sub"
}

type submitData struct {
	Timestamp string
	Jobs      []job.Job
}

type workerData struct {
	Timestamp string
	Env       config.Environment
}

func prepare(b *job.Batch, env config.Environment) (*job.Batch, config.Environment, error) {
	env = env.WithDefaults()
	if err := env.Validate(); err != nil {
		return nil, env, err
	}
	nb := b.Normalized()
	if err := nb.Validate(); err != nil {
		return nil, env, fmt.Errorf("invalid batch %q: %w", b.Name, err)
	}
	return nb, env, nil
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func transferInputs(j job.Job) string {
	files := append([]string{RunScriptFile, j.PayloadPath()}, j.InputFiles...)
	return strings.Join(files, ",")
}

func transferOutputs(j job.Job) string {
	if len(j.OutputFiles) == 0 {
		return `""`
	}
	return strings.Join(j.OutputFiles, ",")
}

func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
