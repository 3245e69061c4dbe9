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

// Package job defines the jobs and batches submitted to HTCondor and the
// serialized payload each job carries to its worker node.
package job

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// JobsDir is the submission subdirectory holding job payloads.
	JobsDir = "jobs"
	// LogsDir is the submission subdirectory holding HTCondor logs.
	LogsDir = "logs"
	// PayloadExt is the extension of serialized job payloads.
	PayloadExt = ".pklz"
)

// ReservedCommands are the submit commands generated for every job. They
// cannot be overridden through Commands.
var ReservedCommands = []string{
	"arguments",
	"error",
	"executable",
	"getenv",
	"log",
	"output",
	"queue",
	"should_transfer_files",
	"transfer_input_files",
	"transfer_output_files",
	"universe",
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Command is a single HTCondor submit command emitted as "Name = Value".
type Command struct {
	Name  string
	Value string
}

// Job is one call of an entry point, executed on a worker node.
type Job struct {
	ID          string
	Entry       string
	Args        []interface{}
	Kwargs      map[string]interface{}
	InputFiles  []string
	OutputFiles []string
	Commands    []Command
}

// PayloadPath returns the path of the job payload relative to the
// submission directory.
func (j Job) PayloadPath() string {
	return JobsDir + "/" + j.ID + PayloadExt
}

// Batch is a set of jobs sharing one submit description. The batch-level
// Entry, InputFiles, OutputFiles and Commands apply to every job.
type Batch struct {
	Name        string
	Entry       string
	InputFiles  []string
	OutputFiles []string
	Commands    []Command
	Jobs        []Job
}

// Normalized returns a copy of the batch in which every job is
// self-contained: missing IDs are replaced by the job index, missing entries
// by the batch entry, and batch-level files and commands are prepended to the
// job's own. A job command replaces the batch command of the same name. The
// batch-level lists of the copy are empty, so normalizing twice
// is harmless.
func (b *Batch) Normalized() *Batch {
	out := &Batch{
		Name:  b.Name,
		Entry: b.Entry,
		Jobs:  make([]Job, len(b.Jobs)),
	}
	for i, j := range b.Jobs {
		if j.ID == "" {
			j.ID = strconv.Itoa(i)
		}
		if j.Entry == "" {
			j.Entry = b.Entry
		}
		j.InputFiles = concat(b.InputFiles, j.InputFiles)
		j.OutputFiles = concat(b.OutputFiles, j.OutputFiles)
		j.Commands = mergeCommands(b.Commands, j.Commands)
		out.Jobs[i] = j
	}
	return out
}

func concat[T any](a, b []T) []T {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// mergeCommands returns the batch commands not overridden by the job
// followed by the job commands.
func mergeCommands(batch, own []Command) []Command {
	var out []Command
	for _, c := range batch {
		if !hasCommand(own, c.Name) {
			out = append(out, c)
		}
	}
	return append(out, own...)
}

func hasCommand(cmds []Command, name string) bool {
	for _, c := range cmds {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Validate checks that the batch can be rendered and submitted. It expects a
// normalized batch.
func (b *Batch) Validate() error {
	if len(b.Jobs) == 0 {
		return fmt.Errorf("batch %q has no jobs", b.Name)
	}
	if err := validateCommands(b.Commands); err != nil {
		return err
	}
	seen := make(map[string]bool, len(b.Jobs))
	for i, j := range b.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
		if seen[j.ID] {
			return fmt.Errorf("job %d: duplicate job ID %q", i, j.ID)
		}
		seen[j.ID] = true
	}
	return nil
}

// Validate checks a single job.
func (j Job) Validate() error {
	if !idPattern.MatchString(j.ID) {
		return fmt.Errorf("invalid job ID %q: only letters, digits, '.', '_' and '-' are allowed", j.ID)
	}
	module, attr, ok := strings.Cut(j.Entry, ":")
	if !ok || module == "" || attr == "" {
		return fmt.Errorf("invalid entry point %q: expected \"module:function\"", j.Entry)
	}
	if err := validateFiles("input", j.InputFiles); err != nil {
		return err
	}
	if err := validateFiles("output", j.OutputFiles); err != nil {
		return err
	}
	return validateCommands(j.Commands)
}

func validateFiles(kind string, files []string) error {
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("empty %s file name", kind)
		}
		if strings.ContainsAny(f, ",\n") {
			return fmt.Errorf("%s file %q must not contain commas or newlines", kind, f)
		}
	}
	return nil
}

func validateCommands(cmds []Command) error {
	for i, c := range cmds {
		if c.Name == "" || strings.ContainsAny(c.Name, " \t\n=") {
			return fmt.Errorf("invalid command name %q", c.Name)
		}
		if IsReserved(c.Name) {
			return fmt.Errorf("command %q is generated automatically and cannot be overridden", c.Name)
		}
		if strings.Contains(c.Value, "\n") {
			return fmt.Errorf("value of command %q must be a single line", c.Name)
		}
		if hasCommand(cmds[:i], c.Name) {
			return fmt.Errorf("command %q is given more than once", c.Name)
		}
	}
	return nil
}

// IsReserved reports whether name is one of the ReservedCommands. Submit
// command names are case-insensitive.
func IsReserved(name string) bool {
	for _, r := range ReservedCommands {
		if strings.EqualFold(name, r) {
			return true
		}
	}
	return false
}
