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

// Package shell runs external commands and captures their output.
package shell

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// CommandResult holds the captured output of a finished command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is an external command with an optional working directory.
type Command struct {
	name  string
	args  []string
	dir   string
}

// NewCommand creates a command. When no args are given and name contains
// whitespace, name is split into a program and its arguments.
func NewCommand(name string, args ...string) *Command {
	if len(args) == 0 && strings.ContainsAny(name, " \t") {
		fields := strings.Fields(name)
		name, args = fields[0], fields[1:]
	}
	return &Command{name: name, args: args}
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) {
	c.dir = dir
}

// Name returns the program name.
func (c *Command) Name() string {
	return c.name
}

// Args returns the program arguments.
func (c *Command) Args() []string {
	return c.args
}

// Dir returns the working directory, empty for the current one.
func (c *Command) Dir() string {
	return c.dir
}

// String returns the command line as it would be typed.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Execute runs the command to completion. A program that cannot be started
// reports exit code 127 with the start error in Stderr.
func (c *Command) Execute() CommandResult {
	cmd := exec.Command(c.name, c.args...)
	cmd.Dir = c.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = 127
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}
