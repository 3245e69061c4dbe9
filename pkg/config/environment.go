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

// Package config holds the explicit configuration passed to the renderer and
// the loaders for batch files.
package config

import (
	"fmt"
	"strings"
)

// Environment variables read by EnvironmentFromLookup.
const (
	EnvScramArch    = "SCRAM_ARCH"
	EnvCMSSWVersion = "CMSSW_VERSION"
	EnvWorkerLayout = "VHBBTOOLS_WORKER_LAYOUT"
	EnvRequirements = "VHBBTOOLS_REQUIREMENTS"
)

// Layout selects how the worker script installs the Python dependencies.
type Layout string

const (
	// LayoutRelease installs dependencies from inside the deployed CMSSW
	// release area, after its runtime environment is loaded.
	LayoutRelease Layout = "release"
	// LayoutStandalone creates the virtual environment next to the release
	// area and installs dependencies there.
	LayoutStandalone Layout = "standalone"
)

// DefaultRequirements are installed on the worker node when no requirements
// are configured. run.py needs msgpack to decode job payloads.
var DefaultRequirements = []string{"msgpack"}

// Error is a configuration error: a missing or invalid setting.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Key, e.Msg, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Environment is the snapshot of the submitting environment captured into
// the worker script.
type Environment struct {
	ScramArch    string
	CMSSWVersion string
	Layout       Layout
	Requirements []string
}

// EnvironmentFromLookup builds an Environment from a variable lookup such as
// os.LookupEnv. Missing required variables are reported as *Error.
func EnvironmentFromLookup(lookup func(string) (string, bool)) (Environment, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	env := Environment{
		ScramArch:    get(EnvScramArch),
		CMSSWVersion: get(EnvCMSSWVersion),
		Layout:       Layout(get(EnvWorkerLayout)),
		Requirements: splitList(get(EnvRequirements)),
	}
	env = env.WithDefaults()
	if err := env.Validate(); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// WithDefaults fills the optional fields.
func (e Environment) WithDefaults() Environment {
	if e.Layout == "" {
		e.Layout = LayoutRelease
	}
	if len(e.Requirements) == 0 {
		e.Requirements = append([]string(nil), DefaultRequirements...)
	}
	return e
}

// Validate reports the first missing or invalid setting.
func (e Environment) Validate() error {
	if e.ScramArch == "" {
		return &Error{Key: EnvScramArch, Msg: "required variable is not set"}
	}
	if e.CMSSWVersion == "" {
		return &Error{Key: EnvCMSSWVersion, Msg: "required variable is not set"}
	}
	switch e.Layout {
	case LayoutRelease, LayoutStandalone:
	default:
		return &Error{Key: EnvWorkerLayout, Msg: fmt.Sprintf("unknown worker layout %q, expected %q or %q", e.Layout, LayoutRelease, LayoutStandalone)}
	}
	for _, r := range e.Requirements {
		if strings.ContainsAny(r, " \t\n'\"") {
			return &Error{Key: EnvRequirements, Msg: fmt.Sprintf("invalid requirement %q", r)}
		}
	}
	return nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
