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

package config

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestEnvironmentFromLookup(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    Environment
		wantKey string
	}{
		{
			name: "defaults",
			vars: map[string]string{
				EnvScramArch:    "slc6_amd64_gcc530",
				EnvCMSSWVersion: "CMSSW_8_0_25",
			},
			want: Environment{
				ScramArch:    "slc6_amd64_gcc530",
				CMSSWVersion: "CMSSW_8_0_25",
				Layout:       LayoutRelease,
				Requirements: []string{"msgpack"},
			},
		},
		{
			name: "explicit layout and requirements",
			vars: map[string]string{
				EnvScramArch:    "slc6_amd64_gcc530",
				EnvCMSSWVersion: "CMSSW_8_0_25",
				EnvWorkerLayout: "standalone",
				EnvRequirements: "msgpack, rootpy==1.0.0 appdirs",
			},
			want: Environment{
				ScramArch:    "slc6_amd64_gcc530",
				CMSSWVersion: "CMSSW_8_0_25",
				Layout:       LayoutStandalone,
				Requirements: []string{"msgpack", "rootpy==1.0.0", "appdirs"},
			},
		},
		{
			name:    "missing SCRAM_ARCH",
			vars:    map[string]string{EnvCMSSWVersion: "CMSSW_8_0_25"},
			wantKey: EnvScramArch,
		},
		{
			name:    "blank CMSSW_VERSION",
			vars:    map[string]string{EnvScramArch: "slc6_amd64_gcc530", EnvCMSSWVersion: "  "},
			wantKey: EnvCMSSWVersion,
		},
		{
			name: "unknown layout",
			vars: map[string]string{
				EnvScramArch:    "slc6_amd64_gcc530",
				EnvCMSSWVersion: "CMSSW_8_0_25",
				EnvWorkerLayout: "docker",
			},
			wantKey: EnvWorkerLayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EnvironmentFromLookup(lookupFrom(tt.vars))
			if tt.wantKey != "" {
				var cfgErr *Error
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected a configuration error, got %v", err)
				}
				if cfgErr.Key != tt.wantKey {
					t.Errorf("expected error for %s, got %s", tt.wantKey, cfgErr.Key)
				}
				return
			}
			if err != nil {
				t.Fatalf("EnvironmentFromLookup failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("environment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Key: EnvScramArch, Msg: "required variable is not set"}
	want := "configuration error: SCRAM_ARCH: required variable is not set"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	inner := errors.New("boom")
	wrapped := &Error{Key: "batch.yaml", Msg: "invalid batch file", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("expected the wrapped error to be reachable")
	}
}
