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

package orchestrator

import (
	"time"

	"vhbbtools/pkg/config"
)

// SubmitOptions holds all the parameters needed to submit a batch.
// Orchestrator implementations extract the fields relevant to them.
type SubmitOptions struct {
	BatchFile   string
	Environment config.Environment
	// DataDir is the root under which submission directories are created.
	DataDir string
	// Name of the submission directory. Defaults to a timestamp.
	Name     string
	DAG      bool
	NoSubmit bool
	// Now is the submission time. Defaults to the current time.
	Now time.Time
}

// ResubmitOptions holds the parameters for resubmitting an existing
// submission directory.
type ResubmitOptions struct {
	SourceDir string
	Name      string
	NoSubmit  bool
	Now       time.Time
}

// Result describes a submission directory written by an Orchestrator.
type Result struct {
	Dir       string
	Jobs      []string
	Submitted bool
	// ClusterID is the scheduler's identifier of the submission, when known.
	ClusterID string
}

// Orchestrator defines the interface for submitting batches to a scheduler.
type Orchestrator interface {
	// SubmitBatch prepares a submission directory for a batch file and
	// submits it unless NoSubmit is set.
	SubmitBatch(opts SubmitOptions) (*Result, error)
	// Resubmit copies an existing submission directory and submits the copy.
	Resubmit(opts ResubmitOptions) (*Result, error)
}
