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

package workspace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest in a submission directory.
const ManifestFile = "batch.yaml"

// Submission modes.
const (
	ModePlain = "plain"
	ModeDAG   = "dag"
)

// ManifestEnvironment records the environment captured into the worker script.
type ManifestEnvironment struct {
	ScramArch    string `yaml:"scram_arch"`
	CMSSWVersion string `yaml:"cmssw_version"`
	Layout       string `yaml:"layout"`
}

// Manifest describes a submission.
type Manifest struct {
	ID             string              `yaml:"id"`
	Batch          string              `yaml:"batch"`
	Name           string              `yaml:"name"`
	Created        time.Time           `yaml:"created"`
	Mode           string              `yaml:"mode"`
	SourceRevision string              `yaml:"source_revision,omitempty"`
	ClonedFrom     string              `yaml:"cloned_from,omitempty"`
	Environment    ManifestEnvironment `yaml:"environment"`
	Jobs           []string            `yaml:"jobs"`
	ClusterID      string              `yaml:"cluster_id,omitempty"`
}

// NewManifest returns a manifest with a fresh submission ID.
func NewManifest(batch, name, mode string, created time.Time) *Manifest {
	return &Manifest{
		ID:      uuid.NewString(),
		Batch:   batch,
		Name:    name,
		Created: created.UTC(),
		Mode:    mode,
	}
}

// WriteManifest writes m to the manifest file of the workspace.
func (w *Workspace) WriteManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return w.WriteFile(ManifestFile, data)
}

// ReadManifest reads the manifest file of the workspace.
func (w *Workspace) ReadManifest() (*Manifest, error) {
	data, err := afero.ReadFile(w.Fs, w.Path(ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", w.Path(ManifestFile), err)
	}
	switch m.Mode {
	case ModePlain, ModeDAG:
	default:
		return nil, fmt.Errorf("manifest %s has unknown mode %q", w.Path(ManifestFile), m.Mode)
	}
	return &m, nil
}
