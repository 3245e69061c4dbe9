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

// Package workspace manages submission directories: one directory per
// submitted batch holding the payloads, the rendered files, the HTCondor logs
// and a manifest describing the submission.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"vhbbtools/pkg/job"
	"vhbbtools/pkg/logging"
)

// EnvDataDir overrides the root of all submission directories.
const EnvDataDir = "VHBBTOOLS_DATA_DIR"

// NameFormat is the layout of default submission names.
const NameFormat = "20060102_150405"

// DataDir returns the root under which submissions are created:
// $VHBBTOOLS_DATA_DIR, else $XDG_DATA_HOME/vhbbtools, else
// ~/.local/share/vhbbtools.
func DataDir(lookup func(string) (string, bool)) (string, error) {
	if dir, ok := lookup(EnvDataDir); ok && dir != "" {
		return dir, nil
	}
	if dir, ok := lookup("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "vhbbtools"), nil
	}
	home, ok := lookup("HOME")
	if !ok || home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", fmt.Errorf("failed to determine the data directory: %w", err)
		}
	}
	return filepath.Join(home, ".local", "share", "vhbbtools"), nil
}

// Workspace is a submission directory.
type Workspace struct {
	Fs  afero.Fs
	Dir string
}

// SubmissionDir returns <root>/batches/<batch>/<name>. An empty name is
// replaced by the timestamp now.
func SubmissionDir(root, batchName, name string, now time.Time) string {
	if name == "" {
		name = now.Format(NameFormat)
	}
	return filepath.Join(root, "batches", strings.ToLower(batchName), name)
}

// Create makes a new submission directory with its jobs and logs
// subdirectories. It fails if the directory already exists.
func Create(fs afero.Fs, dir string) (*Workspace, error) {
	if exists, err := afero.Exists(fs, dir); err != nil {
		return nil, fmt.Errorf("failed to check submission directory %s: %w", dir, err)
	} else if exists {
		return nil, fmt.Errorf("submission directory %s already exists", dir)
	}
	for _, sub := range []string{job.JobsDir, job.LogsDir} {
		if err := fs.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", filepath.Join(dir, sub), err)
		}
	}
	logging.Debug("Created submission directory %s", dir)
	return &Workspace{Fs: fs, Dir: dir}, nil
}

// Open returns the workspace of an existing submission directory.
func Open(fs afero.Fs, dir string) (*Workspace, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &Workspace{Fs: fs, Dir: dir}, nil
}

// Path returns the absolute path of a slash-separated relative path.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(rel))
}

// WriteFile writes data to the relative path rel, creating parent
// directories as needed.
func (w *Workspace) WriteFile(rel string, data []byte) error {
	return w.write(rel, data, 0o644)
}

// WriteExecutable is WriteFile with the executable bit set.
func (w *Workspace) WriteExecutable(rel string, data []byte) error {
	return w.write(rel, data, 0o755)
}

func (w *Workspace) write(rel string, data []byte, perm os.FileMode) error {
	path := w.Path(rel)
	if err := w.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(w.Fs, path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := w.Fs.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions of %s: %w", path, err)
	}
	return nil
}
