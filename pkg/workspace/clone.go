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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	cp "github.com/otiai10/copy"

	"vhbbtools/pkg/job"
	"vhbbtools/pkg/logging"
)

// IgnoreFile lists additional patterns excluded when a submission is cloned.
const IgnoreFile = ".vhbbignore"

// DefaultClonePatterns are never copied into a clone: the HTCondor logs of
// the previous run and its manifest.
var DefaultClonePatterns = []string{
	job.LogsDir,
	"*.log",
	ManifestFile,
}

// ReadIgnorePatterns builds the matcher for a clone of dir: defaultPatterns
// followed by the lines of dir/.vhbbignore, when present.
func ReadIgnorePatterns(dir string, defaultPatterns []string) (*patternmatcher.PatternMatcher, error) {
	extra, err := readIgnoreFile(filepath.Join(dir, IgnoreFile))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string(nil), defaultPatterns...), extra...)
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid clone ignore patterns %q: %w", patterns, err)
	}
	return matcher, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	logging.Debug("Read %d clone ignore pattern(s) from %s", len(patterns), path)
	return patterns, nil
}

// shouldSkip reports whether the entry at relPath is excluded. Directories
// get a trailing slash so that patterns such as "logs/" match them.
func shouldSkip(matcher *patternmatcher.PatternMatcher, relPath string, isDir bool) (bool, error) {
	if relPath == "." {
		return false, nil
	}
	relPathSlash := filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPathSlash, "/") {
		relPathSlash += "/"
	}
	return matcher.MatchesOrParentMatches(relPathSlash)
}

// Clone copies the submission directory src to dst, leaving out logs, the
// manifest and ignored entries, and creates an empty logs directory in dst.
// It works on the local disk only. A failed copy removes dst.
func Clone(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("submission directory %s already exists", dst)
	}
	matcher, err := ReadIgnorePatterns(src, DefaultClonePatterns)
	if err != nil {
		return err
	}

	logging.Info("Cloning submission %s to %s", src, dst)
	err = cp.Copy(src, dst, cp.Options{
		Skip: func(info os.FileInfo, path, _ string) (bool, error) {
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return false, fmt.Errorf("failed to get relative path for %q: %w", path, err)
			}
			skip, err := shouldSkip(matcher, rel, info.IsDir())
			if err != nil {
				return false, fmt.Errorf("failed to check ignore patterns for %q: %w", path, err)
			}
			if skip {
				logging.Debug("Skipping %q", rel)
			}
			return skip, nil
		},
	})
	if err == nil {
		err = os.MkdirAll(filepath.Join(dst, job.LogsDir), 0o755)
	}
	if err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			logging.Warn("Failed to remove incomplete clone %s: %v", dst, rmErr)
		}
		return fmt.Errorf("failed to clone %s to %s: %w", src, dst, err)
	}
	return nil
}
