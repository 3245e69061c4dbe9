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

// Package stage fetches remote input files into a submission directory so
// HTCondor can transfer them as local files.
package stage

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"vhbbtools/pkg/logging"
)

// InputsDir is the submission subdirectory receiving staged inputs.
const InputsDir = "inputs"

// IsRemote reports whether src must be fetched before submission: it either
// carries a URL scheme or forces a go-getter getter ("s3::...", "gcs::...").
func IsRemote(src string) bool {
	if strings.Contains(src, "::") {
		return true
	}
	u, err := url.Parse(src)
	return err == nil && u.Scheme != "" && strings.Contains(src, "://")
}

// Stager rewrites remote inputs to local paths and downloads each source
// once per submission. Stage only plans; Fetch downloads.
type Stager struct {
	dir     string
	fetch   func(dst, src string) error
	staged  map[string]string
	names   map[string]bool
	pending []string
}

// New returns a Stager writing below dir/inputs.
func New(dir string) *Stager {
	return &Stager{
		dir: dir,
		fetch: func(dst, src string) error {
			return getter.GetFile(dst, src)
		},
		staged: map[string]string{},
		names:  map[string]bool{},
	}
}

// Stage returns inputs with every remote source replaced by the path its
// local copy will have, relative to the submission directory. Local paths are
// returned unchanged and order is preserved. Nothing is downloaded until
// Fetch is called.
func (s *Stager) Stage(inputs []string) []string {
	if len(inputs) == 0 {
		return inputs
	}
	out := make([]string, len(inputs))
	for i, src := range inputs {
		if !IsRemote(src) {
			out[i] = src
			continue
		}
		rel, ok := s.staged[src]
		if !ok {
			rel = path.Join(InputsDir, s.uniqueName(src))
			s.staged[src] = rel
			s.pending = append(s.pending, src)
		}
		out[i] = rel
	}
	return out
}

// Fetch downloads every source planned by Stage and not fetched yet. The
// files are written to the local disk.
func (s *Stager) Fetch() error {
	for len(s.pending) > 0 {
		src := s.pending[0]
		dst := filepath.Join(s.dir, filepath.FromSlash(s.staged[src]))
		logging.Info("Staging input %s to %s", src, dst)
		if err := s.fetch(dst, src); err != nil {
			return fmt.Errorf("failed to stage input %s: %w", src, err)
		}
		s.pending = s.pending[1:]
	}
	return nil
}

// Staged returns the number of distinct remote sources planned so far.
func (s *Stager) Staged() int {
	return len(s.staged)
}

func (s *Stager) uniqueName(src string) string {
	name := baseName(src)
	candidate := name
	for i := 1; s.names[candidate]; i++ {
		candidate = strconv.Itoa(i) + "_" + name
	}
	s.names[candidate] = true
	return candidate
}

func baseName(src string) string {
	if _, rest, ok := strings.Cut(src, "::"); ok {
		src = rest
	}
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "input"
	}
	return name
}
