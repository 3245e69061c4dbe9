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

package job

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

// Payload is the serialized form of a job: the entry point to import on the
// worker node and the arguments to call it with.
type Payload struct {
	Entry  string                 `msgpack:"entry"`
	Args   []interface{}          `msgpack:"args"`
	Kwargs map[string]interface{} `msgpack:"kwargs"`
}

// EncodePayload serializes a job as gzip-compressed msgpack. Map keys are
// sorted so the same job always encodes to the same bytes.
func EncodePayload(j Job) ([]byte, error) {
	p := Payload{Entry: j.Entry, Args: j.Args, Kwargs: j.Kwargs}
	if p.Args == nil {
		p.Args = []interface{}{}
	}
	if p.Kwargs == nil {
		p.Kwargs = map[string]interface{}{}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := msgpack.NewEncoder(zw)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&p); err != nil {
		return nil, fmt.Errorf("failed to encode payload of job %q: %w", j.ID, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload of job %q: %w", j.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodePayload reverses EncodePayload. Integers decode as int64 and floats
// as float64.
func DecodePayload(data []byte) (*Payload, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed payload: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &p, nil
}

// Packager writes job payloads to a filesystem.
type Packager struct {
	Fs afero.Fs
}

// NewPackager returns a Packager writing to fs.
func NewPackager(fs afero.Fs) *Packager {
	return &Packager{Fs: fs}
}

// Encode serializes every job of the batch without touching the filesystem.
// The result maps each job's PayloadPath to its payload.
func (p *Packager) Encode(b *Batch) (map[string][]byte, error) {
	out := make(map[string][]byte, len(b.Jobs))
	for _, j := range b.Jobs {
		data, err := EncodePayload(j)
		if err != nil {
			return nil, err
		}
		out[j.PayloadPath()] = data
	}
	return out, nil
}

// Package serializes every job of the batch below dir and returns the
// written paths in job order.
func (p *Packager) Package(dir string, b *Batch) ([]string, error) {
	if err := p.Fs.MkdirAll(filepath.Join(dir, JobsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}
	paths := make([]string, 0, len(b.Jobs))
	for _, j := range b.Jobs {
		data, err := EncodePayload(j)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, filepath.FromSlash(j.PayloadPath()))
		if err := afero.WriteFile(p.Fs, path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write payload %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
