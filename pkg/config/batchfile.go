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
	"bytes"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"

	"vhbbtools/pkg/job"
	"vhbbtools/pkg/stage"
)

// LoadBatchFile reads a batch description. The format is chosen by extension:
// .yaml/.yml, .toml or .hcl. Relative local input files are resolved against
// the directory of the batch file, and a missing name defaults to the file
// name without extension.
func LoadBatchFile(fs afero.Fs, path string) (*job.Batch, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read batch file %s", path)
	}

	var b *job.Batch
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		b, err = decodeYAMLBatch(data)
	case ".toml":
		b, err = decodeTOMLBatch(data)
	case ".hcl":
		b, err = decodeHCLBatch(data, path)
	default:
		return nil, &Error{Key: path, Msg: fmt.Sprintf("unsupported batch file extension %q", ext)}
	}
	if err != nil {
		return nil, &Error{Key: path, Msg: "invalid batch file", Err: err}
	}

	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve directory of %s", path)
	}
	b.InputFiles = resolveInputs(dir, b.InputFiles)
	for i := range b.Jobs {
		b.Jobs[i].InputFiles = resolveInputs(dir, b.Jobs[i].InputFiles)
	}
	return b, nil
}

func resolveInputs(dir string, inputs []string) []string {
	for i, in := range inputs {
		if in == "" || stage.IsRemote(in) || filepath.IsAbs(in) {
			continue
		}
		inputs[i] = filepath.Join(dir, in)
	}
	return inputs
}

// YAML

type yamlCommands []job.Command

// UnmarshalYAML decodes a mapping of command names to values, keeping the
// order in which the keys appear.
func (c *yamlCommands) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: commands must be a mapping of name to value", value.Line)
	}
	cmds := make([]job.Command, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of command %q must be a scalar", v.Line, k.Value)
		}
		cmds = append(cmds, job.Command{Name: k.Value, Value: v.Value})
	}
	*c = cmds
	return nil
}

type yamlJob struct {
	ID          string                 `yaml:"id"`
	Entry       string                 `yaml:"entry"`
	Args        []interface{}          `yaml:"args"`
	Kwargs      map[string]interface{} `yaml:"kwargs"`
	InputFiles  []string               `yaml:"input_files"`
	OutputFiles []string               `yaml:"output_files"`
	Commands    yamlCommands           `yaml:"commands"`
}

type yamlBatch struct {
	Name        string       `yaml:"name"`
	Entry       string       `yaml:"entry"`
	InputFiles  []string     `yaml:"input_files"`
	OutputFiles []string     `yaml:"output_files"`
	Commands    yamlCommands `yaml:"commands"`
	Jobs        []yamlJob    `yaml:"jobs"`
}

func decodeYAMLBatch(data []byte) (*job.Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f yamlBatch
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	b := &job.Batch{
		Name:        f.Name,
		Entry:       f.Entry,
		InputFiles:  f.InputFiles,
		OutputFiles: f.OutputFiles,
		Commands:    f.Commands,
	}
	for _, j := range f.Jobs {
		b.Jobs = append(b.Jobs, job.Job{
			ID:          j.ID,
			Entry:       j.Entry,
			Args:        j.Args,
			Kwargs:      j.Kwargs,
			InputFiles:  j.InputFiles,
			OutputFiles: j.OutputFiles,
			Commands:    j.Commands,
		})
	}
	return b, nil
}

// TOML

type tomlCommand struct {
	Name  string      `toml:"name"`
	Value interface{} `toml:"value"`
}

type tomlJob struct {
	ID          string                 `toml:"id"`
	Entry       string                 `toml:"entry"`
	Args        []interface{}          `toml:"args"`
	Kwargs      map[string]interface{} `toml:"kwargs"`
	InputFiles  []string               `toml:"input_files"`
	OutputFiles []string               `toml:"output_files"`
	Commands    []tomlCommand          `toml:"commands"`
}

type tomlBatch struct {
	Name        string        `toml:"name"`
	Entry       string        `toml:"entry"`
	InputFiles  []string      `toml:"input_files"`
	OutputFiles []string      `toml:"output_files"`
	Commands    []tomlCommand `toml:"commands"`
	Jobs        []tomlJob     `toml:"jobs"`
}

func decodeTOMLBatch(data []byte) (*job.Batch, error) {
	var f tomlBatch
	meta, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	b := &job.Batch{
		Name:        f.Name,
		Entry:       f.Entry,
		InputFiles:  f.InputFiles,
		OutputFiles: f.OutputFiles,
		Commands:    tomlCommands(f.Commands),
	}
	for _, j := range f.Jobs {
		b.Jobs = append(b.Jobs, job.Job{
			ID:          j.ID,
			Entry:       j.Entry,
			Args:        j.Args,
			Kwargs:      j.Kwargs,
			InputFiles:  j.InputFiles,
			OutputFiles: j.OutputFiles,
			Commands:    tomlCommands(j.Commands),
		})
	}
	return b, nil
}

func tomlCommands(in []tomlCommand) []job.Command {
	if len(in) == 0 {
		return nil
	}
	out := make([]job.Command, len(in))
	for i, c := range in {
		out[i] = job.Command{Name: c.Name, Value: fmt.Sprint(c.Value)}
	}
	return out
}

// HCL

type hclCommand struct {
	Name  string `hcl:"name,label"`
	Value string `hcl:"value"`
}

type hclJob struct {
	ID          string       `hcl:"id,optional"`
	Entry       string       `hcl:"entry,optional"`
	Args        cty.Value    `hcl:"args,optional"`
	Kwargs      cty.Value    `hcl:"kwargs,optional"`
	InputFiles  []string     `hcl:"input_files,optional"`
	OutputFiles []string     `hcl:"output_files,optional"`
	Commands    []hclCommand `hcl:"command,block"`
}

type hclBatch struct {
	Name        string       `hcl:"name,optional"`
	Entry       string       `hcl:"entry,optional"`
	InputFiles  []string     `hcl:"input_files,optional"`
	OutputFiles []string     `hcl:"output_files,optional"`
	Commands    []hclCommand `hcl:"command,block"`
	Jobs        []hclJob     `hcl:"job,block"`
}

func decodeHCLBatch(data []byte, filename string) (*job.Batch, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	var f hclBatch
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, diags
	}

	b := &job.Batch{
		Name:        f.Name,
		Entry:       f.Entry,
		InputFiles:  f.InputFiles,
		OutputFiles: f.OutputFiles,
		Commands:    hclCommands(f.Commands),
	}
	for i, j := range f.Jobs {
		args, err := ctyToNative(j.Args)
		if err != nil {
			return nil, fmt.Errorf("job block %d: args: %w", i, err)
		}
		kwargs, err := ctyToNative(j.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("job block %d: kwargs: %w", i, err)
		}
		out := job.Job{
			ID:          j.ID,
			Entry:       j.Entry,
			InputFiles:  j.InputFiles,
			OutputFiles: j.OutputFiles,
			Commands:    hclCommands(j.Commands),
		}
		if args != nil {
			list, ok := args.([]interface{})
			if !ok {
				return nil, fmt.Errorf("job block %d: args must be a list", i)
			}
			out.Args = list
		}
		if kwargs != nil {
			m, ok := kwargs.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("job block %d: kwargs must be an object", i)
			}
			out.Kwargs = m
		}
		b.Jobs = append(b.Jobs, out)
	}
	return b, nil
}

func hclCommands(in []hclCommand) []job.Command {
	if len(in) == 0 {
		return nil
	}
	out := make([]job.Command, len(in))
	for i, c := range in {
		out[i] = job.Command{Name: c.Name, Value: c.Value}
	}
	return out
}

// ctyToNative converts a cty value into plain Go values: whole numbers
// become int64, other numbers float64.
func ctyToNative(v cty.Value) (interface{}, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]interface{}, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]interface{})
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = nv
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
