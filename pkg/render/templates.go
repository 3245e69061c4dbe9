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

package render

// SubmitDescriptionTemplate renders the HTCondor submit description. Shared
// commands come first, then one stanza per job, each closed by its own queue
// statement.
const SubmitDescriptionTemplate = `# HTCondor submit description file
# Generated by vhbbtools on {{ .Timestamp }}
universe = vanilla
should_transfer_files = YES
executable = ` + WorkerScriptFile + `
{{- range .Jobs }}

arguments = {{ .ID }}
transfer_input_files = {{ transferInputs . }}
transfer_output_files = {{ transferOutputs . }}
output = logs/{{ .ID }}.out
error = logs/{{ .ID }}.err
log = logs/{{ .ID }}.log
{{- range .Commands }}
{{ .Name }} = {{ .Value }}
{{- end }}
queue
{{- end }}
`

// DAGInputFileTemplate renders the DAGMan input file with one independent
// node per job.
const DAGInputFileTemplate = `# HTCondor DAG input file
# Generated by vhbbtools on {{ .Timestamp }}
{{- range .Jobs }}
JOB {{ .ID }} ` + NodesDir + `/{{ .ID }}.sub
{{- end }}
`

// WorkerScriptTemplate renders the worker bootstrap script. The release
// layout installs the Python dependencies from inside the deployed release
// area; the standalone layout returns to the scratch directory first.
const WorkerScriptTemplate = `#!/bin/bash
# Worker bootstrap script generated by vhbbtools on {{ .Timestamp }}
# Usage: ` + WorkerScriptFile + ` JOB
JOB="$1"

# Set up the CMS software environment.
export SCRAM_ARCH={{ shquote .Env.ScramArch }}
source /cvmfs/cms.cern.ch/cmsset_default.sh

# Deploy the CMSSW release.
scram project CMSSW {{ shquote .Env.CMSSWVersion }}
cd {{ shquote .Env.CMSSWVersion }}/src
eval ` + "`scram runtime -sh`" + `
{{- if eq .Env.Layout "standalone" }}
cd ../..
{{- end }}

# Activate the Python environment and install the dependencies.
virtualenv --system-site-packages venv
source venv/bin/activate
pip install --quiet{{ range .Env.Requirements }} {{ shquote . }}{{ end }}
{{- if eq .Env.Layout "release" }}
cd ../..
{{- end }}

# Run the job.
python ` + RunScriptFile + ` "$JOB"
`

// RunScript is the fixed entry script executed by the worker. It loads the
// job payload, imports the entry point and calls it.
const RunScript = `#!/usr/bin/env python
"""Load a vhbbtools job payload and call its entry point."""
import gzip
import importlib
import logging
import sys

import msgpack


def load_payload(job):
    with gzip.open('jobs/{0}.pklz'.format(job), 'rb') as f:
        return msgpack.unpackb(f.read(), raw=False)


def main():
    logging.basicConfig(
        format='%(asctime)s - %(name)s - %(levelname)s - %(message)s',
        datefmt='%a %b %d %H:%M:%S %Z %Y',
        level=logging.DEBUG,
    )
    payload = load_payload(sys.argv[1])
    module_name, _, attr = payload['entry'].partition(':')
    func = importlib.import_module(module_name)
    for name in attr.split('.'):
        func = getattr(func, name)
    return func(*payload['args'], **payload['kwargs'])


if __name__ == '__main__':
    status = main()
    sys.exit(status if isinstance(status, int) else 0)
`
