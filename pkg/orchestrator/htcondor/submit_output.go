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

package htcondor

import (
	"regexp"
	"strings"
)

var clusterPattern = regexp.MustCompile(`job\(s\) submitted to cluster (\d+)`)

// extractClusterID parses the cluster ID from condor_submit's stdout, e.g.
// "3 job(s) submitted to cluster 1234.". It returns "" when none is found.
func extractClusterID(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		if m := clusterPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}
