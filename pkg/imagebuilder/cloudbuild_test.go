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

package imagebuilder

import (
	"strings"
	"testing"
)

func TestQualifiedImageName(t *testing.T) {
	tests := []struct {
		name      string
		imageName string
		projectID string
		want      string
		wantErr   bool
	}{
		{
			name:      "bare name gets registry and tag",
			imageName: "trainer",
			projectID: "my-project",
			want:      "gcr.io/my-project/trainer:latest",
		},
		{
			name:      "bare name with tag",
			imageName: "trainer:v2",
			projectID: "my-project",
			want:      "gcr.io/my-project/trainer:v2",
		},
		{
			name:      "already qualified gcr name",
			imageName: "gcr.io/other/trainer:v1",
			projectID: "my-project",
			want:      "gcr.io/other/trainer:v1",
		},
		{
			name:      "artifact registry name",
			imageName: "us-docker.pkg.dev/p/repo/trainer:v1",
			projectID: "my-project",
			want:      "us-docker.pkg.dev/p/repo/trainer:v1",
		},
		{
			name:      "empty name rejected",
			imageName: "  ",
			projectID: "my-project",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := qualifiedImageName(tt.imageName, tt.projectID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("qualifiedImageName(%q) succeeded, want error", tt.imageName)
				}
				return
			}
			if err != nil {
				t.Fatalf("qualifiedImageName failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("qualifiedImageName(%q) = %q, want %q", tt.imageName, got, tt.want)
			}
		})
	}
}

func TestRenderCloudBuildYaml(t *testing.T) {
	yaml, err := renderCloudBuildYaml("docker/Dockerfile.train", "gcr.io/my-project/trainer:v1")
	if err != nil {
		t.Fatalf("renderCloudBuildYaml failed: %v", err)
	}
	for _, want := range []string{
		"'-f', 'docker/Dockerfile.train'",
		"'-t', 'gcr.io/my-project/trainer:v1'",
		"- 'gcr.io/my-project/trainer:v1'",
	} {
		if !strings.Contains(yaml, want) {
			t.Errorf("rendered cloudbuild.yaml missing %q:\n%s", want, yaml)
		}
	}
}

func TestExtractBuildURL(t *testing.T) {
	stdout := `Creating temporary archive...
Logs are available at [https://console.cloud.google.com/cloud-build/builds/abc-123?project=42].
`
	got := extractBuildURL(stdout)
	if !strings.HasPrefix(got, "https://console.cloud.google.com/cloud-build/builds/abc-123") {
		t.Errorf("extractBuildURL = %q", got)
	}

	if got := extractBuildURL("no url here"); got != "" {
		t.Errorf("extractBuildURL on plain output = %q, want empty", got)
	}
}
