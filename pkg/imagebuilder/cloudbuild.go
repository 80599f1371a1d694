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
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/shell"
)

// cloudBuildTemplate is the Go template for generating cloudbuild.yaml.
const cloudBuildTemplate = `
steps:
- name: 'gcr.io/cloud-builders/docker'
  args: ['build', '-f', '{{.Dockerfile}}', '-t', '{{.FullImageName}}', '.']
images:
- '{{.FullImageName}}'
`

// CloudBuildOptions holds parameters for a Dockerfile build on Cloud Build.
type CloudBuildOptions struct {
	ImageName    string
	Dockerfile   string
	BuildContext string
	ProjectID    string
}

// BuildWithCloudBuild submits a Dockerfile build to Cloud Build and returns
// the image reference the build will push. The build runs asynchronously;
// callers submitting a job right away rely on the scheduler's image pull
// retries.
func BuildWithCloudBuild(opts CloudBuildOptions) (string, error) {
	fullImageName, err := qualifiedImageName(opts.ImageName, opts.ProjectID)
	if err != nil {
		return "", err
	}

	yaml, err := renderCloudBuildYaml(opts.Dockerfile, fullImageName)
	if err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "cloudbuild-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary cloudbuild.yaml file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(yaml); err != nil {
		return "", fmt.Errorf("failed to write cloudbuild.yaml content to temporary file: %w", err)
	}

	logging.Info("Submitting Cloud Build with context: %s", opts.BuildContext)
	res := shell.ExecuteCommand("gcloud", "builds", "submit", opts.BuildContext,
		"--config="+tmpFile.Name(), "--project="+opts.ProjectID)
	if res.ExitCode != 0 {
		return "", fmt.Errorf("gcloud builds submit failed with exit code %d: %s\n%s", res.ExitCode, res.Stderr, res.Stdout)
	}

	if buildURL := extractBuildURL(res.Stdout); buildURL != "" {
		logging.Info("Cloud Build submitted. Monitor its progress at: %s", buildURL)
	} else {
		logging.Info("Cloud Build submitted. Use 'gcloud builds list' to monitor progress.")
	}
	return fullImageName, nil
}

func renderCloudBuildYaml(dockerfile, fullImageName string) (string, error) {
	tmpl, err := template.New("cloudbuild").Parse(cloudBuildTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse cloudbuild template: %w", err)
	}

	data := struct {
		Dockerfile    string
		FullImageName string
	}{
		Dockerfile:    dockerfile,
		FullImageName: fullImageName,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute cloudbuild template: %w", err)
	}
	return buf.String(), nil
}

// qualifiedImageName prefixes a bare image name with the project's registry.
func qualifiedImageName(imageName, projectID string) (string, error) {
	imageName = strings.TrimSpace(imageName)
	if imageName == "" {
		return "", fmt.Errorf("image name cannot be empty")
	}
	if strings.HasPrefix(imageName, "gcr.io/") || strings.Contains(imageName, "-docker.pkg.dev/") {
		return imageName, nil
	}
	if !strings.Contains(imageName, ":") {
		imageName += ":latest"
	}
	return fmt.Sprintf("gcr.io/%s/%s", projectID, imageName), nil
}

// extractBuildURL attempts to parse the Cloud Build URL from gcloud's stdout.
func extractBuildURL(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		if strings.Contains(line, "builds/") && strings.Contains(line, "console.cloud.google.com") {
			if idx := strings.Index(line, "https://console.cloud.google.com"); idx != -1 {
				return strings.TrimSpace(line[idx:])
			}
		}
	}
	return ""
}
