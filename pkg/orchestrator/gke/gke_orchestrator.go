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

// Package gke submits training jobs to a GKE cluster by rendering a
// Kubernetes manifest and applying it with kubectl. The manifest carries the
// job's parameter set, resource facts and channel map in a ConfigMap mounted
// at the executor's config directory, so the container discovers everything
// through the fixed trainenv layout.
package gke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/orchestrator"
	"scriptjob-toolkit/pkg/shell"
)

// TrainingJobTemplate renders the ConfigMap and indexed Job for one
// submitted training job.
const TrainingJobTemplate = `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{.JobName}}-config
  namespace: {{.Namespace}}
  labels:
    scriptjob.google.com/job: {{.JobName}}
data:
  hyperparameters.json: |
{{.HyperparametersJSON}}
  resourceconfig.json: |
{{.ResourceConfigJSON}}
  inputdataconfig.json: |
{{.InputDataConfigJSON}}
---
apiVersion: batch/v1
kind: Job
metadata:
  name: {{.JobName}}
  namespace: {{.Namespace}}
  labels:
    scriptjob.google.com/job: {{.JobName}}
spec:
  completions: {{.InstanceCount}}
  parallelism: {{.InstanceCount}}
  completionMode: Indexed
  backoffLimit: 0
  template:
    metadata:
      labels:
        scriptjob.google.com/job: {{.JobName}}
    spec:
      restartPolicy: Never
{{- if .ServiceAccount }}
      serviceAccountName: {{.ServiceAccount}}
{{- end }}
      containers:
      - name: training-container
        image: {{.Image}}
        command: ["scriptjob", "bootstrap"]
        volumeMounts:
        - name: ml-root
          mountPath: /opt/ml
        - name: job-config
          mountPath: /opt/ml/input/config
          readOnly: true
{{- if .InstanceType }}
      nodeSelector:
        node.kubernetes.io/instance-type: {{.InstanceType}}
{{- end }}
      volumes:
      - name: job-config
        configMap:
          name: {{.JobName}}-config
      - name: ml-root
        emptyDir: {}
`

// GKEOrchestrator implements the Orchestrator interface against a GKE
// cluster reached through gcloud and kubectl.
type GKEOrchestrator struct {
	ProjectID       string
	ClusterName     string
	ClusterLocation string
}

// NewGKEOrchestrator creates an orchestrator for the given cluster. An empty
// project ID is inferred from the active gcloud configuration. Cluster name
// and location are only required when a job is actually applied, not when it
// is rendered to a manifest file.
func NewGKEOrchestrator(projectID, clusterName, clusterLocation string) *GKEOrchestrator {
	return &GKEOrchestrator{
		ProjectID:       projectID,
		ClusterName:     clusterName,
		ClusterLocation: clusterLocation,
	}
}

// SubmitJob renders the training job manifest and applies it to the cluster,
// or writes it to job.OutputManifest when set.
func (g *GKEOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) error {
	jobName := job.EffectiveJobName()

	manifest, err := g.RenderManifest(job, jobName)
	if err != nil {
		return err
	}

	if job.OutputManifest != "" {
		logging.Info("Saving training job manifest to %s", job.OutputManifest)
		if err := os.WriteFile(job.OutputManifest, []byte(manifest), 0644); err != nil {
			return fmt.Errorf("failed to write manifest to %q: %w", job.OutputManifest, err)
		}
		return nil
	}

	if g.ClusterName == "" || g.ClusterLocation == "" {
		return fmt.Errorf("cluster name and location are required to submit a job")
	}

	projectID, err := g.resolveProjectID()
	if err != nil {
		return err
	}

	logging.Info("Configuring kubectl for GKE cluster '%s'...", g.ClusterName)
	if err := g.configureKubectl(projectID); err != nil {
		return err
	}

	logging.Info("Submitting training job %s...", jobName)
	if err := g.applyManifest(ctx, manifest); err != nil {
		return fmt.Errorf("failed to submit training job %q: %w", jobName, err)
	}
	logging.Info("Training job %s submitted.", jobName)
	return nil
}

// RenderManifest produces the manifest for a job under the given name.
func (g *GKEOrchestrator) RenderManifest(job orchestrator.JobDefinition, jobName string) (string, error) {
	namespace := job.Namespace
	if namespace == "" {
		namespace = "default"
	}

	hyperparameters, err := configJSON(job.Parameters)
	if err != nil {
		return "", fmt.Errorf("failed to render hyperparameters: %w", err)
	}
	resourceConfig, err := configJSON(job.ResourceConfig())
	if err != nil {
		return "", fmt.Errorf("failed to render resource config: %w", err)
	}
	inputDataConfig, err := configJSON(job.InputDataConfig())
	if err != nil {
		return "", fmt.Errorf("failed to render input data config: %w", err)
	}

	tmpl, err := template.New("trainingJob").Parse(TrainingJobTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse training job template: %w", err)
	}

	data := struct {
		JobName             string
		Namespace           string
		Image               string
		ServiceAccount      string
		InstanceCount       int
		InstanceType        string
		HyperparametersJSON string
		ResourceConfigJSON  string
		InputDataConfigJSON string
	}{
		JobName:             jobName,
		Namespace:           namespace,
		Image:               job.Image,
		ServiceAccount:      job.ServiceAccount,
		InstanceCount:       job.InstanceCount,
		InstanceType:        job.InstanceType,
		HyperparametersJSON: hyperparameters,
		ResourceConfigJSON:  resourceConfig,
		InputDataConfigJSON: inputDataConfig,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute training job template: %w", err)
	}
	return buf.String(), nil
}

// configJSON marshals a config file body and indents it for embedding in the
// ConfigMap's block scalar.
func configJSON(content interface{}) (string, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n"), nil
}

func (g *GKEOrchestrator) resolveProjectID() (string, error) {
	if g.ProjectID != "" {
		logging.Info("Using provided GCP Project ID: %s", g.ProjectID)
		return g.ProjectID, nil
	}
	res := shell.ExecuteCommand("gcloud", "config", "get-value", "project")
	if res.ExitCode != 0 {
		return "", fmt.Errorf("failed to get GCP project ID from gcloud config: %s", res.Stderr)
	}
	projectID := strings.TrimSpace(res.Stdout)
	if projectID == "" {
		return "", fmt.Errorf("GCP project ID is empty, provide it via --project or configure the gcloud CLI")
	}
	logging.Info("Using GCP Project ID inferred from gcloud config: %s", projectID)
	return projectID, nil
}

func (g *GKEOrchestrator) configureKubectl(projectID string) error {
	res := shell.ExecuteCommand("gcloud", "container", "clusters", "get-credentials", g.ClusterName, "--zone", g.ClusterLocation, "--project", projectID)
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to get GKE cluster credentials: %s\n%s", res.Stderr, res.Stdout)
	}
	return nil
}

func (g *GKEOrchestrator) applyManifest(ctx context.Context, manifest string) error {
	logging.Debug("Training job manifest:\n%s", manifest)
	cmd := shell.NewCommand("kubectl", "apply", "-f", "-")
	cmd.SetInput(manifest)
	res := cmd.ExecuteContext(ctx)
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl apply failed with exit code %d: %s\n%s", res.ExitCode, res.Stderr, res.Stdout)
	}
	return nil
}

var _ orchestrator.Orchestrator = (*GKEOrchestrator)(nil)
