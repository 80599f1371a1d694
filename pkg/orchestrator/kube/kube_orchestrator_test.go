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

package kube

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"scriptjob-toolkit/pkg/orchestrator"
	"scriptjob-toolkit/pkg/params"
	"scriptjob-toolkit/pkg/trainenv"
)

func testJob() orchestrator.JobDefinition {
	return orchestrator.JobDefinition{
		Image:         "gcr.io/my-project/trainer:v1",
		InstanceCount: 3,
		InstanceType:  "n1-standard-8",
		JobName:       "mnist-2026-08-26-10-00-00-abcd",
		Namespace:     "training",
		Parameters: map[string]string{
			params.ProgramKey:         "train.py",
			params.SubmitDirectoryKey: "gs://bucket/jobs/mnist/code.tar.gz",
			"epochs":                  "10",
		},
		Channels: []orchestrator.Channel{
			{Name: "train", URI: "gs://bucket/data/train"},
		},
	}
}

func TestSubmitJobCreatesConfigMapAndJob(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	k := NewKubeOrchestrator(clientset)
	job := testJob()

	if err := k.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}

	configMap, err := clientset.CoreV1().ConfigMaps("training").Get(context.Background(), job.JobName+"-config", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("ConfigMap not created: %v", err)
	}
	if configMap.Labels[jobLabel] != job.JobName {
		t.Errorf("ConfigMap label %q = %q, want %q", jobLabel, configMap.Labels[jobLabel], job.JobName)
	}

	var parameters map[string]string
	if err := json.Unmarshal([]byte(configMap.Data[trainenv.HyperparametersFile]), &parameters); err != nil {
		t.Fatalf("hyperparameters.json is not valid JSON: %v", err)
	}
	if parameters[params.ProgramKey] != "train.py" {
		t.Errorf("program parameter = %q, want train.py", parameters[params.ProgramKey])
	}

	var rc trainenv.ResourceConfig
	if err := json.Unmarshal([]byte(configMap.Data[trainenv.ResourceConfigFile]), &rc); err != nil {
		t.Fatalf("resourceconfig.json is not valid JSON: %v", err)
	}
	if len(rc.Hosts) != 3 || rc.Hosts[2] != "worker-3" {
		t.Errorf("hosts = %v, want three workers", rc.Hosts)
	}

	var channels trainenv.InputDataConfig
	if err := json.Unmarshal([]byte(configMap.Data[trainenv.InputDataConfigFile]), &channels); err != nil {
		t.Fatalf("inputdataconfig.json is not valid JSON: %v", err)
	}
	if channels["train"].URI != "gs://bucket/data/train" {
		t.Errorf("train channel URI = %q", channels["train"].URI)
	}

	created, err := clientset.BatchV1().Jobs("training").Get(context.Background(), job.JobName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Job not created: %v", err)
	}
	assertJobShape(t, created, job)
}

func assertJobShape(t *testing.T, created *batchv1.Job, job orchestrator.JobDefinition) {
	t.Helper()

	if created.Labels[jobLabel] != job.JobName {
		t.Errorf("Job label %q = %q, want %q", jobLabel, created.Labels[jobLabel], job.JobName)
	}
	if *created.Spec.Completions != int32(job.InstanceCount) {
		t.Errorf("completions = %d, want %d", *created.Spec.Completions, job.InstanceCount)
	}
	if *created.Spec.Parallelism != int32(job.InstanceCount) {
		t.Errorf("parallelism = %d, want %d", *created.Spec.Parallelism, job.InstanceCount)
	}
	if *created.Spec.CompletionMode != batchv1.IndexedCompletion {
		t.Errorf("completion mode = %s, want Indexed", *created.Spec.CompletionMode)
	}
	if *created.Spec.BackoffLimit != 0 {
		t.Errorf("backoff limit = %d, want 0", *created.Spec.BackoffLimit)
	}

	podSpec := created.Spec.Template.Spec
	if len(podSpec.Containers) != 1 {
		t.Fatalf("got %d containers, want 1", len(podSpec.Containers))
	}
	container := podSpec.Containers[0]
	if container.Image != job.Image {
		t.Errorf("container image = %q, want %q", container.Image, job.Image)
	}
	if len(container.Command) != 2 || container.Command[0] != "scriptjob" || container.Command[1] != "bootstrap" {
		t.Errorf("container command = %v, want [scriptjob bootstrap]", container.Command)
	}
	if podSpec.NodeSelector["node.kubernetes.io/instance-type"] != job.InstanceType {
		t.Errorf("node selector = %v, want instance type %q", podSpec.NodeSelector, job.InstanceType)
	}

	var configMount bool
	for _, mount := range container.VolumeMounts {
		if mount.MountPath == trainenv.DefaultRoot+"/input/config" && mount.ReadOnly {
			configMount = true
		}
	}
	if !configMount {
		t.Errorf("container has no read-only config mount: %v", container.VolumeMounts)
	}
}

func TestSubmitJobDefaultsNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	k := NewKubeOrchestrator(clientset)
	job := testJob()
	job.Namespace = ""

	if err := k.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}
	if _, err := clientset.BatchV1().Jobs("default").Get(context.Background(), job.JobName, metav1.GetOptions{}); err != nil {
		t.Errorf("Job not created in default namespace: %v", err)
	}
}

func TestSubmitJobRejectsDuplicate(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	k := NewKubeOrchestrator(clientset)
	job := testJob()

	if err := k.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("first SubmitJob failed: %v", err)
	}
	err := k.SubmitJob(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second SubmitJob = %v, want already-exists error", err)
	}
}

func TestSubmitJobOmitsNodeSelectorWithoutInstanceType(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	k := NewKubeOrchestrator(clientset)
	job := testJob()
	job.InstanceType = ""

	if err := k.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}
	created, err := clientset.BatchV1().Jobs("training").Get(context.Background(), job.JobName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Job not created: %v", err)
	}
	if created.Spec.Template.Spec.NodeSelector != nil {
		t.Errorf("node selector = %v, want none", created.Spec.Template.Spec.NodeSelector)
	}
}
