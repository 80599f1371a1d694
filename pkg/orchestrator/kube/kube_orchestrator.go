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

// Package kube submits training jobs directly through the Kubernetes API
// instead of shelling out to kubectl. It creates the job's ConfigMap and an
// indexed batch Job with the same shape the gke orchestrator renders as
// YAML.
package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/orchestrator"
	"scriptjob-toolkit/pkg/trainenv"
)

const jobCreationTimeout = 30 * time.Second

const jobLabel = "scriptjob.google.com/job"

// KubeOrchestrator implements the Orchestrator interface on top of a
// Kubernetes clientset. The clientset is an interface so tests run against
// the fake implementation.
type KubeOrchestrator struct {
	clientset kubernetes.Interface
}

// NewKubeOrchestrator creates an orchestrator over an existing clientset.
func NewKubeOrchestrator(clientset kubernetes.Interface) *KubeOrchestrator {
	return &KubeOrchestrator{clientset: clientset}
}

// SubmitJob creates the job's ConfigMap and batch Job in the target
// namespace. Both objects carry the job label so they can be cleaned up
// together.
func (k *KubeOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) error {
	jobName := job.EffectiveJobName()
	namespace := job.Namespace
	if namespace == "" {
		namespace = "default"
	}

	configMap, err := buildConfigMap(job, jobName, namespace)
	if err != nil {
		return err
	}
	batchJob := buildJob(job, jobName, namespace)

	createCtx, cancel := context.WithTimeout(ctx, jobCreationTimeout)
	defer cancel()

	if _, err := k.clientset.CoreV1().ConfigMaps(namespace).Create(createCtx, configMap, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("job config %q already exists: %w", configMap.Name, err)
		}
		return fmt.Errorf("failed to create job config: %w", err)
	}

	if _, err := k.clientset.BatchV1().Jobs(namespace).Create(createCtx, batchJob, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("job %q already exists: %w", jobName, err)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	logging.Info("Training job %s created in namespace %s", jobName, namespace)
	return nil
}

func buildConfigMap(job orchestrator.JobDefinition, jobName, namespace string) (*corev1.ConfigMap, error) {
	data := make(map[string]string, 3)
	for name, content := range map[string]interface{}{
		trainenv.HyperparametersFile: job.Parameters,
		trainenv.ResourceConfigFile:  job.ResourceConfig(),
		trainenv.InputDataConfigFile: job.InputDataConfig(),
	} {
		body, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		data[name] = string(body)
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName + "-config",
			Namespace: namespace,
			Labels:    map[string]string{jobLabel: jobName},
		},
		Data: data,
	}, nil
}

func buildJob(job orchestrator.JobDefinition, jobName, namespace string) *batchv1.Job {
	instances := int32(job.InstanceCount)
	backoffLimit := int32(0)
	completionMode := batchv1.IndexedCompletion

	podSpec := corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: job.ServiceAccount,
		Containers: []corev1.Container{
			{
				Name:    "training-container",
				Image:   job.Image,
				Command: []string{"scriptjob", "bootstrap"},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "ml-root", MountPath: trainenv.DefaultRoot},
					{Name: "job-config", MountPath: trainenv.DefaultRoot + "/input/config", ReadOnly: true},
				},
			},
		},
		Volumes: []corev1.Volume{
			{
				Name: "job-config",
				VolumeSource: corev1.VolumeSource{
					ConfigMap: &corev1.ConfigMapVolumeSource{
						LocalObjectReference: corev1.LocalObjectReference{Name: jobName + "-config"},
					},
				},
			},
			{
				Name:         "ml-root",
				VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
			},
		},
	}
	if job.InstanceType != "" {
		podSpec.NodeSelector = map[string]string{"node.kubernetes.io/instance-type": job.InstanceType}
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels:    map[string]string{jobLabel: jobName},
		},
		Spec: batchv1.JobSpec{
			Completions:    &instances,
			Parallelism:    &instances,
			CompletionMode: &completionMode,
			BackoffLimit:   &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{jobLabel: jobName},
				},
				Spec: podSpec,
			},
		},
	}
}

var _ orchestrator.Orchestrator = (*KubeOrchestrator)(nil)
