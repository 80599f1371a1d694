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

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scriptjob-toolkit/pkg/params"
	"scriptjob-toolkit/pkg/shell"
	"scriptjob-toolkit/pkg/trainenv"
)

// Channel is a named input reference handed to the job.
type Channel struct {
	Name        string
	URI         string
	ContentType string
}

// JobDefinition is the full descriptor of one training job. It is composed
// once by the submitter and consumed once by an orchestrator; status
// transitions after submission belong to the external scheduler.
type JobDefinition struct {
	Image          string
	ServiceAccount string
	InstanceCount  int
	InstanceType   string
	BaseJobName    string
	JobName        string
	Namespace      string
	Parameters     map[string]string
	Channels       []Channel

	// OutputManifest, when set, writes the rendered manifest to a file
	// instead of submitting (gke orchestrator only).
	OutputManifest string
}

// Orchestrator submits a composed job to a concrete backend.
type Orchestrator interface {
	SubmitJob(ctx context.Context, job JobDefinition) error
}

// Validate checks the descriptor before any network call is made. A
// parameter set missing either reserved key is rejected here, never at the
// backend.
func (j *JobDefinition) Validate() error {
	if j.Image == "" {
		return fmt.Errorf("job definition has no container image")
	}
	if j.InstanceCount < 1 {
		return fmt.Errorf("instance count must be positive, got %d", j.InstanceCount)
	}
	if j.JobName == "" && j.BaseJobName == "" {
		return fmt.Errorf("job definition needs a job name or a base job name")
	}
	if missing := params.MissingReserved(j.Parameters); len(missing) > 0 {
		return fmt.Errorf("job parameters missing reserved keys: %s", strings.Join(missing, ", "))
	}
	seen := make(map[string]bool, len(j.Channels))
	for _, ch := range j.Channels {
		if ch.Name == "" {
			return fmt.Errorf("data channel with empty name")
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate data channel %q", ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}

// EffectiveJobName returns the explicit job name, or generates a unique one
// from the base name.
func (j *JobDefinition) EffectiveJobName() string {
	if j.JobName != "" {
		return j.JobName
	}
	return GenerateJobName(j.BaseJobName)
}

// GenerateJobName derives a unique, DNS-friendly job name from a base name.
func GenerateJobName(base string) string {
	stamp := time.Now().Format("2006-01-02-15-04-05")
	return fmt.Sprintf("%s-%s-%s", base, stamp, shell.RandomString(4))
}

// ResourceConfig renders the resource facts the executor will discover.
func (j *JobDefinition) ResourceConfig() trainenv.ResourceConfig {
	return trainenv.ResourceConfig{
		Hosts: trainenv.DefaultHosts(j.InstanceCount),
	}
}

// InputDataConfig renders the channel set the executor will discover.
func (j *JobDefinition) InputDataConfig() trainenv.InputDataConfig {
	channels := make(trainenv.InputDataConfig, len(j.Channels))
	for _, ch := range j.Channels {
		channels[ch.Name] = trainenv.Channel{URI: ch.URI, ContentType: ch.ContentType}
	}
	return channels
}
