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

// Package submit implements the submitter workflow: resolve the training
// image, pack the user code into a flat archive, upload it to the staging
// location, merge the reserved parameters with the user hyperparameters and
// hand the composed job descriptor to an orchestrator. Packaging, encoding
// and submission failures surface as distinct errors since the recovery
// action differs for each.
package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"scriptjob-toolkit/pkg/archive"
	"scriptjob-toolkit/pkg/imagebuilder"
	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/orchestrator"
	"scriptjob-toolkit/pkg/orchestrator/gke"
	"scriptjob-toolkit/pkg/orchestrator/kube"
	"scriptjob-toolkit/pkg/params"
	"scriptjob-toolkit/pkg/storage"
)

// Options holds all the inputs of one submission, merged from the job config
// file and command-line flags.
type Options struct {
	// Code packaging
	Entry     string
	CodeFiles []string

	// Image resolution: exactly one of Image, BaseImage(+BuildContext) or
	// Dockerfile(+BuildContext) drives it.
	Image        string
	BaseImage    string
	Dockerfile   string
	BuildContext string
	Platform     string
	ImageRepo    string

	// Job shape
	BaseJobName    string
	ServiceAccount string
	InstanceCount  int
	InstanceType   string
	Namespace      string

	Hyperparameters map[string]interface{}
	Channels        map[string]ChannelConfig

	StagingURI string

	// Backend selection
	Backend         string // "gke" (default) or "kube"
	ProjectID       string
	ClusterName     string
	ClusterLocation string
	Kubeconfig      string
	OutputManifest  string
}

// Result reports what a submission produced.
type Result struct {
	JobName    string
	Image      string
	ArchiveURI string
}

// Run executes the full submitter workflow and returns the submitted job's
// identity.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	jobName := orchestrator.GenerateJobName(opts.BaseJobName)

	image, err := resolveImage(opts)
	if err != nil {
		return nil, fmt.Errorf("image build failed: %w", err)
	}

	archiveURI, err := packageAndUpload(ctx, opts, jobName)
	if err != nil {
		return nil, err
	}

	encoded, err := params.Encode(opts.Hyperparameters)
	if err != nil {
		return nil, fmt.Errorf("hyperparameter encoding failed: %w", err)
	}
	parameters, err := params.WithReserved(encoded, opts.Entry, archiveURI)
	if err != nil {
		return nil, fmt.Errorf("hyperparameter encoding failed: %w", err)
	}

	def := orchestrator.JobDefinition{
		Image:          image,
		ServiceAccount: opts.ServiceAccount,
		InstanceCount:  opts.InstanceCount,
		InstanceType:   opts.InstanceType,
		BaseJobName:    opts.BaseJobName,
		JobName:        jobName,
		Namespace:      opts.Namespace,
		Parameters:     parameters,
		Channels:       channelList(opts.Channels),
		OutputManifest: opts.OutputManifest,
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job definition: %w", err)
	}

	backend, err := selectBackend(opts)
	if err != nil {
		return nil, err
	}

	if err := backend.SubmitJob(ctx, def); err != nil {
		return nil, fmt.Errorf("job submission failed: %w", err)
	}

	return &Result{JobName: jobName, Image: image, ArchiveURI: archiveURI}, nil
}

func validateOptions(opts Options) error {
	if opts.Entry == "" {
		return fmt.Errorf("an entry module must be provided")
	}
	if len(opts.CodeFiles) == 0 {
		return fmt.Errorf("at least one code file must be provided")
	}
	if opts.StagingURI == "" {
		return fmt.Errorf("a staging location must be provided")
	}
	if opts.BaseJobName == "" {
		return fmt.Errorf("a base job name must be provided")
	}
	if opts.InstanceCount < 1 {
		return fmt.Errorf("instance count must be positive, got %d", opts.InstanceCount)
	}

	// The entry module must name a file actually inside the archive,
	// otherwise the executor is guaranteed to fail after scheduling.
	found := false
	for _, f := range opts.CodeFiles {
		if filepath.Base(f) == opts.Entry {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("entry module %q is not among the packaged code files", opts.Entry)
	}

	imageSources := 0
	for _, set := range []bool{opts.Image != "", opts.BaseImage != "", opts.Dockerfile != ""} {
		if set {
			imageSources++
		}
	}
	if imageSources != 1 {
		return fmt.Errorf("exactly one of --image, --base-image or --dockerfile must be provided")
	}
	if (opts.BaseImage != "" || opts.Dockerfile != "") && opts.BuildContext == "" {
		return fmt.Errorf("a build context is required when building an image")
	}
	return nil
}

func resolveImage(opts Options) (string, error) {
	switch {
	case opts.Image != "":
		logging.Info("Using pre-built image: %s", opts.Image)
		return opts.Image, nil
	case opts.BaseImage != "":
		return imagebuilder.Build(imagebuilder.BuildOptions{
			ProjectID:  opts.ProjectID,
			Repository: opts.ImageRepo,
			BaseImage:  opts.BaseImage,
			ContextDir: opts.BuildContext,
			Platform:   opts.Platform,
		})
	default:
		return imagebuilder.BuildWithCloudBuild(imagebuilder.CloudBuildOptions{
			ImageName:    opts.BaseJobName,
			Dockerfile:   opts.Dockerfile,
			BuildContext: opts.BuildContext,
			ProjectID:    opts.ProjectID,
		})
	}
}

// packageAndUpload packs the code files and uploads the archive under a
// job-scoped staging prefix. The local archive is transient and removed once
// uploaded.
func packageAndUpload(ctx context.Context, opts Options, jobName string) (string, error) {
	workDir, err := os.MkdirTemp("", "scriptjob-pack-")
	if err != nil {
		return "", fmt.Errorf("code packaging failed: %w", err)
	}
	defer os.RemoveAll(workDir)

	archivePath, err := archive.Pack(opts.CodeFiles, filepath.Join(workDir, "code.tar.gz"))
	if err != nil {
		return "", fmt.Errorf("code packaging failed: %w", err)
	}

	uri, err := storage.Upload(ctx, archivePath, opts.StagingURI+"/"+jobName)
	if err != nil {
		return "", fmt.Errorf("code upload failed: %w", err)
	}
	logging.Info("Code archive uploaded to %s", uri)
	return uri, nil
}

func channelList(channels map[string]ChannelConfig) []orchestrator.Channel {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]orchestrator.Channel, 0, len(names))
	for _, name := range names {
		list = append(list, orchestrator.Channel{
			Name:        name,
			URI:         channels[name].URI,
			ContentType: channels[name].ContentType,
		})
	}
	return list
}

func selectBackend(opts Options) (orchestrator.Orchestrator, error) {
	switch opts.Backend {
	case "", "gke":
		return gke.NewGKEOrchestrator(opts.ProjectID, opts.ClusterName, opts.ClusterLocation), nil
	case "kube":
		clientset, err := kube.NewClientset(opts.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
		}
		return kube.NewKubeOrchestrator(clientset), nil
	default:
		return nil, fmt.Errorf("unknown backend %q, expected \"gke\" or \"kube\"", opts.Backend)
	}
}
