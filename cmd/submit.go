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

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/submit"
)

var (
	submitConfigPath string
	entryModule      string
	codeFiles        []string
	stagingURI       string

	trainingImage  string
	baseImage      string
	dockerfilePath string
	buildContext   string
	buildPlatform  string
	imageRepo      string

	baseJobName    string
	serviceAccount string
	instanceCount  int
	instanceType   string
	namespace      string

	hyperparameterFlags []string
	channelFlags        []string

	backend         string
	projectID       string
	clusterName     string
	clusterLocation string
	kubeconfig      string
	outputManifest  string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitConfigPath, "config", "c", "", "Path to a YAML job config. Flags override its fields.")
	submitCmd.Flags().StringVar(&entryModule, "entry", "", "Entry module file name, e.g. train.py. Must be one of the code files.")
	submitCmd.Flags().StringSliceVar(&codeFiles, "code", nil, "Code files to package into the job archive (repeatable).")
	submitCmd.Flags().StringVar(&stagingURI, "staging", "", "Staging location for the code archive, e.g. gs://bucket/prefix.")

	submitCmd.Flags().StringVarP(&trainingImage, "image", "i", "", "Pre-built training image to run.")
	submitCmd.Flags().StringVar(&baseImage, "base-image", "", "Base image for an on-the-fly crane build. Requires --build-context.")
	submitCmd.Flags().StringVar(&dockerfilePath, "dockerfile", "", "Dockerfile for a Cloud Build image build. Requires --build-context.")
	submitCmd.Flags().StringVar(&buildContext, "build-context", "", "Build context directory for image builds.")
	submitCmd.Flags().StringVar(&buildPlatform, "platform", "", "Target platform for image builds. Defaults to linux/amd64.")
	submitCmd.Flags().StringVar(&imageRepo, "image-repo", "", "Target repository for built images, e.g. gcr.io/my-project/training.")

	submitCmd.Flags().StringVarP(&baseJobName, "base-job-name", "n", "", "Base name used to generate the unique job name. Required.")
	submitCmd.Flags().StringVar(&serviceAccount, "service-account", "", "Service account the job runs as.")
	submitCmd.Flags().IntVar(&instanceCount, "instance-count", 0, "Number of instances to run the job on.")
	submitCmd.Flags().StringVar(&instanceType, "instance-type", "", "Instance type to schedule the job on, e.g. n1-standard-8.")
	submitCmd.Flags().StringVar(&namespace, "namespace", "", "Kubernetes namespace to create the job in.")

	submitCmd.Flags().StringArrayVar(&hyperparameterFlags, "hyperparameter", nil, "Hyperparameter as key=value; value is parsed as JSON when possible (repeatable).")
	submitCmd.Flags().StringArrayVar(&channelFlags, "channel", nil, "Data channel as name=uri (repeatable).")

	submitCmd.Flags().StringVar(&backend, "backend", "gke", "Submission backend: 'gke' (kubectl apply) or 'kube' (Kubernetes API).")
	submitCmd.Flags().StringVarP(&projectID, "project", "p", "", "Google Cloud Project ID. Inferred from gcloud config when empty.")
	submitCmd.Flags().StringVar(&clusterName, "cluster-name", "", "Name of the cluster to submit the job to.")
	submitCmd.Flags().StringVar(&clusterLocation, "cluster-location", "", "Location (zone or region) of the cluster.")
	submitCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to the kubeconfig used by the 'kube' backend.")
	submitCmd.Flags().StringVarP(&outputManifest, "output-manifest", "o", "", "Write the rendered manifest to this path instead of submitting.")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Packages user code and submits a training job.",
	Long: `The 'submit' command packages the given code files into a flat archive,
uploads it to the staging location, merges the reserved parameters with the
user hyperparameters and creates the training job on the selected backend.`,
	Run:          runSubmitCmd,
	SilenceUsage: true,
}

func runSubmitCmd(cmd *cobra.Command, args []string) {
	opts, err := buildSubmitOptions()
	if err != nil {
		logging.Fatal("Invalid submit invocation: %v", err)
	}

	result, err := submit.Run(cmd.Context(), opts)
	if err != nil {
		logging.Fatal("scriptjob submit failed: %v", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Printf("Job %s submitted.\n", result.JobName)
	fmt.Printf("  image:   %s\n", result.Image)
	fmt.Printf("  archive: %s\n", result.ArchiveURI)
}

func buildSubmitOptions() (submit.Options, error) {
	cfg := &submit.JobConfig{}
	if submitConfigPath != "" {
		loaded, err := submit.LoadJobConfig(submitConfigPath)
		if err != nil {
			return submit.Options{}, err
		}
		cfg = loaded
	}

	opts := submit.Options{
		Entry:           firstOf(entryModule, cfg.Entry),
		CodeFiles:       firstSlice(codeFiles, cfg.CodeFiles),
		StagingURI:      firstOf(stagingURI, cfg.StagingURI),
		Image:           firstOf(trainingImage, cfg.Image),
		BaseImage:       firstOf(baseImage, cfg.BaseImage),
		Dockerfile:      firstOf(dockerfilePath, cfg.Dockerfile),
		BuildContext:    firstOf(buildContext, cfg.BuildContext),
		Platform:        firstOf(buildPlatform, cfg.Platform),
		ImageRepo:       firstOf(imageRepo, cfg.ImageRepo),
		BaseJobName:     firstOf(baseJobName, cfg.BaseJobName),
		ServiceAccount:  firstOf(serviceAccount, cfg.ServiceAccount),
		InstanceType:    firstOf(instanceType, cfg.InstanceType),
		Namespace:       firstOf(namespace, cfg.Namespace),
		Hyperparameters: cfg.Hyperparameters,
		Channels:        cfg.Channels,
		Backend:         backend,
		ProjectID:       projectID,
		ClusterName:     clusterName,
		ClusterLocation: clusterLocation,
		Kubeconfig:      kubeconfig,
		OutputManifest:  outputManifest,
	}

	if opts.Platform == "" {
		opts.Platform = "linux/amd64"
	}

	opts.InstanceCount = instanceCount
	if opts.InstanceCount == 0 {
		opts.InstanceCount = cfg.InstanceCount
	}
	if opts.InstanceCount == 0 {
		opts.InstanceCount = 1
	}

	if opts.Hyperparameters == nil {
		opts.Hyperparameters = map[string]interface{}{}
	}
	for _, flag := range hyperparameterFlags {
		key, value, err := splitKeyValue(flag)
		if err != nil {
			return submit.Options{}, err
		}
		opts.Hyperparameters[key] = parseHyperparameterValue(value)
	}

	if opts.Channels == nil {
		opts.Channels = map[string]submit.ChannelConfig{}
	}
	for _, flag := range channelFlags {
		name, uri, err := splitKeyValue(flag)
		if err != nil {
			return submit.Options{}, err
		}
		opts.Channels[name] = submit.ChannelConfig{URI: uri}
	}

	return opts, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstSlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func splitKeyValue(flag string) (string, string, error) {
	parts := strings.SplitN(flag, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", flag)
	}
	return parts[0], parts[1], nil
}

// parseHyperparameterValue keeps numeric and structured flag values typed:
// "300" becomes an integer and '{"a":1}' a map, while anything that is not
// valid JSON stays a plain string.
func parseHyperparameterValue(value string) interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return value
	}
	return parsed
}
