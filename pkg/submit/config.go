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

package submit

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// ChannelConfig describes one data channel of the job.
type ChannelConfig struct {
	URI         string `yaml:"uri"`
	ContentType string `yaml:"content_type,omitempty"`
}

// JobConfig is the YAML job description accepted by `scriptjob submit
// --config`. Flags override individual fields.
type JobConfig struct {
	BaseJobName     string                   `yaml:"base_job_name"`
	Entry           string                   `yaml:"entry"`
	CodeFiles       []string                 `yaml:"code_files"`
	Hyperparameters map[string]interface{}   `yaml:"hyperparameters"`
	Channels        map[string]ChannelConfig `yaml:"channels"`

	Image          string `yaml:"image"`
	BaseImage      string `yaml:"base_image"`
	Dockerfile     string `yaml:"dockerfile"`
	BuildContext   string `yaml:"build_context"`
	Platform       string `yaml:"platform"`
	ImageRepo      string `yaml:"image_repo"`
	ServiceAccount string `yaml:"service_account"`
	InstanceCount  int    `yaml:"instance_count"`
	InstanceType   string `yaml:"instance_type"`
	Namespace      string `yaml:"namespace"`
	StagingURI     string `yaml:"staging_uri"`
}

// LoadJobConfig reads and parses a job config file. Nested hyperparameter
// structures are normalized to string-keyed maps so they can be JSON-encoded
// downstream.
func LoadJobConfig(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job config %q: %w", path, err)
	}

	var cfg JobConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse job config %q: %w", path, err)
	}

	normalized := make(map[string]interface{}, len(cfg.Hyperparameters))
	for key, value := range cfg.Hyperparameters {
		normalized[key] = normalizeYAML(value)
	}
	cfg.Hyperparameters = normalized
	return &cfg, nil
}

// normalizeYAML rewrites the interface-keyed maps produced by yaml.v2 into
// string-keyed ones. Without this, nested hyperparameters cannot be JSON
// encoded.
func normalizeYAML(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, item := range v {
			m[fmt.Sprintf("%v", key)] = normalizeYAML(item)
		}
		return m
	case []interface{}:
		list := make([]interface{}, len(v))
		for i, item := range v {
			list[i] = normalizeYAML(item)
		}
		return list
	default:
		return v
	}
}
