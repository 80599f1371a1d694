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

package trainenv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func memEnv(t *testing.T) *Environment {
	t.Helper()
	return NewWithFs(afero.NewMemMapFs(), "/opt/ml")
}

func TestWriteAndLoadConfig(t *testing.T) {
	env := memEnv(t)

	parameters := map[string]string{
		"program":          "train.py",
		"submit_directory": "gs://bucket/jobs/x/code.tar.gz",
		"hp1":              `"value1"`,
	}
	rc := ResourceConfig{CurrentHost: "worker-1", Hosts: []string{"worker-1", "worker-2"}}
	channels := InputDataConfig{
		"train":      {URI: "gs://bucket/data/train", ContentType: "text/csv"},
		"validation": {URI: "gs://bucket/data/validation"},
	}

	if err := env.WriteConfig(parameters, rc, channels); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	gotParams, err := env.LoadHyperparameters()
	if err != nil {
		t.Fatalf("LoadHyperparameters failed: %v", err)
	}
	if diff := cmp.Diff(parameters, gotParams); diff != "" {
		t.Errorf("hyperparameters mismatch (-want +got):\n%s", diff)
	}

	gotRC, err := env.LoadResourceConfig()
	if err != nil {
		t.Fatalf("LoadResourceConfig failed: %v", err)
	}
	if diff := cmp.Diff(rc, gotRC); diff != "" {
		t.Errorf("resource config mismatch (-want +got):\n%s", diff)
	}

	gotChannels, err := env.LoadInputDataConfig()
	if err != nil {
		t.Fatalf("LoadInputDataConfig failed: %v", err)
	}
	if diff := cmp.Diff(channels, gotChannels); diff != "" {
		t.Errorf("input data config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadHyperparametersMissingFile(t *testing.T) {
	env := memEnv(t)
	if _, err := env.LoadHyperparameters(); err == nil {
		t.Error("expected an error for a missing hyperparameters file")
	}
}

func TestLoadInputDataConfigMissingFileMeansNoChannels(t *testing.T) {
	env := memEnv(t)
	channels, err := env.LoadInputDataConfig()
	if err != nil {
		t.Fatalf("LoadInputDataConfig failed: %v", err)
	}
	if len(channels) != 0 {
		t.Errorf("expected no channels, got %v", channels)
	}
}

func TestChannelDirConvention(t *testing.T) {
	env := memEnv(t)
	tests := []struct {
		channel string
		want    string
	}{
		{"train", "/opt/ml/input/data/train"},
		{"validation", "/opt/ml/input/data/validation"},
	}
	for _, tt := range tests {
		if got := env.ChannelDir(tt.channel); got != tt.want {
			t.Errorf("ChannelDir(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestEnvVars(t *testing.T) {
	env := memEnv(t)
	rc := ResourceConfig{CurrentHost: "worker-2", Hosts: []string{"worker-1", "worker-2"}}

	vars := env.EnvVars(rc, []string{"validation", "train"})

	want := map[string]bool{
		"SJ_CURRENT_HOST=worker-2":                     false,
		"SJ_HOSTS=worker-1,worker-2":                   false,
		"SJ_NUM_HOSTS=2":                               false,
		"SJ_MODEL_DIR=/opt/ml/model":                   false,
		"SJ_OUTPUT_DIR=/opt/ml/output":                 false,
		"SJ_CHANNEL_TRAIN=/opt/ml/input/data/train":    false,
		"SJ_CHANNEL_VALIDATION=/opt/ml/input/data/validation": false,
		"SJ_CHANNELS=train,validation":                 false,
	}
	for _, v := range vars {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for v, seen := range want {
		if !seen {
			t.Errorf("missing environment variable %q in %v", v, vars)
		}
	}
	if len(vars) != len(want) {
		t.Errorf("expected exactly %d variables, got %d: %v", len(want), len(vars), vars)
	}
}

func TestEnvVarsSanitizesChannelNames(t *testing.T) {
	env := memEnv(t)
	rc := ResourceConfig{CurrentHost: "worker-1", Hosts: []string{"worker-1"}}

	vars := env.EnvVars(rc, []string{"eval-set.v2"})
	found := false
	for _, v := range vars {
		if v == "SJ_CHANNEL_EVAL_SET_V2=/opt/ml/input/data/eval-set.v2" {
			found = true
		}
	}
	if !found {
		t.Errorf("sanitized channel variable not found in %v", vars)
	}
}

func TestDefaultHosts(t *testing.T) {
	got := DefaultHosts(3)
	want := []string{"worker-1", "worker-2", "worker-3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DefaultHosts mismatch (-want +got):\n%s", diff)
	}
}
