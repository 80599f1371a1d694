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

// Package trainenv defines the on-disk contract between the platform and a
// running training container. The platform materializes three JSON files
// under <root>/input/config before the container starts:
//
//	hyperparameters.json  string-to-string parameter mapping for the job
//	resourceconfig.json   host identity and the full host list
//	inputdataconfig.json  data channel name -> {uri, content_type}
//
// Each data channel is materialized under <root>/input/data/<channel>. The
// entry module discovers all of this through environment variables exported
// by the bootstrap, never by configuration of its own.
package trainenv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DefaultRoot is where the platform mounts job inputs inside the container.
const DefaultRoot = "/opt/ml"

// Config file names under <root>/input/config.
const (
	HyperparametersFile = "hyperparameters.json"
	ResourceConfigFile  = "resourceconfig.json"
	InputDataConfigFile = "inputdataconfig.json"
)

// envPrefix namespaces every variable exported to the entry module.
const envPrefix = "SJ_"

// ResourceConfig describes the resource shape of the running job.
type ResourceConfig struct {
	CurrentHost string   `json:"current_host"`
	Hosts       []string `json:"hosts"`
}

// Channel is a named input reference pointing at an object-storage location.
type Channel struct {
	URI         string `json:"uri"`
	ContentType string `json:"content_type,omitempty"`
}

// InputDataConfig maps channel names to their storage locations.
type InputDataConfig map[string]Channel

// Environment resolves the fixed directory layout of a training container.
// The filesystem is pluggable so executor logic can be tested against an
// in-memory tree.
type Environment struct {
	fs   afero.Fs
	root string
}

// New returns an Environment over the real filesystem rooted at DefaultRoot.
func New() *Environment {
	return NewWithFs(afero.NewOsFs(), DefaultRoot)
}

// NewWithFs returns an Environment over fs rooted at root.
func NewWithFs(fs afero.Fs, root string) *Environment {
	return &Environment{fs: fs, root: root}
}

func (e *Environment) Root() string           { return e.root }
func (e *Environment) InputConfigDir() string { return filepath.Join(e.root, "input", "config") }
func (e *Environment) InputDataDir() string   { return filepath.Join(e.root, "input", "data") }
func (e *Environment) CodeDir() string        { return filepath.Join(e.root, "code") }
func (e *Environment) ModelDir() string       { return filepath.Join(e.root, "model") }
func (e *Environment) OutputDir() string      { return filepath.Join(e.root, "output") }

// ChannelDir maps a channel name to its local directory by convention. The
// mapping is fixed, not configurable per job.
func (e *Environment) ChannelDir(name string) string {
	return filepath.Join(e.InputDataDir(), name)
}

// LoadHyperparameters reads the job's full parameter mapping.
func (e *Environment) LoadHyperparameters() (map[string]string, error) {
	var parameters map[string]string
	if err := e.loadJSON(HyperparametersFile, &parameters); err != nil {
		return nil, err
	}
	return parameters, nil
}

// LoadResourceConfig reads host identity and the host list. When the file
// does not name a current host, the local hostname is used.
func (e *Environment) LoadResourceConfig() (ResourceConfig, error) {
	var rc ResourceConfig
	if err := e.loadJSON(ResourceConfigFile, &rc); err != nil {
		return ResourceConfig{}, err
	}
	if rc.CurrentHost == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return ResourceConfig{}, fmt.Errorf("resource config names no current host and hostname lookup failed: %w", err)
		}
		rc.CurrentHost = hostname
	}
	if len(rc.Hosts) == 0 {
		rc.Hosts = []string{rc.CurrentHost}
	}
	return rc, nil
}

// LoadInputDataConfig reads the channel set. A missing file means the job
// has no data channels.
func (e *Environment) LoadInputDataConfig() (InputDataConfig, error) {
	path := filepath.Join(e.InputConfigDir(), InputDataConfigFile)
	exists, err := afero.Exists(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if !exists {
		return InputDataConfig{}, nil
	}
	var channels InputDataConfig
	if err := e.loadJSON(InputDataConfigFile, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (e *Environment) loadJSON(name string, out interface{}) error {
	path := filepath.Join(e.InputConfigDir(), name)
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return nil
}

// WriteConfig materializes the three config files under the environment
// root, the way the platform does before container start. Local runs and
// tests use it to stand in for the platform.
func (e *Environment) WriteConfig(parameters map[string]string, rc ResourceConfig, channels InputDataConfig) error {
	if err := e.fs.MkdirAll(e.InputConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	files := map[string]interface{}{
		HyperparametersFile: parameters,
		ResourceConfigFile:  rc,
		InputDataConfigFile: channels,
	}
	for name, content := range files {
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		path := filepath.Join(e.InputConfigDir(), name)
		if err := afero.WriteFile(e.fs, path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %q: %w", path, err)
		}
	}
	return nil
}

// EnsureLayout creates the working directories the executor owns.
func (e *Environment) EnsureLayout() error {
	for _, dir := range []string{e.InputDataDir(), e.CodeDir(), e.ModelDir(), e.OutputDir()} {
		if err := e.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EnvVars builds the KEY=VALUE pairs exported to the entry module: one
// variable per data channel plus resource facts and the output locations.
func (e *Environment) EnvVars(rc ResourceConfig, channelNames []string) []string {
	vars := []string{
		fmt.Sprintf("%sCURRENT_HOST=%s", envPrefix, rc.CurrentHost),
		fmt.Sprintf("%sHOSTS=%s", envPrefix, strings.Join(rc.Hosts, ",")),
		fmt.Sprintf("%sNUM_HOSTS=%d", envPrefix, len(rc.Hosts)),
		fmt.Sprintf("%sMODEL_DIR=%s", envPrefix, e.ModelDir()),
		fmt.Sprintf("%sOUTPUT_DIR=%s", envPrefix, e.OutputDir()),
	}

	sorted := make([]string, len(channelNames))
	copy(sorted, channelNames)
	sort.Strings(sorted)
	for _, name := range sorted {
		vars = append(vars, fmt.Sprintf("%sCHANNEL_%s=%s", envPrefix, envName(name), e.ChannelDir(name)))
	}
	vars = append(vars, fmt.Sprintf("%sCHANNELS=%s", envPrefix, strings.Join(sorted, ",")))
	return vars
}

func envName(channel string) string {
	upper := strings.ToUpper(channel)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

// DefaultHosts generates the deterministic host names for a job of the given
// size, matching what orchestrators put into resourceconfig.json.
func DefaultHosts(instanceCount int) []string {
	hosts := make([]string, instanceCount)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("worker-%d", i+1)
	}
	return hosts
}
