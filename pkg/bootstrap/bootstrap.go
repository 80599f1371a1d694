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

// Package bootstrap implements the executor side of the script-mode
// handshake: an ordered state machine that loads the job parameters, fetches
// and extracts the user code archive, resolves the entry module and invokes
// it with the decoded hyperparameters. Each stage fails with its own error
// kind; the entry module's exit status is propagated unchanged.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scriptjob-toolkit/pkg/archive"
	"scriptjob-toolkit/pkg/logging"
	"scriptjob-toolkit/pkg/params"
	"scriptjob-toolkit/pkg/shell"
	"scriptjob-toolkit/pkg/storage"
	"scriptjob-toolkit/pkg/trainenv"
)

// State names one stage of the executor handshake.
type State string

const (
	StateStart            State = "START"
	StateParametersLoaded State = "PARAMETERS_LOADED"
	StateCodeFetched      State = "CODE_FETCHED"
	StateCodeExtracted    State = "CODE_EXTRACTED"
	StateEntryResolved    State = "ENTRY_RESOLVED"
	StateRunning          State = "RUNNING"
	StateCompleted        State = "COMPLETED"
	StateFailed           State = "FAILED"
)

// Fetcher retrieves remote artifacts. The default implementation goes
// through object storage; tests substitute a local one.
type Fetcher interface {
	FetchFile(ctx context.Context, src, destPath string) error
	FetchDir(ctx context.Context, src, destDir string) error
}

// Runner invokes the resolved entry module and reports its exit code. The
// returned error is reserved for failures to start the module at all; a
// nonzero exit comes back as a code, never as a reclassified error.
type Runner interface {
	Run(ctx context.Context, program string, args, env []string, dir string) (int, error)
}

// Bootstrap drives one job through the handshake.
type Bootstrap struct {
	Env           *trainenv.Environment
	Fetcher       Fetcher
	Runner        Runner
	FetchAttempts int
	FetchBackoff  time.Duration

	state State
}

// New returns a Bootstrap over env with the production fetcher and runner.
func New(env *trainenv.Environment) *Bootstrap {
	return &Bootstrap{
		Env:           env,
		Fetcher:       storageFetcher{},
		Runner:        shellRunner{},
		FetchAttempts: 3,
		FetchBackoff:  2 * time.Second,
		state:         StateStart,
	}
}

// State reports the stage the last Run reached.
func (b *Bootstrap) State() State { return b.state }

// Run executes the handshake and returns the entry module's exit code. The
// parameter mapping is read once and never mutated afterwards; the code
// directory is owned exclusively by this process for the job's lifetime.
func (b *Bootstrap) Run(ctx context.Context) (int, error) {
	b.state = StateStart

	parameters, err := b.loadParameters()
	if err != nil {
		return b.fail(err)
	}
	b.state = StateParametersLoaded

	archivePath, err := b.fetchCode(ctx, parameters[params.SubmitDirectoryKey])
	if err != nil {
		return b.fail(err)
	}
	b.state = StateCodeFetched

	extracted, err := b.extractCode(archivePath)
	if err != nil {
		return b.fail(err)
	}
	b.state = StateCodeExtracted

	entryPath, err := b.resolveEntry(parameters[params.ProgramKey], extracted)
	if err != nil {
		return b.fail(err)
	}
	b.state = StateEntryResolved

	channelNames, err := b.materializeChannels(ctx)
	if err != nil {
		return b.fail(err)
	}

	rc, err := b.Env.LoadResourceConfig()
	if err != nil {
		return b.fail(&ConfigurationError{Reason: "invalid resource config", Err: err})
	}

	args, err := params.ArgumentList(parameters)
	if err != nil {
		return b.fail(err)
	}
	env := b.Env.EnvVars(rc, channelNames)

	program, programArgs := invocation(entryPath)
	programArgs = append(programArgs, args...)

	logging.Info("Invoking entry module %s with %d arguments on host %s", entryPath, len(args)/2, rc.CurrentHost)
	b.state = StateRunning

	exitCode, err := b.Runner.Run(ctx, program, programArgs, env, b.Env.CodeDir())
	if err != nil {
		return b.fail(fmt.Errorf("entry module %q could not be started: %w", entryPath, err))
	}
	if exitCode != 0 {
		// The module's own failure signal, passed through untouched.
		b.state = StateFailed
		return exitCode, fmt.Errorf("entry module %q exited with code %d", entryPath, exitCode)
	}

	b.state = StateCompleted
	logging.Info("Entry module completed successfully")
	return 0, nil
}

func (b *Bootstrap) fail(err error) (int, error) {
	logging.Error("Bootstrap failed in state %s: %v", b.state, err)
	b.state = StateFailed
	return 1, err
}

func (b *Bootstrap) loadParameters() (map[string]string, error) {
	parameters, err := b.Env.LoadHyperparameters()
	if err != nil {
		return nil, &ConfigurationError{Reason: "cannot load job parameters", Err: err}
	}
	if missing := params.MissingReserved(parameters); len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}
	logging.Info("Loaded %d job parameters", len(parameters))
	return parameters, nil
}

func (b *Bootstrap) fetchCode(ctx context.Context, source string) (string, error) {
	tmpFile, err := os.CreateTemp("", "scriptjob-code-*.tar.gz")
	if err != nil {
		return "", &FetchError{Source: source, Err: err}
	}
	archivePath := tmpFile.Name()
	tmpFile.Close()
	// The downloaded archive stays on disk until job completion.

	logging.Info("Fetching code archive from %s", source)
	err = storage.Retry(ctx, "code archive fetch", b.FetchAttempts, b.FetchBackoff, func() error {
		return b.Fetcher.FetchFile(ctx, source, archivePath)
	})
	if err != nil {
		os.Remove(archivePath)
		return "", &FetchError{Source: source, Err: err}
	}
	return archivePath, nil
}

func (b *Bootstrap) extractCode(archivePath string) ([]string, error) {
	if err := b.Env.EnsureLayout(); err != nil {
		return nil, &ConfigurationError{Reason: "cannot create working directories", Err: err}
	}
	extracted, err := archive.Extract(archivePath, b.Env.CodeDir())
	if err != nil {
		return nil, &ArchiveError{Path: archivePath, Err: err}
	}
	logging.Info("Extracted %d files into %s", len(extracted), b.Env.CodeDir())
	return extracted, nil
}

func (b *Bootstrap) resolveEntry(entry string, extracted []string) (string, error) {
	if entry != filepath.Base(entry) || entry == "." || entry == ".." {
		return "", &ConfigurationError{Reason: fmt.Sprintf("entry module name %q must be a bare file name", entry)}
	}
	for _, name := range extracted {
		if name == entry {
			return filepath.Join(b.Env.CodeDir(), entry), nil
		}
	}
	return "", &EntryNotFoundError{Entry: entry, Dir: b.Env.CodeDir()}
}

func (b *Bootstrap) materializeChannels(ctx context.Context) ([]string, error) {
	channels, err := b.Env.LoadInputDataConfig()
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid input data config", Err: err}
	}

	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dir := b.Env.ChannelDir(name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("cannot create channel directory %q", dir), Err: err}
		}
		uri := channels[name].URI
		if uri == "" {
			continue
		}
		populated, err := dirPopulated(dir)
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("cannot inspect channel directory %q", dir), Err: err}
		}
		if populated {
			// Already mounted by the platform.
			logging.Debug("Channel %s already materialized at %s", name, dir)
			continue
		}
		logging.Info("Materializing channel %s from %s", name, uri)
		if err := b.Fetcher.FetchDir(ctx, uri, dir); err != nil {
			return nil, &FetchError{Source: uri, Err: err}
		}
	}
	return names, nil
}

func dirPopulated(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// invocation picks how to launch an entry module: scripts go through their
// interpreter, anything else is executed directly.
func invocation(entryPath string) (program string, args []string) {
	switch strings.ToLower(filepath.Ext(entryPath)) {
	case ".py":
		return "python3", []string{entryPath}
	case ".sh":
		return "/bin/sh", []string{entryPath}
	default:
		return entryPath, nil
	}
}

type storageFetcher struct{}

func (storageFetcher) FetchFile(ctx context.Context, src, destPath string) error {
	return storage.FetchFile(ctx, src, destPath)
}

func (storageFetcher) FetchDir(ctx context.Context, src, destDir string) error {
	return storage.FetchDir(ctx, src, destDir)
}

type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, program string, args, env []string, dir string) (int, error) {
	cmd := shell.NewCommand(program, args...)
	cmd.SetDir(dir)
	cmd.SetEnv(env)
	return cmd.ExecuteStreaming(ctx)
}
