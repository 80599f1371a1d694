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

// Package shell runs external commands and captures their outcome.
package shell

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured outcome of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is a single external command invocation.
type Command struct {
	name  string
	args  []string
	input string
	dir   string
	env   []string
}

// NewCommand creates a command with the given name and arguments.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput provides data to be written to the command's stdin.
func (c *Command) SetInput(input string) {
	c.input = input
}

// SetDir sets the working directory for the command.
func (c *Command) SetDir(dir string) {
	c.dir = dir
}

// SetEnv appends the given KEY=VALUE pairs to the inherited environment.
func (c *Command) SetEnv(env []string) {
	c.env = env
}

// Execute runs the command and captures stdout, stderr and the exit code.
// A nonzero exit code is reported through Result, not as an error.
func (c *Command) Execute() Result {
	cmd := exec.Command(c.name, c.args...)
	return c.run(cmd)
}

// ExecuteContext is Execute with cancellation via ctx.
func (c *Command) ExecuteContext(ctx context.Context) Result {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	return c.run(cmd)
}

func (c *Command) run(cmd *exec.Cmd) Result {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	err := cmd.Run()
	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}
}

// ExecuteStreaming runs the command with stdout and stderr wired to the
// current process, returning the command's exit code. The error is non-nil
// only when the command could not be started at all.
func (c *Command) ExecuteStreaming(ctx context.Context) (int, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// ExecuteCommand runs a command with captured output.
func ExecuteCommand(name string, args ...string) Result {
	return NewCommand(name, args...).Execute()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// RandomString generates a random lowercase string of the given length,
// suitable for unique job name suffixes.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
