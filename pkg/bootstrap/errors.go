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

package bootstrap

import (
	"fmt"
	"strings"
)

// Each stage of the executor handshake fails with its own error kind so a
// caller can decide retry-vs-abort per kind. Only FetchError is transient;
// the others indicate a misconfigured or badly packaged job.

// ConfigurationError reports missing or malformed reserved parameters, or an
// unreadable platform configuration.
type ConfigurationError struct {
	Reason  string
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error: missing reserved parameter keys: %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FetchError reports a failure retrieving the code archive or a data channel
// from object storage. Retryable.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error: failed to retrieve %q: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ArchiveError reports a corrupt or structurally invalid code archive. Fatal.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive error: %q is not a valid code archive: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// EntryNotFoundError reports that the named entry module is absent from the
// extracted code tree. Fatal: the job was packaged incorrectly.
type EntryNotFoundError struct {
	Entry string
	Dir   string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry module %q not found in extracted code at %q", e.Entry, e.Dir)
}
