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

// Package params implements the job parameter mapping shared by the
// submitter and the executor. Every parameter value travels as JSON text so
// that numbers, booleans and nested structures survive the string-to-string
// hand-off. Two reserved keys carry execution metadata; all other keys are
// user hyperparameters forwarded verbatim to the entry module.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reserved parameter keys interpreted by the executor rather than passed to
// user code. ProgramKey names the entry module file inside the code archive;
// SubmitDirectoryKey holds the URI of the uploaded code archive.
const (
	ProgramKey         = "program"
	SubmitDirectoryKey = "submit_directory"
)

// ReservedKeys lists the keys the platform interprets specially.
var ReservedKeys = []string{ProgramKey, SubmitDirectoryKey}

// EncodingError reports a parameter value that could not be serialized or
// deserialized symmetrically.
type EncodingError struct {
	Key string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("parameter %q cannot be encoded symmetrically: %v", e.Key, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Encode serializes every value to JSON text. Values json cannot represent
// (channels, functions, NaN floats, ...) are rejected with an EncodingError
// instead of being coerced to a default.
func Encode(values map[string]interface{}) (map[string]string, error) {
	encoded := make(map[string]string, len(values))
	for key, value := range values {
		text, err := json.Marshal(value)
		if err != nil {
			return nil, &EncodingError{Key: key, Err: err}
		}
		encoded[key] = string(text)
	}
	return encoded, nil
}

// Decode is the inverse of Encode. Numbers come back as json.Number, keeping
// their exact textual form, so re-encoding a decoded mapping reproduces the
// original byte-for-byte.
func Decode(encoded map[string]string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(encoded))
	for key, text := range encoded {
		value, err := DecodeValue(text)
		if err != nil {
			return nil, &EncodingError{Key: key, Err: err}
		}
		values[key] = value
	}
	return values, nil
}

// DecodeValue parses a single JSON-encoded parameter value.
func DecodeValue(text string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// WithReserved returns a copy of encoded with the two reserved keys set.
// User parameters may never shadow reserved keys; a collision is an error at
// merge time, before anything is submitted.
func WithReserved(encoded map[string]string, program, submitDirectory string) (map[string]string, error) {
	for _, key := range ReservedKeys {
		if _, ok := encoded[key]; ok {
			return nil, fmt.Errorf("hyperparameter %q shadows a reserved parameter key", key)
		}
	}
	merged := make(map[string]string, len(encoded)+2)
	for k, v := range encoded {
		merged[k] = v
	}
	merged[ProgramKey] = program
	merged[SubmitDirectoryKey] = submitDirectory
	return merged, nil
}

// MissingReserved reports which reserved keys are absent or empty.
func MissingReserved(parameters map[string]string) []string {
	var missing []string
	for _, key := range ReservedKeys {
		if parameters[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// IsReserved reports whether key is interpreted by the platform.
func IsReserved(key string) bool {
	for _, reserved := range ReservedKeys {
		if key == reserved {
			return true
		}
	}
	return false
}

// UserParameters returns the non-reserved subset of a parameter mapping.
func UserParameters(parameters map[string]string) map[string]string {
	user := make(map[string]string, len(parameters))
	for key, value := range parameters {
		if !IsReserved(key) {
			user[key] = value
		}
	}
	return user
}

// ArgumentList converts the non-reserved parameters into a deterministic
// command-line argument vector for the entry module. JSON strings are passed
// unquoted; every other value keeps its JSON text form, so an integer 300
// arrives as "300" and a nested structure as its JSON serialization.
func ArgumentList(parameters map[string]string) ([]string, error) {
	keys := make([]string, 0, len(parameters))
	for key := range parameters {
		if !IsReserved(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		text, err := argumentText(parameters[key])
		if err != nil {
			return nil, &EncodingError{Key: key, Err: err}
		}
		args = append(args, "--"+key, text)
	}
	return args, nil
}

func argumentText(encoded string) (string, error) {
	trimmed := strings.TrimSpace(encoded)
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("value %q is not valid JSON text", encoded)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(trimmed)); err != nil {
		return "", err
	}
	return compact.String(), nil
}
