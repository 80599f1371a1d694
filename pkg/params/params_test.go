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

package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := map[string]interface{}{
		"learning_rate": 0.001,
		"epochs":        300,
		"optimizer":     "adam",
		"early_stop":    true,
		"layers":        []interface{}{float64(128), float64(64)},
		"schedule":      map[string]interface{}{"warmup": float64(10), "kind": "cosine"},
	}

	encoded, err := Encode(original)
	require.NoError(t, err)
	for key, text := range encoded {
		assert.NotEmpty(t, text, "encoded value for %s", key)
	}
	assert.Equal(t, `"adam"`, encoded["optimizer"])
	assert.Equal(t, `300`, encoded["epochs"])
	assert.Equal(t, `0.001`, encoded["learning_rate"])

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	// Decoding then re-encoding reproduces the wire form exactly, so the
	// executor sees the very values the submitter serialized.
	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestEncodeRejectsUnserializableValue(t *testing.T) {
	_, err := Encode(map[string]interface{}{"bad": make(chan int)})
	require.Error(t, err)

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "bad", encErr.Key)
}

func TestDecodeRejectsMalformedText(t *testing.T) {
	_, err := Decode(map[string]string{"broken": `{"unclosed":`})
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "broken", encErr.Key)
}

func TestWithReserved(t *testing.T) {
	merged, err := WithReserved(map[string]string{"hp1": `"value1"`}, "train.py", "gs://bucket/code.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "train.py", merged[ProgramKey])
	assert.Equal(t, "gs://bucket/code.tar.gz", merged[SubmitDirectoryKey])
	assert.Equal(t, `"value1"`, merged["hp1"])
}

func TestWithReservedRejectsShadowing(t *testing.T) {
	_, err := WithReserved(map[string]string{ProgramKey: `"evil.py"`}, "train.py", "gs://bucket/code.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestMissingReserved(t *testing.T) {
	tests := []struct {
		name       string
		parameters map[string]string
		want       []string
	}{
		{"both present", map[string]string{ProgramKey: "train.py", SubmitDirectoryKey: "gs://b/c"}, nil},
		{"program missing", map[string]string{SubmitDirectoryKey: "gs://b/c"}, []string{ProgramKey}},
		{"both missing", map[string]string{}, []string{ProgramKey, SubmitDirectoryKey}},
		{"empty counts as missing", map[string]string{ProgramKey: "", SubmitDirectoryKey: "gs://b/c"}, []string{ProgramKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingReserved(tt.parameters))
		})
	}
}

func TestArgumentList(t *testing.T) {
	encoded, err := Encode(map[string]interface{}{
		"hp1": "value1",
		"hp2": 300,
		"hp3": 0.001,
	})
	require.NoError(t, err)

	merged, err := WithReserved(encoded, "train.py", "gs://bucket/code.tar.gz")
	require.NoError(t, err)

	args, err := ArgumentList(merged)
	require.NoError(t, err)

	// Reserved keys are never forwarded; strings arrive unquoted, numbers
	// keep their textual form; order is deterministic.
	assert.Equal(t, []string{"--hp1", "value1", "--hp2", "300", "--hp3", "0.001"}, args)
}

func TestArgumentListStructuredValue(t *testing.T) {
	encoded, err := Encode(map[string]interface{}{
		"schedule": map[string]interface{}{"warmup": 10},
	})
	require.NoError(t, err)

	args, err := ArgumentList(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"--schedule", `{"warmup":10}`}, args)
}

func TestUserParameters(t *testing.T) {
	parameters := map[string]string{
		ProgramKey:         "train.py",
		SubmitDirectoryKey: "gs://b/c",
		"hp1":              `"v"`,
	}
	user := UserParameters(parameters)
	assert.Equal(t, map[string]string{"hp1": `"v"`}, user)
}
