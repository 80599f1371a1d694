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

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSplitGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{uri: "gs://bucket/jobs/mnist", wantBucket: "bucket", wantPrefix: "jobs/mnist"},
		{uri: "gs://bucket", wantBucket: "bucket", wantPrefix: ""},
		{uri: "s3://bucket/prefix", wantErr: true},
		{uri: "gs://", wantErr: true},
		{uri: "/local/path", wantErr: true},
	}

	for _, tt := range tests {
		bucket, prefix, err := splitGCSURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitGCSURI(%q) succeeded, want error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitGCSURI(%q) failed: %v", tt.uri, err)
			continue
		}
		if bucket != tt.wantBucket || prefix != tt.wantPrefix {
			t.Errorf("splitGCSURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, prefix, tt.wantBucket, tt.wantPrefix)
		}
	}
}

func TestUploadLocal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "code.tar.gz")
	if err := os.WriteFile(src, []byte("archive bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	destDir := filepath.Join(t.TempDir(), "staging", "job-1")

	uri, err := Upload(context.Background(), src, destDir)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if uri != filepath.Join(destDir, "code.tar.gz") {
		t.Errorf("uri = %q", uri)
	}
	staged, err := os.ReadFile(uri)
	if err != nil {
		t.Fatalf("staged file unreadable: %v", err)
	}
	if string(staged) != "archive bytes" {
		t.Errorf("staged content = %q", staged)
	}
}

func TestUploadLocalMissingSource(t *testing.T) {
	_, err := Upload(context.Background(), filepath.Join(t.TempDir(), "absent"), t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}

func TestFetchFileLocal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "code.tar.gz")
	if err := os.WriteFile(src, []byte("archive bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "fetched.tar.gz")

	if err := FetchFile(context.Background(), src, dest); err != nil {
		t.Fatalf("FetchFile failed: %v", err)
	}
	fetched, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("fetched file unreadable: %v", err)
	}
	if string(fetched) != "archive bytes" {
		t.Errorf("fetched content = %q", fetched)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "transient op", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient failure %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed despite the op recovering: %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "doomed op", 2, time.Millisecond, func() error {
		calls++
		return fmt.Errorf("permanent failure")
	})
	if err == nil {
		t.Fatal("expected the last error when the op never recovers")
	}
	if calls != 2 {
		t.Errorf("op called %d times, want exactly the attempt limit", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, "cancelled op", 5, time.Minute, func() error {
		calls++
		return fmt.Errorf("failure")
	})
	if err != context.Canceled {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times after cancellation, want 1", calls)
	}
}
