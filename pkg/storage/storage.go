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

// Package storage moves artifacts between the submitter, object storage and
// the executor. Uploads target a Cloud Storage staging prefix (or a plain
// local directory, which keeps tests and offline runs hermetic). Downloads
// go through go-getter so the executor accepts gs://, s3://, http(s):// and
// local sources with one code path.
package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	getter "github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Upload copies a local file to the staging destination and returns the URI
// the uploaded object is reachable at. A gs://bucket/prefix destination goes
// through the Cloud Storage client; any other destination is treated as a
// local directory.
func Upload(ctx context.Context, localPath, destination string) (string, error) {
	if strings.HasPrefix(destination, "gs://") {
		return uploadGCS(ctx, localPath, destination)
	}
	return uploadLocal(localPath, destination)
}

func uploadGCS(ctx context.Context, localPath, destination string) (string, error) {
	bucket, prefix, err := splitGCSURI(destination)
	if err != nil {
		return "", err
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to create Cloud Storage client")
	}
	defer client.Close()

	file, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for upload", localPath)
	}
	defer file.Close()

	objectName := path.Join(prefix, filepath.Base(localPath))
	writer := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", errors.Wrapf(err, "failed to upload %q to gs://%s/%s", localPath, bucket, objectName)
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to finalize upload of gs://%s/%s", bucket, objectName)
	}

	uri := "gs://" + bucket + "/" + objectName
	logrus.Infof("Uploaded %s to %s", localPath, uri)
	return uri, nil
}

func uploadLocal(localPath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create staging directory %q", destDir)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for upload", localPath)
	}
	defer src.Close()

	destPath := filepath.Join(destDir, filepath.Base(localPath))
	dst, err := os.Create(destPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create staged file %q", destPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errors.Wrapf(err, "failed to copy %q to %q", localPath, destPath)
	}

	logrus.Infof("Staged %s at %s", localPath, destPath)
	return destPath, nil
}

func splitGCSURI(uri string) (bucket, prefix string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "gs" || parsed.Host == "" {
		return "", "", errors.Errorf("invalid Cloud Storage URI %q, expected gs://bucket[/prefix]", uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

// FetchFile downloads a single object to destPath.
func FetchFile(ctx context.Context, src, destPath string) error {
	return fetch(ctx, src, destPath, getter.ClientModeFile)
}

// FetchDir downloads a source (object prefix, directory, archive URL) into
// destDir.
func FetchDir(ctx context.Context, src, destDir string) error {
	return fetch(ctx, src, destDir, getter.ClientModeAny)
}

func fetch(ctx context.Context, src, dst string, mode getter.ClientMode) error {
	logrus.Debugf("Fetching %s into %s", src, dst)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: mode,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "failed to fetch %q", src)
	}
	return nil
}

// Retry runs op up to attempts times with linearly increasing backoff,
// returning the last error. Object storage reads are the one
// transient-failure-prone step of the executor handshake, so fetch paths
// wrap their calls in it; what names the operation in the retry log.
func Retry(ctx context.Context, what string, attempts int, backoff time.Duration, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			logrus.Warnf("%s failed (attempt %d/%d): %v", what, attempt, attempts, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}
