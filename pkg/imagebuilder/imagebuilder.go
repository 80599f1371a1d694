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

// Package imagebuilder builds the training container image on the submitter
// side. The crane path appends the build context as a new layer on a base
// image, without a Docker daemon; the cloud build path hands a Dockerfile
// build to Cloud Build.
package imagebuilder

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/compression"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"

	"scriptjob-toolkit/pkg/shell"
)

// defaultIgnorePatterns are always excluded from the build context, on top
// of whatever the context's .dockerignore adds.
var defaultIgnorePatterns = []string{
	".git",
	"vendor",
	"bin",
	"node_modules",
	"*.log",
	"tmp/",
	".DS_Store",
	"__pycache__",
}

// BuildOptions holds parameters for a crane-based image build.
type BuildOptions struct {
	ProjectID  string
	Repository string // target repository; defaults to gcr.io/<project>/<user>-training
	BaseImage  string
	ContextDir string
	Platform   string // "os/arch", e.g. "linux/amd64"
}

// Build packages ContextDir (filtered by .dockerignore) as a layer on top of
// BaseImage and pushes the result, returning the pushed image reference.
func Build(opts BuildOptions) (string, error) {
	platform, err := parsePlatform(opts.Platform)
	if err != nil {
		return "", err
	}

	imageName := targetImageName(opts)
	logrus.Infof("Starting image build for %s", imageName)
	logrus.Infof("Base image: %s, context: %s, platform: %s", opts.BaseImage, opts.ContextDir, platform.String())

	matcher, err := loadIgnoreMatcher(opts.ContextDir)
	if err != nil {
		return "", err
	}

	contextTarPath, err := createContextTar(opts.ContextDir, matcher)
	if err != nil {
		return "", fmt.Errorf("failed to create build context tarball: %w", err)
	}
	defer func() {
		os.Remove(contextTarPath)
		logrus.Debugf("Cleaned up temporary tarball file: %s", contextTarPath)
	}()

	contextLayer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		file, openErr := os.Open(contextTarPath)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open temporary tarball %q: %w", contextTarPath, openErr)
		}
		return file, nil
	}, tarball.WithCompression(compression.GZip))
	if err != nil {
		return "", fmt.Errorf("failed to create layer from tarball: %w", err)
	}

	baseRef, err := name.ParseReference(opts.BaseImage)
	if err != nil {
		return "", fmt.Errorf("failed to parse base image reference %q: %w", opts.BaseImage, err)
	}

	baseImg, err := crane.Pull(baseRef.String(), crane.WithPlatform(&platform))
	if err != nil {
		return "", fmt.Errorf("failed to pull base image %q: %w", opts.BaseImage, err)
	}

	newImg, err := mutate.AppendLayers(baseImg, contextLayer)
	if err != nil {
		return "", fmt.Errorf("failed to append layer: %w", err)
	}

	imageRef, err := name.ParseReference(imageName)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference %q: %w", imageName, err)
	}

	logrus.Infof("Pushing image to %s", imageName)
	if err := crane.Push(newImg, imageRef.String(), crane.WithPlatform(&platform)); err != nil {
		return "", fmt.Errorf("failed to push image %q: %w", imageName, err)
	}

	logrus.Infof("Image %s built and pushed successfully.", imageName)
	return imageName, nil
}

func targetImageName(opts BuildOptions) string {
	repository := opts.Repository
	if repository == "" {
		userName := os.Getenv("USER")
		if userName == "" {
			userName = "unknown"
		}
		repository = fmt.Sprintf("gcr.io/%s/%s-training", opts.ProjectID, userName)
	}
	tag := fmt.Sprintf("%s-%s", shell.RandomString(4), time.Now().Format("2006-01-02-15-04-05"))
	return repository + ":" + tag
}

// parsePlatform converts a platform string (e.g., "linux/amd64") into a v1.Platform struct.
func parsePlatform(platformStr string) (v1.Platform, error) {
	parts := strings.Split(platformStr, "/")
	if len(parts) != 2 {
		return v1.Platform{}, fmt.Errorf("invalid platform format: %q, expected \"os/arch\"", platformStr)
	}
	return v1.Platform{
		OS:           parts[0],
		Architecture: parts[1],
	}, nil
}

// loadIgnoreMatcher combines the default exclusions with the context's
// .dockerignore, when present.
func loadIgnoreMatcher(dir string) (*patternmatcher.PatternMatcher, error) {
	patterns := make([]string, len(defaultIgnorePatterns))
	copy(patterns, defaultIgnorePatterns)

	dockerignorePath := filepath.Join(dir, ".dockerignore")
	if _, err := os.Stat(dockerignorePath); err == nil {
		file, err := os.Open(dockerignorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open .dockerignore file %q: %w", dockerignorePath, err)
		}
		defer file.Close()

		filePatterns, err := ignorefile.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read .dockerignore file %q: %w", dockerignorePath, err)
		}
		patterns = append(patterns, filePatterns...)
		logrus.Infof("Found %d patterns in .dockerignore at %q", len(filePatterns), dockerignorePath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat .dockerignore file %q: %w", dockerignorePath, err)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern matcher: %w", err)
	}
	return matcher, nil
}

// processTarEntry writes a single file or directory into the context tar,
// honoring the ignore matcher. Unlike the flat code archive, the build
// context keeps its directory structure.
func processTarEntry(tarWriter *tar.Writer, sourceDir string, matcher *patternmatcher.PatternMatcher, path string, info fs.FileInfo, errFromWalk error) error {
	if errFromWalk != nil {
		return errFromWalk
	}

	relPath, err := filepath.Rel(sourceDir, path)
	if err != nil {
		return fmt.Errorf("failed to get relative path for %q: %w", path, err)
	}
	if relPath == "." {
		return nil
	}

	// patternmatcher expects directories to carry a trailing slash
	relPathSlash := filepath.ToSlash(relPath)
	if info.IsDir() && !strings.HasSuffix(relPathSlash, "/") {
		relPathSlash += "/"
	}

	ignored, err := matcher.MatchesOrParentMatches(relPathSlash)
	if err != nil {
		return fmt.Errorf("failed to check ignore patterns for %q: %w", path, err)
	}
	if ignored {
		if info.IsDir() {
			logrus.Debugf("Ignoring directory %q", relPath)
			return filepath.SkipDir
		}
		logrus.Debugf("Ignoring file %q", relPath)
		return nil
	}

	header, err := tar.FileInfoHeader(info, relPath)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %q: %w", path, err)
	}
	header.Name = relPath

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %q: %w", path, err)
	}

	if info.Mode().IsRegular() {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file %q: %w", path, err)
		}
		defer file.Close()

		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("failed to write file content for %q: %w", path, err)
		}
	}

	return nil
}

func createContextTar(sourceDir string, matcher *patternmatcher.PatternMatcher) (tarPath string, err error) {
	tmpFile, err := os.CreateTemp("", "scriptjob-build-context-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file for tarball: %w", err)
	}
	// A close failure means a truncated tarball; report it and remove the
	// file rather than handing back a bad archive.
	defer func() {
		if closeErr := tmpFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close temporary tarball: %w", closeErr)
		}
		if err != nil {
			os.Remove(tmpFile.Name())
			tarPath = ""
		}
	}()

	gzipWriter := gzip.NewWriter(tmpFile)
	tarWriter := tar.NewWriter(gzipWriter)

	logrus.Infof("Creating filtered tar from %s to temporary file %s", sourceDir, tmpFile.Name())

	err = filepath.Walk(sourceDir, func(path string, info fs.FileInfo, walkErr error) error {
		return processTarEntry(tarWriter, sourceDir, matcher, path, info, walkErr)
	})
	if err != nil {
		return "", err
	}

	if err = tarWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err = gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return tmpFile.Name(), nil
}
