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

// Package archive packs user code files into the flat gzip tarball exchanged
// between the job submitter and the in-container executor, and unpacks it on
// the executor side. The flat layout (every entry directly at the archive
// root under its base name) is a compatibility requirement of the hand-off:
// extraction refuses nested or traversing entry names.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Pack writes the given source files into a gzip-compressed tar archive,
// each stored at the archive root under its base name. If target is empty a
// fresh temporary file is allocated; otherwise target is created or
// overwritten. It returns the path of the produced archive.
//
// Pack fails without leaving a partial archive behind if any source file is
// missing or unreadable, or if two sources share a base name.
func Pack(files []string, target string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no source files to pack")
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		if prev, ok := seen[base]; ok {
			return "", fmt.Errorf("duplicate base name %q from %q and %q", base, prev, f)
		}
		seen[base] = f
	}

	var out *os.File
	var err error
	if target == "" {
		out, err = os.CreateTemp("", "scriptjob-code-*.tar.gz")
		if err != nil {
			return "", fmt.Errorf("failed to create temporary archive file: %w", err)
		}
	} else {
		out, err = os.Create(target)
		if err != nil {
			return "", fmt.Errorf("failed to create archive file %q: %w", target, err)
		}
	}
	archivePath := out.Name()

	if err := writeArchive(out, files); err != nil {
		out.Close()
		os.Remove(archivePath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to close archive file %q: %w", archivePath, err)
	}

	logrus.Debugf("Packed %d files into %s", len(files), archivePath)
	return archivePath, nil
}

func writeArchive(out io.Writer, files []string) error {
	gzipWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, f := range files {
		if err := addFile(tarWriter, f); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}

func addFile(tarWriter *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat source file %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source %q is not a regular file", path)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %q: %w", path, err)
	}
	header.Name = filepath.Base(path)

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %q: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %q: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(tarWriter, file); err != nil {
		return fmt.Errorf("failed to write file content for %q: %w", path, err)
	}
	return nil
}

// Extract unpacks a flat gzip tar archive into destDir and returns the names
// of the extracted files. Entry names containing path separators, traversal
// segments or absolute paths are rejected.
func Extract(archivePath, destDir string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %q: %w", archivePath, err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("archive %q is not gzip-compressed: %w", archivePath, err)
	}
	defer gzipReader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory %q: %w", destDir, err)
	}

	tarReader := tar.NewReader(gzipReader)
	var extracted []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry in %q: %w", archivePath, err)
		}

		if err := validateEntryName(header.Name); err != nil {
			return nil, err
		}

		switch header.Typeflag {
		case tar.TypeReg:
			dest := filepath.Join(destDir, header.Name)
			if err := writeEntry(dest, tarReader, header.FileInfo().Mode()); err != nil {
				return nil, err
			}
			extracted = append(extracted, header.Name)
		case tar.TypeDir:
			return nil, fmt.Errorf("archive entry %q is a directory, expected a flat file layout", header.Name)
		default:
			return nil, fmt.Errorf("archive entry %q has unsupported type %d", header.Name, header.Typeflag)
		}
	}

	logrus.Debugf("Extracted %d files from %s into %s", len(extracted), archivePath, destDir)
	return extracted, nil
}

func validateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("archive contains an entry with an empty name")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("archive entry %q has an absolute path", name)
	}
	clean := filepath.ToSlash(name)
	if strings.Contains(clean, "/") || clean == ".." {
		return fmt.Errorf("archive entry %q is not at the archive root", name)
	}
	return nil
}

func writeEntry(dest string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create extracted file %q: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("failed to write extracted file %q: %w", dest, err)
	}
	return nil
}
