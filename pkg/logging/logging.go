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

// Package logging provides a thin printf-style facade over logrus so that
// command and workflow code does not carry logger state around.
package logging

import (
	"github.com/sirupsen/logrus"
)

// SetVerbose switches the process-wide log level to debug.
func SetVerbose(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// Info logs a formatted message at info level.
func Info(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// Error logs a formatted message at error level.
func Error(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
}

// Fatal logs a formatted message at fatal level and exits the process.
func Fatal(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}
