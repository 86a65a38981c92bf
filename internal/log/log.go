// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the process-wide logger. The call surface is printf-style so
// call sites read the same whether or not structured fields are attached.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Options configures the logger. Empty fields keep the current setting.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output string // stdout, stderr or a file path
}

// Init applies opts. An unknown level or an unopenable output file falls back
// to info / stderr with a warning rather than failing startup.
func Init(opts Options) {
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			std.Warnf("invalid log level %q, using info: %v", opts.Level, err)
			level = logrus.InfoLevel
		}
		std.SetLevel(level)
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		std.Warnf("unknown log format %q, using text", opts.Format)
	}

	var out io.Writer
	switch strings.ToLower(opts.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			std.Warnf("failed to open log file %q, using stderr: %v", opts.Output, err)
			out = os.Stderr
		} else {
			out = f
		}
	}
	std.SetOutput(out)
}

func SetLogLevel(level Level) {
	std.SetLevel(level)
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Debug(format string, args ...any) {
	std.Debugf(format, args...)
}

func Info(format string, args ...any) {
	std.Infof(format, args...)
}

func Warn(format string, args ...any) {
	std.Warnf(format, args...)
}

func Error(format string, args ...any) {
	std.Errorf(format, args...)
}

// With returns an entry carrying the given fields, for call sites that log
// several lines about the same run or step.
func With(fields map[string]any) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}
