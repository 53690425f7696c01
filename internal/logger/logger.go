// Copyright 2026 The RepeatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the structured logger used by every engine
// component. It wraps log/slog with a severity model matching cfg.LogSeverity
// (TRACE below DEBUG, OFF above ERROR) and a handler factory that emits
// either text or JSON, optionally rotated to disk via lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/toniwestbrook/repeatfs/cfg"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var severityLevels = map[cfg.LogSeverity]slog.Level{
	cfg.TraceLogSeverity:   LevelTrace,
	cfg.DebugLogSeverity:   LevelDebug,
	cfg.InfoLogSeverity:    LevelInfo,
	cfg.WarningLogSeverity: LevelWarn,
	cfg.ErrorLogSeverity:   LevelError,
	cfg.OffLogSeverity:     LevelOff,
}

var levelSeverityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type loggerFactory struct {
	mu        sync.Mutex
	file      *lumberjack.Logger
	sysWriter io.Writer
	format    string
	level     cfg.LogSeverity
	logRotate cfg.LogRotateConfig
	prefix    string
}

var defaultProgramLevel = new(slog.LevelVar)

var defaultLoggerFactory = &loggerFactory{
	format:    "text",
	level:     cfg.InfoLogSeverity,
	sysWriter: os.Stderr,
}

var defaultLogger = slog.New(
	defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultProgramLevel, ""),
)

func init() {
	setLoggingLevel(defaultLoggerFactory.level, defaultProgramLevel)
}

// createJsonOrTextHandler renders log records the way the rest of the fleet's
// services do: a single severity field regardless of handler backend, with
// a custom level name substituted for slog's built-in ones.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				name, ok := levelSeverityNames[level]
				if !ok {
					name = level.String()
				}
				return slog.String("severity", name)
			}
			if a.Key == slog.MessageKey && prefix != "" {
				return slog.String(slog.MessageKey, prefix+a.Value.String())
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func setLoggingLevel(severity cfg.LogSeverity, programLevel *slog.LevelVar) {
	level, ok := severityLevels[severity]
	if !ok {
		level = LevelInfo
	}
	programLevel.Set(level)
}

// InitLogFile points the default logger at a rotating file, per cfg's
// logging section.
func InitLogFile(logging cfg.LoggingConfig) error {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	if logging.FilePath == "" {
		return nil
	}

	rotate := &lumberjack.Logger{
		Filename:   logging.FilePath,
		MaxSize:    logging.LogRotate.MaxFileSizeMb,
		MaxBackups: logging.LogRotate.BackupFileCount,
		Compress:   logging.LogRotate.Compress,
	}
	defaultLoggerFactory.file = rotate
	defaultLoggerFactory.logRotate = logging.LogRotate
	defaultLoggerFactory.format = logging.Format
	defaultLoggerFactory.level = logging.Severity

	setLoggingLevel(logging.Severity, defaultProgramLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(rotate, defaultProgramLevel, defaultLoggerFactory.prefix))
	return nil
}

// SetLogFormat switches the default logger between "text" and "json"
// without disturbing its destination or severity.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	if format == "" {
		format = "json"
	}
	defaultLoggerFactory.format = format

	var w io.Writer = defaultLoggerFactory.sysWriter
	if defaultLoggerFactory.file != nil {
		w = defaultLoggerFactory.file
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, defaultProgramLevel, defaultLoggerFactory.prefix))
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}
