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

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/toniwestbrook/repeatfs/cfg"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, severity cfg.LogSeverity) *slog.Logger {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(severity, programLevel)
	return slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, ""))
}

func fetchOutputAtSeverity(severity cfg.LogSeverity) []string {
	var buf bytes.Buffer
	log := redirectLogsToGivenBuffer(&buf, severity)

	fns := []func(){
		func() { log.Log(nil, LevelTrace, "trace line") },
		func() { log.Debug("debug line") },
		func() { log.Info("info line") },
		func() { log.Warn("warning line") },
		func() { log.Error("error line") },
	}

	var out []string
	for _, fn := range fns {
		fn()
		out = append(out, buf.String())
		buf.Reset()
	}
	return out
}

func (t *LoggerTest) TestSeverityFiltersBelowConfiguredLevel() {
	out := fetchOutputAtSeverity(cfg.WarningLogSeverity)

	t.Empty(out[0])
	t.Empty(out[1])
	t.Empty(out[2])
	t.Contains(out[3], "severity=WARNING")
	t.Contains(out[4], "severity=ERROR")
}

func (t *LoggerTest) TestOffSeveritySuppressesEverything() {
	out := fetchOutputAtSeverity(cfg.OffLogSeverity)

	for _, line := range out {
		t.Empty(line)
	}
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		severity cfg.LogSeverity
		expected slog.Level
	}{
		{cfg.TraceLogSeverity, LevelTrace},
		{cfg.DebugLogSeverity, LevelDebug},
		{cfg.InfoLogSeverity, LevelInfo},
		{cfg.WarningLogSeverity, LevelWarn},
		{cfg.ErrorLogSeverity, LevelError},
		{cfg.OffLogSeverity, LevelOff},
	}

	for _, test := range testData {
		programLevel := new(slog.LevelVar)
		setLoggingLevel(test.severity, programLevel)
		assert.Equal(t.T(), test.expected, programLevel.Level())
	}
}

func (t *LoggerTest) TestSetLogFormatSwitchesBetweenTextAndJson() {
	defer SetLogFormat(defaultLoggerFactory.format)
	SetLogFormat("json")
	t.Equal("json", defaultLoggerFactory.format)

	SetLogFormat("text")
	t.Equal("text", defaultLoggerFactory.format)

	SetLogFormat("")
	t.Equal("json", defaultLoggerFactory.format)
}

func (t *LoggerTest) TestTextSeverityFieldMatchesExpectedShape() {
	var buf bytes.Buffer
	log := redirectLogsToGivenBuffer(&buf, cfg.InfoLogSeverity)
	log.Info("hello world")

	expected := regexp.MustCompile(`severity=INFO msg="hello world"`)
	t.True(expected.MatchString(buf.String()))
}
