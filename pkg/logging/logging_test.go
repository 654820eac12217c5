// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level) (*loggerImpl, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	l := &loggerImpl{
		level:  level,
		out:    newLogrusLogger(&out, level),
		errOut: newLogrusLogger(&errOut, level),
	}
	return l, &out, &errOut
}

func TestLogger_Levels(t *testing.T) {
	logger, out, errOut := newTestLogger(LevelInfo)

	logger.Debug("debug message")
	assert.Empty(t, out.String(), "debug should be suppressed at Info level")

	out.Reset()
	logger.Info("info message")
	assert.Contains(t, out.String(), "info message")

	out.Reset()
	logger.Warn("warn message")
	assert.Contains(t, out.String(), "warn message")

	logger.Error("error message")
	assert.Contains(t, errOut.String(), "error message")
}

func TestLogger_Verbose(t *testing.T) {
	logger, out, _ := newTestLogger(LevelDebug)

	logger.Debug("debug message")
	assert.Contains(t, out.String(), "debug message")
}

func TestLogger_WithFields(t *testing.T) {
	logger, out, _ := newTestLogger(LevelInfo)

	withFields := logger.WithFields(NewField("env", "prod"), NewField("version", "1.0.0"))
	withFields.Info("deploying")

	output := out.String()
	assert.Contains(t, output, "env=prod")
	assert.Contains(t, output, "version=1.0.0")
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(false)
	require.NotNil(t, logger)

	verboseLogger := NewLogger(true)
	require.NotNil(t, verboseLogger)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}
