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
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field represents a key-value pair in structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// NewField creates a new field.
func NewField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// loggerImpl backs the Logger interface with a pair of logrus.Logger
// instances (stdout for Debug/Info/Warn, stderr for Error), matching the
// split the hand-rolled predecessor used.
type loggerImpl struct {
	level  Level
	out    *logrus.Logger
	errOut *logrus.Logger
	fields []Field
}

func newLogrusLogger(w io.Writer, level Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(level.logrusLevel())
	return l
}

// NewLogger creates a new logger. If verbose is true, Debug level logs are
// shown.
func NewLogger(verbose bool) Logger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}

	return &loggerImpl{
		level:  level,
		out:    newLogrusLogger(os.Stdout, level),
		errOut: newLogrusLogger(os.Stderr, level),
	}
}

// Debug logs a debug message.
func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.entry(l.out, fields).Debug(msg)
}

// Info logs an info message.
func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.entry(l.out, fields).Info(msg)
}

// Warn logs a warning message.
func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.entry(l.out, fields).Warn(msg)
}

// Error logs an error message (always shown, written to errOut).
func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.entry(l.errOut, fields).Error(msg)
}

// WithFields returns a new logger with additional fields merged in.
func (l *loggerImpl) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &loggerImpl{level: l.level, out: l.out, errOut: l.errOut, fields: merged}
}

func (l *loggerImpl) entry(logger *logrus.Logger, fields []Field) *logrus.Entry {
	all := make(logrus.Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		all[f.Key] = f.Value
	}
	for _, f := range fields {
		all[f.Key] = f.Value
	}
	return logger.WithFields(all)
}
