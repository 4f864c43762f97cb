/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/modelboot/utils"
)

const defaultLoggerName = "BOOTSTRAP"

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// Logger is the key/value logger used by every bootstrap component.
// Fields are alternating keys and values.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger unless one is already set.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

// GetLogger returns the package logger, creating the logrus-backed default
// on first use.
func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger(defaultLoggerName)
	}
	return globalLogger
}

// DefaultLogger adapts a named utils logger to Logger.
type DefaultLogger struct {
	name   string
	logger *utils.Logger
}

func NewDefaultLogger(name string) *DefaultLogger {
	return &DefaultLogger{name: name, logger: utils.NewLogger(name)}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Error(msg)
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	utils.SetLoggerLevel(l.name, strings.ToLower(level.String()))
}

// toFields pairs up keys and values; a trailing key without value is dropped.
func toFields(kv []interface{}) logrus.Fields {
	if len(kv) < 2 {
		return nil
	}
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

type fieldLogger struct {
	Logger
	fields []interface{}
}

// WithFields returns a Logger that prefixes every call with the given
// key/value pairs. A nil l means the package logger.
func WithFields(l Logger, kv ...interface{}) Logger {
	if l == nil {
		l = GetLogger()
	}
	return &fieldLogger{Logger: l, fields: kv}
}

func (w *fieldLogger) join(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(w.fields)+len(fields))
	out = append(out, w.fields...)
	return append(out, fields...)
}

func (w *fieldLogger) Debug(msg string, fields ...interface{}) { w.Logger.Debug(msg, w.join(fields)...) }
func (w *fieldLogger) Info(msg string, fields ...interface{})  { w.Logger.Info(msg, w.join(fields)...) }
func (w *fieldLogger) Warn(msg string, fields ...interface{})  { w.Logger.Warn(msg, w.join(fields)...) }
func (w *fieldLogger) Error(msg string, fields ...interface{}) { w.Logger.Error(msg, w.join(fields)...) }
