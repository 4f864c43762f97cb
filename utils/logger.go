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

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	logOutput        io.Writer = os.Stdout
)

// ParseLogLevel maps a level name to a logrus level, falling back to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConfigureConsoleLogFormat switches newly created loggers between "text"
// and "json" output.
func ConfigureConsoleLogFormat(format string) {
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureOutput redirects every logger, existing and future, to w.
func ConfigureOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	logOutput = w
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

// ConfigureLogLevel sets the level of every registered logger and the
// default for loggers created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	defaultLevel = lvl
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
}

// SetLoggerLevel changes the level of a single named logger. It reports
// false when no logger with that name was created.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	l := logrus.New()
	l.SetOutput(logOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if consoleLogFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{
			LoggerName:  name,
			ColorCaller: true,
			NameWidth:   10,
		})
	}
	loggerRegistry[name] = l
	return l
}

// Log4jColorFormatter renders entries as
// "time LEVEL pid - [main] name file:line : message k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	ColorCaller     bool
	NameWidth       int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	name := limitRunes(f.LoggerName, f.NameWidth)
	if f.NameWidth > 0 {
		name = fmt.Sprintf("%*s", f.NameWidth, name)
	}

	caller := ""
	if entry.Caller != nil {
		caller = " " + shortCaller(entry.Caller.File, entry.Caller.Line)
		if f.ColorCaller {
			caller = colorWrap(caller, ansiFaint)
		}
	}

	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "%s %s %s - %s %s%s %s %s",
		entry.Time.Format(tsFormat),
		colorLevel(lvl, entry.Level),
		colorWrap(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta),
		colorWrap("[main]", ansiMagenta),
		colorWrap(name, ansiCyan),
		caller,
		colorWrap(":", ansiFaint),
		entry.Message,
	)
	for _, k := range sortedKeys(entry.Data) {
		_, _ = fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one JSON object per entry.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	type jsonLogRecord struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFormat),
		Level:   strings.ToLower(entry.Level.String()),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = shortCaller(entry.Caller.File, entry.Caller.Line)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func colorWrap(s, code string) string { return code + s + ansiReset }

func colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorWrap(s, ansiRed)
	case logrus.WarnLevel:
		return colorWrap(s, ansiYellow)
	case logrus.InfoLevel:
		return colorWrap(s, ansiGreen)
	case logrus.DebugLevel:
		return colorWrap(s, ansiBlue)
	default:
		return colorWrap(s, ansiMagenta)
	}
}

// shortCaller keeps the last directory and the file name.
func shortCaller(file string, line int) string {
	parts := strings.Split(filepath.ToSlash(file), "/")
	if len(parts) >= 2 {
		parts = parts[len(parts)-2:]
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, "/"), line)
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
