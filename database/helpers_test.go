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
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, name string) *Connection {
	t.Helper()
	f := NewConnectionFactory()
	f.DisableEnvOverride = true
	conn, err := f.Open(context.Background(), ConnectionConfig{
		Name:   name,
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type logEntry struct {
	level  string
	msg    string
	fields []interface{}
}

// recordingLogger keeps every call for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) SetLevel(LogLevel) {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...interface{})  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...interface{})  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.add("error", msg, fields) }

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.msg)
	}
	return out
}
