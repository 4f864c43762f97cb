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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryHook(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t, "main")

	var quiet, verbose bytes.Buffer
	conn.DB().AddQueryHook(&QueryHook{Name: "main", Writer: &quiet})
	conn.DB().AddQueryHook(&QueryHook{Name: "main", Verbose: true, Writer: &verbose})

	_, err := conn.DB().ExecContext(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	assert.Empty(t, quiet.String())
	assert.Contains(t, verbose.String(), "CREATE TABLE notes")
	assert.Contains(t, verbose.String(), "[main]")

	_, err = conn.DB().ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Contains(t, quiet.String(), "missing_table")
}

func TestSlowQueryHook(t *testing.T) {
	conn := openSQLite(t, "main")
	logger := &recordingLogger{}
	conn.DB().AddQueryHook(&slowQueryHook{slowTime: time.Nanosecond, logger: logger})

	_, err := conn.DB().ExecContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, logger.messages(), "Database slow query detected")
}
