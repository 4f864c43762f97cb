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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
namespace: app
connections:
  zeta:
    type: sqlite
    db: zeta
    models_path: models/zeta
  alpha:
    type: mysql
    host: 10.0.0.1
    port: 3306
    db: shop
    username: shop
    connect_timeout: 5s
  mid:
    host: localhost
    port: 5432
    db: mid
    auto_migrate: true
`

func TestParseConfigKeepsDocumentOrder(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.Namespace)
	require.Len(t, cfg.Connections, 3)

	names := make([]string, 0, 3)
	for _, c := range cfg.Connections {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	zeta, alpha, mid := cfg.Connections[0], cfg.Connections[1], cfg.Connections[2]
	assert.Equal(t, "models/zeta", zeta.ModelsPath)
	assert.Equal(t, 10*time.Second, zeta.ConnectTimeout)
	assert.Equal(t, 5*time.Second, alpha.ConnectTimeout)
	assert.Equal(t, "shop", alpha.Username)
	assert.Empty(t, alpha.Password)
	assert.Equal(t, "postgres", mid.Type)
	assert.True(t, mid.AutoMigrate)
	assert.Empty(t, mid.ModelsPath)
	for _, c := range cfg.Connections {
		assert.NoError(t, c.Validate(), c.Name)
	}
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("connections:\n  a:\n    db: x\n  a:\n    db: y\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("connections: [a, b]\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("connections:\n  a:\n    port: many\n"))
	assert.Error(t, err)

	cfg, err := ParseConfig([]byte("namespace: only\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Connections)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "boot.yaml", sampleConfig)
	cfg, err := LoadConfigFile(filepath.Join(dir, "boot.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Connections, 3)

	_, err = LoadConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConnectionConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  ConnectionConfig
		ok   bool
	}{
		{"sqlite", ConnectionConfig{Name: "a", Type: "sqlite", DBName: "a"}, true},
		{"sqlite without db", ConnectionConfig{Name: "a", Type: "sqlite"}, false},
		{"postgres", ConnectionConfig{Name: "a", Type: "postgres", Host: "h", Port: 5432, DBName: "d"}, true},
		{"postgres without port", ConnectionConfig{Name: "a", Type: "postgres", Host: "h", DBName: "d"}, false},
		{"mysql without db", ConnectionConfig{Name: "a", Type: "mysql", Host: "h", Port: 3306}, false},
		{"no credentials", ConnectionConfig{Name: "a", Type: "mysql", Host: "h", Port: 3306, DBName: "d"}, true},
		{"blank name", ConnectionConfig{Name: " ", Type: "sqlite", DBName: "a"}, false},
		{"unknown type", ConnectionConfig{Name: "a", Type: "mongo", DBName: "a"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
