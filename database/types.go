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
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig describes one named connection, its pool tuning, and the
// directory holding its model definitions.
type ConnectionConfig struct {
	Name            string        `yaml:"-" json:"name"`
	Type            string        `yaml:"type" json:"type"` // postgres, mysql, sqlite
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	DBName          string        `yaml:"db" json:"db"`
	Username        string        `yaml:"username" json:"username,omitempty"`
	Password        string        `yaml:"password" json:"-"`
	ModelsPath      string        `yaml:"models_path" json:"models_path,omitempty"`
	SSLMode         string        `yaml:"sslmode" json:"sslmode,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	EnableQueryLog  bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime   time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:            "postgres",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		SlowQueryTime:   time.Second * 2,
	}
}

// Validate checks the fields the factory needs before dialing.
func (c *ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("connection name cannot be empty")
	}
	switch c.Type {
	case "sqlite", "sqlite3":
		if c.DBName == "" {
			return fmt.Errorf("db cannot be empty")
		}
	case "mysql", "postgres", "postgresql":
		if c.Host == "" {
			return fmt.Errorf("host cannot be empty")
		}
		if c.Port <= 0 {
			return fmt.Errorf("port cannot be empty")
		}
		if c.DBName == "" {
			return fmt.Errorf("db cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported database type: %s, supported types: [mysql postgres sqlite]", c.Type)
	}
	return nil
}

// Config is the bootstrap configuration file. Connections keep the order in
// which they appear in the document.
type Config struct {
	Namespace   string
	Connections []ConnectionConfig
}

type configFile struct {
	Namespace   string    `yaml:"namespace"`
	Connections yaml.Node `yaml:"connections"`
}

// ParseConfig decodes a YAML document of the form
//
//	namespace: modelboot
//	connections:
//	  main:
//	    type: postgres
//	    host: 127.0.0.1
//	    ...
//
// Unset fields take the values of DefaultConnectionConfig.
func ParseConfig(data []byte) (*Config, error) {
	var raw configFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg := &Config{Namespace: raw.Namespace}
	if raw.Connections.Kind == 0 {
		return cfg, nil
	}
	if raw.Connections.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("connections must be a mapping, line %d", raw.Connections.Line)
	}

	seen := make(map[string]struct{})
	content := raw.Connections.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate connection %q, line %d", name, content[i].Line)
		}
		seen[name] = struct{}{}

		conn := DefaultConnectionConfig()
		if err := content[i+1].Decode(conn); err != nil {
			return nil, fmt.Errorf("connection %q: %w", name, err)
		}
		conn.Name = name
		cfg.Connections = append(cfg.Connections, *conn)
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML bootstrap configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}
