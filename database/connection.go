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
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

// HealthStatus holds the result of a health check against a connection.
type HealthStatus struct {
	Name          string        `json:"name"`
	Healthy       bool          `json:"healthy"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool stats.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// Connection is a live, named database session together with the models
// registered on it. The bootstrap never closes a Connection.
type Connection struct {
	name   string
	config ConnectionConfig
	sqlDB  *sql.DB
	db     *bun.DB
	logger Logger

	mu     sync.RWMutex
	models map[string]*Model
	order  []string
	closed bool
}

func newConnection(cfg ConnectionConfig, sqlDB *sql.DB, db *bun.DB, logger Logger) *Connection {
	return &Connection{
		name:   cfg.Name,
		config: cfg,
		sqlDB:  sqlDB,
		db:     db,
		logger: logger,
		models: make(map[string]*Model),
	}
}

// NewConnection wraps an already opened Bun database. It is meant for hosts
// that manage their own *bun.DB and for tests; db may be nil.
func NewConnection(cfg ConnectionConfig, db *bun.DB) *Connection {
	var sqlDB *sql.DB
	if db != nil {
		sqlDB = db.DB
		if cfg.Type == "" {
			cfg.Type = db.Dialect().Name().String()
		}
	}
	return newConnection(cfg, sqlDB, db, WithFields(nil, "connection", cfg.Name))
}

func (c *Connection) Name() string { return c.name }

// Config returns the effective configuration, after env overrides.
func (c *Connection) Config() ConnectionConfig { return c.config }

func (c *Connection) DB() *bun.DB { return c.db }

func (c *Connection) SQLDB() *sql.DB { return c.sqlDB }

func (c *Connection) Logger() Logger { return c.logger }

// Dialect returns the bun dialect name, e.g. "pg", "mysql", "sqlite".
func (c *Connection) Dialect() string {
	if c.db == nil {
		return ""
	}
	return c.db.Dialect().Name().String()
}

// Register binds m to this connection under m.Name(). Registering the same
// name again replaces the previous model but keeps its position.
func (c *Connection) Register(m *Model) error {
	if m == nil || m.name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if m.name == ConnectionKey {
		return fmt.Errorf("model name %s is reserved for the connection", ConnectionKey)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.models[m.name]; exists {
		c.logger.Warn("Model registered twice, replacing previous definition", "model", m.name)
	} else {
		c.order = append(c.order, m.name)
	}
	m.conn = c
	c.models[m.name] = m
	if m.instance != nil && c.db != nil {
		c.db.RegisterModel(m.instance)
	}
	return nil
}

// Model returns the model registered under name.
func (c *Connection) Model(name string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// ModelNames lists registered model names in registration order.
func (c *Connection) ModelNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not connected")
	}
	return c.db.PingContext(ctx)
}

// HealthCheck pings the database and reports pool usage.
func (c *Connection) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Name: c.name, LastCheckTime: start}
	if c.db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	err := c.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}

	if c.sqlDB != nil {
		stats := c.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}
	return status
}

func (c *Connection) Stats() *DBStats {
	if c.sqlDB == nil {
		return &DBStats{}
	}
	stats := c.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Close closes the underlying pool. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.db == nil {
		return nil
	}
	c.closed = true
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database connection", "error", err)
	} else {
		c.logger.Info("Database connection closed")
	}
	return err
}
