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
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// ConnectionFactory opens one named connection. Every call dials a new,
// independent connection.
type ConnectionFactory interface {
	Open(ctx context.Context, cfg ConnectionConfig) (*Connection, error)
}

// BaseConnectionFactory opens Bun connections for mysql, postgres and sqlite.
type BaseConnectionFactory struct {
	logger Logger
	// DisableEnvOverride skips the DB_<NAME>_* environment overrides.
	DisableEnvOverride bool
}

// NewConnectionFactory returns a factory using the package logger.
func NewConnectionFactory() *BaseConnectionFactory {
	return &BaseConnectionFactory{logger: GetLogger()}
}

func (f *BaseConnectionFactory) SetLogger(logger Logger) {
	f.logger = logger
}

// Open validates cfg, dials the database and pings it within
// cfg.ConnectTimeout. Any failure is returned as a *ConnectionError.
func (f *BaseConnectionFactory) Open(ctx context.Context, cfg ConnectionConfig) (*Connection, error) {
	if !f.DisableEnvOverride {
		overrideFromEnv(&cfg)
	}
	if cfg.Type == "" {
		cfg.Type = DefaultConnectionConfig().Type
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConnectionError{Name: cfg.Name, Err: err}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectionConfig().ConnectTimeout
	}

	logger := WithFields(f.logger, "connection", cfg.Name)
	sqlDB, db, err := createConnection(&cfg)
	if err != nil {
		return nil, &ConnectionError{Name: cfg.Name, Err: err}
	}
	configureConnectionPool(sqlDB, &cfg)

	if cfg.EnableQueryLog {
		db.AddQueryHook(NewQueryHook(cfg.Name, true))
	}
	if _, ok := os.LookupEnv("BUNDEBUG"); ok {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: cfg.SlowQueryTime, logger: logger})
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if pingCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("no response within %s: %w", cfg.ConnectTimeout, err)
		}
		return nil, &ConnectionError{Name: cfg.Name, Err: err}
	}

	logger.Info("Database connected successfully", "type", cfg.Type, "host", cfg.Host, "db", cfg.DBName)
	return newConnection(cfg, sqlDB, db, logger), nil
}

func createConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	switch cfg.Type {
	case "mysql":
		sqlDB, err := sql.Open("mysql", mysqlDSN(cfg))
		if err != nil {
			return nil, nil, err
		}
		return sqlDB, bun.NewDB(sqlDB, mysqldialect.New()), nil
	case "postgres", "postgresql":
		sqlDB, err := sql.Open("postgres", postgresDSN(cfg))
		if err != nil {
			return nil, nil, err
		}
		return sqlDB, bun.NewDB(sqlDB, pgdialect.New()), nil
	case "sqlite", "sqlite3":
		sqlDB, err := sql.Open(sqliteshim.ShimName, sqliteDSN(cfg))
		if err != nil {
			return nil, nil, err
		}
		return sqlDB, bun.NewDB(sqlDB, sqlitedialect.New()), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func mysqlDSN(cfg *ConnectionConfig) string {
	auth := ""
	if cfg.Username != "" {
		auth = cfg.Username
		if cfg.Password != "" {
			auth += ":" + cfg.Password
		}
		auth += "@"
	}
	return fmt.Sprintf("%stcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s",
		auth, cfg.Host, cfg.Port, cfg.DBName, cfg.ConnectTimeout)
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}
	switch {
	case cfg.Username != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	case cfg.Username != "":
		u.User = url.User(cfg.Username)
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// sqliteDSN maps ":memory:" to a uniquely named shared-cache database, so the
// pool of one connection sees a single database while separate Open calls
// stay independent.
func sqliteDSN(cfg *ConnectionConfig) string {
	if cfg.DBName == ":memory:" {
		return "file:memdb-" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	if strings.HasPrefix(cfg.DBName, "file:") || strings.HasSuffix(cfg.DBName, ".db") {
		return cfg.DBName
	}
	return cfg.DBName + ".db"
}

func configureConnectionPool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

var envNameReplacer = regexp.MustCompile(`[^A-Z0-9]+`)

// EnvPrefix returns the environment variable prefix for a connection name,
// e.g. "audit-log" -> "DB_AUDIT_LOG_".
func EnvPrefix(name string) string {
	return "DB_" + envNameReplacer.ReplaceAllString(strings.ToUpper(name), "_") + "_"
}

// overrideFromEnv overrides connection settings from DB_<NAME>_* variables.
func overrideFromEnv(cfg *ConnectionConfig) {
	prefix := EnvPrefix(cfg.Name)
	if host := os.Getenv(prefix + "HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv(prefix + "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if username := os.Getenv(prefix + "USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv(prefix + "PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv(prefix + "NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv(prefix + "SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if modelsPath := os.Getenv(prefix + "MODELS_PATH"); modelsPath != "" {
		cfg.ModelsPath = modelsPath
	}
	if timeout := os.Getenv(prefix + "CONNECT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.ConnectTimeout = d
		}
	}
	if enableQueryLog := os.Getenv(prefix + "ENABLE_QUERY_LOG"); enableQueryLog != "" {
		cfg.EnableQueryLog = enableQueryLog == "true"
	}
}
