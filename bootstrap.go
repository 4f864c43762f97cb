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

package modelboot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/modelboot/database"
)

// ModelLoader loads the model definitions of a directory onto a connection.
type ModelLoader interface {
	Load(ctx context.Context, dir string, conn *database.Connection, host database.HostContext) (database.Models, error)
}

// PublishFunc receives each registry as soon as its connection is fully
// bootstrapped.
type PublishFunc func(reg *database.Registry)

// Bootstrapper opens the configured connections one after another, loads
// and associates their models, and returns the registries.
type Bootstrapper struct {
	factory        database.ConnectionFactory
	loader         ModelLoader
	logger         database.Logger
	host           database.HostContext
	publish        PublishFunc
	closeOnFailure bool
	stat           func(string) (fs.FileInfo, error)
}

type Option func(*Bootstrapper)

func WithFactory(f database.ConnectionFactory) Option {
	return func(b *Bootstrapper) { b.factory = f }
}

func WithLoader(l ModelLoader) Option {
	return func(b *Bootstrapper) { b.loader = l }
}

func WithLogger(l database.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// WithHost sets the value handed to every registrar.
func WithHost(host database.HostContext) Option {
	return func(b *Bootstrapper) { b.host = host }
}

func WithPublisher(fn PublishFunc) Option {
	return func(b *Bootstrapper) { b.publish = fn }
}

// WithCloseOnFailure closes a connection whose model load or association
// failed. By default it is left open, like every other connection.
func WithCloseOnFailure(enabled bool) Option {
	return func(b *Bootstrapper) { b.closeOnFailure = enabled }
}

func New(opts ...Option) *Bootstrapper {
	b := &Bootstrapper{stat: os.Stat}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = database.GetLogger()
	}
	if b.factory == nil {
		f := database.NewConnectionFactory()
		f.SetLogger(b.logger)
		b.factory = f
	}
	if b.loader == nil {
		l := database.NewModelLoader()
		l.SetLogger(b.logger)
		b.loader = l
	}
	return b
}

// Run bootstraps configs strictly in order. Connection N+1 is not opened
// before connection N is loaded and associated. The first error stops the
// run; the registries completed before it are returned alongside.
func (b *Bootstrapper) Run(ctx context.Context, configs []database.ConnectionConfig) (*Registries, error) {
	result := newRegistries()
	if err := checkUniqueNames(configs); err != nil {
		return result, err
	}

	runID := uuid.NewString()
	logger := database.WithFields(b.logger, "run", runID)
	start := time.Now()
	logger.Info("Bootstrap started", "connections", len(configs))

	for _, cfg := range configs {
		reg, err := b.bootstrap(ctx, cfg, database.WithFields(logger, "connection", cfg.Name))
		if err != nil {
			logger.Error("Bootstrap failed", "connection", cfg.Name, "published", result.Len(), "error", err)
			return result, err
		}
		result.add(reg)
		if b.publish != nil {
			b.publish(reg)
		}
	}

	logger.Info("Bootstrap completed", "connections", result.Len(), "duration", time.Since(start))
	return result, nil
}

func (b *Bootstrapper) bootstrap(ctx context.Context, cfg database.ConnectionConfig, logger database.Logger) (*database.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &database.ConnectionError{Name: cfg.Name, Err: err}
	}
	conn, err := b.factory.Open(ctx, cfg)
	if err != nil {
		var connErr *database.ConnectionError
		if !errors.As(err, &connErr) {
			err = &database.ConnectionError{Name: cfg.Name, Err: err}
		}
		return nil, err
	}

	models, err := b.loadAndAssociate(ctx, conn, logger)
	if err != nil {
		if b.closeOnFailure {
			_ = conn.Close()
		}
		return nil, err
	}
	logger.Info("Connection bootstrapped", "models", models.Len())
	return database.NewRegistry(conn, models), nil
}

func (b *Bootstrapper) loadAndAssociate(ctx context.Context, conn *database.Connection, logger database.Logger) (database.Models, error) {
	cfg := conn.Config()
	if cfg.ModelsPath == "" {
		logger.Debug("No models path configured")
		return database.NewModels(), nil
	}
	if _, err := b.stat(cfg.ModelsPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Models path does not exist, skipping model loading", "path", cfg.ModelsPath)
			return database.NewModels(), nil
		}
		return database.Models{}, &database.ModelLoadError{Name: cfg.Name, File: cfg.ModelsPath, Err: err}
	}

	models, err := b.loader.Load(ctx, cfg.ModelsPath, conn, b.host)
	if err != nil {
		return database.Models{}, err
	}
	if err := database.Associate(models); err != nil {
		return database.Models{}, err
	}
	if cfg.AutoMigrate {
		if err := database.SyncSchema(ctx, conn, models); err != nil {
			return database.Models{}, fmt.Errorf("connection %q: sync schema: %w", cfg.Name, err)
		}
	}
	return models, nil
}

func checkUniqueNames(configs []database.ConnectionConfig) error {
	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if _, dup := seen[cfg.Name]; dup {
			return fmt.Errorf("duplicate connection name %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
	}
	return nil
}

// Registries holds the bootstrapped registries in configuration order.
type Registries struct {
	names  []string
	byName map[string]*database.Registry
}

func newRegistries() *Registries {
	return &Registries{byName: make(map[string]*database.Registry)}
}

func (r *Registries) add(reg *database.Registry) {
	r.names = append(r.names, reg.Name())
	r.byName[reg.Name()] = reg
}

func (r *Registries) Get(name string) (*database.Registry, bool) {
	reg, ok := r.byName[name]
	return reg, ok
}

func (r *Registries) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registries) Len() int { return len(r.names) }

// Close closes every connection, returning the first error.
func (r *Registries) Close() error {
	var first error
	for _, name := range r.names {
		if err := r.byName[name].Connection().Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
