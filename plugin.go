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
	"sort"
	"sync"

	"github.com/tomoncle/modelboot/database"
)

// DefaultNamespace is the plugin namespace registries are published under.
const DefaultNamespace = "modelboot"

// ValueStore is a host-provided setter for shared values.
type ValueStore interface {
	Value(name string, value interface{})
}

// Host is the embedding application as seen by the plugin.
type Host interface {
	PluginStore(namespace string) ValueStore
}

// Options lists the connections to bootstrap, in order.
type Options []database.ConnectionConfig

// OptionsFromMap builds Options from a name -> config mapping. Go maps are
// unordered, so connections are sorted by name.
func OptionsFromMap(m map[string]database.ConnectionConfig) Options {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make(Options, 0, len(names))
	for _, name := range names {
		cfg := m[name]
		cfg.Name = name
		opts = append(opts, cfg)
	}
	return opts
}

// Plugin adapts Bootstrapper to a host that expects
// register(host, options, done) and a shared value store.
type Plugin struct {
	Namespace string
	Options   []Option
}

func NewPlugin(opts ...Option) *Plugin {
	return &Plugin{Namespace: DefaultNamespace, Options: opts}
}

// Register bootstraps every connection in options and publishes each
// registry into host.PluginStore(Namespace) once its association pass has
// returned. done is called exactly once, after the run stops.
func (p *Plugin) Register(ctx context.Context, host Host, options Options, done func(error)) {
	ns := p.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	store := host.PluginStore(ns)

	opts := make([]Option, 0, len(p.Options)+2)
	opts = append(opts, p.Options...)
	opts = append(opts,
		WithHost(host),
		WithPublisher(func(reg *database.Registry) {
			store.Value(reg.Name(), reg)
		}),
	)
	_, err := New(opts...).Run(ctx, options)
	done(err)
}

// MemoryHost is an in-process Host backed by maps.
type MemoryHost struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryHost() *MemoryHost {
	return &MemoryHost{stores: make(map[string]*MemoryStore)}
}

func (h *MemoryHost) PluginStore(namespace string) ValueStore {
	return h.Store(namespace)
}

// Store returns the store of a namespace, creating it on first use.
func (h *MemoryHost) Store(namespace string) *MemoryStore {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stores[namespace]
	if !ok {
		s = &MemoryStore{values: make(map[string]interface{})}
		h.stores[namespace] = s
	}
	return s
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]interface{}
	order  []string
}

func (s *MemoryStore) Value(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		s.order = append(s.order, name)
	}
	s.values[name] = value
}

func (s *MemoryStore) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Registry returns the value under name when it is a *database.Registry.
func (s *MemoryStore) Registry(name string) (*database.Registry, bool) {
	v, ok := s.Get(name)
	if !ok {
		return nil, false
	}
	reg, ok := v.(*database.Registry)
	return reg, ok
}

func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
