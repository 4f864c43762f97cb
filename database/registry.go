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

// Associate runs the associate hook of every associable model exactly once,
// in models order, handing each the complete set. It must only be called
// after every model of the connection is registered. The first failing hook
// stops the pass and is returned as an *AssociationError.
func Associate(models Models) error {
	for _, m := range models.All() {
		if !m.Associable() {
			continue
		}
		if err := m.associate(m, models); err != nil {
			name := ""
			if m.conn != nil {
				name = m.conn.Name()
			}
			return &AssociationError{Name: name, Model: m.name, Err: err}
		}
	}
	return nil
}

// ConnectionKey is the registry key under which the connection itself is
// exposed by Registry.Get.
const ConnectionKey = "_db"

// Registry is the published result of bootstrapping one connection: the
// connection plus every model registered and associated on it.
type Registry struct {
	conn   *Connection
	models Models
}

func NewRegistry(conn *Connection, models Models) *Registry {
	return &Registry{conn: conn, models: models}
}

func (r *Registry) Name() string { return r.conn.Name() }

func (r *Registry) Connection() *Connection { return r.conn }

func (r *Registry) Models() Models { return r.models }

func (r *Registry) Model(name string) (*Model, bool) { return r.models.Get(name) }

// Get looks a key up the way the registry mapping is addressed by hosts:
// ConnectionKey yields the *Connection, any other key a *Model.
func (r *Registry) Get(key string) (interface{}, bool) {
	if key == ConnectionKey {
		return r.conn, true
	}
	m, ok := r.models.Get(key)
	if !ok {
		return nil, false
	}
	return m, true
}

// Keys lists ConnectionKey followed by the model names.
func (r *Registry) Keys() []string {
	return append([]string{ConnectionKey}, r.models.Names()...)
}
