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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerModel(t *testing.T, conn *Connection, name string, hook AssociateFunc) *Model {
	t.Helper()
	m, err := NewSchema(name).Field("id", TypeBigInt, PrimaryKey()).Associate(hook).Register(conn)
	require.NoError(t, err)
	return m
}

func TestAssociateCallsEachHookOnce(t *testing.T) {
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	calls := map[string]int{}
	var order []string
	hook := func(self *Model, models Models) error {
		calls[self.Name()]++
		order = append(order, self.Name())
		got, ok := models.Get(self.Name())
		if !ok || got != self {
			return errors.New("model missing from its own association set")
		}
		if models.Len() != 3 {
			return errors.New("association set is incomplete")
		}
		if _, ok := models.Get(ConnectionKey); ok {
			return errors.New("connection must not be part of the association set")
		}
		return nil
	}
	registerModel(t, conn, "user", hook)
	registerModel(t, conn, "plain", nil)
	registerModel(t, conn, "post", hook)

	models := NewModels(mustModels(t, conn)...)
	require.NoError(t, Associate(models))
	assert.Equal(t, map[string]int{"user": 1, "post": 1}, calls)
	assert.Equal(t, []string{"user", "post"}, order)

	// no guard against a second pass
	require.NoError(t, Associate(models))
	assert.Equal(t, map[string]int{"user": 2, "post": 2}, calls)
}

func TestAssociateStopsAtFirstError(t *testing.T) {
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	errBoom := errors.New("boom")
	laterCalled := false
	registerModel(t, conn, "first", func(*Model, Models) error { return errBoom })
	registerModel(t, conn, "second", func(*Model, Models) error {
		laterCalled = true
		return nil
	})

	err := Associate(NewModels(mustModels(t, conn)...))
	var assocErr *AssociationError
	require.ErrorAs(t, err, &assocErr)
	assert.Equal(t, "main", assocErr.Name)
	assert.Equal(t, "first", assocErr.Model)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, laterCalled)
}

func TestAssociateEmpty(t *testing.T) {
	assert.NoError(t, Associate(NewModels()))
	assert.NoError(t, Associate(Models{}))
}

func TestRegistryGet(t *testing.T) {
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	user := registerModel(t, conn, "user", nil)
	reg := NewRegistry(conn, NewModels(user))

	assert.Equal(t, "main", reg.Name())
	assert.Equal(t, []string{ConnectionKey, "user"}, reg.Keys())

	v, ok := reg.Get(ConnectionKey)
	require.True(t, ok)
	assert.Same(t, conn, v)

	v, ok = reg.Get("user")
	require.True(t, ok)
	assert.Same(t, user, v)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	empty := NewRegistry(conn, NewModels())
	assert.Equal(t, []string{ConnectionKey}, empty.Keys())
	assert.Equal(t, 0, empty.Models().Len())
}

func TestRegisterRejectsReservedName(t *testing.T) {
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	_, err := NewSchema(ConnectionKey).Field("id", TypeInt).Register(conn)
	assert.Error(t, err)
	assert.Empty(t, conn.ModelNames())
}

func TestRegisterLastWriteWins(t *testing.T) {
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	registerModel(t, conn, "user", nil)
	registerModel(t, conn, "post", nil)
	second, err := NewSchema("user").Table("accounts").Field("id", TypeInt).Register(conn)
	require.NoError(t, err)

	assert.Equal(t, []string{"user", "post"}, conn.ModelNames())
	got, ok := conn.Model("user")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, "accounts", got.Table())
}

func mustModels(t *testing.T, conn *Connection) []*Model {
	t.Helper()
	var out []*Model
	for _, name := range conn.ModelNames() {
		m, ok := conn.Model(name)
		require.True(t, ok)
		out = append(out, m)
	}
	return out
}
