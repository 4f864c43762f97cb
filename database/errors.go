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
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConnectionError reports a failure to open a named connection.
type ConnectionError struct {
	Name string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q: %v", e.Name, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthFailure reports whether the driver rejected the credentials.
func (e *ConnectionError) AuthFailure() bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(e.Err, &mysqlErr) {
		// ER_ACCESS_DENIED_ERROR, ER_DBACCESS_DENIED_ERROR
		return mysqlErr.Number == 1045 || mysqlErr.Number == 1044
	}
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		// invalid_password, invalid_authorization_specification
		return pqErr.Code == "28P01" || pqErr.Code == "28000"
	}
	return false
}

// ModelLoadError reports a model definition that could not be read, parsed,
// or registered.
type ModelLoadError struct {
	Name string
	File string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("connection %q: load model file %s: %v", e.Name, e.File, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// AssociationError reports a failing associate hook.
type AssociationError struct {
	Name  string
	Model string
	Err   error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("connection %q: associate model %q: %v", e.Name, e.Model, e.Err)
}

func (e *AssociationError) Unwrap() error { return e.Err }

var (
	ErrMissingModel      = errors.New("model is not registered on this connection")
	ErrUnknownRegistrar  = errors.New("unknown registrar")
	ErrUnknownSchemaType = errors.New("unknown schema type")
	ErrNotDefinition     = errors.New("not a model definition file")
)
