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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// HostContext is the embedding application's object, passed to registrars
// unmodified.
type HostContext interface{}

// Registrar defines one or more models and registers them on conn.
type Registrar interface {
	Register(conn *Connection, schema SchemaBuilder, host HostContext) error
}

type RegistrarFunc func(conn *Connection, schema SchemaBuilder, host HostContext) error

func (f RegistrarFunc) Register(conn *Connection, schema SchemaBuilder, host HostContext) error {
	return f(conn, schema, host)
}

// Catalog maps registrar names, as referenced by the `register` key of a
// model definition file, to registrars.
type Catalog struct {
	mu         sync.RWMutex
	registrars map[string]Registrar
}

func NewCatalog() *Catalog {
	return &Catalog{registrars: make(map[string]Registrar)}
}

func (c *Catalog) Add(name string, r Registrar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrars[name] = r
}

func (c *Catalog) Lookup(name string) (Registrar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.registrars[name]
	return r, ok
}

var defaultCatalog = NewCatalog()

// RegisterDefinition adds a registrar to the default catalog, typically from
// an init function of the package that owns the model.
func RegisterDefinition(name string, r RegistrarFunc) {
	defaultCatalog.Add(name, r)
}

// DefaultCatalog returns the catalog filled by RegisterDefinition.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Definition is the content of a model definition file.
type Definition struct {
	Name      string               `yaml:"name"`
	Table     string               `yaml:"table"`
	Register  string               `yaml:"register"`
	Fields    []FieldDefinition    `yaml:"fields"`
	Relations []RelationDefinition `yaml:"relations"`
}

type FieldDefinition struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	SQLType       string `yaml:"sql_type"`
	PrimaryKey    bool   `yaml:"pk"`
	AutoIncrement bool   `yaml:"autoincrement"`
	NotNull       bool   `yaml:"notnull"`
	Unique        bool   `yaml:"unique"`
	Default       string `yaml:"default"`
}

type RelationDefinition struct {
	Kind       string `yaml:"kind"`
	Model      string `yaml:"model"`
	ForeignKey string `yaml:"foreign_key"`
	OnDelete   string `yaml:"on_delete"`
	OnUpdate   string `yaml:"on_update"`
}

var definitionExtensions = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// ParseDefinition decodes a YAML (or JSON) model definition. name is used
// when the document does not declare one.
func ParseDefinition(name string, data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = name
	}
	return &def, nil
}

// Schema converts the definition's fields into a schema built by newSchema.
func (d *Definition) Schema(newSchema SchemaBuilder) (*Schema, error) {
	s := newSchema(d.Name)
	if d.Table != "" {
		s.Table(d.Table)
	}
	for _, fd := range d.Fields {
		typ, err := ParseSchemaType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		s.Field(fd.Name, typ, func(f *Field) {
			f.SQLType = fd.SQLType
			f.PrimaryKey = fd.PrimaryKey
			f.AutoIncrement = fd.AutoIncrement
			f.NotNull = fd.NotNull || fd.PrimaryKey || fd.AutoIncrement
			f.Unique = fd.Unique
			f.Default = fd.Default
		})
	}
	if len(d.Relations) > 0 {
		relations := make([]RelationDefinition, len(d.Relations))
		copy(relations, d.Relations)
		for _, rd := range relations {
			if _, err := ParseRelationKind(rd.Kind); err != nil {
				return nil, err
			}
		}
		s.Associate(func(self *Model, models Models) error {
			for _, rd := range relations {
				kind, _ := ParseRelationKind(rd.Kind)
				target, ok := models.Get(rd.Model)
				if !ok {
					return fmt.Errorf("%s %s: %w", kind, rd.Model, ErrMissingModel)
				}
				if err := self.relate(kind, target, rd.ForeignKey, []RelationOption{OnDelete(rd.OnDelete), OnUpdate(rd.OnUpdate)}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return s, nil
}

// Registrar returns the registrar for the definition: the catalog entry
// named by Register, or one registering the declared schema.
func (d *Definition) Registrar(catalog *Catalog) (Registrar, error) {
	if d.Register != "" {
		if catalog == nil {
			catalog = defaultCatalog
		}
		r, ok := catalog.Lookup(d.Register)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRegistrar, d.Register)
		}
		return r, nil
	}
	return RegistrarFunc(func(conn *Connection, newSchema SchemaBuilder, _ HostContext) error {
		s, err := d.Schema(newSchema)
		if err != nil {
			return err
		}
		_, err = s.Register(conn)
		return err
	}), nil
}

// DirLister lists the entries of a models directory.
type DirLister func(dir string) ([]fs.DirEntry, error)

// ModelLoader registers the models of a directory on a connection.
type ModelLoader struct {
	Catalog   *Catalog
	NewSchema SchemaBuilder
	ReadDir   DirLister
	ReadFile  func(path string) ([]byte, error)
	logger    Logger
}

// NewModelLoader returns a loader using the default catalog and os functions.
func NewModelLoader() *ModelLoader {
	return &ModelLoader{
		Catalog:   defaultCatalog,
		NewSchema: NewSchema,
		ReadDir:   os.ReadDir,
		ReadFile:  os.ReadFile,
		logger:    GetLogger(),
	}
}

func (l *ModelLoader) SetLogger(logger Logger) {
	l.logger = logger
}

// Load runs the registrar of every definition file in dir, in listing order,
// skipping dot entries. It then returns every model registered on conn.
// The first failing file aborts the load with a *ModelLoadError.
func (l *ModelLoader) Load(ctx context.Context, dir string, conn *Connection, host HostContext) (Models, error) {
	readDir := l.ReadDir
	if readDir == nil {
		readDir = os.ReadDir
	}
	readFile := l.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	newSchema := l.NewSchema
	if newSchema == nil {
		newSchema = NewSchema
	}
	logger := WithFields(l.logger, "connection", conn.Name())
	fail := func(file string, err error) (Models, error) {
		return Models{}, &ModelLoadError{Name: conn.Name(), File: file, Err: err}
	}

	entries, err := readDir(dir)
	if err != nil {
		return fail(dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(name, err)
		}
		path := filepath.Join(dir, name)
		ext := strings.ToLower(filepath.Ext(name))
		if entry.IsDir() || !definitionExtensions[ext] {
			return fail(path, ErrNotDefinition)
		}

		data, err := readFile(path)
		if err != nil {
			return fail(path, err)
		}
		def, err := ParseDefinition(strings.TrimSuffix(name, filepath.Ext(name)), data)
		if err != nil {
			return fail(path, err)
		}
		registrar, err := def.Registrar(l.Catalog)
		if err != nil {
			return fail(path, err)
		}
		if err := registrar.Register(conn, newSchema, host); err != nil {
			return fail(path, err)
		}
		loaded++
		logger.Debug("Model definition registered", "file", name, "model", def.Name)
	}

	names := conn.ModelNames()
	list := make([]*Model, 0, len(names))
	for _, name := range names {
		m, _ := conn.Model(name)
		list = append(list, m)
	}
	logger.Info("Models loaded", "files", loaded, "models", len(list))
	return NewModels(list...), nil
}
