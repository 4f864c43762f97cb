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
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// SchemaType enumerates the column types a schema may declare.
type SchemaType int

const (
	TypeString SchemaType = iota + 1
	TypeText
	TypeInt
	TypeBigInt
	TypeFloat
	TypeBool
	TypeTime
	TypeJSON
	TypeUUID
)

var schemaTypeNames = map[SchemaType]string{
	TypeString: "string",
	TypeText:   "text",
	TypeInt:    "int",
	TypeBigInt: "bigint",
	TypeFloat:  "float",
	TypeBool:   "bool",
	TypeTime:   "time",
	TypeJSON:   "json",
	TypeUUID:   "uuid",
}

func (t SchemaType) String() string {
	if s, ok := schemaTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("SchemaType(%d)", int(t))
}

// ParseSchemaType accepts the names printed by String plus a few aliases.
func ParseSchemaType(s string) (SchemaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int", "integer":
		return TypeInt, nil
	case "bigint", "int64":
		return TypeBigInt, nil
	case "float", "double", "number":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "time", "timestamp", "datetime", "date":
		return TypeTime, nil
	case "json", "object", "mixed":
		return TypeJSON, nil
	case "uuid":
		return TypeUUID, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSchemaType, s)
}

// Field is one column of a model schema.
type Field struct {
	Name          string
	Type          SchemaType
	SQLType       string // overrides the dialect mapping of Type when set
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	Default       string
}

type FieldOption func(*Field)

func PrimaryKey() FieldOption    { return func(f *Field) { f.PrimaryKey = true; f.NotNull = true } }
func AutoIncrement() FieldOption { return func(f *Field) { f.AutoIncrement = true; f.NotNull = true } }
func NotNull() FieldOption       { return func(f *Field) { f.NotNull = true } }
func Unique() FieldOption        { return func(f *Field) { f.Unique = true } }
func Default(expr string) FieldOption {
	return func(f *Field) { f.Default = expr }
}
func SQLType(typ string) FieldOption {
	return func(f *Field) { f.SQLType = typ }
}

// AssociateFunc is the second-phase hook of a model. It runs once every
// model of the connection is registered and receives all of them.
type AssociateFunc func(self *Model, models Models) error

// SchemaBuilder constructs a new, empty schema for a model name.
type SchemaBuilder func(name string) *Schema

// Schema is a model definition under construction.
type Schema struct {
	name      string
	table     string
	fields    []Field
	instance  interface{}
	associate AssociateFunc
	err       error
}

// NewSchema starts a schema whose table defaults to the model name.
func NewSchema(name string) *Schema {
	return &Schema{name: name, table: name}
}

func (s *Schema) Table(table string) *Schema {
	s.table = table
	return s
}

func (s *Schema) Field(name string, typ SchemaType, opts ...FieldOption) *Schema {
	if _, ok := schemaTypeNames[typ]; !ok && s.err == nil {
		s.err = fmt.Errorf("field %s: %w: %d", name, ErrUnknownSchemaType, int(typ))
	}
	f := Field{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&f)
	}
	s.fields = append(s.fields, f)
	return s
}

// Struct derives the table name and fields from a Bun model struct, e.g.
// &User{} with a `bun:"table:users"` BaseModel tag.
func (s *Schema) Struct(instance interface{}) *Schema {
	table, fields, err := describeStruct(instance)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return s
	}
	s.instance = instance
	s.table = table
	s.fields = append(s.fields, fields...)
	return s
}

// Associate sets the hook run in the association phase.
func (s *Schema) Associate(fn AssociateFunc) *Schema {
	s.associate = fn
	return s
}

// Build validates the schema and returns an unregistered model.
func (s *Schema) Build() (*Model, error) {
	if s.err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.name, s.err)
	}
	if s.name == "" {
		return nil, fmt.Errorf("schema name cannot be empty")
	}
	if s.table == "" {
		return nil, fmt.Errorf("schema %s: table name cannot be empty", s.name)
	}
	seen := make(map[string]struct{}, len(s.fields))
	for _, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field name cannot be empty", s.name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %s", s.name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	fields := make([]Field, len(s.fields))
	copy(fields, s.fields)
	return &Model{
		name:      s.name,
		table:     s.table,
		fields:    fields,
		instance:  s.instance,
		associate: s.associate,
	}, nil
}

// Register builds the schema and registers the model on conn.
func (s *Schema) Register(conn *Connection) (*Model, error) {
	m, err := s.Build()
	if err != nil {
		return nil, err
	}
	if err := conn.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Model is a named schema bound to exactly one connection.
type Model struct {
	name      string
	table     string
	fields    []Field
	instance  interface{}
	associate AssociateFunc
	relations []Relation
	conn      *Connection
}

func (m *Model) Name() string  { return m.name }
func (m *Model) Table() string { return m.table }

func (m *Model) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Field returns the field with the given column name.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Instance returns the Bun struct the model was derived from, or nil.
func (m *Model) Instance() interface{} { return m.instance }

// Connection returns the owning connection; nil until registered.
func (m *Model) Connection() *Connection { return m.conn }

// Associable reports whether the model has an associate hook.
func (m *Model) Associable() bool { return m.associate != nil }

// PrimaryKey returns the first primary key column, "id" when none is declared.
func (m *Model) PrimaryKey() string {
	for _, f := range m.fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	return "id"
}

func (m *Model) Relations() []Relation {
	out := make([]Relation, len(m.relations))
	copy(out, m.relations)
	return out
}

func (m *Model) db() (*bun.DB, error) {
	if m.conn == nil || m.conn.DB() == nil {
		return nil, fmt.Errorf("model %s: %w", m.name, ErrMissingModel)
	}
	return m.conn.DB(), nil
}

// NewSelect starts a select against the model table. It fails with
// ErrMissingModel when the model was never registered on a connection.
func (m *Model) NewSelect() (*bun.SelectQuery, error) {
	db, err := m.db()
	if err != nil {
		return nil, err
	}
	return db.NewSelect().Table(m.table), nil
}

// Insert writes one row given as column -> value.
func (m *Model) Insert(ctx context.Context, values map[string]interface{}) error {
	db, err := m.db()
	if err != nil {
		return err
	}
	_, err = db.NewInsert().Model(&values).Table(m.table).Exec(ctx)
	return err
}

// Rows returns every row of the model table as column -> value maps.
func (m *Model) Rows(ctx context.Context) ([]map[string]interface{}, error) {
	q, err := m.NewSelect()
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *Model) Count(ctx context.Context) (int, error) {
	q, err := m.NewSelect()
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

// Models is an ordered name -> model mapping.
type Models struct {
	names  []string
	byName map[string]*Model
}

// NewModels keeps the given order; a repeated name replaces the earlier
// model in place.
func NewModels(list ...*Model) Models {
	ms := Models{byName: make(map[string]*Model, len(list))}
	for _, m := range list {
		if _, ok := ms.byName[m.name]; !ok {
			ms.names = append(ms.names, m.name)
		}
		ms.byName[m.name] = m
	}
	return ms
}

func (ms Models) Get(name string) (*Model, bool) {
	m, ok := ms.byName[name]
	return m, ok
}

func (ms Models) Names() []string {
	out := make([]string, len(ms.names))
	copy(out, ms.names)
	return out
}

func (ms Models) Len() int { return len(ms.names) }

// All returns the models in order.
func (ms Models) All() []*Model {
	out := make([]*Model, 0, len(ms.names))
	for _, name := range ms.names {
		out = append(out, ms.byName[name])
	}
	return out
}

var timeType = reflect.TypeOf(time.Time{})

// describeStruct reads the table name and columns from Bun struct tags.
func describeStruct(instance interface{}) (string, []Field, error) {
	t := reflect.TypeOf(instance)
	if t == nil {
		return "", nil, fmt.Errorf("model instance cannot be nil")
	}
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return "", nil, fmt.Errorf("model instance must be a struct pointer, got %s", t)
	}
	t = t.Elem()

	table := ""
	var fields []Field
	collectStructFields(t, &table, &fields)
	if table == "" {
		return "", nil, fmt.Errorf("%s: missing table tag on bun.BaseModel", t.Name())
	}
	return table, fields, nil
}

func isBunBaseModel(f reflect.StructField) bool {
	return f.Type.Name() == "BaseModel" && strings.Contains(f.Type.PkgPath(), "uptrace/bun")
}

func collectStructFields(t reflect.Type, table *string, fields *[]Field) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("bun")
		if isBunBaseModel(f) {
			for _, part := range strings.Split(tag, ",") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "table:") {
					*table = strings.TrimPrefix(part, "table:")
				}
			}
			continue
		}
		if tag == "-" || strings.Contains(tag, "rel:") || strings.Contains(tag, "m2m:") {
			continue
		}
		if tag == "" {
			if f.Anonymous {
				ft := f.Type
				if ft.Kind() == reflect.Ptr {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					collectStructFields(ft, table, fields)
				}
			}
			continue
		}

		parts := strings.Split(tag, ",")
		col := strings.TrimSpace(parts[0])
		if col == "" {
			continue
		}
		field := Field{Name: col, Type: inferSchemaType(f.Type)}
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			switch {
			case strings.HasPrefix(p, "type:"):
				field.SQLType = strings.TrimPrefix(p, "type:")
			case p == "notnull":
				field.NotNull = true
			case strings.HasPrefix(p, "default:"):
				field.Default = strings.TrimPrefix(p, "default:")
			case p == "pk":
				field.PrimaryKey = true
			case p == "autoincrement" || p == "identity":
				field.AutoIncrement = true
			case p == "unique" || strings.HasPrefix(p, "unique:"):
				field.Unique = true
			}
		}
		if field.PrimaryKey || field.AutoIncrement {
			field.NotNull = true
		}
		*fields = append(*fields, field)
	}
}

func inferSchemaType(rt reflect.Type) SchemaType {
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == timeType {
		return TypeTime
	}
	switch rt.Kind() {
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return TypeBigInt
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeBool
	case reflect.Map, reflect.Slice, reflect.Struct:
		return TypeJSON
	default:
		return TypeString
	}
}
