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
	"strings"

	"github.com/uptrace/bun"
)

func dialectName(db bun.IDB) string {
	return strings.ToLower(db.Dialect().Name().String())
}

func quoteIdent(db bun.IDB, s string) string {
	if dialectName(db) == "mysql" {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ColumnType maps a schema type to the column type of a bun dialect name
// ("pg", "mysql", "sqlite").
func ColumnType(dialect string, t SchemaType) string {
	switch dialect {
	case "mysql":
		switch t {
		case TypeText:
			return "text"
		case TypeInt:
			return "int"
		case TypeBigInt:
			return "bigint"
		case TypeFloat:
			return "double"
		case TypeBool:
			return "tinyint(1)"
		case TypeTime:
			return "datetime(6)"
		case TypeJSON:
			return "json"
		case TypeUUID:
			return "char(36)"
		default:
			return "varchar(255)"
		}
	case "pg", "postgres", "postgresql":
		switch t {
		case TypeText:
			return "text"
		case TypeInt:
			return "integer"
		case TypeBigInt:
			return "bigint"
		case TypeFloat:
			return "double precision"
		case TypeBool:
			return "boolean"
		case TypeTime:
			return "timestamptz"
		case TypeJSON:
			return "jsonb"
		case TypeUUID:
			return "uuid"
		default:
			return "varchar(255)"
		}
	default:
		switch t {
		case TypeInt, TypeBigInt:
			return "INTEGER"
		case TypeFloat:
			return "REAL"
		case TypeBool:
			return "BOOLEAN"
		case TypeTime:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	}
}

func columnDefinition(dialect string, f Field, inlinePK bool) string {
	typ := f.SQLType
	if typ == "" {
		typ = ColumnType(dialect, f.Type)
	}
	var b strings.Builder
	b.WriteString(typ)
	if f.AutoIncrement {
		switch dialect {
		case "pg", "postgres", "postgresql":
			if f.SQLType == "" {
				b.Reset()
				if f.Type == TypeInt {
					b.WriteString("serial")
				} else {
					b.WriteString("bigserial")
				}
			}
		case "mysql":
			b.WriteString(" AUTO_INCREMENT")
		}
	}
	if inlinePK {
		b.WriteString(" PRIMARY KEY")
		if f.AutoIncrement && dialect == "sqlite" {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if f.NotNull && !inlinePK {
		b.WriteString(" NOT NULL")
	}
	if f.Unique && !f.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if f.Default != "" {
		b.WriteString(" DEFAULT " + f.Default)
	}
	return b.String()
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for a model.
func CreateTableSQL(db bun.IDB, m *Model) (string, error) {
	if len(m.fields) == 0 {
		return "", fmt.Errorf("model %s has no fields", m.name)
	}
	dialect := dialectName(db)
	var pks []string
	for _, f := range m.fields {
		if f.PrimaryKey {
			pks = append(pks, f.Name)
		}
	}

	cols := make([]string, 0, len(m.fields)+1)
	for _, f := range m.fields {
		inline := f.PrimaryKey && len(pks) == 1
		cols = append(cols, quoteIdent(db, f.Name)+" "+columnDefinition(dialect, f, inline))
	}
	if len(pks) > 1 {
		quoted := make([]string, len(pks))
		for i, pk := range pks {
			quoted[i] = quoteIdent(db, pk)
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(db, m.table), strings.Join(cols, ", ")), nil
}

// SyncSchema creates the tables of every model that has fields, then adds
// the foreign keys implied by their relations. SQLite cannot add
// constraints to existing tables, so foreign keys are skipped there.
func SyncSchema(ctx context.Context, conn *Connection, models Models) error {
	db := conn.DB()
	if db == nil {
		return fmt.Errorf("connection %s: database not connected", conn.Name())
	}
	logger := conn.Logger()

	for _, m := range models.All() {
		if len(m.fields) == 0 {
			logger.Debug("Model has no fields, skipping table creation", "model", m.name)
			continue
		}
		stmt, err := CreateTableSQL(db, m)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", m.table, err)
		}
		logger.Debug("Table ensured", "model", m.name, "table", m.table)
	}

	fkm, err := NewForeignKeyManager(logger, models)
	if err != nil {
		return err
	}
	if errs := fkm.ValidateConstraints(); len(errs) > 0 {
		return fmt.Errorf("invalid relation: %w", errs[0])
	}
	if dialectName(db) == "sqlite" {
		if n := len(fkm.ListAllConstraints()); n > 0 {
			logger.Debug("SQLite does not support adding foreign keys, skipping", "constraints", n)
		}
		return nil
	}
	added := fkm.AddAllForeignKeys(ctx, db)
	logger.Info("Schema synchronized", "tables", models.Len(), "foreign_keys", added)
	return nil
}
