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

type RelationKind string

const (
	BelongsTo RelationKind = "belongs_to"
	HasOne    RelationKind = "has_one"
	HasMany   RelationKind = "has_many"
)

// ParseRelationKind accepts belongs_to, has_one and has_many, also in
// camelCase.
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "belongsto":
		return BelongsTo, nil
	case "hasone":
		return HasOne, nil
	case "hasmany":
		return HasMany, nil
	}
	return "", fmt.Errorf("unknown relation kind %q", s)
}

// Relation links a model to another model of the same connection.
// ForeignKey is a column of the owner for belongs_to and of the target for
// has_one/has_many.
type Relation struct {
	Kind       RelationKind
	Model      string
	Target     string
	ForeignKey string
	OnDelete   string
	OnUpdate   string
}

type RelationOption func(*Relation)

func OnDelete(action string) RelationOption { return func(r *Relation) { r.OnDelete = action } }
func OnUpdate(action string) RelationOption { return func(r *Relation) { r.OnUpdate = action } }

// BelongsTo records that m.foreignKey references target's primary key.
func (m *Model) BelongsTo(target *Model, foreignKey string, opts ...RelationOption) error {
	return m.relate(BelongsTo, target, foreignKey, opts)
}

// HasOne records that target.foreignKey references m's primary key and is unique.
func (m *Model) HasOne(target *Model, foreignKey string, opts ...RelationOption) error {
	return m.relate(HasOne, target, foreignKey, opts)
}

// HasMany records that target.foreignKey references m's primary key.
func (m *Model) HasMany(target *Model, foreignKey string, opts ...RelationOption) error {
	return m.relate(HasMany, target, foreignKey, opts)
}

func (m *Model) relate(kind RelationKind, target *Model, foreignKey string, opts []RelationOption) error {
	if target == nil {
		return fmt.Errorf("%s %s: %w", m.name, kind, ErrMissingModel)
	}
	if m.conn == nil || target.conn != m.conn {
		return fmt.Errorf("%s %s %s: models belong to different connections", m.name, kind, target.name)
	}
	if foreignKey == "" {
		foreignKey = defaultForeignKey(kind, m, target)
	}
	r := Relation{Kind: kind, Model: m.name, Target: target.name, ForeignKey: foreignKey}
	for _, opt := range opts {
		opt(&r)
	}
	m.relations = append(m.relations, r)
	return nil
}

func defaultForeignKey(kind RelationKind, owner, target *Model) string {
	if kind == BelongsTo {
		return target.name + "_id"
	}
	return owner.name + "_id"
}

// Constraint turns a relation into the foreign key it implies. models must
// contain both ends of the relation.
func (r Relation) Constraint(models Models) (ForeignKeyConstraint, error) {
	owner, ok := models.Get(r.Model)
	if !ok {
		return ForeignKeyConstraint{}, fmt.Errorf("%s: %w", r.Model, ErrMissingModel)
	}
	target, ok := models.Get(r.Target)
	if !ok {
		return ForeignKeyConstraint{}, fmt.Errorf("%s: %w", r.Target, ErrMissingModel)
	}
	fk := ForeignKeyConstraint{OnDelete: r.OnDelete, OnUpdate: r.OnUpdate}
	if r.Kind == BelongsTo {
		fk.Table, fk.Column = owner.table, r.ForeignKey
		fk.ReferenceTable, fk.ReferenceColumn = target.table, target.PrimaryKey()
	} else {
		fk.Table, fk.Column = target.table, r.ForeignKey
		fk.ReferenceTable, fk.ReferenceColumn = owner.table, owner.PrimaryKey()
	}
	return fk, nil
}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	ConstraintName  string
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement adding the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL(db bun.IDB) string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		quoteIdent(db, fk.Table), quoteIdent(db, fk.GenerateConstraintName()), quoteIdent(db, fk.Column),
		quoteIdent(db, fk.ReferenceTable), quoteIdent(db, fk.ReferenceColumn))
	if fk.OnDelete != "" {
		sql += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		sql += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return sql
}

// ForeignKeyManager adds and validates the constraints implied by the
// relations of a model set.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager collects the constraints of every relation in models.
func NewForeignKeyManager(logger Logger, models Models) (*ForeignKeyManager, error) {
	fkm := &ForeignKeyManager{logger: logger}
	seen := make(map[string]int)
	for _, m := range models.All() {
		for _, r := range m.relations {
			fk, err := r.Constraint(models)
			if err != nil {
				return nil, fmt.Errorf("relation %s -> %s: %w", r.Model, r.Target, err)
			}
			// has_many on one side and belongs_to on the other imply the same key
			if i, dup := seen[fk.GenerateConstraintName()]; dup {
				existing := &fkm.constraints[i]
				if existing.OnDelete == "" {
					existing.OnDelete = fk.OnDelete
				}
				if existing.OnUpdate == "" {
					existing.OnUpdate = fk.OnUpdate
				}
				continue
			}
			seen[fk.GenerateConstraintName()] = len(fkm.constraints)
			fkm.constraints = append(fkm.constraints, fk)
		}
	}
	return fkm, nil
}

// AddAllForeignKeys adds every constraint. Individual failures, usually an
// already existing constraint, are logged and skipped.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) int {
	added := 0
	for _, constraint := range fkm.constraints {
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL(db)); err != nil {
			if fkm.logger != nil {
				fkm.logger.Debug("Failed to add foreign key constraint", "constraint", constraint.GenerateConstraintName(), "error", err.Error())
			}
			continue
		}
		added++
		if fkm.logger != nil {
			fkm.logger.Debug("Successfully added foreign key constraint", "constraint", constraint.GenerateConstraintName())
		}
	}
	return added
}

// GetConstraintsByTable returns the constraints declared on a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

var validReferentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ValidateConstraints checks the constraints for empty names and unknown
// referential actions.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, constraint := range fkm.constraints {
		if constraint.Column == "" {
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", constraint.Table))
		}
		for policy, action := range map[string]string{"delete": constraint.OnDelete, "update": constraint.OnUpdate} {
			if action != "" && !isReferentialAction(action) {
				errs = append(errs, fmt.Errorf("invalid %s policy: %s, constraint: %s", policy, action, constraint.GenerateConstraintName()))
			}
		}
	}
	return errs
}

func isReferentialAction(action string) bool {
	for _, valid := range validReferentialActions {
		if strings.EqualFold(action, valid) {
			return true
		}
	}
	return false
}
