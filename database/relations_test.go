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
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// unopenedDB returns a bun.DB for SQL rendering only; sql.Open does not dial.
func unopenedDB(t *testing.T, driver string) *bun.DB {
	t.Helper()
	switch driver {
	case "mysql":
		sqlDB, err := sql.Open("mysql", "root@tcp(127.0.0.1:3306)/test")
		require.NoError(t, err)
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		sqlDB, err := sql.Open("postgres", "postgres://127.0.0.1:5432/test?sslmode=disable")
		require.NoError(t, err)
		return bun.NewDB(sqlDB, pgdialect.New())
	}
}

func userAndPost(t *testing.T) (*Connection, *Model, *Model) {
	t.Helper()
	conn := NewConnection(ConnectionConfig{Name: "main"}, nil)
	user, err := NewSchema("user").Table("users").Field("id", TypeBigInt, PrimaryKey()).Register(conn)
	require.NoError(t, err)
	post, err := NewSchema("post").Table("posts").
		Field("id", TypeBigInt, PrimaryKey()).
		Field("user_id", TypeBigInt).
		Field("author_id", TypeBigInt).
		Register(conn)
	require.NoError(t, err)
	return conn, user, post
}

func TestParseRelationKind(t *testing.T) {
	for in, want := range map[string]RelationKind{
		"belongs_to": BelongsTo,
		"belongsTo":  BelongsTo,
		"has_one":    HasOne,
		"hasMany":    HasMany,
		" HAS_MANY ": HasMany,
	} {
		got, err := ParseRelationKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRelationKind("many_to_many")
	assert.Error(t, err)
}

func TestRelationDefaultsAndConstraint(t *testing.T) {
	_, user, post := userAndPost(t)
	require.NoError(t, post.BelongsTo(user, ""))
	require.NoError(t, user.HasMany(post, "author_id", OnDelete("cascade")))

	require.Len(t, post.Relations(), 1)
	assert.Equal(t, "user_id", post.Relations()[0].ForeignKey)

	models := NewModels(user, post)
	fk, err := post.Relations()[0].Constraint(models)
	require.NoError(t, err)
	assert.Equal(t, ForeignKeyConstraint{Table: "posts", Column: "user_id", ReferenceTable: "users", ReferenceColumn: "id"}, fk)

	fk, err = user.Relations()[0].Constraint(models)
	require.NoError(t, err)
	assert.Equal(t, "posts", fk.Table)
	assert.Equal(t, "author_id", fk.Column)
	assert.Equal(t, "users", fk.ReferenceTable)
	assert.Equal(t, "fk_posts_author_id", fk.GenerateConstraintName())

	_, err = post.Relations()[0].Constraint(NewModels(post))
	assert.ErrorIs(t, err, ErrMissingModel)
}

func TestRelationAcrossConnections(t *testing.T) {
	_, user, _ := userAndPost(t)
	other := NewConnection(ConnectionConfig{Name: "other"}, nil)
	audit, err := NewSchema("audit").Field("id", TypeInt).Register(other)
	require.NoError(t, err)

	assert.Error(t, audit.BelongsTo(user, ""))
	assert.ErrorIs(t, audit.HasOne(nil, ""), ErrMissingModel)
	assert.Empty(t, audit.Relations())
}

func TestForeignKeyManagerMergesBothSides(t *testing.T) {
	_, user, post := userAndPost(t)
	require.NoError(t, user.HasMany(post, "author_id"))
	require.NoError(t, post.BelongsTo(user, "author_id", OnDelete("cascade")))

	fkm, err := NewForeignKeyManager(&recordingLogger{}, NewModels(user, post))
	require.NoError(t, err)
	require.Len(t, fkm.ListAllConstraints(), 1)
	fk := fkm.ListAllConstraints()[0]
	assert.Equal(t, "cascade", fk.OnDelete)
	assert.Len(t, fkm.GetConstraintsByTable("POSTS"), 1)
	assert.Empty(t, fkm.GetConstraintsByTable("users"))
	assert.Empty(t, fkm.ValidateConstraints())
}

func TestForeignKeyManagerValidate(t *testing.T) {
	_, user, post := userAndPost(t)
	require.NoError(t, post.BelongsTo(user, "", OnDelete("explode"), OnUpdate("set null")))

	fkm, err := NewForeignKeyManager(nil, NewModels(user, post))
	require.NoError(t, err)
	errs := fkm.ValidateConstraints()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "explode")
}

func TestGenerateSQL(t *testing.T) {
	fk := ForeignKeyConstraint{
		Table:           "posts",
		Column:          "author_id",
		ReferenceTable:  "users",
		ReferenceColumn: "id",
		OnDelete:        "cascade",
	}
	pg := unopenedDB(t, "postgres")
	defer pg.Close()
	assert.Equal(t,
		`ALTER TABLE "posts" ADD CONSTRAINT "fk_posts_author_id" FOREIGN KEY ("author_id") REFERENCES "users"("id") ON DELETE CASCADE`,
		fk.GenerateSQL(pg))

	fk.ConstraintName = "posts_author"
	fk.OnUpdate = "restrict"
	my := unopenedDB(t, "mysql")
	defer my.Close()
	assert.Equal(t,
		"ALTER TABLE `posts` ADD CONSTRAINT `posts_author` FOREIGN KEY (`author_id`) REFERENCES `users`(`id`) ON DELETE CASCADE ON UPDATE RESTRICT",
		fk.GenerateSQL(my))
}
