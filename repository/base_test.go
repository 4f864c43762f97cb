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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/modelboot/database"
	"github.com/tomoncle/modelboot/types"
	"github.com/uptrace/bun"
)

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Email string `bun:"email,notnull,unique"`
	Plan  string `bun:"plan,notnull,default:'free'"`
}

func setupAccounts(t *testing.T) (*database.Registry, Repository[Account]) {
	t.Helper()
	ctx := context.Background()
	f := database.NewConnectionFactory()
	f.DisableEnvOverride = true
	conn, err := f.Open(ctx, database.ConnectionConfig{
		Name:   "main",
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "main"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m, err := database.NewSchema("account").Struct(&Account{}).Register(conn)
	require.NoError(t, err)
	models := database.NewModels(m)
	require.NoError(t, database.SyncSchema(ctx, conn, models))

	reg := database.NewRegistry(conn, models)
	repo, err := ForRegistry[Account](reg, "account")
	require.NoError(t, err)
	return reg, repo
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	_, repo := setupAccounts(t)
	assert.Equal(t, "account", repo.Model().Name())

	ada := &Account{Email: "ada@example.com", Plan: "pro"}
	require.NoError(t, repo.Create(ctx, ada, &Account{Email: "bob@example.com", Plan: "free"}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	pro, err := repo.List(ctx, types.NewQueryFilter("plan = ?", "pro"))
	require.NoError(t, err)
	require.Len(t, pro, 1)
	assert.Equal(t, "ada@example.com", pro[0].Email)

	got, err := repo.GetOne(ctx, pro[0].ID)
	require.NoError(t, err)
	got.Plan = "enterprise"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetOne(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", got.Plan)

	require.NoError(t, repo.Delete(ctx, got.ID))
	_, err = repo.GetOne(ctx, got.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	n, err := repo.NewSelect().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepositoryPage(t *testing.T) {
	ctx := context.Background()
	_, repo := setupAccounts(t)

	accounts := make([]*Account, 0, 25)
	for i := 0; i < 25; i++ {
		plan := "free"
		if i%5 == 0 {
			plan = "pro"
		}
		accounts = append(accounts, &Account{Email: fmt.Sprintf("user%02d@example.com", i), Plan: plan})
	}
	require.NoError(t, repo.Create(ctx, accounts...))

	page, err := repo.Page(ctx, types.NewPageRequest(2, 10, nil, "id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Items, 10)
	assert.Equal(t, "user10@example.com", page.Items[0].Email)

	page, err = repo.Page(ctx, types.NewPageRequest(1, 10, types.NewQueryFilter("plan = ?", "pro")))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 5)

	page, err = repo.Page(ctx, types.NewPageRequest(1, 10, types.NewQueryFilter("plan = ?", "none")))
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Items)
}

func TestRepositoryWithTx(t *testing.T) {
	ctx := context.Background()
	reg, repo := setupAccounts(t)
	errRollback := errors.New("rollback")

	err := reg.Connection().DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.WithTx(tx).Create(ctx, &Account{Email: "tx@example.com", Plan: "free"}); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewRejectsMismatchedModel(t *testing.T) {
	reg, _ := setupAccounts(t)
	m, _ := reg.Model("account")

	type Other struct {
		bun.BaseModel `bun:"table:others"`
		ID            int64 `bun:"id,pk"`
	}
	_, err := New[Other](m)
	assert.Error(t, err)

	_, err = ForRegistry[Account](reg, "missing")
	assert.ErrorIs(t, err, database.ErrMissingModel)

	_, err = New[Account](nil)
	assert.ErrorIs(t, err, database.ErrMissingModel)
}
