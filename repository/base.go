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
	"fmt"
	"reflect"

	"github.com/tomoncle/modelboot/database"
	"github.com/tomoncle/modelboot/types"
	"github.com/uptrace/bun"
)

// Repository offers CRUD and paging for a struct-backed model.
type Repository[T any] interface {
	Model() *database.Model
	GetOne(ctx context.Context, id any) (*T, error)
	GetAll(ctx context.Context) ([]*T, error)
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
	Create(ctx context.Context, entity ...*T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id any) error
	// WithTx returns a repository running its queries on tx.
	WithTx(tx bun.IDB) Repository[T]
	NewSelect() *bun.SelectQuery
}

type baseRepositoryImpl[T any] struct {
	model *database.Model
	db    bun.IDB
	pk    string
}

// New returns a repository for a registered model whose struct is T.
func New[T any](model *database.Model) (Repository[T], error) {
	if model == nil || model.Connection() == nil || model.Connection().DB() == nil {
		return nil, fmt.Errorf("repository: %w", database.ErrMissingModel)
	}
	want := reflect.TypeOf((*T)(nil))
	if got := reflect.TypeOf(model.Instance()); got != want {
		return nil, fmt.Errorf("repository: model %s is backed by %v, not %v", model.Name(), got, want)
	}
	return &baseRepositoryImpl[T]{model: model, db: model.Connection().DB(), pk: model.PrimaryKey()}, nil
}

// ForRegistry looks name up in reg and returns its repository.
func ForRegistry[T any](reg *database.Registry, name string) (Repository[T], error) {
	m, ok := reg.Model(name)
	if !ok {
		return nil, fmt.Errorf("repository: %s: %w", name, database.ErrMissingModel)
	}
	return New[T](m)
}

func (r *baseRepositoryImpl[T]) Model() *database.Model { return r.model }

func (r *baseRepositoryImpl[T]) WithTx(tx bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{model: r.model, db: tx, pk: r.pk}
}

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	var entity T
	err := r.db.NewSelect().Model(&entity).Where("? = ?", bun.Ident(r.pk), id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.List(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if filter != nil {
		query = query.Where(filter.Where, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = &types.PageRequest{}
	}
	page.Normalize()

	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if page.Filter != nil {
		query = query.Where(page.Filter.Where, page.Filter.Args...)
	}
	result := &types.Pagination[T]{Page: page.Page, PageSize: page.PageSize, Items: entities}
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return result, err
	}
	if len(page.Orders) > 0 {
		query = query.Order(page.Orders...)
	}
	if err := query.Offset(page.Offset()).Limit(page.PageSize).Scan(ctx); err != nil {
		return nil, err
	}
	result.Total = total
	result.Items = entities
	return result, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	_, err := r.db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	_, err := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	_, err := r.db.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(r.pk), id).Exec(ctx)
	return err
}
