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

package types

// QueryFilter describes a WHERE clause and its argument values.
type QueryFilter struct {
	Where string
	Args  []interface{}
}

func NewQueryFilter(where string, args ...interface{}) *QueryFilter {
	return &QueryFilter{Where: where, Args: args}
}

// PageRequest describes a 1-based page, an optional filter and ordering
// such as "id ASC".
type PageRequest struct {
	Page     int
	PageSize int
	Filter   *QueryFilter
	Orders   []string
}

func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders ...string) *PageRequest {
	return &PageRequest{Page: page, PageSize: pageSize, Filter: filter, Orders: orders}
}

// Normalize clamps Page to at least 1 and PageSize to 1..maxPageSize,
// defaulting to 10.
func (p *PageRequest) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 10
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

const maxPageSize = 1000

func (p *PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination holds one page of items and the total row count.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

func (p *Pagination[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
