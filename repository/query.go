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
	"math"
	"slices"

	"github.com/tomoncle/querykit/orderby"
	"github.com/tomoncle/querykit/types"
	"github.com/uptrace/bun"
)

type orderClause struct {
	expr string
	args []interface{}
}

// Query is a lazy, immutable select over entities of type T. Builder methods
// return a new Query; nothing runs until List, First, Count, Exists or Page.
type Query[T any] struct {
	repo      *baseRepositoryImpl[T]
	filters   []*types.QueryFilter
	relations []string
	orders    []orderClause
	offset    int
	limit     int
}

func newQuery[T any](repo *baseRepositoryImpl[T]) *Query[T] {
	return &Query[T]{repo: repo}
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	c.filters = slices.Clone(q.filters)
	c.relations = slices.Clone(q.relations)
	c.orders = slices.Clone(q.orders)
	return &c
}

// Where adds a filter, combined with earlier filters by AND. Empty filters
// are ignored.
func (q *Query[T]) Where(filter *types.QueryFilter) *Query[T] {
	if filter.IsEmpty() {
		return q
	}
	c := q.clone()
	c.filters = append(c.filters, filter)
	return c
}

// WhereID restricts the query to the record with the given primary key.
func (q *Query[T]) WhereID(id any) *Query[T] {
	return q.Where(types.NewQueryFilter("?TableAlias.? = ?", bun.Ident(q.repo.pk()), id))
}

// Relation eagerly loads the named bun relations with the result.
func (q *Query[T]) Relation(names ...string) *Query[T] {
	if len(names) == 0 {
		return q
	}
	c := q.clone()
	for _, name := range names {
		if name != "" && !slices.Contains(c.relations, name) {
			c.relations = append(c.relations, name)
		}
	}
	return c
}

// OrderBy orders by the column behind field, a Go field name or a column
// name. A field that does not resolve to a column leaves the query as it is.
func (q *Query[T]) OrderBy(field string, dir orderby.Direction) *Query[T] {
	col, ok := q.repo.Column(field)
	if !ok {
		q.repo.logger.Debug("order field does not resolve to a column", "field", field)
		return q
	}
	return q.OrderExpr("?TableAlias.? "+dir.String(), bun.Ident(col))
}

// OrderByPK orders by the primary key.
func (q *Query[T]) OrderByPK(dir orderby.Direction) *Query[T] {
	return q.OrderExpr("?TableAlias.? "+dir.String(), bun.Ident(q.repo.pk()))
}

// OrderExpr appends a raw ORDER BY expression with bun placeholders.
func (q *Query[T]) OrderExpr(expr string, args ...interface{}) *Query[T] {
	if expr == "" {
		return q
	}
	c := q.clone()
	c.orders = append(c.orders, orderClause{expr: expr, args: args})
	return c
}

func (q *Query[T]) Offset(n int) *Query[T] {
	c := q.clone()
	c.offset = max(n, 0)
	return c
}

func (q *Query[T]) Limit(n int) *Query[T] {
	c := q.clone()
	c.limit = max(n, 0)
	return c
}

func (q *Query[T]) build(model interface{}, full bool) *bun.SelectQuery {
	sq := q.repo.db.NewSelect().Model(model)
	for _, f := range q.filters {
		sq = sq.Where(f.Schema, f.Args...)
	}
	if !full {
		return sq
	}
	for _, rel := range q.relations {
		sq = sq.Relation(rel)
	}
	for _, o := range q.orders {
		sq = sq.OrderExpr(o.expr, o.args...)
	}
	if q.offset > 0 {
		sq = sq.Offset(q.offset)
	}
	switch {
	case q.limit > 0:
		sq = sq.Limit(q.limit)
	case q.offset > 0:
		// sqlite and mysql reject OFFSET without LIMIT; bun keeps the limit
		// as an int32
		sq = sq.Limit(math.MaxInt32)
	}
	return sq
}

// List runs the query and returns every matching entity. The result is never
// nil on success.
func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	if q.repo.closed {
		return nil, ErrClosed
	}
	entities := make([]*T, 0)
	if err := q.build(&entities, true).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, newStorageError("list", err)
	}
	q.repo.uow.track(entities...)
	return entities, nil
}

// First returns the first matching entity, or nil when nothing matches.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	if q.repo.closed {
		return nil, ErrClosed
	}
	entity := new(T)
	err := q.Limit(1).build(entity, true).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newStorageError("first", err)
	}
	q.repo.uow.track(entity)
	return entity, nil
}

// Count returns the number of matching records with a COUNT query, ignoring
// ordering, paging and relations.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	if q.repo.closed {
		return 0, ErrClosed
	}
	n, err := q.build((*T)(nil), false).Count(ctx)
	if err != nil {
		return 0, newStorageError("count", err)
	}
	return n, nil
}

func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	if q.repo.closed {
		return false, ErrClosed
	}
	ok, err := q.build((*T)(nil), false).Exists(ctx)
	if err != nil {
		return false, newStorageError("exists", err)
	}
	return ok, nil
}

// Page counts the matching records and loads one 1-based page of them.
// Offset and Limit set on the query are replaced by the page window.
func (q *Query[T]) Page(ctx context.Context, page int, pageSize int) (*types.Pagination[T], error) {
	pageSize = types.NormalizePageSize(pageSize)
	pagination := types.NewDefaultPagination[T](types.NormalizePage(page), pageSize)
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}
	items, err := q.Offset(types.PageOffset(page, pageSize)).Limit(pageSize).List(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
