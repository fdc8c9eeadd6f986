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
	"fmt"
	"reflect"
	"time"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/orderby"
	"github.com/tomoncle/querykit/utils"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db     *bun.DB
	table  *schema.Table
	uow    *unitOfWork[T]
	logger database.Logger
	closed bool
}

// NewRepository returns a repository for T backed by db, or by the global
// database when db is nil. T must be a bun model struct.
func NewRepository[T any](db *bun.DB) Repository[T] {
	return newBaseRepositoryImpl[T](db)
}

func newBaseRepositoryImpl[T any](db *bun.DB) *baseRepositoryImpl[T] {
	if db == nil {
		db = database.GetDB()
	}
	return &baseRepositoryImpl[T]{
		db:     db,
		table:  db.Table(reflect.TypeFor[T]()),
		uow:    newUnitOfWork[T](),
		logger: database.GetLogger(),
	}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

func (r *baseRepositoryImpl[T]) pk() string {
	if len(r.table.PKs) == 0 {
		return "id"
	}
	return r.table.PKs[0].Name
}

func (r *baseRepositoryImpl[T]) field(name string) *schema.Field {
	key := orderby.NormalizeName(name)
	if key == "" {
		return nil
	}
	for _, f := range r.table.Fields {
		if orderby.NormalizeName(f.Name) == key || orderby.NormalizeName(f.GoName) == key {
			return f
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Column(name string) (string, bool) {
	if f := r.field(name); f != nil {
		return f.Name, true
	}
	return "", false
}

func (r *baseRepositoryImpl[T]) columns(fields []string) ([]string, error) {
	cols := make([]string, 0, len(fields))
	for _, name := range fields {
		f := r.field(name)
		if f == nil {
			return nil, invalidArgument("unknown field %q on %s", name, r.table.TypeName)
		}
		if f.IsPK {
			return nil, invalidArgument("primary key field %q cannot be updated", name)
		}
		cols = append(cols, f.Name)
	}
	return cols, nil
}

func (r *baseRepositoryImpl[T]) All() *Query[T] {
	return newQuery(r)
}

func (r *baseRepositoryImpl[T]) AllIncluding(relations ...string) *Query[T] {
	return newQuery(r).Relation(relations...)
}

// Find returns the entity with the given primary key. An insert staged in
// this unit of work is found before the database is asked; nil means the key
// is neither staged nor stored. int, int64, string and uuid.UUID keys are
// passed through to the driver unchanged.
func (r *baseRepositoryImpl[T]) Find(ctx context.Context, id any) (*T, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if id == nil {
		return nil, invalidArgument("nil id")
	}
	if e := r.staged(id); e != nil {
		return e, nil
	}
	return r.All().WhereID(id).First(ctx)
}

// staged returns the entity of a pending insert or upsert keyed by id.
func (r *baseRepositoryImpl[T]) staged(id any) *T {
	key := fmt.Sprint(id)
	for _, c := range r.uow.changes {
		if c.kind != changeInsert && c.kind != changeUpsert {
			continue
		}
		if pk, ok := r.pkOf(c.entity); ok && pk == key {
			return c.entity
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) pkOf(entity *T) (string, bool) {
	if len(r.table.PKs) == 0 {
		return "", false
	}
	v := r.table.PKs[0].Value(reflect.ValueOf(entity).Elem())
	if !v.IsValid() || v.IsZero() {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}

func (r *baseRepositoryImpl[T]) Add(entity *T) error {
	if r.closed {
		return ErrClosed
	}
	if entity == nil {
		return invalidArgument("nil entity")
	}
	r.uow.insert(entity)
	return nil
}

func (r *baseRepositoryImpl[T]) AddAll(entities []*T) error {
	if err := r.checkAll(entities); err != nil {
		return err
	}
	for _, e := range entities {
		r.uow.insert(e)
	}
	return nil
}

// AddOrUpdate stages an insert that updates the given fields, or every
// non-key column when none are given, if the primary key already exists.
func (r *baseRepositoryImpl[T]) AddOrUpdate(entity *T, fields ...string) error {
	if r.closed {
		return ErrClosed
	}
	if entity == nil {
		return invalidArgument("nil entity")
	}
	cols, err := r.columns(fields)
	if err != nil {
		return err
	}
	r.uow.upsert(entity, cols)
	return nil
}

// Edit stages a full update. A tracked entity is marked modified in place;
// an untracked one is attached first.
func (r *baseRepositoryImpl[T]) Edit(entity *T) error {
	if r.closed {
		return ErrClosed
	}
	if entity == nil {
		return invalidArgument("nil entity")
	}
	r.uow.track(entity)
	r.uow.update(entity)
	return nil
}

func (r *baseRepositoryImpl[T]) EditAll(entities []*T) error {
	if err := r.checkAll(entities); err != nil {
		return err
	}
	for _, e := range entities {
		r.uow.track(e)
		r.uow.update(e)
	}
	return nil
}

// EditFields stages a partial update that writes only the named fields.
func (r *baseRepositoryImpl[T]) EditFields(entity *T, fields ...string) error {
	if r.closed {
		return ErrClosed
	}
	if entity == nil {
		return invalidArgument("nil entity")
	}
	return r.EditAllFields([]*T{entity}, fields...)
}

func (r *baseRepositoryImpl[T]) EditAllFields(entities []*T, fields ...string) error {
	if err := r.checkAll(entities); err != nil {
		return err
	}
	if len(fields) == 0 {
		return invalidArgument("no fields to update")
	}
	cols, err := r.columns(fields)
	if err != nil {
		return err
	}
	for _, e := range entities {
		r.uow.track(e)
		r.uow.updateColumns(e, cols)
	}
	return nil
}

// Delete looks the record up and stages its removal. A missing id is
// reported as ErrNotFound and stages nothing.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	entity, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: %s %v", ErrNotFound, r.table.TypeName, id)
	}
	r.uow.remove(entity)
	return nil
}

func (r *baseRepositoryImpl[T]) Remove(entity *T) error {
	if r.closed {
		return ErrClosed
	}
	if entity == nil {
		return invalidArgument("nil entity")
	}
	r.uow.remove(entity)
	return nil
}

func (r *baseRepositoryImpl[T]) checkAll(entities []*T) error {
	if r.closed {
		return ErrClosed
	}
	if entities == nil {
		return invalidArgument("nil collection")
	}
	for i, e := range entities {
		if e == nil {
			return invalidArgument("nil entity at index %d", i)
		}
	}
	return nil
}

// Save commits every staged change in one transaction, in staging order.
// On failure the transaction is rolled back and the staged changes are kept
// so the caller can inspect or Discard them.
func (r *baseRepositoryImpl[T]) Save(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	n := r.uow.pending()
	if n == 0 {
		return nil
	}

	start := time.Now()
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, c := range r.uow.changes {
			if err := r.apply(ctx, tx, c); err != nil {
				return newStorageError(c.kind.String(), err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("unit of work rolled back", "model", r.table.TypeName, "changes", n, "error", err)
		return newStorageError("save", err)
	}
	r.uow.committed()
	r.logger.Debug("unit of work committed", "model", r.table.TypeName, "changes", n, "elapsed", utils.Since(start))
	return nil
}

// SaveAsync runs Save on another goroutine. The channel receives exactly one
// result and is then closed. The repository must not be used until then.
func (r *baseRepositoryImpl[T]) SaveAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- r.Save(ctx)
	}()
	return ch
}

func (r *baseRepositoryImpl[T]) Pending() int {
	return r.uow.pending()
}

func (r *baseRepositoryImpl[T]) Discard() {
	r.uow.discard()
}

// Close drops the unit of work. Closing twice is a no-op; every other call
// after Close returns ErrClosed.
func (r *baseRepositoryImpl[T]) Close() error {
	if r.closed {
		return nil
	}
	if n := r.uow.pending(); n > 0 {
		r.logger.Debug("closing repository with uncommitted changes", "model", r.table.TypeName, "changes", n)
	}
	r.uow.discard()
	clear(r.uow.tracked)
	r.closed = true
	return nil
}

func (r *baseRepositoryImpl[T]) apply(ctx context.Context, tx bun.Tx, c *change[T]) error {
	switch c.kind {
	case changeInsert:
		_, err := tx.NewInsert().Model(c.entity).Exec(ctx)
		return err
	case changeUpdate:
		return r.expectRow(tx.NewUpdate().Model(c.entity).WherePK().Exec(ctx))
	case changePartial:
		return r.expectRow(tx.NewUpdate().Model(c.entity).Column(c.columns...).WherePK().Exec(ctx))
	case changeUpsert:
		return r.upsert(ctx, tx, c.entity, c.columns)
	case changeDelete:
		return r.expectRow(tx.NewDelete().Model(c.entity).WherePK().Exec(ctx))
	}
	return fmt.Errorf("unknown change kind %d", c.kind)
}

// expectRow turns a statement that touched no row into ErrConflict, which
// rolls the whole unit of work back.
func (r *baseRepositoryImpl[T]) expectRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConflict, r.table.TypeName)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) upsert(ctx context.Context, tx bun.Tx, entity *T, cols []string) error {
	if len(cols) == 0 {
		for _, f := range r.table.DataFields {
			cols = append(cols, f.Name)
		}
	}

	insertQuery := tx.NewInsert().Model(entity)
	switch {
	case r.db.HasFeature(feature.InsertOnConflict):
		insertQuery = insertQuery.On("CONFLICT (?) DO UPDATE", bun.Ident(r.pk()))
		for _, col := range cols {
			insertQuery = insertQuery.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
		}
	case r.db.HasFeature(feature.InsertOnDuplicateKey):
		insertQuery = insertQuery.On("DUPLICATE KEY UPDATE")
		for _, col := range cols {
			insertQuery = insertQuery.Set("? = VALUES(?)", bun.Ident(col), bun.Ident(col))
		}
	default:
		return r.upsertFallback(ctx, tx, entity, cols)
	}
	_, err := insertQuery.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, tx bun.Tx, entity *T, cols []string) error {
	exists, err := tx.NewSelect().Model(entity).WherePK().Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		_, err = tx.NewUpdate().Model(entity).Column(cols...).WherePK().Exec(ctx)
	} else {
		_, err = tx.NewInsert().Model(entity).Exec(ctx)
	}
	return err
}
