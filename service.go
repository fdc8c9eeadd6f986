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

package querykit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/entity"
	"github.com/tomoncle/querykit/orderby"
	"github.com/tomoncle/querykit/repository"
	"github.com/tomoncle/querykit/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Commit writes every change staged in the underlying repository.
	Commit(ctx context.Context) error

	// CommitAsync runs Commit on another goroutine and reports its result.
	CommitAsync(ctx context.Context) <-chan error

	// Save inserts a new entity and commits.
	Save(ctx context.Context, model *T) error

	// SaveAll inserts new entities and commits once.
	SaveAll(ctx context.Context, models []*T) error

	// SaveIfNotExist inserts the entity only when its id is absent and
	// saveIfNotExist is set. It commits in every case.
	SaveIfNotExist(ctx context.Context, model *T, saveIfNotExist bool) error

	// SaveAllIfNotExist applies SaveIfNotExist per entity with one commit. An
	// id staged earlier in the batch counts as present.
	SaveAllIfNotExist(ctx context.Context, models []*T, saveIfNotExist bool) error

	// SaveOrUpdate inserts the entity or, when its id exists, updates the
	// given fields (all fields when none are given).
	SaveOrUpdate(ctx context.Context, model *T, fields ...string) error

	// Update writes every field of an existing entity and commits.
	Update(ctx context.Context, model *T) error

	// UpdateAll writes every field of existing entities and commits once.
	UpdateAll(ctx context.Context, models []*T) error

	// UpdateFields writes only the named fields and commits.
	UpdateFields(ctx context.Context, model *T, fields ...string) error

	// Delete removes an entity by id. A missing id is repository.ErrNotFound.
	Delete(ctx context.Context, id any) error

	// DeleteByIDs removes every listed entity, or none when one is missing.
	DeleteByIDs(ctx context.Context, ids ...any) error

	// DeleteBy removes the entities matching a non-empty filter and reports
	// how many matched. Matching and deletion are not atomic.
	DeleteBy(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Get returns an entity by id, or nil.
	Get(ctx context.Context, id any) (*T, error)

	// GetBy returns the most recently updated entity matching filter, or nil.
	GetBy(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error)

	// GetAll lists every entity, most recently updated first unless a sort
	// option says otherwise.
	GetAll(ctx context.Context, opts ...ListOption) ([]*T, error)

	// GetAllBy lists the entities matching filter.
	GetAllBy(ctx context.Context, filter *types.QueryFilter, opts ...ListOption) ([]*T, error)

	// GetInitial returns the first size entities in default order.
	GetInitial(ctx context.Context, size int, relations ...string) ([]*T, error)

	// GetCountBy counts the entities matching filter in the database.
	GetCountBy(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Check reports whether an entity with the given id exists.
	Check(ctx context.Context, id any) (bool, error)

	// CheckBy reports whether any entity matches filter.
	CheckBy(ctx context.Context, filter *types.QueryFilter) (bool, error)

	// Page returns a page of entities with the total count.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Repository exposes the underlying unit of work.
	Repository() repository.Repository[T]

	// Close releases the repository.
	Close() error
}

type baseServiceImpl[T entity.Entity[S], S types.StateEnum] struct {
	repo   repository.Repository[T]
	fields *orderby.Fields[*T]
	touch  bool
	clock  func() time.Time
	logger database.Logger
}

// NewService returns a Service owning a new repository over db. A nil db
// selects the global database initialized by database.InitDB.
func NewService[T entity.Entity[S], S types.StateEnum](db *bun.DB, opts ...Option) Service[T] {
	return NewServiceWithRepository[T, S](repository.NewRepository[T](db), opts...)
}

// NewServiceWithRepository returns a Service that takes ownership of repo.
func NewServiceWithRepository[T entity.Entity[S], S types.StateEnum](repo repository.Repository[T], opts ...Option) Service[T] {
	cfg := &settings{clock: time.Now, logger: database.GetLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	fields := entity.SortFields[T, S]()
	if extra, ok := cfg.sortFields.(*orderby.Fields[*T]); ok {
		fields.Merge(extra)
	} else if cfg.sortFields != nil {
		cfg.logger.Warn("sort fields registered for another entity type are ignored", "fields", fmt.Sprintf("%T", cfg.sortFields))
	}

	return &baseServiceImpl[T, S]{
		repo:   repo,
		fields: fields,
		touch:  cfg.touchOnUpdate,
		clock:  cfg.clock,
		logger: cfg.logger,
	}
}

func (s *baseServiceImpl[T, S]) Repository() repository.Repository[T] {
	return s.repo
}

func (s *baseServiceImpl[T, S]) Close() error {
	return s.repo.Close()
}

// Commit saves the staged changes. A failed commit is rolled back and its
// changes are discarded, so the service stays usable.
func (s *baseServiceImpl[T, S]) Commit(ctx context.Context) error {
	if err := s.repo.Save(ctx); err != nil {
		if !errors.Is(err, repository.ErrClosed) {
			s.logger.Warn("commit failed, discarding staged changes", "changes", s.repo.Pending(), "error", err)
			s.repo.Discard()
		}
		return err
	}
	return nil
}

func (s *baseServiceImpl[T, S]) CommitAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- s.Commit(ctx)
	}()
	return ch
}

func (s *baseServiceImpl[T, S]) Save(ctx context.Context, model *T) error {
	if err := s.repo.Add(model); err != nil {
		return err
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) SaveAll(ctx context.Context, models []*T) error {
	if err := s.repo.AddAll(models); err != nil {
		return err
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) SaveIfNotExist(ctx context.Context, model *T, saveIfNotExist bool) error {
	if model == nil {
		return fmt.Errorf("%w: nil entity", repository.ErrInvalidArgument)
	}
	return s.SaveAllIfNotExist(ctx, []*T{model}, saveIfNotExist)
}

func (s *baseServiceImpl[T, S]) SaveAllIfNotExist(ctx context.Context, models []*T, saveIfNotExist bool) error {
	if models == nil || slices.Contains(models, nil) {
		return fmt.Errorf("%w: nil entity or collection", repository.ErrInvalidArgument)
	}
	for _, model := range models {
		found, err := s.repo.Find(ctx, (*model).GetID())
		if err != nil {
			return err
		}
		if found == nil && saveIfNotExist {
			if err := s.repo.Add(model); err != nil {
				return err
			}
		}
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) SaveOrUpdate(ctx context.Context, model *T, fields ...string) error {
	if err := s.repo.AddOrUpdate(model, fields...); err != nil {
		return err
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) touchAll(models []*T) {
	if !s.touch {
		return
	}
	now := s.clock()
	for _, model := range models {
		if t, ok := any(model).(entity.Toucher); ok && model != nil {
			t.Touch(now)
		}
	}
}

func (s *baseServiceImpl[T, S]) Update(ctx context.Context, model *T) error {
	if model == nil {
		return fmt.Errorf("%w: nil entity", repository.ErrInvalidArgument)
	}
	return s.UpdateAll(ctx, []*T{model})
}

func (s *baseServiceImpl[T, S]) UpdateAll(ctx context.Context, models []*T) error {
	if models == nil || slices.Contains(models, nil) {
		return fmt.Errorf("%w: nil entity or collection", repository.ErrInvalidArgument)
	}
	if err := s.repo.EditAll(models); err != nil {
		return err
	}
	s.touchAll(models)
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) UpdateFields(ctx context.Context, model *T, fields ...string) error {
	if model == nil {
		return fmt.Errorf("%w: nil entity", repository.ErrInvalidArgument)
	}
	touch := s.touch && len(fields) > 0
	if touch {
		if col, ok := s.repo.Column("updatedAt"); ok && !s.hasColumn(fields, col) {
			fields = append(slices.Clone(fields), col)
		}
	}
	if err := s.repo.EditFields(model, fields...); err != nil {
		return err
	}
	if touch {
		s.touchAll([]*T{model})
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) hasColumn(fields []string, col string) bool {
	return slices.ContainsFunc(fields, func(f string) bool {
		c, ok := s.repo.Column(f)
		return ok && c == col
	})
}

func (s *baseServiceImpl[T, S]) Delete(ctx context.Context, id any) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) DeleteByIDs(ctx context.Context, ids ...any) error {
	for _, id := range ids {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.repo.Discard()
			return err
		}
	}
	return s.Commit(ctx)
}

func (s *baseServiceImpl[T, S]) DeleteBy(ctx context.Context, filter *types.QueryFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: empty delete filter", repository.ErrInvalidArgument)
	}
	matches, err := s.repo.All().Where(filter).List(ctx)
	if err != nil {
		return 0, err
	}
	for _, model := range matches {
		if err := s.repo.Remove(model); err != nil {
			return 0, err
		}
	}
	if err := s.Commit(ctx); err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (s *baseServiceImpl[T, S]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.Find(ctx, id)
}

func (s *baseServiceImpl[T, S]) GetBy(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error) {
	return s.defaultOrder(s.repo.AllIncluding(relations...).Where(filter)).First(ctx)
}

func (s *baseServiceImpl[T, S]) GetAll(ctx context.Context, opts ...ListOption) ([]*T, error) {
	return s.list(ctx, nil, newListSpec(opts))
}

func (s *baseServiceImpl[T, S]) GetAllBy(ctx context.Context, filter *types.QueryFilter, opts ...ListOption) ([]*T, error) {
	return s.list(ctx, filter, newListSpec(opts))
}

func (s *baseServiceImpl[T, S]) GetInitial(ctx context.Context, size int, relations ...string) ([]*T, error) {
	q := s.repo.AllIncluding(relations...)
	return s.defaultOrder(q).Limit(types.NormalizePageSize(size)).List(ctx)
}

func (s *baseServiceImpl[T, S]) GetCountBy(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return s.repo.All().Where(filter).Count(ctx)
}

func (s *baseServiceImpl[T, S]) Check(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, fmt.Errorf("%w: nil id", repository.ErrInvalidArgument)
	}
	return s.repo.All().WhereID(id).Exists(ctx)
}

func (s *baseServiceImpl[T, S]) CheckBy(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return s.repo.All().Where(filter).Exists(ctx)
}

// Page orders by the request's raw ORDER BY expressions, or by the default
// order when there are none.
func (s *baseServiceImpl[T, S]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(1, types.DefaultPageSize)
	}
	q := s.repo.All().Where(page.GetFilter())
	if orders := page.GetOrders(); len(orders) > 0 {
		for _, order := range orders {
			q = q.OrderExpr(order)
		}
	} else {
		q = s.defaultOrder(q)
	}
	return q.Page(ctx, page.GetPage(), page.GetPageSize())
}

// defaultOrder sorts by recency with the primary key as tie-break, so pages
// never overlap.
func (s *baseServiceImpl[T, S]) defaultOrder(q *repository.Query[T]) *repository.Query[T] {
	return q.OrderBy("updatedAt", orderby.Descending).OrderByPK(orderby.Ascending)
}

func (s *baseServiceImpl[T, S]) list(ctx context.Context, filter *types.QueryFilter, spec *listSpec) ([]*T, error) {
	q := s.repo.AllIncluding(spec.relations...).Where(filter)

	if spec.comparer != nil {
		cmp, ok := spec.comparer.(func(a, b *T) int)
		if !ok {
			s.logger.Debug("comparer does not match the entity type, using default order", "comparer", fmt.Sprintf("%T", spec.comparer))
			return s.listWindow(ctx, s.defaultOrder(q), spec)
		}
		return s.listInMemory(ctx, s.defaultOrder(q), spec, func(items []*T) []*T {
			return orderby.ByComparer(items, spec.cmpDir, cmp)
		})
	}

	if spec.sortBy == "" {
		return s.listWindow(ctx, s.defaultOrder(q), spec)
	}
	if _, ok := s.repo.Column(spec.sortBy); ok {
		return s.listWindow(ctx, q.OrderBy(spec.sortBy, spec.sortDir).OrderByPK(orderby.Ascending), spec)
	}
	if _, ok := s.fields.Lookup(spec.sortBy); ok {
		return s.listInMemory(ctx, q.OrderByPK(orderby.Ascending), spec, func(items []*T) []*T {
			return orderby.ByName(items, s.fields, spec.sortBy, spec.sortDir)
		})
	}
	s.logger.Debug("unknown sort field, keeping storage order", "field", spec.sortBy)
	return s.listWindow(ctx, q.OrderByPK(orderby.Ascending), spec)
}

func (s *baseServiceImpl[T, S]) listWindow(ctx context.Context, q *repository.Query[T], spec *listSpec) ([]*T, error) {
	if spec.paged {
		q = q.Offset(types.PageOffset(spec.page, spec.pageSize)).Limit(types.NormalizePageSize(spec.pageSize))
	}
	return q.List(ctx)
}

func (s *baseServiceImpl[T, S]) listInMemory(ctx context.Context, q *repository.Query[T], spec *listSpec, sort func([]*T) []*T) ([]*T, error) {
	items, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	items = sort(items)
	return orderby.IfThenElse(items, spec.paged, func(items []*T) []*T {
		return pageOf(items, spec.page, spec.pageSize)
	}, nil), nil
}

func pageOf[T any](items []T, page int, pageSize int) []T {
	pageSize = types.NormalizePageSize(pageSize)
	start := types.PageOffset(page, pageSize)
	if start >= len(items) {
		return make([]T, 0)
	}
	return items[start:min(start+pageSize, len(items))]
}
