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
	"time"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/orderby"
)

type settings struct {
	touchOnUpdate bool
	clock         func() time.Time
	sortFields    any
	logger        database.Logger
}

// Option configures a Service.
type Option func(*settings)

// WithTouchOnUpdate makes Update, UpdateAll and UpdateFields refresh
// updatedAt before writing. It is off by default.
func WithTouchOnUpdate(touch bool) Option {
	return func(s *settings) {
		s.touchOnUpdate = touch
	}
}

// WithClock replaces time.Now as the source of updatedAt refreshes.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSortFields registers extra in-memory sort fields for names that are not
// table columns. They are merged over the base entity fields.
func WithSortFields[T any](fields *orderby.Fields[*T]) Option {
	return func(s *settings) {
		s.sortFields = fields
	}
}

func WithLogger(logger database.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type listSpec struct {
	page      int
	pageSize  int
	paged     bool
	relations []string
	sortBy    string
	sortDir   orderby.Direction
	comparer  any
	cmpDir    orderby.Direction
}

// ListOption shapes a GetAll or GetAllBy listing.
type ListOption func(*listSpec)

// WithPage returns one 1-based page. A page below one is clamped to the first
// page and a size below one becomes types.DefaultPageSize.
func WithPage(page int, pageSize int) ListOption {
	return func(l *listSpec) {
		l.page, l.pageSize, l.paged = page, pageSize, true
	}
}

// WithRelations eagerly loads the named relations with every item.
func WithRelations(relations ...string) ListOption {
	return func(l *listSpec) {
		l.relations = append(l.relations, relations...)
	}
}

// WithSortBy sorts by a field name. Table columns are sorted by the database;
// other names use the registered in-memory sort fields. An unknown name
// leaves the listing in storage order.
func WithSortBy(field string, dir orderby.Direction) ListOption {
	return func(l *listSpec) {
		l.sortBy, l.sortDir = field, dir
		l.comparer = nil
	}
}

// WithComparer sorts the whole filtered set in memory with cmp before paging.
// A comparer for another entity type is ignored.
func WithComparer[T any](dir orderby.Direction, cmp func(a, b *T) int) ListOption {
	return func(l *listSpec) {
		l.cmpDir = dir
		l.comparer = cmp
		l.sortBy = ""
	}
}

func newListSpec(opts []ListOption) *listSpec {
	l := &listSpec{}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}
