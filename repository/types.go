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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Reader loads entities. Entities returned by Find become tracked by the
// unit of work.
type Reader[T any] interface {
	All() *Query[T]
	AllIncluding(relations ...string) *Query[T]
	Find(ctx context.Context, id any) (*T, error)
	// Column resolves a Go field name or column name of T to its column.
	Column(name string) (string, bool)
}

// Writer stages changes. Nothing reaches the database before Save.
type Writer[T any] interface {
	Add(entity *T) error
	AddAll(entities []*T) error
	AddOrUpdate(entity *T, fields ...string) error
	Edit(entity *T) error
	EditAll(entities []*T) error
	EditFields(entity *T, fields ...string) error
	EditAllFields(entities []*T, fields ...string) error
	Delete(ctx context.Context, id any) error
	Remove(entity *T) error
}

// Committer commits or drops the staged changes.
type Committer interface {
	Save(ctx context.Context) error
	SaveAsync(ctx context.Context) <-chan error
	Pending() int
	Discard()
}

// Repository is one unit of work over entities of type T. It is not safe for
// concurrent use.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
	Committer
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	Close() error
}
