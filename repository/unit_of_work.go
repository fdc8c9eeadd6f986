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

import "slices"

type changeKind int

const (
	changeInsert changeKind = iota
	changeUpdate
	changePartial
	changeUpsert
	changeDelete
)

func (k changeKind) String() string {
	switch k {
	case changeInsert:
		return "insert"
	case changeUpdate:
		return "update"
	case changePartial:
		return "partial update"
	case changeUpsert:
		return "upsert"
	case changeDelete:
		return "delete"
	}
	return "unknown"
}

type change[T any] struct {
	kind    changeKind
	entity  *T
	columns []string
}

// unitOfWork keeps at most one staged change per entity pointer, in staging
// order, and the set of entities known to be persisted.
type unitOfWork[T any] struct {
	changes []*change[T]
	index   map[*T]*change[T]
	tracked map[*T]struct{}
}

func newUnitOfWork[T any]() *unitOfWork[T] {
	return &unitOfWork[T]{
		index:   make(map[*T]*change[T]),
		tracked: make(map[*T]struct{}),
	}
}

func (u *unitOfWork[T]) track(entities ...*T) {
	for _, e := range entities {
		if e != nil {
			u.tracked[e] = struct{}{}
		}
	}
}

func (u *unitOfWork[T]) isTracked(e *T) bool {
	_, ok := u.tracked[e]
	return ok
}

func (u *unitOfWork[T]) append(kind changeKind, e *T, columns []string) {
	c := &change[T]{kind: kind, entity: e, columns: columns}
	u.changes = append(u.changes, c)
	u.index[e] = c
}

func (u *unitOfWork[T]) insert(e *T) {
	if c, ok := u.index[e]; ok {
		c.kind, c.columns = changeInsert, nil
		return
	}
	u.append(changeInsert, e, nil)
}

func (u *unitOfWork[T]) update(e *T) {
	c, ok := u.index[e]
	if !ok {
		u.append(changeUpdate, e, nil)
		return
	}
	if c.kind == changePartial {
		c.kind, c.columns = changeUpdate, nil
	}
}

func (u *unitOfWork[T]) updateColumns(e *T, columns []string) {
	c, ok := u.index[e]
	if !ok {
		u.append(changePartial, e, slices.Clone(columns))
		return
	}
	if c.kind != changePartial {
		return
	}
	for _, col := range columns {
		if !slices.Contains(c.columns, col) {
			c.columns = append(c.columns, col)
		}
	}
}

func (u *unitOfWork[T]) upsert(e *T, columns []string) {
	c, ok := u.index[e]
	if !ok {
		u.append(changeUpsert, e, slices.Clone(columns))
		return
	}
	if c.kind != changeDelete {
		c.kind, c.columns = changeUpsert, slices.Clone(columns)
	}
}

func (u *unitOfWork[T]) remove(e *T) {
	c, ok := u.index[e]
	if !ok {
		u.append(changeDelete, e, nil)
		return
	}
	if c.kind == changeInsert {
		u.drop(e)
		return
	}
	c.kind, c.columns = changeDelete, nil
}

func (u *unitOfWork[T]) drop(e *T) {
	c, ok := u.index[e]
	if !ok {
		return
	}
	delete(u.index, e)
	u.changes = slices.DeleteFunc(u.changes, func(x *change[T]) bool { return x == c })
}

// committed applies the outcome of a successful commit to the tracking set.
func (u *unitOfWork[T]) committed() {
	for _, c := range u.changes {
		if c.kind == changeDelete {
			delete(u.tracked, c.entity)
		} else {
			u.tracked[c.entity] = struct{}{}
		}
	}
	u.discard()
}

func (u *unitOfWork[T]) discard() {
	u.changes = nil
	clear(u.index)
}

func (u *unitOfWork[T]) pending() int {
	return len(u.changes)
}
