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

package orderby

import (
	"cmp"
	"strings"
	"time"
)

// Comparer returns a negative number when a sorts before b, a positive number
// when a sorts after b and zero when they are equal.
type Comparer[T any] func(a, b T) int

// Key builds a Comparer from an accessor returning an ordered value.
func Key[T any, K cmp.Ordered](get func(T) K) Comparer[T] {
	return func(a, b T) int {
		return cmp.Compare(get(a), get(b))
	}
}

// Time builds a Comparer from a time accessor.
func Time[T any](get func(T) time.Time) Comparer[T] {
	return func(a, b T) int {
		return get(a).Compare(get(b))
	}
}

// Fields maps sortable field names of T to comparers. Names are matched
// case-insensitively with underscores ignored, so "updated_at", "updatedAt"
// and "UpdatedAt" all resolve to the same field.
type Fields[T any] struct {
	byName map[string]Comparer[T]
	names  []string
}

func NewFields[T any]() *Fields[T] {
	return &Fields[T]{byName: make(map[string]Comparer[T])}
}

// Add registers c under name, replacing an earlier registration of the same
// normalized name. A nil comparer is ignored.
func (f *Fields[T]) Add(name string, c Comparer[T]) *Fields[T] {
	if c == nil {
		return f
	}
	key := NormalizeName(name)
	if _, ok := f.byName[key]; !ok {
		f.names = append(f.names, name)
	}
	f.byName[key] = c
	return f
}

// Merge copies every field of other into f. Fields of other win on conflict.
func (f *Fields[T]) Merge(other *Fields[T]) *Fields[T] {
	if other == nil {
		return f
	}
	for _, name := range other.names {
		f.Add(name, other.byName[NormalizeName(name)])
	}
	return f
}

// Lookup returns the comparer registered for name. It is safe on a nil
// registry.
func (f *Fields[T]) Lookup(name string) (Comparer[T], bool) {
	if f == nil {
		return nil, false
	}
	c, ok := f.byName[NormalizeName(name)]
	return c, ok
}

// Names returns the registered names in registration order.
func (f *Fields[T]) Names() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.names...)
}

func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}
