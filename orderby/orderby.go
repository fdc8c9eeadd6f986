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
	"fmt"
	"slices"

	"github.com/tomoncle/querykit/utils"
)

var logger = utils.NewLogger("ORDERBY")

// ByName returns a stably sorted copy of items ordered by the field
// registered under name. When the name is not registered, or the accessor
// panics, items is returned as it was given.
func ByName[T any](items []T, fields *Fields[T], name string, dir Direction) []T {
	c, ok := fields.Lookup(name)
	if !ok {
		logger.WithField("field", name).Debug("sort field not registered, keeping input order")
		return items
	}
	return sortOrKeep(items, dir, c, name)
}

// ByComparer returns a stably sorted copy of items ordered by c. A nil or
// panicking comparer leaves the input order untouched.
func ByComparer[T any](items []T, dir Direction, c Comparer[T]) []T {
	if c == nil {
		logger.Debug("nil comparer, keeping input order")
		return items
	}
	return sortOrKeep(items, dir, c, "comparer")
}

// IfThenElse applies then to items when cond holds and otherwise when it does
// not. A nil step passes items through.
func IfThenElse[T any](items []T, cond bool, then, otherwise func([]T) []T) []T {
	step := otherwise
	if cond {
		step = then
	}
	if step == nil {
		return items
	}
	return step(items)
}

func sortOrKeep[T any](items []T, dir Direction, c Comparer[T], label string) []T {
	sorted, err := sortStable(items, dir, c)
	if err != nil {
		logger.WithField("sort", label).WithError(err).Debug("sort failed, keeping input order")
		return items
	}
	return sorted
}

func sortStable[T any](items []T, dir Direction, c Comparer[T]) (sorted []T, err error) {
	if len(items) < 2 {
		return items, nil
	}
	defer func() {
		if r := recover(); r != nil {
			sorted, err = nil, fmt.Errorf("comparer panicked: %v", r)
		}
	}()

	sorted = slices.Clone(items)
	if dir == Descending {
		slices.SortStableFunc(sorted, func(a, b T) int { return c(b, a) })
	} else {
		slices.SortStableFunc(sorted, c)
	}
	return sorted, nil
}
