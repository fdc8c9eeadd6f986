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


package database

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/uptrace/bun"
)

var defaultRegistry = NewRegistry()

// Registry lists the bun models whose tables are created at bootstrap.
// Models come back by ascending priority, so a referenced table can be
// created before the tables pointing at it.
type Registry struct {
	mu      sync.RWMutex
	entries []registryEntry
}

type registryEntry struct {
	model    any
	priority int
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds model, a bun struct pointer such as (*User)(nil).
func (r *Registry) Register(model any, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{model: model, priority: priority})
}

// Models returns the registered models; equal priorities keep registration
// order.
func (r *Registry) Models() []any {
	r.mu.RLock()
	entries := slices.Clone(r.entries)
	r.mu.RUnlock()

	slices.SortStableFunc(entries, func(a, b registryEntry) int {
		return cmp.Compare(a.priority, b.priority)
	})
	models := make([]any, len(entries))
	for i, e := range entries {
		models[i] = e.model
	}
	return models
}

// Register adds model to the package registry used by InitDB.
func Register(model any, priority int) {
	defaultRegistry.Register(model, priority)
}

// CreateTables issues CREATE TABLE IF NOT EXISTS for each model, in order.
func CreateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}
