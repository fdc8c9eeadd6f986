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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalMu sync.RWMutex
	global   Manager
)

// Bootstrap applies the DB_* environment overrides to a copy of cfg,
// connects a new Manager and, when createTables is set, creates the missing
// tables of its registry with the SQL query log muted.
func Bootstrap(ctx context.Context, cfg *ConnectionConfig, createTables bool, opts ...ManagerOption) (Manager, error) {
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}
	resolved := *cfg
	overrideFromEnv(&resolved)

	m, err := NewManager(&resolved, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	if !createTables {
		return m, nil
	}

	EnableBunSqlSilent(true)
	err = m.CreateTables(ctx)
	EnableBunSqlSilent(false)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

// Open connects a standalone database from cfg without touching the global
// one. Closing the returned *bun.DB releases the pool.
func Open(ctx context.Context, cfg *ConnectionConfig) (*bun.DB, error) {
	m, err := Bootstrap(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	return m.DB(), nil
}

// InitDB bootstraps the global database from cfg and closes the one it
// replaces.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}
	m, err := Bootstrap(context.Background(), &cfg.ConnectionConfig, cfg.CreateTablesOnStartup)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := global
	global = m
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	return m.DB(), nil
}

// Current returns the global Manager, or nil before InitDB.
func Current() Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// GetDB returns the global Bun database, or nil before InitDB.
func GetDB() *bun.DB {
	if m := Current(); m != nil {
		return m.DB()
	}
	return nil
}

// CloseDB closes the global database. Calling it again is a no-op.
func CloseDB() error {
	globalMu.Lock()
	m := global
	global = nil
	globalMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}

// Health checks the global database.
func Health(ctx context.Context) *HealthStatus {
	if m := Current(); m != nil {
		return m.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: errNotConnected.Error()}
}

// Stats returns the pool statistics of the global database.
func Stats() *DBStats {
	if m := Current(); m != nil {
		return m.Stats()
	}
	return &DBStats{}
}
