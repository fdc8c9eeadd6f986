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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Body string `bun:"body,notnull"`
}

type tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,unique"`
}

func TestManagerConnectAndHealth(t *testing.T) {
	ctx := context.Background()
	cfg := MemoryConfig(t.Name())
	cfg.EnableMetrics = true
	cfg.MetricsPrefix = "manager"

	reg := prometheus.NewRegistry()
	m, err := NewManager(cfg, WithMetricsRegisterer(reg))
	require.NoError(t, err)
	require.NoError(t, m.Connect(ctx))
	defer func() { _ = m.Close() }()

	// a second Connect keeps the pool
	db := m.DB()
	require.NoError(t, m.Connect(ctx))
	assert.Same(t, db, m.DB())
	require.NotNil(t, m.SQLDB())

	status := m.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.False(t, status.Reconnected)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 1, status.MaxOpenConns)
	assert.Equal(t, 1, m.Stats().MaxOpenConns)

	require.NoError(t, CreateTables(ctx, m.DB(), (*note)(nil)))
	_, err = m.DB().NewInsert().Model(&note{Body: "hello"}).Exec(ctx)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "manager_db_queries_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.DB())
	assert.Error(t, m.Ping(ctx))
	assert.False(t, m.HealthCheck(ctx).Healthy)
}

func TestHealthCheckReconnectsWhenEnabled(t *testing.T) {
	ctx := context.Background()

	cfg := MemoryConfig(t.Name())
	cfg.ReconnectOnFailure = true
	m, err := NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Connect(ctx))
	defer func() { _ = m.Close() }()

	broken := m.DB()
	require.NoError(t, m.SQLDB().Close())
	status := m.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Reconnected)
	assert.NotSame(t, broken, m.DB())
	assert.NoError(t, m.Ping(ctx))

	plain, err := NewManager(MemoryConfig(t.Name() + "_plain"))
	require.NoError(t, err)
	require.NoError(t, plain.Connect(ctx))
	defer func() { _ = plain.Close() }()

	require.NoError(t, plain.SQLDB().Close())
	status = plain.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.False(t, status.Reconnected)
	assert.NotEmpty(t, status.LastError)
}

func TestManagerCreateTablesUsesItsRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register((*tag)(nil), 1)

	m, err := NewManager(MemoryConfig(t.Name()), WithRegistry(reg))
	require.NoError(t, err)
	assert.Error(t, m.CreateTables(ctx), "not connected yet")
	require.NoError(t, m.Connect(ctx))
	defer func() { _ = m.Close() }()

	require.NoError(t, m.CreateTables(ctx))
	_, err = m.DB().NewInsert().Model(&tag{Name: "db"}).Exec(ctx)
	assert.NoError(t, err)
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, MemoryConfig(t.Name()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, CreateTables(ctx, db, (*note)(nil), (*tag)(nil)))
	require.NoError(t, CreateTables(ctx, db, (*note)(nil), (*tag)(nil)))

	_, err = db.NewInsert().Model(&tag{Name: "go"}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&tag{Name: "go"}).Exec(ctx)
	require.Error(t, err)
	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}

func TestRegistryOrdersByPriority(t *testing.T) {
	reg := NewRegistry()
	reg.Register((*tag)(nil), 20)
	reg.Register((*note)(nil), 10)
	reg.Register(&note{}, 20)

	models := reg.Models()
	require.Len(t, models, 3)
	assert.IsType(t, (*note)(nil), models[0])
	assert.IsType(t, (*tag)(nil), models[1], "equal priorities keep registration order")
	assert.IsType(t, &note{}, models[2])
}

func TestGlobalDatabase(t *testing.T) {
	assert.Nil(t, GetDB())
	assert.Nil(t, Current())
	assert.False(t, Health(context.Background()).Healthy)

	db, err := InitDB(&Config{ConnectionConfig: *MemoryConfig(t.Name())})
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Same(t, db, GetDB())
	assert.NotNil(t, Current())
	assert.True(t, Health(context.Background()).Healthy)
	assert.Equal(t, 1, Stats().MaxOpenConns)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	require.NoError(t, CloseDB())
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)

	_, err = NewManager(&ConnectionConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Bootstrap(context.Background(), nil, false)
	assert.Error(t, err)
	_, err = InitDB(nil)
	assert.Error(t, err)

	assert.Equal(t, []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}, SupportedTypes())
}

func TestDriversBuildConnectors(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Host, cfg.Port, cfg.DBName = "localhost", 5432, "app"
	cfg.Username, cfg.Password = "app", "p@ss word"

	for _, open := range []driverFunc{openPostgres, openMySQL} {
		sqlDB, dialect, err := open(cfg)
		require.NoError(t, err)
		assert.NotNil(t, dialect)
		assert.NoError(t, sqlDB.Close())
	}
}
