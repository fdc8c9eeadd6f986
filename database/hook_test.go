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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestQueryHookPrintsFailedQueries(t *testing.T) {
	t.Setenv("QUERYKIT_SQL_LOG", "1")
	var buf bytes.Buffer
	hook := NewQueryHook(&buf)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT * FROM users", StartTime: time.Now(), Err: sql.ErrNoRows})
	assert.Empty(t, buf.String())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "INSERT INTO users VALUES (1)", StartTime: time.Now(), Err: errors.New("boom")})
	assert.Contains(t, buf.String(), "INSERT INTO users VALUES (1)")
	assert.Contains(t, buf.String(), "boom")
}

func TestQueryHookVerboseAndSilent(t *testing.T) {
	t.Setenv("QUERYKIT_SQL_LOG", "2")
	var buf bytes.Buffer
	hook := NewQueryHook(&buf)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now(), Err: errors.New("boom")})
	assert.Empty(t, buf.String())
}

func TestQueryHookDisabledByEnv(t *testing.T) {
	t.Setenv("QUERYKIT_SQL_LOG", "0")
	var buf bytes.Buffer
	NewQueryHook(&buf).AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", Err: errors.New("boom")})
	assert.Empty(t, buf.String())
}

func TestMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook, err := NewMetricsHook("unit", reg)
	require.NoError(t, err)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now(), Err: sql.ErrNoRows})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "UPDATE users SET age = 1", StartTime: time.Now(), Err: errors.New("locked")})

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.queriesTotal.WithLabelValues("SELECT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.queriesTotal.WithLabelValues("UPDATE", "error")))

	count, err := testutil.GatherAndCount(reg, "unit_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsHookReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetricsHook("shared", reg)
	require.NoError(t, err)
	second, err := NewMetricsHook("shared", reg)
	require.NoError(t, err)
	assert.Same(t, first.queriesTotal, second.queriesTotal)
}
