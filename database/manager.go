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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

const pingTimeout = 5 * time.Second

var errNotConnected = errors.New("database not connected")

// Manager owns one connection pool and the bun handle on top of it.
type Manager interface {
	Connect(ctx context.Context) error
	Close() error

	// Reconnect drops the current pool and opens a new one. Handles taken
	// from DB before the call are closed; GetDB and DB return the new one.
	Reconnect(ctx context.Context) error

	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	DB() *bun.DB
	SQLDB() *sql.DB
	Stats() *DBStats

	// CreateTables creates the missing tables of the manager's registry.
	CreateTables(ctx context.Context) error
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	Reconnected   bool          `json:"reconnected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors sql.DBStats.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ManagerOption customizes NewManager.
type ManagerOption func(*manager)

// WithRegistry makes CreateTables use r instead of the package registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithMetricsRegisterer sets where the metrics hook registers its collectors.
func WithMetricsRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(m *manager) {
		if reg != nil {
			m.metrics = reg
		}
	}
}

func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

type manager struct {
	cfg      ConnectionConfig
	open     driverFunc
	registry *Registry
	metrics  prometheus.Registerer
	logger   Logger

	mu sync.RWMutex
	db *bun.DB
}

// NewManager validates cfg and returns an unconnected Manager. cfg is copied;
// a missing connect timeout defaults to 30 seconds.
func NewManager(cfg *ConnectionConfig, opts ...ManagerOption) (Manager, error) {
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}
	open, ok := drivers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %q, supported types: %v", cfg.Type, SupportedTypes())
	}

	m := &manager{
		cfg:      *cfg,
		open:     open,
		registry: defaultRegistry,
		metrics:  prometheus.DefaultRegisterer,
		logger:   GetLogger(),
	}
	if m.cfg.ConnectTimeout <= 0 {
		m.cfg.ConnectTimeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}
	db, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.db = db
	m.logger.Info("database connected", "type", m.cfg.Type, "host", m.cfg.Host, "name", m.cfg.DBName)
	return nil
}

// dial opens and pings a new pool with the configured hooks installed.
func (m *manager) dial(ctx context.Context) (*bun.DB, error) {
	sqlDB, dialect, err := m.open(&m.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", m.cfg.Type, err)
	}
	sqlDB.SetMaxIdleConns(m.cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, dialect)
	if err := m.installHooks(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return db, nil
}

func (m *manager) installHooks(db *bun.DB) error {
	if m.cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if m.cfg.LogFailedQuery {
		db.AddQueryHook(NewQueryHook(os.Stderr))
	}
	if m.cfg.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{threshold: m.cfg.SlowQueryTime, logger: m.logger})
	}
	if m.cfg.EnableMetrics {
		hook, err := NewMetricsHook(m.cfg.MetricsPrefix, m.metrics)
		if err != nil {
			return fmt.Errorf("failed to register query metrics: %w", err)
		}
		db.AddQueryHook(hook)
	}
	return nil
}

func (m *manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		m.logger.Error("failed to close database", "error", err)
		return err
	}
	m.logger.Info("database closed", "type", m.cfg.Type)
	return nil
}

func (m *manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.logger.Warn("failed to close the previous pool", "error", err)
		}
		m.db = nil
	}
	db, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.db = db
	m.logger.Info("database reconnected", "type", m.cfg.Type)
	return nil
}

func (m *manager) Ping(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return errNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

// HealthCheck pings the database. With ReconnectOnFailure set, a failed ping
// on an open manager triggers one Reconnect and a second ping.
func (m *manager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	err := m.Ping(ctx)
	if err != nil && m.cfg.ReconnectOnFailure && !errors.Is(err, errNotConnected) {
		m.logger.Warn("health check failed, reconnecting", "error", err)
		if err = m.Reconnect(ctx); err == nil {
			status.Reconnected = true
			err = m.Ping(ctx)
		}
	}
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy, status.Connected = true, true
	}

	if sqlDB := m.SQLDB(); sqlDB != nil {
		stats := sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}
	return status
}

func (m *manager) DB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *manager) SQLDB() *sql.DB {
	if db := m.DB(); db != nil {
		return db.DB
	}
	return nil
}

func (m *manager) Stats() *DBStats {
	sqlDB := m.SQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	s := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

// CreateTables is a bootstrap helper, not a migration tool: existing tables
// are never altered.
func (m *manager) CreateTables(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return errNotConnected
	}
	return CreateTables(ctx, db, m.registry.Models()...)
}
