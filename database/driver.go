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
	"database/sql"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// driverFunc opens an unpinged pool for cfg and names the bun dialect that
// speaks to it.
type driverFunc func(cfg *ConnectionConfig) (*sql.DB, schema.Dialect, error)

var drivers = map[string]driverFunc{
	"mysql":      openMySQL,
	"postgres":   openPostgres,
	"postgresql": openPostgres,
	"sqlite":     openSQLite,
	"sqlite3":    openSQLite,
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	return slices.Sorted(maps.Keys(drivers))
}

func openMySQL(cfg *ConnectionConfig) (*sql.DB, schema.Dialect, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.DBName
	mc.Params = map[string]string{"charset": "utf8mb4"}
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	// rows affected counts matched rows, as on postgres and sqlite, so an
	// update that rewrites identical values is not taken for a lost row
	mc.ClientFoundRows = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid mysql config: %w", err)
	}
	return sql.OpenDB(connector), mysqldialect.New(), nil
}

func openPostgres(cfg *ConnectionConfig) (*sql.DB, schema.Dialect, error) {
	query := url.Values{}
	query.Set("sslmode", cmp.Or(cfg.SSLMode, "disable"))
	if cfg.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: query.Encode(),
	}

	connector, err := pq.NewConnector(dsn.String())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	return sql.OpenDB(connector), pgdialect.New(), nil
}

func openSQLite(cfg *ConnectionConfig) (*sql.DB, schema.Dialect, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, sqliteDSN(cfg.DBName))
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, sqlitedialect.New(), nil
}

// sqliteDSN keeps explicit "file:" URIs and ":memory:" as they are and maps a
// bare name to "<name>.db".
func sqliteDSN(name string) string {
	if strings.HasPrefix(name, "file:") || strings.Contains(name, ":memory:") || strings.HasSuffix(name, ".db") {
		return name
	}
	return name + ".db"
}
