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
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/entity"
	"github.com/uptrace/bun"
)

type status int

const (
	active status = iota
	suspended
)

func (s status) IsValid() bool  { return s == active || s == suspended }
func (s status) Number() int    { return int(s) }
func (s status) String() string { return s.Name() }
func (s status) Desc() string   { return s.Name() }
func (s status) Name() string {
	if s == suspended {
		return "suspended"
	}
	return "active"
}

type account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`
	entity.Model[status]

	Name  string  `bun:"name,notnull"`
	Email string  `bun:"email,unique,nullzero"`
	Age   int     `bun:"age"`
	Posts []*post `bun:"rel:has-many,join:id=account_id"`
}

type post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AccountID uuid.UUID `bun:"account_id,type:varchar(36)"`
	Title     string    `bun:"title"`
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newAccount(name string, age int) *account {
	a := &account{Model: entity.NewModel[status](), Name: name, Age: age}
	a.CreatedAt, a.UpdatedAt = epoch, epoch
	return a
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(ctx, database.MemoryConfig(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(ctx, db, (*account)(nil), (*post)(nil)))
	return db
}

// seed commits accounts through a separate repository, so the repository
// under test starts with an empty unit of work.
func seed(t *testing.T, db *bun.DB, accounts ...*account) {
	t.Helper()
	repo := NewRepository[account](db)
	defer func() { _ = repo.Close() }()
	require.NoError(t, repo.AddAll(accounts))
	require.NoError(t, repo.Save(context.Background()))
}
