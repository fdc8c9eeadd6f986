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

package entity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/querykit/orderby"
	"github.com/uptrace/bun"
)

type phase int

const (
	draft phase = iota
	published
)

func (p phase) IsValid() bool  { return p == draft || p == published }
func (p phase) Number() int    { return int(p) }
func (p phase) String() string { return p.Name() }
func (p phase) Desc() string   { return p.Name() }
func (p phase) Name() string {
	if p == published {
		return "published"
	}
	return "draft"
}

type post struct {
	Model[phase]
	Title string
}

var (
	_ Entity[phase]             = post{}
	_ Toucher                   = (*post)(nil)
	_ bun.BeforeAppendModelHook = (*post)(nil)
)

func TestNewModel(t *testing.T) {
	before := time.Now()
	m := NewModel[phase]()

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, 0, m.Order)
	assert.Equal(t, draft, m.State)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
	assert.WithinDuration(t, before, m.CreatedAt, time.Second)

	other := NewModel[phase]()
	assert.NotEqual(t, m.ID, other.ID, "identifiers are never reused")
}

func TestInitKeepsExistingValues(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	p := post{Model: Model[phase]{ID: id, CreatedAt: created, State: published}}

	Init(&p.Model)
	assert.Equal(t, id, p.GetID())
	assert.Equal(t, created, p.GetCreatedAt())
	assert.Equal(t, created, p.GetUpdatedAt())
	assert.Equal(t, published, p.GetState())

	var blank post
	Init(&blank.Model)
	assert.NotEqual(t, uuid.Nil, blank.ID)
	assert.False(t, blank.CreatedAt.IsZero())
}

func TestTouch(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	p := &post{Model: Model[phase]{ID: uuid.New(), CreatedAt: created, UpdatedAt: created}}

	p.Touch(created.Add(time.Hour))
	assert.Equal(t, created.Add(time.Hour), p.UpdatedAt)

	p.Touch(created.Add(-time.Hour))
	assert.Equal(t, created, p.UpdatedAt, "updatedAt never precedes createdAt")
}

func TestBeforeAppendModelOnlyInitializesInserts(t *testing.T) {
	ctx := context.Background()
	var p post
	require.NoError(t, p.BeforeAppendModel(ctx, &bun.UpdateQuery{}))
	assert.Equal(t, uuid.Nil, p.ID)

	require.NoError(t, p.BeforeAppendModel(ctx, &bun.InsertQuery{}))
	assert.NotEqual(t, uuid.Nil, p.ID)
}

func TestSortFields(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(title string, order int, updated time.Time, state phase) *post {
		return &post{Model: Model[phase]{ID: uuid.New(), Order: order, CreatedAt: base, UpdatedAt: updated, State: state}, Title: title}
	}
	posts := []*post{
		mk("a", 3, base.Add(time.Minute), published),
		mk("b", 1, base.Add(3*time.Minute), draft),
		mk("c", 2, base.Add(2*time.Minute), published),
	}
	fields := SortFields[post, phase]()
	titles := func(ps []*post) (out []string) {
		for _, p := range ps {
			out = append(out, p.Title)
		}
		return out
	}

	assert.Equal(t, []string{"b", "c", "a"}, titles(orderby.ByName(posts, fields, "updated_at", orderby.Descending)))
	assert.Equal(t, []string{"b", "c", "a"}, titles(orderby.ByName(posts, fields, "Order", orderby.Ascending)))
	assert.Equal(t, []string{"b", "a", "c"}, titles(orderby.ByName(posts, fields, "state", orderby.Ascending)))
	assert.Equal(t, []string{"id", "order", "createdAt", "updatedAt", "state"}, fields.Names())
}
