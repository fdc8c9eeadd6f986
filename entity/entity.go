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
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/querykit/orderby"
	"github.com/tomoncle/querykit/types"
	"github.com/uptrace/bun"
)

type Identifiable interface {
	GetID() uuid.UUID
}

type Timestamped interface {
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

type Stateful[S types.StateEnum] interface {
	GetState() S
}

type Ordered interface {
	GetOrder() int
}

// Entity is the capability set the query layer relies on.
type Entity[S types.StateEnum] interface {
	Identifiable
	Timestamped
	Stateful[S]
	Ordered
}

// Toucher refreshes the update timestamp of a record.
type Toucher interface {
	Touch(now time.Time)
}

// Model is embedded by concrete records next to bun.BaseModel:
//
//	type User struct {
//		bun.BaseModel `bun:"table:users,alias:u"`
//		entity.Model[UserState]
//
//		FirstName string `bun:"first_name"`
//	}
//
// The identifier is assigned once, by NewModel, Init or on first insert, and
// is never reassigned afterwards.
type Model[S types.StateEnum] struct {
	ID        uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	Order     int       `bun:"sort_order,notnull,default:0" json:"order"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
	State     S         `bun:"state,notnull" json:"state"`
}

// NewModel returns a model with a fresh identifier and both timestamps set
// to the current time.
func NewModel[S types.StateEnum]() Model[S] {
	now := time.Now()
	return Model[S]{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Init fills the zero fields of m with the NewModel defaults and leaves the
// others alone. It is meant for records built from struct literals.
func Init[S types.StateEnum](m *Model[S]) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
}

func (m Model[S]) GetID() uuid.UUID        { return m.ID }
func (m Model[S]) GetOrder() int           { return m.Order }
func (m Model[S]) GetCreatedAt() time.Time { return m.CreatedAt }
func (m Model[S]) GetUpdatedAt() time.Time { return m.UpdatedAt }
func (m Model[S]) GetState() S             { return m.State }

// Touch sets UpdatedAt to now. It never moves UpdatedAt before CreatedAt.
func (m *Model[S]) Touch(now time.Time) {
	if now.Before(m.CreatedAt) {
		now = m.CreatedAt
	}
	m.UpdatedAt = now
}

// BeforeAppendModel applies Init to records that reach an INSERT without one.
func (m *Model[S]) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		Init(m)
	}
	return nil
}

// SortFields returns the in-memory sort accessors of the base fields, under
// the names id, order, createdAt, updatedAt and state.
func SortFields[T Entity[S], S types.StateEnum]() *orderby.Fields[*T] {
	return orderby.NewFields[*T]().
		Add("id", orderby.Key(func(e *T) string { return (*e).GetID().String() })).
		Add("order", orderby.Key(func(e *T) int { return (*e).GetOrder() })).
		Add("createdAt", orderby.Time(func(e *T) time.Time { return (*e).GetCreatedAt() })).
		Add("updatedAt", orderby.Time(func(e *T) time.Time { return (*e).GetUpdatedAt() })).
		Add("state", orderby.Key(func(e *T) int64 { return int64((*e).GetState()) }))
}
