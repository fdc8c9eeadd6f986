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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(u *unitOfWork[account]) []changeKind {
	out := make([]changeKind, len(u.changes))
	for i, c := range u.changes {
		out[i] = c.kind
	}
	return out
}

func TestUnitOfWorkMergesChangesPerEntity(t *testing.T) {
	u := newUnitOfWork[account]()
	a, b, c := newAccount("a", 1), newAccount("b", 2), newAccount("c", 3)

	u.insert(a)
	u.update(a)
	u.updateColumns(a, []string{"age"})
	u.updateColumns(b, []string{"age"})
	u.updateColumns(b, []string{"name", "age"})
	u.update(c)
	u.updateColumns(c, []string{"age"})

	assert.Equal(t, []changeKind{changeInsert, changePartial, changeUpdate}, kinds(u))
	assert.Equal(t, []string{"age", "name"}, u.index[b].columns)
	assert.Nil(t, u.index[c].columns)

	u.update(b)
	assert.Equal(t, changeUpdate, u.index[b].kind, "a full update supersedes a partial one")
}

func TestUnitOfWorkRemove(t *testing.T) {
	u := newUnitOfWork[account]()
	a, b := newAccount("a", 1), newAccount("b", 2)

	u.insert(a)
	u.update(b)
	u.remove(a)
	u.remove(b)
	require.Equal(t, 1, u.pending())
	assert.Equal(t, changeDelete, u.changes[0].kind)
	assert.Same(t, b, u.changes[0].entity)

	u.update(b)
	u.upsert(b, nil)
	assert.Equal(t, changeDelete, u.index[b].kind, "a staged delete is not revived by later edits")
}

func TestUnitOfWorkTracking(t *testing.T) {
	u := newUnitOfWork[account]()
	a, b := newAccount("a", 1), newAccount("b", 2)

	u.track(a, nil)
	u.insert(b)
	assert.True(t, u.isTracked(a))
	assert.False(t, u.isTracked(b))

	u.committed()
	assert.True(t, u.isTracked(b))
	assert.Zero(t, u.pending())

	u.remove(a)
	u.committed()
	assert.False(t, u.isTracked(a))
	assert.Equal(t, "partial update", changePartial.String())
}
