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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// StateEnum constrains entity state fields to closed, integer-backed
// enumerations. Values are persisted as their integer form, so the natural
// ordering of the underlying type is also the sort order of the column.
type StateEnum interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
	BaseEnum
}

// EnumOf returns the first value in values whose Name matches name, or the
// zero value and false when nothing matches.
func EnumOf[S StateEnum](name string, values ...S) (S, bool) {
	for _, v := range values {
		if v.Name() == name {
			return v, true
		}
	}
	var zero S
	return zero, false
}
