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
	"errors"
	"fmt"

	"github.com/tomoncle/querykit/database"
)

var (
	// ErrInvalidArgument reports a nil entity or collection, or an unknown
	// field in a partial update.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound reports a delete of an identifier that does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrClosed reports use of a repository after Close.
	ErrClosed = errors.New("repository closed")
	// ErrConflict reports an update or delete that matched no row, because
	// the row was never stored or was removed concurrently.
	ErrConflict = errors.New("no row affected")
)

// StorageError wraps a failure raised by the database. Kind classifies the
// driver error; errors.Is and errors.As reach the original error.
type StorageError struct {
	Op   string
	Kind database.SQLError
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	_, kind := database.IsSqlError(err)
	return &StorageError{Op: op, Kind: kind, Err: err}
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
