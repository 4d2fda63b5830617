// Copyright 2025 The Starknet-Erigon Authors
// This file is part of Starknet-Erigon.
//
// Starknet-Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Starknet-Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Starknet-Erigon. If not, see <http://www.gnu.org/licenses/>.

package kv

import (
	"errors"
	"fmt"
)

// ErrNotFound is the package's not-found sentinel. No call in kv returns
// it: GetOne reports a missing key as ok == false, and cursor positioning
// calls that run off the end of a table return a nil key (§7).
var ErrNotFound = errors.New("kv: not found")

// ErrKeyAlreadyExists is returned by Insert when the key is already mapped.
var ErrKeyAlreadyExists = errors.New("kv: key already exists")

// ErrSerialization covers both key and value encode/decode failures.
var ErrSerialization = errors.New("kv: serialization error")

// AppendError is returned by Append/AppendDup when the supplied key is not
// strictly greater than the table's current last key, i.e. the caller
// violated the monotone-append discipline storage relies on (§4.1).
type AppendError struct {
	Table string
	Last  []byte
	Got   []byte
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("kv: append to %s: key %x is not greater than last key %x", e.Table, e.Got, e.Last)
}

// Is implements errors.Is against the ErrAppend sentinel so callers that
// don't need the Table/Last/Got detail can match with errors.Is(err,
// kv.ErrAppend).
func (e *AppendError) Is(target error) bool { return target == ErrAppend }

// ErrAppend is the sentinel AppendError wraps.
var ErrAppend = errors.New("kv: non-monotone append")
