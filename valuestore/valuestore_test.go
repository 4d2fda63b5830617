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

package valuestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendIsMonotoneAndImmutable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "values.dat"))
	require.NoError(t, err)
	defer s.Close()

	loc1, err := s.Append([]byte("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 0, loc1.Offset)

	loc2, err := s.Append([]byte("world!"))
	require.NoError(t, err)
	require.Greater(t, loc2.Offset, loc1.Offset)

	got1, err := s.Read(loc1)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got1))

	got2, err := s.Read(loc2)
	require.NoError(t, err)
	require.Equal(t, "world!", string(got2))
}

func TestLocatorRoundTrip(t *testing.T) {
	loc := Locator{Offset: 1234, Len: 56}
	got, err := UnmarshalLocator(loc.MarshalBinary())
	require.NoError(t, err)
	require.Equal(t, loc, got)
}

func TestReadEmptyLocator(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "values.dat"))
	require.NoError(t, err)
	defer s.Close()

	b, err := s.Read(Locator{})
	require.NoError(t, err)
	require.Nil(t, b)
}
