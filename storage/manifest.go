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

package storage

import (
	"context"
	"fmt"

	"github.com/erigontech/starknet-erigon/kv"
)

var (
	manifestChainIDKey       = []byte("chain_id")
	manifestSchemaVersionKey = []byte("schema_version")
)

// ManifestMismatchError is returned when an existing chaindata directory was
// created for a different chain or a different, non-forward-compatible
// schema version (§6.5). The node must refuse to open it rather than guess.
type ManifestMismatchError struct {
	Field          string
	Expected, Found string
}

func (e *ManifestMismatchError) Error() string {
	return fmt.Sprintf("storage: manifest %s mismatch: directory has %q, process wants %q", e.Field, e.Found, e.Expected)
}

// checkOrWriteManifest seeds the Manifest table on first open, and on every
// subsequent open verifies the stored chain-id/schema-version still match.
func (s *Storage) checkOrWriteManifest(ctx context.Context, chainID, schemaVersion string) error {
	if schemaVersion == "" {
		schemaVersion = fmt.Sprintf("%d.%d.%d", kv.DBSchemaVersion.Major, kv.DBSchemaVersion.Minor, kv.DBSchemaVersion.Patch)
	}

	var needsInit bool
	err := s.view(ctx, func(tx kv.Tx) error {
		storedChainID, ok, err := tx.GetOne(kv.Manifest, manifestChainIDKey)
		if err != nil {
			return err
		}
		if !ok {
			needsInit = true
			return nil
		}
		if chainID != "" && string(storedChainID) != chainID {
			return &ManifestMismatchError{Field: "chain_id", Expected: chainID, Found: string(storedChainID)}
		}
		storedSchema, ok, err := tx.GetOne(kv.Manifest, manifestSchemaVersionKey)
		if err != nil {
			return err
		}
		if ok && string(storedSchema) != schemaVersion {
			return &ManifestMismatchError{Field: "schema_version", Expected: schemaVersion, Found: string(storedSchema)}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !needsInit {
		return nil
	}
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := tx.Put(kv.Manifest, manifestChainIDKey, []byte(chainID)); err != nil {
			return err
		}
		return tx.Put(kv.Manifest, manifestSchemaVersionKey, []byte(schemaVersion))
	})
}
