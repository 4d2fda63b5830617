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

// Package kv is the typed MDBX adapter: table names, per-table layout flags,
// and the transaction/cursor API that storage is built on (§4.1).
package kv

import "sort"

// Table layout flags, passed to mdbx.Env.OpenDBI the same way erigon's own
// kv/tables.go does.
type TableFlags uint

const (
	Default TableFlags = 0x00
	DupSort TableFlags = 0x04
)

// TableCfgItem is one table's static configuration.
type TableCfgItem struct {
	Flags TableFlags
}

type TableCfg map[string]TableCfgItem

// DBSchemaVersion is bumped whenever a table's physical layout changes in a
// way that is not forward-compatible; storage/manifest refuses to open a
// directory whose on-disk version differs (§6.5).
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

// Table names. Comments give the physical key -> value shape; "dupsort" marks
// common-prefix dup-sort tables (§3.2, §4.1).
const (
	// Headers: block_num_u64 -> rlp-ish encoded Header
	Headers = "Header"
	// HeaderByHash: block_hash -> block_num_u64
	HeaderByHash = "HeaderByHash"
	// BlockSignatures: block_num_u64 -> BlockSignature
	BlockSignatures = "BlockSignature"
	// StarknetVersion: block_num_u64 -> protocol version string, written
	// alongside every header whose protocol version is non-empty (at-or-before lookup via
	// cursor.Prev, mirroring the header-marker invariant in §3.3).
	StarknetVersion = "StarknetVersion"

	// Transactions: (block_num_u64, tx_offset_u32) -> (offset,len) locator
	// into the transaction value file.
	Transactions = "Transaction"
	// TransactionOutputs: (block_num_u64, tx_offset_u32) -> (offset,len)
	// locator into the transaction-output value file.
	TransactionOutputs = "TransactionOutput"
	// TransactionHashes: (block_num_u64, tx_offset_u32) -> tx_hash, the
	// inverse of TransactionHashToIndex, kept so body reverts can recover
	// which hashes to remove from the secondary index.
	TransactionHashes = "TransactionHash"
	// TransactionHashToIndex: tx_hash -> (block_num_u64, tx_offset_u32)
	TransactionHashToIndex = "TransactionHashToIndex"

	// StateDiffs: block_num_u64 -> (offset,len) locator into the state-diff
	// value file (storage_diffs/deployed_contracts/nonces/replaced_classes
	// are flattened into the dedicated tables below; this table stores the
	// full diff for getStateUpdate).
	StateDiffs = "StateDiff"
	// DeployedContracts: (block_num_u64, address) -> class_hash, dupsort on
	// the block prefix.
	DeployedContracts = "DeployedContract" // dupsort
	// FirstDeployment: address -> (block_num_u64, class_hash), the first
	// block that deployed a given contract address (§3.2).
	FirstDeployment = "FirstDeployment"
	// NonceAt: (address, block_num_u64) -> nonce, ordered so a
	// cursor.Prev(address, height) range-prev lookup yields the nonce as of
	// that height (§3.2, §8.1 "Range-prev lookup").
	NonceAt = "NonceAt"
	// StorageAt: (address, storage_key, block_num_u64) -> value, same
	// range-prev discipline as NonceAt.
	StorageAt = "StorageAt"
	// ReplacedClasses: (block_num_u64, address) -> class_hash, dupsort.
	ReplacedClasses = "ReplacedClass" // dupsort

	// Classes: class_hash -> (offset,len) locator into the class value
	// file; the declaring block number is kept in the class record itself
	// and in ClassDeclaredAt, not in the locator. Compiled-class locators
	// share this table under compiledClassKey(class_hash).
	Classes = "Class"
	// ClassDeclaredAt: class_hash -> block_num_u64, read by revert_class to
	// find the classes a block declared.
	ClassDeclaredAt = "ClassDeclaredAt"

	// EventsByContract: (address, block_num_u64, tx_offset_u32,
	// event_offset_u32) -> "" (empty value). Common-prefix dupsort on
	// address, per §3.2's event index.
	EventsByContract = "EventsByContract" // dupsort

	// BaseLayerMarker: singleton key -> block hash of the highest block
	// proved on L1 (§3.1); the base-layer marker itself is kept in Markers.
	BaseLayerMarker = "BaseLayerMarker"

	// Markers: MarkerKind (1 byte) -> block_num_u64 (§4.3).
	Markers = "Marker"

	// Manifest: singleton keys -> chain-id / schema-version bytes (§6.5).
	Manifest = "Manifest"
)

// ChaindataTables lists every table the storage engine opens. The list is
// kept sorted, but kv.Open creates the DBIs by ranging over the
// ChaindataTablesCfg map, so DBI assignment order does not follow it.
var ChaindataTables = []string{
	Headers,
	HeaderByHash,
	BlockSignatures,
	StarknetVersion,
	Transactions,
	TransactionOutputs,
	TransactionHashes,
	TransactionHashToIndex,
	StateDiffs,
	DeployedContracts,
	FirstDeployment,
	NonceAt,
	StorageAt,
	ReplacedClasses,
	Classes,
	ClassDeclaredAt,
	EventsByContract,
	BaseLayerMarker,
	Markers,
	Manifest,
}

// ChaindataTablesCfg gives each dupsort table its flag; every other table
// defaults to TableCfgItem{} (simple, one-value-per-key) below in init.
var ChaindataTablesCfg = TableCfg{
	DeployedContracts: {Flags: DupSort},
	ReplacedClasses:   {Flags: DupSort},
	EventsByContract:  {Flags: DupSort},
}

func init() {
	sort.Strings(ChaindataTables)
	for _, name := range ChaindataTables {
		if _, ok := ChaindataTablesCfg[name]; !ok {
			ChaindataTablesCfg[name] = TableCfgItem{}
		}
	}
}
