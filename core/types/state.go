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

package types

// StateDiff is the per-block world-state delta (§3.1). Maps are used here
// for the in-memory representation produced by the sync pipeline; the
// storage writer flattens them into the secondary-index rows described in
// §3.2 when it commits.
type StateDiff struct {
	BlockNumber BlockNumber

	DeployedContracts map[Address]ClassHash
	StorageDiffs      map[Address]map[StorageKey]Felt
	DeclaredClasses   map[ClassHash]DeclaredClass
	DeprecatedDeclaredClasses []ClassHash
	Nonces            map[Address]Felt
	ReplacedClasses   map[Address]ClassHash
}

// DeclaredClass pairs a newly-declared Sierra class with its compiled-class
// hash. StateDiff.DeclaredClasses is a map, so the order in which the state
// diff listed its declarations is not kept (§4.5).
type DeclaredClass struct {
	CompiledClassHash CompiledClassHash
	SierraProgramHash Felt // hash of the attached sierra_class program body
}

// DeployedUndeclaredClass names a class referenced by a `deployed_contracts`
// entry that the same state diff does not declare (in neither its declared
// nor its deprecated-declared classes): the Cairo-0 backfill classes (§9).
// The sync pipeline fetches them and stores them through AppendClass with
// the block's declared classes; AppendStateDiff has no separate input for
// them.
type DeployedUndeclaredClass struct {
	ClassHash   ClassHash
	BlockNumber BlockNumber
}

// ClassVariant tags which of the two class encodings a Class carries.
type ClassVariant uint8

const (
	ClassSierra ClassVariant = iota
	ClassDeprecatedCairo0
)

// Class is the code of a contract, content-addressed by ClassHash (§3.1).
type Class struct {
	Hash        ClassHash
	Variant     ClassVariant
	DeclaredAt  BlockNumber

	// SierraProgram is the Sierra program body; populated when Variant ==
	// ClassSierra.
	SierraProgram []byte

	// DeprecatedProgram and CompiledProgram are populated when Variant ==
	// ClassDeprecatedCairo0: the Cairo-0 program body and its attached
	// compiled-program blob.
	DeprecatedProgram []byte
	CompiledProgram   []byte
}

// CompiledClass is the CASM produced by compiling a Sierra class, keyed by
// the class hash it compiles (the compiled-class stream, §4.5).
type CompiledClass struct {
	ClassHash ClassHash
	Casm      []byte
}

// ReplacedStateDiff is what revert_state returns: the removed state diff
// plus the set of classes that had been declared at that block, so the sync
// pipeline can repopulate any in-memory "already declared" cache (§4.4).
type ReplacedStateDiff struct {
	StateDiff       StateDiff
	DeclaredClasses []ClassHash
}
