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

import "github.com/holiman/uint256"

// TransactionKind tags which of the protocol's transaction variants a
// Transaction carries (§3.1). Versions are tracked per-kind because they
// change the signed payload shape, not just a version field.
type TransactionKind uint8

const (
	TxDeclareV0 TransactionKind = iota
	TxDeclareV1
	TxDeclareV2
	TxDeclareV3
	TxDeploy
	TxDeployAccountV1
	TxDeployAccountV3
	TxInvokeV0
	TxInvokeV1
	TxInvokeV3
	TxL1Handler
)

// IsDeclare reports whether the variant is one of the four declare versions.
func (k TransactionKind) IsDeclare() bool {
	return k == TxDeclareV0 || k == TxDeclareV1 || k == TxDeclareV2 || k == TxDeclareV3
}

// Transaction is the tagged union of every variant the protocol defines.
// Fields irrelevant to a given Kind are left at their zero value; this
// mirrors the wire encoding, where each variant's payload differs.
type Transaction struct {
	Hash TransactionHash
	Kind TransactionKind

	SenderAddress Address
	CalldataOrConstructorArgs []Felt
	Signature                 []Felt
	Nonce                     Felt
	MaxFee                    *uint256.Int

	ClassHash         *ClassHash // declare, deploy, deploy-account
	CompiledClassHash *CompiledClassHash // declare v2+
	ContractAddressSalt *Felt          // deploy, deploy-account
	EntryPointSelector  *Felt          // L1 handler

	ResourceBounds *ResourceBoundsMapping // v3 transactions
}

// ResourceBounds is the v3 fee-market max-amount/max-price-per-unit pair for
// one resource (L1 gas, L1 data gas, L2 gas).
type ResourceBounds struct {
	MaxAmount       uint64
	MaxPricePerUnit *uint256.Int
}

// ResourceBoundsMapping collects the per-resource bounds a v3 transaction
// declares.
type ResourceBoundsMapping struct {
	L1Gas     ResourceBounds
	L1DataGas ResourceBounds
	L2Gas     ResourceBounds
}

// ExecutionStatus is the outcome of a transaction's execution.
type ExecutionStatus uint8

const (
	ExecutionSucceeded ExecutionStatus = iota
	ExecutionReverted
)

// MsgToL1 is one L2->L1 message emitted during execution.
type MsgToL1 struct {
	FromAddress Address
	ToAddress   Felt // an Ethereum address, left-padded into a Felt
	Payload     []Felt
}

// Event is one event emitted during execution, before it is assigned an
// EventIndex by the writer.
type Event struct {
	FromAddress Address
	Keys        []Felt
	Data        []Felt
}

// TransactionOutput is everything execution produced for one transaction,
// beyond the transaction itself.
type TransactionOutput struct {
	ActualFee       *uint256.Int
	MessagesSent    []MsgToL1
	Events          []Event
	ExecutionStatus ExecutionStatus
	RevertReason    string // non-empty only when ExecutionStatus == ExecutionReverted
}

// Body is the ordered transaction list plus per-transaction outputs for one
// block (§3.1). Each Transaction carries its own Hash; len(Transactions) ==
// len(Outputs) is an invariant enforced by the body writer.
type Body struct {
	BlockNumber  BlockNumber
	Transactions []Transaction
	Outputs      []TransactionOutput
}

// ReplacedBody is what revert_body returns.
type ReplacedBody struct {
	Body Body
}
