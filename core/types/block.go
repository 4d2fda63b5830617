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

// DataAvailabilityMode selects where a block's state diff is published.
type DataAvailabilityMode uint8

const (
	DAModeCalldata DataAvailabilityMode = iota
	DAModeBlob
)

// GasPriceVector carries the wei/fri price for both the L1 gas and the L1
// data-gas token variants, mirroring the two-token fee market Starknet
// blocks have carried since the DA-mode split.
type GasPriceVector struct {
	L1GasPriceWei      *uint256.Int
	L1GasPriceFri       *uint256.Int
	L1DataGasPriceWei  *uint256.Int
	L1DataGasPriceFri  *uint256.Int
}

// Commitments collects the optional Merkle commitments a header may carry.
// Each is present once the corresponding dimension's data has been hashed;
// a header can be committed to storage before all of them are known (e.g.
// the receipt commitment lags on some protocol versions), hence pointers.
type Commitments struct {
	TransactionCommitment *Felt
	EventCommitment       *Felt
	StateDiffCommitment   *Felt
	ReceiptCommitment     *Felt
}

// Header is a Starknet block header (§3.1).
type Header struct {
	BlockHash        BlockHash
	ParentHash       BlockHash
	BlockNumber      BlockNumber
	Timestamp        uint64
	SequencerAddress Address
	StateRoot        Felt
	GasPrices        GasPriceVector
	DAMode           DataAvailabilityMode
	Commitments      Commitments

	TransactionCount uint32
	EventCount       uint32
	StateDiffLength  uint32

	ProtocolVersion string
}

// BlockSignature is the sequencer's signature over a committed header: two
// field elements, attached only once both are known.
type BlockSignature struct {
	BlockNumber BlockNumber
	R, S        Felt
}

// ReplacedHeader is what revert_header returns: the header and signature
// that were present at the reverted block number, so the caller can, e.g.,
// re-queue them.
type ReplacedHeader struct {
	Header    Header
	Signature *BlockSignature
}
