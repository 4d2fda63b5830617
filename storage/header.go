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

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/kv"
)

func encodeCommitments(e *enc, c types.Commitments) {
	encodeOptionalFelt(e, c.TransactionCommitment)
	encodeOptionalFelt(e, c.EventCommitment)
	encodeOptionalFelt(e, c.StateDiffCommitment)
	encodeOptionalFelt(e, c.ReceiptCommitment)
}

func decodeCommitments(d *dec) (types.Commitments, error) {
	var c types.Commitments
	var err error
	if c.TransactionCommitment, err = decodeOptionalFelt(d); err != nil {
		return c, err
	}
	if c.EventCommitment, err = decodeOptionalFelt(d); err != nil {
		return c, err
	}
	if c.StateDiffCommitment, err = decodeOptionalFelt(d); err != nil {
		return c, err
	}
	if c.ReceiptCommitment, err = decodeOptionalFelt(d); err != nil {
		return c, err
	}
	return c, nil
}

func encodeOptionalFelt(e *enc, f *types.Felt) {
	if f == nil {
		e.byte(0)
		return
	}
	e.byte(1)
	e.felt(*f)
}

func decodeOptionalFelt(d *dec) (*types.Felt, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	f, err := d.felt()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func encodeHeader(h types.Header) []byte {
	e := &enc{}
	e.felt(types.Felt(h.BlockHash))
	e.felt(types.Felt(h.ParentHash))
	e.u64(uint64(h.BlockNumber))
	e.u64(h.Timestamp)
	e.felt(h.SequencerAddress)
	e.felt(h.StateRoot)
	e.uint256(h.GasPrices.L1GasPriceWei)
	e.uint256(h.GasPrices.L1GasPriceFri)
	e.uint256(h.GasPrices.L1DataGasPriceWei)
	e.uint256(h.GasPrices.L1DataGasPriceFri)
	e.byte(byte(h.DAMode))
	encodeCommitments(e, h.Commitments)
	e.u32(h.TransactionCount)
	e.u32(h.EventCount)
	e.u32(h.StateDiffLength)
	e.str(h.ProtocolVersion)
	return e.bytesOut()
}

func decodeHeader(b []byte) (types.Header, error) {
	d := newDec(b)
	var h types.Header
	var err error

	blockHash, err := d.felt()
	if err != nil {
		return h, err
	}
	h.BlockHash = types.BlockHash(blockHash)
	parentHash, err := d.felt()
	if err != nil {
		return h, err
	}
	h.ParentHash = types.BlockHash(parentHash)
	bn, err := d.u64()
	if err != nil {
		return h, err
	}
	h.BlockNumber = types.BlockNumber(bn)
	if h.Timestamp, err = d.u64(); err != nil {
		return h, err
	}
	if h.SequencerAddress, err = d.felt(); err != nil {
		return h, err
	}
	if h.StateRoot, err = d.felt(); err != nil {
		return h, err
	}
	if h.GasPrices.L1GasPriceWei, err = d.uint256(); err != nil {
		return h, err
	}
	if h.GasPrices.L1GasPriceFri, err = d.uint256(); err != nil {
		return h, err
	}
	if h.GasPrices.L1DataGasPriceWei, err = d.uint256(); err != nil {
		return h, err
	}
	if h.GasPrices.L1DataGasPriceFri, err = d.uint256(); err != nil {
		return h, err
	}
	mode, err := d.byte()
	if err != nil {
		return h, err
	}
	h.DAMode = types.DataAvailabilityMode(mode)
	if h.Commitments, err = decodeCommitments(d); err != nil {
		return h, err
	}
	if h.TransactionCount, err = d.u32(); err != nil {
		return h, err
	}
	if h.EventCount, err = d.u32(); err != nil {
		return h, err
	}
	if h.StateDiffLength, err = d.u32(); err != nil {
		return h, err
	}
	if h.ProtocolVersion, err = d.str(); err != nil {
		return h, err
	}
	return h, d.done()
}

func encodeSignature(sig types.BlockSignature) []byte {
	e := &enc{}
	e.u64(uint64(sig.BlockNumber))
	e.felt(sig.R)
	e.felt(sig.S)
	return e.bytesOut()
}

func decodeSignature(b []byte) (types.BlockSignature, error) {
	d := newDec(b)
	var sig types.BlockSignature
	bn, err := d.u64()
	if err != nil {
		return sig, err
	}
	sig.BlockNumber = types.BlockNumber(bn)
	if sig.R, err = d.felt(); err != nil {
		return sig, err
	}
	if sig.S, err = d.felt(); err != nil {
		return sig, err
	}
	return sig, d.done()
}

// AppendHeader commits a header (and, if present, its signature and the
// protocol-version row) at h.BlockNumber, enforcing marker == h.BlockNumber
// (§4.3) and advancing the header marker to h.BlockNumber+1.
func (s *Storage) AppendHeader(ctx context.Context, h types.Header, sig *types.BlockSignature) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := checkAndAdvanceMarker(tx, types.MarkerHeader, h.BlockNumber); err != nil {
			return err
		}
		key := encodeBlockNumber(h.BlockNumber)
		if err := tx.Append(kv.Headers, key, encodeHeader(h)); err != nil {
			return err
		}
		if err := tx.Insert(kv.HeaderByHash, h.BlockHash[:], key); err != nil {
			return err
		}
		if sig != nil {
			if err := tx.Append(kv.BlockSignatures, key, encodeSignature(*sig)); err != nil {
				return err
			}
		}
		if h.ProtocolVersion != "" {
			if err := tx.Append(kv.StarknetVersion, key, []byte(h.ProtocolVersion)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetHeader returns the header committed at blockNumber.
func (s *Storage) GetHeader(ctx context.Context, blockNumber types.BlockNumber) (types.Header, bool, error) {
	var h types.Header
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.Headers, encodeBlockNumber(blockNumber))
		if err != nil || !ok {
			return err
		}
		h, err = decodeHeader(v)
		found = err == nil
		return err
	})
	return h, found, err
}

// GetHeaderByHash resolves a block hash to its header via HeaderByHash.
func (s *Storage) GetHeaderByHash(ctx context.Context, hash types.BlockHash) (types.Header, bool, error) {
	var h types.Header
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		key, ok, err := tx.GetOne(kv.HeaderByHash, hash[:])
		if err != nil || !ok {
			return err
		}
		v, ok, err := tx.GetOne(kv.Headers, key)
		if err != nil || !ok {
			return err
		}
		h, err = decodeHeader(v)
		found = err == nil
		return err
	})
	return h, found, err
}

// GetSignature returns the signature attached to blockNumber, if any.
func (s *Storage) GetSignature(ctx context.Context, blockNumber types.BlockNumber) (types.BlockSignature, bool, error) {
	var sig types.BlockSignature
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.BlockSignatures, encodeBlockNumber(blockNumber))
		if err != nil || !ok {
			return err
		}
		sig, err = decodeSignature(v)
		found = err == nil
		return err
	})
	return sig, found, err
}

// HeaderMarker returns the header dimension's current marker value: the
// block number of the next header append (§4.3).
func (s *Storage) HeaderMarker(ctx context.Context) (types.BlockNumber, error) {
	var m types.BlockNumber
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		m, err = getMarker(tx, types.MarkerHeader)
		return err
	})
	return m, err
}

// RevertHeader removes the header (and signature/version row, if present)
// committed at blockNumber and sets the header marker back to blockNumber,
// returning what was removed (§4.4). A no-op, returning (nil, nil), unless
// the header marker is currently exactly blockNumber+1.
func (s *Storage) RevertHeader(ctx context.Context, blockNumber types.BlockNumber) (*types.ReplacedHeader, error) {
	var out *types.ReplacedHeader
	err := s.update(ctx, func(tx kv.RwTx) error {
		if ok, err := revertPrecondition(tx, types.MarkerHeader, blockNumber); err != nil || !ok {
			return err
		}
		key := encodeBlockNumber(blockNumber)
		v, ok, err := tx.GetOne(kv.Headers, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		h, err := decodeHeader(v)
		if err != nil {
			return err
		}
		var sig *types.BlockSignature
		if sv, ok, err := tx.GetOne(kv.BlockSignatures, key); err != nil {
			return err
		} else if ok {
			s, err := decodeSignature(sv)
			if err != nil {
				return err
			}
			sig = &s
			if err := tx.Delete(kv.BlockSignatures, key); err != nil {
				return err
			}
		}
		if err := tx.Delete(kv.StarknetVersion, key); err != nil {
			return err
		}
		if err := tx.Delete(kv.HeaderByHash, h.BlockHash[:]); err != nil {
			return err
		}
		if err := tx.Delete(kv.Headers, key); err != nil {
			return err
		}
		if err := setMarker(tx, types.MarkerHeader, blockNumber); err != nil {
			return err
		}
		out = &types.ReplacedHeader{Header: h, Signature: sig}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: revert header %d: %w", blockNumber, err)
	}
	return out, nil
}
