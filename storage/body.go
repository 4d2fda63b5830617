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
	"encoding/binary"
	"fmt"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/kv"
	"github.com/erigontech/starknet-erigon/valuestore"
)

func encodeOptionalFeltInline(e *enc, f *types.Felt) { encodeOptionalFelt(e, f) }
func decodeOptionalFeltInline(d *dec) (*types.Felt, error) { return decodeOptionalFelt(d) }

func encodeResourceBounds(e *enc, rb types.ResourceBounds) {
	e.u64(rb.MaxAmount)
	e.uint256(rb.MaxPricePerUnit)
}

func decodeResourceBounds(d *dec) (types.ResourceBounds, error) {
	var rb types.ResourceBounds
	var err error
	if rb.MaxAmount, err = d.u64(); err != nil {
		return rb, err
	}
	if rb.MaxPricePerUnit, err = d.uint256(); err != nil {
		return rb, err
	}
	return rb, nil
}

func encodeTransaction(tx types.Transaction) []byte {
	e := &enc{}
	e.felt(tx.Hash)
	e.byte(byte(tx.Kind))
	e.felt(tx.SenderAddress)
	e.feltSlice(tx.CalldataOrConstructorArgs)
	e.feltSlice(tx.Signature)
	e.felt(tx.Nonce)
	e.uint256(tx.MaxFee)
	encodeOptionalFeltInline(e, tx.ClassHash)
	encodeOptionalFeltInline(e, tx.CompiledClassHash)
	encodeOptionalFeltInline(e, tx.ContractAddressSalt)
	encodeOptionalFeltInline(e, tx.EntryPointSelector)
	if tx.ResourceBounds == nil {
		e.byte(0)
	} else {
		e.byte(1)
		encodeResourceBounds(e, tx.ResourceBounds.L1Gas)
		encodeResourceBounds(e, tx.ResourceBounds.L1DataGas)
		encodeResourceBounds(e, tx.ResourceBounds.L2Gas)
	}
	return e.bytesOut()
}

func decodeTransaction(b []byte) (types.Transaction, error) {
	d := newDec(b)
	var t types.Transaction
	var err error
	if t.Hash, err = d.felt(); err != nil {
		return t, err
	}
	kind, err := d.byte()
	if err != nil {
		return t, err
	}
	t.Kind = types.TransactionKind(kind)
	if t.SenderAddress, err = d.felt(); err != nil {
		return t, err
	}
	if t.CalldataOrConstructorArgs, err = d.feltSlice(); err != nil {
		return t, err
	}
	if t.Signature, err = d.feltSlice(); err != nil {
		return t, err
	}
	if t.Nonce, err = d.felt(); err != nil {
		return t, err
	}
	if t.MaxFee, err = d.uint256(); err != nil {
		return t, err
	}
	if t.ClassHash, err = decodeOptionalFeltInline(d); err != nil {
		return t, err
	}
	if t.CompiledClassHash, err = decodeOptionalFeltInline(d); err != nil {
		return t, err
	}
	if t.ContractAddressSalt, err = decodeOptionalFeltInline(d); err != nil {
		return t, err
	}
	if t.EntryPointSelector, err = decodeOptionalFeltInline(d); err != nil {
		return t, err
	}
	hasBounds, err := d.byte()
	if err != nil {
		return t, err
	}
	if hasBounds == 1 {
		rb := &types.ResourceBoundsMapping{}
		if rb.L1Gas, err = decodeResourceBounds(d); err != nil {
			return t, err
		}
		if rb.L1DataGas, err = decodeResourceBounds(d); err != nil {
			return t, err
		}
		if rb.L2Gas, err = decodeResourceBounds(d); err != nil {
			return t, err
		}
		t.ResourceBounds = rb
	}
	return t, d.done()
}

func encodeMsgToL1(e *enc, m types.MsgToL1) {
	e.felt(m.FromAddress)
	e.felt(m.ToAddress)
	e.feltSlice(m.Payload)
}

func decodeMsgToL1(d *dec) (types.MsgToL1, error) {
	var m types.MsgToL1
	var err error
	if m.FromAddress, err = d.felt(); err != nil {
		return m, err
	}
	if m.ToAddress, err = d.felt(); err != nil {
		return m, err
	}
	if m.Payload, err = d.feltSlice(); err != nil {
		return m, err
	}
	return m, nil
}

func encodeEvent(e *enc, ev types.Event) {
	e.felt(ev.FromAddress)
	e.feltSlice(ev.Keys)
	e.feltSlice(ev.Data)
}

func decodeEvent(d *dec) (types.Event, error) {
	var ev types.Event
	var err error
	if ev.FromAddress, err = d.felt(); err != nil {
		return ev, err
	}
	if ev.Keys, err = d.feltSlice(); err != nil {
		return ev, err
	}
	if ev.Data, err = d.feltSlice(); err != nil {
		return ev, err
	}
	return ev, nil
}

func encodeTransactionOutput(o types.TransactionOutput) []byte {
	e := &enc{}
	e.uint256(o.ActualFee)
	e.u32(uint32(len(o.MessagesSent)))
	for _, m := range o.MessagesSent {
		encodeMsgToL1(e, m)
	}
	e.u32(uint32(len(o.Events)))
	for _, ev := range o.Events {
		encodeEvent(e, ev)
	}
	e.byte(byte(o.ExecutionStatus))
	e.str(o.RevertReason)
	return e.bytesOut()
}

func decodeTransactionOutput(b []byte) (types.TransactionOutput, error) {
	d := newDec(b)
	var o types.TransactionOutput
	var err error
	if o.ActualFee, err = d.uint256(); err != nil {
		return o, err
	}
	nMsgs, err := d.u32()
	if err != nil {
		return o, err
	}
	o.MessagesSent = make([]types.MsgToL1, nMsgs)
	for i := range o.MessagesSent {
		if o.MessagesSent[i], err = decodeMsgToL1(d); err != nil {
			return o, err
		}
	}
	nEvents, err := d.u32()
	if err != nil {
		return o, err
	}
	o.Events = make([]types.Event, nEvents)
	for i := range o.Events {
		if o.Events[i], err = decodeEvent(d); err != nil {
			return o, err
		}
	}
	status, err := d.byte()
	if err != nil {
		return o, err
	}
	o.ExecutionStatus = types.ExecutionStatus(status)
	if o.RevertReason, err = d.str(); err != nil {
		return o, err
	}
	return o, d.done()
}

// AppendBody commits a block's transactions and outputs, enforcing marker ==
// body.BlockNumber and advancing the body marker (§4.3). A body whose
// len(Transactions) differs from len(Outputs) is rejected with an error.
func (s *Storage) AppendBody(ctx context.Context, body types.Body) error {
	if len(body.Transactions) != len(body.Outputs) {
		return fmt.Errorf("storage: body %d: %d transactions but %d outputs", body.BlockNumber, len(body.Transactions), len(body.Outputs))
	}
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := checkAndAdvanceMarker(tx, types.MarkerBody, body.BlockNumber); err != nil {
			return err
		}
		eventsC, err := tx.RwCursorDupSort(kv.EventsByContract)
		if err != nil {
			return err
		}
		defer eventsC.Close()

		for i, txn := range body.Transactions {
			key := txnKey(body.BlockNumber, uint32(i))
			loc, err := s.transactions.Append(encodeTransaction(txn))
			if err != nil {
				return err
			}
			if err := tx.Append(kv.Transactions, key, loc.MarshalBinary()); err != nil {
				return err
			}
			outLoc, err := s.transactionOutputs.Append(encodeTransactionOutput(body.Outputs[i]))
			if err != nil {
				return err
			}
			if err := tx.Append(kv.TransactionOutputs, key, outLoc.MarshalBinary()); err != nil {
				return err
			}
			if err := tx.Append(kv.TransactionHashes, key, txn.Hash[:]); err != nil {
				return err
			}
			if err := tx.Insert(kv.TransactionHashToIndex, txn.Hash[:], key); err != nil {
				return err
			}

			for j, ev := range body.Outputs[i].Events {
				idx := types.EventIndex{
					Transaction: types.TransactionIndex{BlockNumber: body.BlockNumber, Offset: uint32(i)},
					OffsetInTxn: uint32(j),
				}
				if err := eventsC.AppendDup(ev.FromAddress[:], encodeEventIndexValue(idx)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func encodeEventIndexValue(idx types.EventIndex) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(idx.Transaction.BlockNumber))
	binary.BigEndian.PutUint32(b[8:12], idx.Transaction.Offset)
	binary.BigEndian.PutUint32(b[12:], idx.OffsetInTxn)
	return b
}

func decodeEventIndexValue(b []byte) (types.EventIndex, error) {
	if len(b) != 16 {
		return types.EventIndex{}, fmt.Errorf("storage: bad event index value length %d", len(b))
	}
	return types.EventIndex{
		Transaction: types.TransactionIndex{
			BlockNumber: types.BlockNumber(binary.BigEndian.Uint64(b[:8])),
			Offset:      binary.BigEndian.Uint32(b[8:12]),
		},
		OffsetInTxn: binary.BigEndian.Uint32(b[12:]),
	}, nil
}

// EventsByContract returns every EventIndex recorded for addr, in commit
// order (§3.2's event index).
func (s *Storage) EventsByContract(ctx context.Context, addr types.Address) ([]types.EventIndex, error) {
	var out []types.EventIndex
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.CursorDupSort(kv.EventsByContract)
		if err != nil {
			return err
		}
		defer c.Close()
		k, v, err := c.Seek(addr[:])
		if err != nil {
			return err
		}
		for k != nil && bytesHasPrefix(k, addr[:]) && len(k) == len(addr) {
			idx, err := decodeEventIndexValue(v)
			if err != nil {
				return err
			}
			out = append(out, idx)
			k, v, err = c.NextDup()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// GetBody returns the transactions and outputs committed for blockNumber.
func (s *Storage) GetBody(ctx context.Context, blockNumber types.BlockNumber) (types.Body, bool, error) {
	body := types.Body{BlockNumber: blockNumber}
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Transactions)
		if err != nil {
			return err
		}
		defer c.Close()
		prefix := encodeBlockNumber(blockNumber)
		for k, v, err := c.Seek(prefix); k != nil; k, v, err = c.Next() {
			if err != nil {
				return err
			}
			kbn, _, decErr := decodeTxnKey(k)
			if decErr != nil {
				return decErr
			}
			if kbn != blockNumber {
				break
			}
			loc, err := valuestore.UnmarshalLocator(v)
			if err != nil {
				return err
			}
			raw, err := s.transactions.Read(loc)
			if err != nil {
				return err
			}
			txn, err := decodeTransaction(raw)
			if err != nil {
				return err
			}
			body.Transactions = append(body.Transactions, txn)
			found = true
		}
		if !found {
			return nil
		}
		oc, err := tx.Cursor(kv.TransactionOutputs)
		if err != nil {
			return err
		}
		defer oc.Close()
		for k, v, err := oc.Seek(prefix); k != nil; k, v, err = oc.Next() {
			if err != nil {
				return err
			}
			kbn, _, decErr := decodeTxnKey(k)
			if decErr != nil {
				return decErr
			}
			if kbn != blockNumber {
				break
			}
			loc, err := valuestore.UnmarshalLocator(v)
			if err != nil {
				return err
			}
			raw, err := s.transactionOutputs.Read(loc)
			if err != nil {
				return err
			}
			out, err := decodeTransactionOutput(raw)
			if err != nil {
				return err
			}
			body.Outputs = append(body.Outputs, out)
		}
		return nil
	})
	return body, found, err
}

// GetTransactionByHash looks up a transaction irrespective of which block it
// landed in, via the hash-to-key index maintained alongside AppendBody.
func (s *Storage) GetTransactionByHash(ctx context.Context, hash types.TransactionHash) (types.Transaction, bool, error) {
	var txn types.Transaction
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		key, ok, err := tx.GetOne(kv.TransactionHashToIndex, hash[:])
		if err != nil || !ok {
			return err
		}
		v, ok, err := tx.GetOne(kv.Transactions, key)
		if err != nil || !ok {
			return err
		}
		loc, err := valuestore.UnmarshalLocator(v)
		if err != nil {
			return err
		}
		raw, err := s.transactions.Read(loc)
		if err != nil {
			return err
		}
		txn, err = decodeTransaction(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return txn, found, err
}

// GetTransactionOutputByHash looks up a transaction's recorded execution
// output by the transaction's hash.
func (s *Storage) GetTransactionOutputByHash(ctx context.Context, hash types.TransactionHash) (types.TransactionOutput, bool, error) {
	var out types.TransactionOutput
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		key, ok, err := tx.GetOne(kv.TransactionHashToIndex, hash[:])
		if err != nil || !ok {
			return err
		}
		v, ok, err := tx.GetOne(kv.TransactionOutputs, key)
		if err != nil || !ok {
			return err
		}
		loc, err := valuestore.UnmarshalLocator(v)
		if err != nil {
			return err
		}
		raw, err := s.transactionOutputs.Read(loc)
		if err != nil {
			return err
		}
		out, err = decodeTransactionOutput(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return out, found, err
}

// BodyMarker returns the body dimension's current marker value.
func (s *Storage) BodyMarker(ctx context.Context) (types.BlockNumber, error) {
	var m types.BlockNumber
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		m, err = getMarker(tx, types.MarkerBody)
		return err
	})
	return m, err
}

// RevertBody removes the transactions and outputs committed at blockNumber
// and sets the body marker back to blockNumber (§4.4). The value-file bytes
// themselves are never reclaimed (§4.2); only the index rows are removed. A
// no-op, returning (nil, nil), unless the body marker is currently exactly
// blockNumber+1.
func (s *Storage) RevertBody(ctx context.Context, blockNumber types.BlockNumber) (*types.ReplacedBody, error) {
	body, _, err := s.GetBody(ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	var reverted bool
	err = s.update(ctx, func(tx kv.RwTx) error {
		if ok, err := revertPrecondition(tx, types.MarkerBody, blockNumber); err != nil || !ok {
			return err
		}
		reverted = true

		eventsC, err := tx.RwCursorDupSort(kv.EventsByContract)
		if err != nil {
			return err
		}
		defer eventsC.Close()

		for i := range body.Transactions {
			key := txnKey(blockNumber, uint32(i))
			if err := tx.Delete(kv.Transactions, key); err != nil {
				return err
			}
			if err := tx.Delete(kv.TransactionOutputs, key); err != nil {
				return err
			}
			if err := tx.Delete(kv.TransactionHashes, key); err != nil {
				return err
			}
			if err := tx.Delete(kv.TransactionHashToIndex, body.Transactions[i].Hash[:]); err != nil {
				return err
			}
			for j, ev := range body.Outputs[i].Events {
				idx := types.EventIndex{
					Transaction: types.TransactionIndex{BlockNumber: blockNumber, Offset: uint32(i)},
					OffsetInTxn: uint32(j),
				}
				if err := eventsC.DeleteExact(ev.FromAddress[:], encodeEventIndexValue(idx)); err != nil {
					return err
				}
			}
		}
		return setMarker(tx, types.MarkerBody, blockNumber)
	})
	if err != nil {
		return nil, fmt.Errorf("storage: revert body %d: %w", blockNumber, err)
	}
	if !reverted {
		return nil, nil
	}
	return &types.ReplacedBody{Body: body}, nil
}
