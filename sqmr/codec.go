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

package sqmr

import (
	"fmt"
	"io"

	"github.com/libp2p/go-msgio"
)

// FrameKind tags what a wire frame carries.
type FrameKind uint8

const (
	// FrameData carries one response payload.
	FrameData FrameKind = iota
	// FrameFin terminates the response stream, optionally carrying an
	// error message (empty FinError means a clean end, §3's FinishedOk).
	FrameFin
)

// Frame is one varint-length-prefixed message on an SQMR stream.
type Frame struct {
	Kind    FrameKind
	Payload []byte
	// FinError is only meaningful when Kind == FrameFin; a non-empty value
	// drives the session to Failed instead of FinishedOk.
	FinError string
}

func encodeFrame(f Frame) []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = byte(f.Kind)
	copy(out[1:], f.Payload)
	if f.Kind == FrameFin {
		return append(out[:1], []byte(f.FinError)...)
	}
	return out
}

func decodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, fmt.Errorf("sqmr: empty frame")
	}
	kind := FrameKind(b[0])
	switch kind {
	case FrameData:
		return Frame{Kind: FrameData, Payload: b[1:]}, nil
	case FrameFin:
		return Frame{Kind: FrameFin, FinError: string(b[1:])}, nil
	default:
		return Frame{}, fmt.Errorf("sqmr: unknown frame kind %d", kind)
	}
}

// FrameWriter writes varint-length-prefixed frames to an underlying byte
// stream, the framing go-msgio provides and the teacher's p2p transports
// use for their own length-delimited protobuf messages.
type FrameWriter struct{ w msgio.Writer }

func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: msgio.NewVarintWriter(w)} }

func (fw *FrameWriter) WriteFrame(f Frame) error { return fw.w.WriteMsg(encodeFrame(f)) }

// FrameReader is the FrameWriter counterpart.
type FrameReader struct{ r msgio.Reader }

func NewFrameReader(r io.Reader) *FrameReader { return &FrameReader{r: msgio.NewVarintReader(r)} }

func (fr *FrameReader) ReadFrame() (Frame, error) {
	b, err := fr.r.ReadMsg()
	if err != nil {
		return Frame{}, err
	}
	defer fr.r.ReleaseMsg(b)
	return decodeFrame(b)
}

// PairingBuffer pairs a stream of block headers with their (possibly
// delayed) signatures, the way a header-and-signature SQMR response
// channel must reassemble two separately-arriving sequences into one
// ordered stream (§3's header/signature pairing requirement). A header
// that arrives with no signature pending is held until its signature shows
// up, or until Flush is called at stream end.
type PairingBuffer[H any, S any] struct {
	headers    []H
	headerKey  func(H) uint64
	signatures map[uint64]S
	onPair     func(H, S)
}

// NewPairingBuffer constructs a buffer keyed by the block number keyFn
// extracts from a header.
func NewPairingBuffer[H any, S any](keyFn func(H) uint64, onPair func(H, S)) *PairingBuffer[H, S] {
	return &PairingBuffer[H, S]{headerKey: keyFn, signatures: map[uint64]S{}, onPair: onPair}
}

// PushHeader buffers a header until its matching signature arrives.
func (p *PairingBuffer[H, S]) PushHeader(h H) {
	key := p.headerKey(h)
	if sig, ok := p.signatures[key]; ok {
		delete(p.signatures, key)
		p.onPair(h, sig)
		return
	}
	p.headers = append(p.headers, h)
}

// PushSignature pairs sig against a buffered header with matching key,
// buffering it instead if the header hasn't arrived yet.
func (p *PairingBuffer[H, S]) PushSignature(key uint64, sig S) {
	for i, h := range p.headers {
		if p.headerKey(h) == key {
			p.headers = append(p.headers[:i], p.headers[i+1:]...)
			p.onPair(h, sig)
			return
		}
	}
	p.signatures[key] = sig
}

// PairingError reports headers left unpaired when the stream ended.
type PairingError struct{ UnpairedHeaderCount int }

func (e *PairingError) Error() string {
	return fmt.Sprintf("sqmr: %d headers never received a matching signature before stream end", e.UnpairedHeaderCount)
}

// Flush reports any headers still awaiting a signature at stream end.
func (p *PairingBuffer[H, S]) Flush() error {
	if len(p.headers) == 0 {
		return nil
	}
	return &PairingError{UnpairedHeaderCount: len(p.headers)}
}
