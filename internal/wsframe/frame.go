// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package wsframe implements RFC-6455 frame encoding and decoding: pure
// byte transforms, no I/O beyond reading a header+payload off an
// io.Reader. This is the "hard part" leaf component everything else in
// the bridge builds on.
package wsframe

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsberr"
)

// Opcode identifies the frame type (spec §3).
type Opcode byte

const (
	OpCont  Opcode = 0x0
	OpText  Opcode = 0x1
	OpBin   Opcode = 0x2
	OpClose Opcode = 0x8
	OpPing  Opcode = 0x9
	OpPong  Opcode = 0xA
)

func (op Opcode) String() string {
	switch op {
	case OpCont:
		return "CONT"
	case OpText:
		return "TEXT"
	case OpBin:
		return "BIN"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return fmt.Sprintf("opcode(0x%x)", byte(op))
	}
}

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Fin      bool
	Opcode   Opcode
	Payload  []byte
	MaskedIn bool
}

// lenTier16 is the 7-bit length value signalling a 2-byte extended
// length follows; lenTier64 signals an 8-byte extended length.
const (
	lenTier16 = 126
	lenTier64 = 127
	maxUint16 = 0xFFFF
)

// Encode builds a masked outbound frame. Per spec §4.1 the high 4 bytes
// of the 64-bit extended length are always zero — payloads that would not
// fit in 32 bits must be rejected by the caller before Encode is reached
// (wsclient enforces max_frame_size well below that ceiling).
func Encode(opcode Opcode, payload []byte, mask [4]byte) []byte {
	n := len(payload)

	var header []byte
	switch {
	case n < lenTier16:
		header = make([]byte, 2, 2+4+n)
		header[1] = 0x80 | byte(n)
	case n <= maxUint16:
		header = make([]byte, 4, 4+4+n)
		header[1] = 0x80 | lenTier16
		binary.BigEndian.PutUint16(header[2:4], uint16(n))
	default:
		header = make([]byte, 10, 10+4+n)
		header[1] = 0x80 | lenTier64
		binary.BigEndian.PutUint32(header[2:6], 0)
		binary.BigEndian.PutUint32(header[6:10], uint32(n))
	}
	header[0] = 0x80 | byte(opcode) // FIN=1, no extensions

	header = append(header, mask[:]...)
	out := append(header, payload...)
	maskedTail := out[len(out)-n:]
	xorMask(maskedTail, mask)
	return out
}

// Decode reads exactly one frame from r. Every read error, including a
// short read mid-header, is returned to the caller; wsclient.ReceiveFrame
// calls Decode directly and treats a read-deadline timeout at any point
// of the frame as "no frame yet" and any other error as a hard failure.
func Decode(r io.Reader, maxFrameSize int64) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	fin := hdr[0]&0x80 != 0
	opcode := Opcode(hdr[0] & 0x0F)
	masked := hdr[1]&0x80 != 0
	length := int64(hdr[1] & 0x7F)

	switch length {
	case lenTier16:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, wsberr.New(wsberr.KindShortRead, "extended length (16-bit)", err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case lenTier64:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, wsberr.New(wsberr.KindShortRead, "extended length (64-bit)", err)
		}
		hi := binary.BigEndian.Uint32(ext[0:4])
		lo := binary.BigEndian.Uint32(ext[4:8])
		if hi != 0 {
			return Frame{}, wsberr.New(wsberr.KindFrameTooLarge, "64-bit length exceeds 32 bits", nil)
		}
		length = int64(lo)
	}

	if length > maxFrameSize {
		return Frame{}, wsberr.New(wsberr.KindFrameTooLarge, fmt.Sprintf("%d bytes exceeds max %d", length, maxFrameSize), nil)
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return Frame{}, wsberr.New(wsberr.KindMaskProtocol, "reading mask key", err)
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, wsberr.New(wsberr.KindShortRead, "reading payload", err)
		}
	}
	if masked {
		xorMask(payload, mask)
	}

	return Frame{Fin: fin, Opcode: opcode, Payload: payload, MaskedIn: masked}, nil
}

// xorMask applies the RFC-6455 masking transform in place. Applying the
// same mask twice restores the original bytes (spec §8 involution law).
func xorMask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}
