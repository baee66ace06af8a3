// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wsframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		opcode  Opcode
		payload []byte
	}{
		{"empty text", OpText, nil},
		{"short binary", OpBin, bytes.Repeat([]byte{0xAB}, 10)},
		{"tier boundary 125", OpText, bytes.Repeat([]byte{'a'}, 125)},
		{"tier boundary 126", OpText, bytes.Repeat([]byte{'a'}, 126)},
		{"tier boundary 65535", OpBin, bytes.Repeat([]byte{'b'}, 65535)},
		{"tier boundary 65536", OpBin, bytes.Repeat([]byte{'b'}, 65536)},
		{"ping", OpPing, []byte("ping-payload")},
		{"pong", OpPong, []byte("pong-payload")},
		{"close", OpClose, []byte{0x03, 0xE8}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mask, err := GenerateMask()
			require.NoError(t, err)

			encoded := Encode(tc.opcode, tc.payload, mask)
			decoded, err := Decode(bytes.NewReader(encoded), 1<<20)
			require.NoError(t, err)

			assert.True(t, decoded.Fin)
			assert.Equal(t, tc.opcode, decoded.Opcode)
			assert.True(t, decoded.MaskedIn)
			if len(tc.payload) == 0 {
				assert.Empty(t, decoded.Payload)
			} else {
				assert.Equal(t, tc.payload, decoded.Payload)
			}
		})
	}
}

func TestEncodeHeaderLengthTiers(t *testing.T) {
	var zeroMask [4]byte
	lengths := map[int]int{
		125:   2 + 4, // 2-byte header + 4-byte mask
		126:   4 + 4,
		65535: 4 + 4,
		65536: 10 + 4,
	}
	for payloadLen, wantHeader := range lengths {
		encoded := Encode(OpText, make([]byte, payloadLen), zeroMask)
		assert.Equal(t, wantHeader+payloadLen, len(encoded))
	}
}

func TestMaskInvolution(t *testing.T) {
	mask, err := GenerateMask()
	require.NoError(t, err)

	original := []byte("the quick brown fox jumps over the lazy dog")
	buf := append([]byte(nil), original...)

	xorMask(buf, mask)
	assert.NotEqual(t, original, buf)
	xorMask(buf, mask)
	assert.Equal(t, original, buf)
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	mask, err := GenerateMask()
	require.NoError(t, err)
	encoded := Encode(OpBin, make([]byte, 1000), mask)

	_, err = Decode(bytes.NewReader(encoded), 100)
	require.Error(t, err)
}

func TestDecodeShortHeaderIsError(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x81}), 1<<20)
	require.Error(t, err)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "TEXT", OpText.String())
	assert.Equal(t, "BIN", OpBin.String())
	assert.Contains(t, Opcode(0x3).String(), "opcode")
}
