// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package vad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tone(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(amplitude))
	}
	return buf
}

func TestEnergyDetectorActivityThenInactivity(t *testing.T) {
	d := NewEnergyDetector(0.1, 2, 2, 10)

	silence := tone(0, 160)
	loud := tone(20000, 160)

	assert.Equal(t, EventNone, d.ProcessFrame(silence))
	assert.Equal(t, EventNone, d.ProcessFrame(loud))
	assert.Equal(t, EventActivity, d.ProcessFrame(loud))
	assert.Equal(t, EventNone, d.ProcessFrame(loud))

	assert.Equal(t, EventNone, d.ProcessFrame(silence))
	assert.Equal(t, EventInactivity, d.ProcessFrame(silence))
}

func TestEnergyDetectorNoInput(t *testing.T) {
	d := NewEnergyDetector(0.1, 2, 2, 3)
	silence := tone(0, 160)

	assert.Equal(t, EventNone, d.ProcessFrame(silence))
	assert.Equal(t, EventNone, d.ProcessFrame(silence))
	assert.Equal(t, EventNoInput, d.ProcessFrame(silence))
}

func TestEnergyDetectorResetClearsState(t *testing.T) {
	d := NewEnergyDetector(0.1, 1, 1, 10)
	loud := tone(20000, 160)

	assert.Equal(t, EventActivity, d.ProcessFrame(loud))
	d.Reset()
	assert.Equal(t, EventActivity, d.ProcessFrame(loud))
}
