// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package audiobuf implements the bounded byte ring described in spec
// §4.3: a producer/consumer buffer with no wraparound, drop-tail overflow
// policy, and a completion flag callers poll instead of being signalled.
// Grounded on the lock → mutate → copy-out → unlock discipline used by
// the teacher's channel streamers for their input/output audio buffers.
package audiobuf

import (
	"sync"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
)

// ReadResult classifies the outcome of Read (spec §4.3).
type ReadResult int

const (
	ReadFull ReadResult = iota
	ReadPartial
	ReadEmpty
)

// Buffer is AudioBuffer from spec §3: a fixed-capacity byte slice with
// write/read cursors, a completion flag, and a mutex. It never wraps —
// capacity is set to the configured max-audio-size up front.
type Buffer struct {
	logger logging.Logger

	mu       sync.Mutex
	data     []byte
	writePos int
	readPos  int
	complete bool
}

// New allocates a buffer with the given capacity in bytes.
func New(capacity int, logger logging.Logger) *Buffer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Buffer{logger: logger, data: make([]byte, capacity)}
}

// Write appends bytes at writePos. If the remaining capacity can't hold
// the whole payload, the payload is dropped in its entirety (not
// partially copied) and a warning is logged — spec §4.3: "writes past cap
// are dropped with a warning", never a silent partial write that would
// make Available() lie about how much usable audio landed.
func (b *Buffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := len(b.data) - b.writePos
	if remaining < len(p) {
		b.logger.Warnf("audiobuf: dropping %d bytes, only %d remaining of %d capacity", len(p), remaining, len(b.data))
		return
	}
	copy(b.data[b.writePos:], p)
	b.writePos += len(p)
}

// Read copies up to n bytes starting at readPos into dst (which must be
// at least n bytes) and advances readPos by however much was copied.
// Returns the classification and the number of bytes actually copied.
func (b *Buffer) Read(dst []byte, n int) (ReadResult, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	available := b.writePos - b.readPos
	if available <= 0 {
		return ReadEmpty, 0
	}
	if available >= n {
		copy(dst[:n], b.data[b.readPos:b.readPos+n])
		b.readPos += n
		return ReadFull, n
	}
	copy(dst[:available], b.data[b.readPos:b.writePos])
	b.readPos = b.writePos
	return ReadPartial, available
}

// Peek copies n bytes starting at absolute offset (measured from the
// start of the buffer, not from read_pos) without consuming them. Used
// by streaming-mode ASR to carve off STREAM_CHUNK_SIZE slices of audio
// that must also remain available for a later full-buffer read (spec
// §4.5 streaming fix). Returns false if offset+n exceeds write_pos.
func (b *Buffer) Peek(offset, n int) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 || n < 0 || offset+n > b.writePos {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, b.data[offset:offset+n])
	return out, true
}

// Available reports write_pos - read_pos.
func (b *Buffer) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writePos - b.readPos
}

// Written reports write_pos: the total number of bytes written since the
// last Clear, regardless of how much has been consumed by Read. This is
// the high-water mark Peek's offsets are measured against.
func (b *Buffer) Written() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writePos
}

// Complete reports the completion flag.
func (b *Buffer) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

// MarkComplete sets the completion flag; no more audio is expected.
func (b *Buffer) MarkComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.complete = true
}

// Clear resets positions and the completion flag without reallocating,
// so a session can reuse the same buffer across requests.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writePos = 0
	b.readPos = 0
	b.complete = false
}
