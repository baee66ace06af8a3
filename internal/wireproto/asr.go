// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wireproto

// NLSMLContentType is the Content-Type attached to RECOGNITION-COMPLETE
// bodies (spec §6.2): the core forwards the ASR result TEXT payload
// verbatim and never parses it.
const NLSMLContentType = "application/x-nlsml"

// StreamChunkSize is the default chunk size (bytes) used to split
// streaming-mode ASR audio into BIN frames: 200ms of 16-bit mono LPCM at
// 8kHz (spec §4.5 EXT: "STREAM_CHUNK_SIZE (3200 bytes / 200ms @ 8kHz)").
const StreamChunkSize = 3200

// ChunkSizeForSampleRate scales StreamChunkSize to keep the 200ms chunk
// duration constant across sample rates (spec §4.5 EXT: "16kHz doubles it
// to keep the 200ms duration").
func ChunkSizeForSampleRate(sampleRate int) int {
	if sampleRate <= 8000 {
		return StreamChunkSize
	}
	return StreamChunkSize * (sampleRate / 8000)
}

// SplitStreamChunks splits audio into chunkSize-byte pieces
// (StreamChunkSize when chunkSize <= 0) for streaming-mode ASR, returning
// the final (possibly short) chunk as-is.
func SplitStreamChunks(audio []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = StreamChunkSize
	}
	if len(audio) == 0 {
		return nil
	}
	var chunks [][]byte
	for offset := 0; offset < len(audio); offset += chunkSize {
		end := offset + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		chunks = append(chunks, audio[offset:end])
	}
	return chunks
}
