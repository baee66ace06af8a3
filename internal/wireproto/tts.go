// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package wireproto builds the external wire protocol's JSON envelopes by
// hand (spec §6.2) rather than through encoding/json: the literal test
// vectors in spec §8 pin exact field order and escaping, which a
// marshalled struct does not guarantee byte-for-byte, and the envelope
// is small and fixed-shape enough that a direct byte-buffer writer stays
// both simpler and more predictable than fighting struct tags for it.
package wireproto

import (
	"bytes"
	"fmt"
)

// TTSRequest is the set of fields a SPEAK request contributes to the
// outbound "tts" JSON envelope (spec §6.2).
type TTSRequest struct {
	Text       string
	Voice      string
	Speed      float64
	Pitch      float64
	Volume     float64
	SampleRate int
	SessionID  string
}

// DefaultTTSRequest returns a TTSRequest holding the defaults for Voice,
// Speed, Pitch, and Volume; Text, SampleRate, and SessionID are left zero
// for the caller to set. BuildTTSRequest fills in nothing itself: a field
// left zero is sent as zero.
func DefaultTTSRequest() TTSRequest {
	return TTSRequest{
		Voice:  "default",
		Speed:  1.0,
		Pitch:  1.0,
		Volume: 1.0,
	}
}

// BuildTTSRequest emits the minified JSON envelope for one SPEAK request,
// field order and escaping matching spec §6.2/§8 exactly.
func BuildTTSRequest(req TTSRequest) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"action":"tts","text":"`)
	writeEscapedJSONString(&buf, req.Text)
	buf.WriteString(`","voice":"`)
	writeEscapedJSONString(&buf, req.Voice)
	buf.WriteString(`","speed":`)
	fmt.Fprintf(&buf, "%.2f", req.Speed)
	buf.WriteString(`,"pitch":`)
	fmt.Fprintf(&buf, "%.2f", req.Pitch)
	buf.WriteString(`,"volume":`)
	fmt.Fprintf(&buf, "%.2f", req.Volume)
	buf.WriteString(`,"sample_rate":`)
	fmt.Fprintf(&buf, "%d", req.SampleRate)
	buf.WriteString(`,"format":"pcm","session_id":"`)
	writeEscapedJSONString(&buf, req.SessionID)
	buf.WriteString(`"}`)
	return buf.Bytes()
}

// writeEscapedJSONString writes s into buf as the contents of a JSON
// string literal (without the surrounding quotes), per spec §6.2:
// `"` and `\` are backslash-escaped, the common control characters use
// their short escapes, any other byte below 0x20 becomes \u00XX in
// lowercase hex, and everything else is copied verbatim.
func writeEscapedJSONString(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
}

// completionMarkers are substrings whose presence in a TEXT payload
// signals the end of a TTS response (spec §6.2, §9 "Completion marker
// by substring").
var completionMarkers = []string{"complete", "end", "done"}

// IsCompletionMarker reports whether payload contains any of the
// deliberately liberal completion substrings.
func IsCompletionMarker(payload []byte) bool {
	for _, marker := range completionMarkers {
		if bytes.Contains(payload, []byte(marker)) {
			return true
		}
	}
	return false
}
