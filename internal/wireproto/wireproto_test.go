// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wireproto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTTSRequestHappyPath(t *testing.T) {
	req := DefaultTTSRequest()
	req.Text = "hi"
	req.SampleRate = 8000
	req.SessionID = "<sid>"

	got := BuildTTSRequest(req)
	want := `{"action":"tts","text":"hi","voice":"default","speed":1.00,"pitch":1.00,"volume":1.00,"sample_rate":8000,"format":"pcm","session_id":"<sid>"}`
	assert.Equal(t, want, string(got))

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(got, &parsed))
	assert.Equal(t, "hi", parsed["text"])
}

func TestBuildTTSRequestJSONHostileText(t *testing.T) {
	req := DefaultTTSRequest()
	req.Text = "\"\\\n"
	req.SampleRate = 8000

	got := BuildTTSRequest(req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(got, &parsed))
	assert.Equal(t, "\"\\\n", parsed["text"])

	// The six literal bytes between the quotes, per spec §8 scenario 2.
	assert.Contains(t, string(got), `"text":"\"\\\n"`)
}

func TestBuildTTSRequestControlByteEscape(t *testing.T) {
	got := BuildTTSRequest(TTSRequest{Text: "a\x01b", Voice: "v", SampleRate: 8000})
	assert.Contains(t, string(got), `"text":"a\u0001b"`)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(got, &parsed))
	assert.Equal(t, "a\x01b", parsed["text"])
}

func TestIsCompletionMarker(t *testing.T) {
	assert.True(t, IsCompletionMarker([]byte(`{"status":"complete"}`)))
	assert.True(t, IsCompletionMarker([]byte("stream end")))
	assert.True(t, IsCompletionMarker([]byte("all done")))
	assert.False(t, IsCompletionMarker([]byte("more audio coming")))
}

func TestSplitStreamChunks(t *testing.T) {
	audio := make([]byte, 3500)
	chunks := SplitStreamChunks(audio, 1600)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1600)
	assert.Len(t, chunks[1], 1600)
	assert.Len(t, chunks[2], 300)
}

func TestSplitStreamChunksEmpty(t *testing.T) {
	assert.Nil(t, SplitStreamChunks(nil, 1600))
}
