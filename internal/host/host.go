// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package host captures the UniMRCP host plugin contract (spec §6.1) as
// Go interfaces. Nothing in this package has an implementation — a real
// plugin binary binds these to its cgo glue layer, which is the transport,
// codec, and SIP/RTSP stack explicitly out of scope for this core.
package host

import "context"

// Engine is the per-resource-type plugin entry point: one Engine per
// loaded synthesizer or recognizer module.
type Engine interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	CreateChannel(ctx context.Context) (Channel, error)
}

// Channel is one MRCP session's host-side handle. Open/Close are answered
// asynchronously via OpenRespond/CloseRespond; ProcessRequest delivers
// exactly one MRCP request at a time and MUST be answered by exactly one
// MessageSend of a *mrcp.Response.
type Channel interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	ProcessRequest(ctx context.Context, msg any) error
	MessageSend(ctx context.Context, msg any) error
	OpenRespond(ok bool)
	CloseRespond()
}

// AudioSource is the host's pull-based audio stream, used by the
// synthesizer: the host's media thread calls Read once per audio tick and
// MUST NOT block.
type AudioSource interface {
	Read(frame []byte) (int, error)
}

// AudioSink is the host's push-based audio stream, used by the
// recognizer: the host's media thread calls Write once per inbound audio
// frame and MUST NOT block.
type AudioSink interface {
	Write(frame []byte) (int, error)
}

// CodecDescriptor exposes the negotiated codec for a stream (spec §6.1:
// LPCM at 8kHz or 16kHz, 16-bit mono little-endian).
type CodecDescriptor interface {
	SampleRate() int
	FrameSize() int
}

// StaticCodec is the trivial CodecDescriptor implementation used by tests
// and the smoke-test harness.
type StaticCodec struct {
	Rate  int
	Frame int
}

func (c StaticCodec) SampleRate() int { return c.Rate }
func (c StaticCodec) FrameSize() int  { return c.Frame }
