// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package wsberr defines the error taxonomy shared by the framing codec,
// the WebSocket client, and the session state machines. Every error a
// caller needs to branch on is a distinct exported value or an *Error
// carrying a Kind that errors.As can recover, so session code never matches on
// error strings.
package wsberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of completion-cause mapping
// (spec §7). It is attached to wrapped errors via *Error.
type Kind int

const (
	KindConfig Kind = iota
	KindSocket
	KindHandshakeFailed
	KindFrameTooLarge
	KindMaskProtocol
	KindShortRead
	KindBufferOverflow
	KindNoInputTimeout
	KindIdleTimeout
	KindMaxDurationExceeded
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindSocket:
		return "SocketError"
	case KindHandshakeFailed:
		return "HandshakeFailed"
	case KindFrameTooLarge:
		return "FrameTooLarge"
	case KindMaskProtocol:
		return "MaskProtocolError"
	case KindShortRead:
		return "ShortRead"
	case KindBufferOverflow:
		return "BufferOverflow"
	case KindNoInputTimeout:
		return "NoInputTimeout"
	case KindIdleTimeout:
		return "IdleTimeout"
	case KindMaxDurationExceeded:
		return "MaxDurationExceeded"
	case KindInvariantViolation:
		return "InvariantViolation"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged, wrappable error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given Kind, optionally wrapping a cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
