// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wsclient

import (
	"fmt"
	"time"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsberr"
)

// Config is WsConfig from spec §3: the recognised connection options, all
// with defaults.
type Config struct {
	Host            string
	Port            uint16
	Path            string
	ConnectTimeout  time.Duration
	RecvPollTimeout time.Duration
	SendTimeout     time.Duration
	MaxRetries      uint32
	RetryDelay      time.Duration
	MaxFrameSize    int64
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		Path:            "/",
		ConnectTimeout:  30 * time.Second,
		RecvPollTimeout: 100 * time.Millisecond,
		SendTimeout:     10 * time.Second,
		MaxRetries:      3,
		RetryDelay:      1 * time.Second,
		MaxFrameSize:    1 << 20, // 1 MiB
	}
}

// Validate rejects configuration that would make the client unusable: an
// empty host, a zero port, or a max frame size outside 1..50 MiB. Config
// has no TLS or URL-scheme setting; the client always dials plain TCP.
func (c Config) Validate() error {
	if c.Host == "" {
		return wsberr.New(wsberr.KindConfig, "host must not be empty", nil)
	}
	if c.Port == 0 {
		return wsberr.New(wsberr.KindConfig, "port must not be zero", nil)
	}
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > 50<<20 {
		return wsberr.New(wsberr.KindConfig, fmt.Sprintf("max_frame_size %d out of range (1..50MiB)", c.MaxFrameSize), nil)
	}
	return nil
}

// Addr returns the "host:port" dial target.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
