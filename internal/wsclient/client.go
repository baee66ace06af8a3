// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package wsclient is the reusable RFC-6455 WebSocket client (component W
// in spec §4.2): it owns one TCP stream, runs the client-side opening
// handshake over it, and exposes send/receive of logical frames to a
// single owning session. There is exactly one shared implementation for
// both the synthesizer and the recognizer — the source this is drawn from
// historically shipped two near-duplicates; this is an ownership
// refactor, not a behavioural one (spec §9).
package wsclient

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsberr"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsframe"
)

// State is the client's connection state (spec §3).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client is WsClient from spec §3. It is owned exclusively by one
// session; the mutex serialises handshake/send/receive so at most one
// operation runs at a time, matching the host's single-writer contract.
type Client struct {
	cfg    Config
	logger logging.Logger

	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	state        State
	lastActivity time.Time
	retryCount   uint32
}

// New creates a handle in the Disconnected state. It allocates no socket.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg, logger: logger, state: StateDisconnected}, nil
}

// IsConnected is a mutex-protected snapshot of state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect performs one TCP dial and HTTP/1.1 Upgrade handshake. It
// returns true only on a 101 Switching Protocols response.
func (c *Client) Connect() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() (bool, error) {
	c.state = StateConnecting

	conn, err := net.DialTimeout("tcp", c.cfg.Addr(), c.cfg.ConnectTimeout)
	if err != nil {
		c.state = StateError
		return false, wsberr.New(wsberr.KindSocket, "dial failed", err)
	}

	key, err := secWebSocketKey()
	if err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindSocket, "generating Sec-WebSocket-Key", err)
	}

	request := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s:%d\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n",
		c.cfg.Path, c.cfg.Host, c.cfg.Port, key,
	)

	if err := conn.SetDeadline(time.Now().Add(c.cfg.ConnectTimeout)); err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindSocket, "setting handshake deadline", err)
	}

	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindSocket, "writing handshake request", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindHandshakeFailed, "reading status line", err)
	}
	if err := drainHeaders(reader); err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindHandshakeFailed, "reading headers", err)
	}

	// Acceptance is decided by the presence of "101" in the status line.
	// Sec-WebSocket-Accept is deliberately not validated here — see spec
	// §4.2 and §9 for the documented simplification.
	if !strings.Contains(statusLine, "101") {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindHandshakeFailed, fmt.Sprintf("unexpected status line %q", strings.TrimSpace(statusLine)), nil)
	}

	// Handshake deadline done; receive_frame manages its own per-call
	// deadline from here on (spec §4.2: "sets recv-timeout to
	// recv_poll_timeout after handshake").
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		c.state = StateError
		return false, wsberr.New(wsberr.KindSocket, "clearing handshake deadline", err)
	}

	c.conn = conn
	c.reader = reader
	c.state = StateConnected
	c.retryCount = 0
	c.lastActivity = time.Now()
	return true, nil
}

// ConnectWithRetry retries Connect up to MaxRetries+1 attempts, waiting
// RetryDelay between attempts.
func (c *Client) ConnectWithRetry() (bool, error) {
	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	for i := uint32(0); i < attempts; i++ {
		ok, err := c.Connect()
		if ok {
			return true, nil
		}
		lastErr = err
		c.mu.Lock()
		c.retryCount++
		c.mu.Unlock()
		if i+1 < attempts {
			c.logger.Warnf("wsclient: connect attempt %d/%d failed: %v", i+1, attempts, err)
			time.Sleep(c.cfg.RetryDelay)
		}
	}
	return false, wsberr.New(wsberr.KindSocket, "all retries exhausted", lastErr)
}

// EnsureConnected returns true iff the client is Connected after at most
// one retry cycle — the cheap path callers use before an operation that
// needs connectivity.
func (c *Client) EnsureConnected() bool {
	if c.IsConnected() {
		return true
	}
	ok, err := c.ConnectWithRetry()
	if err != nil {
		c.logger.Errorf("wsclient: ensure_connected failed: %v", err)
	}
	return ok
}

// SendText emits one masked TEXT frame.
func (c *Client) SendText(data []byte) (bool, error) {
	return c.send(wsframe.OpText, data)
}

// SendBinary emits one masked BIN frame.
func (c *Client) SendBinary(data []byte) (bool, error) {
	return c.send(wsframe.OpBin, data)
}

// SendPing emits a masked PING with an empty payload.
func (c *Client) SendPing() (bool, error) {
	return c.send(wsframe.OpPing, nil)
}

// SendClose emits a masked CLOSE carrying the status code and reason.
func (c *Client) SendClose(code uint16, reason string) (bool, error) {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return c.send(wsframe.OpClose, payload)
}

func (c *Client) send(opcode wsframe.Opcode, payload []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return false, wsberr.New(wsberr.KindSocket, "not connected", nil)
	}
	if int64(len(payload)) > c.cfg.MaxFrameSize {
		return false, wsberr.New(wsberr.KindFrameTooLarge, fmt.Sprintf("%d bytes exceeds max %d", len(payload), c.cfg.MaxFrameSize), nil)
	}

	mask, err := wsframe.GenerateMask()
	if err != nil {
		return false, wsberr.New(wsberr.KindSocket, "generating mask", err)
	}
	frame := wsframe.Encode(opcode, payload, mask)

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
		c.failLocked()
		return false, wsberr.New(wsberr.KindSocket, "setting write deadline", err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.failLocked()
		return false, wsberr.New(wsberr.KindSocket, "writing frame", err)
	}
	c.lastActivity = time.Now()
	return true, nil
}

// ReceiveFrame blocks at most RecvPollTimeout. A nil Frame with a nil
// error means "timeout, no data yet" — not an error condition (spec
// §4.2: "Timeout reads are NOT errors"). An inbound PING is answered with
// a PONG before the frame is returned to the caller.
func (c *Client) ReceiveFrame() (*wsframe.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return nil, wsberr.New(wsberr.KindSocket, "not connected", nil)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.RecvPollTimeout)); err != nil {
		c.failLocked()
		return nil, wsberr.New(wsberr.KindSocket, "setting read deadline", err)
	}

	frame, err := wsframe.Decode(c.reader, c.cfg.MaxFrameSize)
	if err != nil {
		// A poll-window timeout at any point mid-frame (header, extended
		// length, mask, or payload) means "no full frame yet", not an
		// error — this is the blocking-socket-with-short-deadline mode
		// spec §9 prescribes in place of the source's non-blocking +
		// blocking-recv mix.
		if isTimeout(err) {
			return nil, nil
		}
		c.failLocked()
		return nil, err
	}
	c.lastActivity = time.Now()

	if frame.Opcode == wsframe.OpPing {
		if err := c.replyPongLocked(frame.Payload); err != nil {
			c.logger.Warnf("wsclient: failed to answer ping: %v", err)
		}
	}
	if frame.Opcode == wsframe.OpClose {
		c.state = StateClosing
	}

	return &frame, nil
}

// replyPongLocked must be called with mu held.
func (c *Client) replyPongLocked(payload []byte) error {
	mask, err := wsframe.GenerateMask()
	if err != nil {
		return err
	}
	frame := wsframe.Encode(wsframe.OpPong, payload, mask)
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}

// Poll reports whether a read would return data within timeout. It does
// not consume the frame.
func (c *Client) Poll(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return false
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false
	}
	_, err := c.reader.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})
	return err == nil
}

// Disconnect performs a best-effort CLOSE (if requested) and tears down
// the socket. State transitions to Disconnected regardless of outcome.
func (c *Client) Disconnect(sendClose bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.state = StateDisconnected
		return
	}
	if sendClose && c.state == StateConnected {
		if _, err := c.sendCloseLocked(); err != nil {
			c.logger.Warnf("wsclient: best-effort close failed: %v", err)
		}
	}
	c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.state = StateDisconnected
}

func (c *Client) sendCloseLocked() (bool, error) {
	mask, err := wsframe.GenerateMask()
	if err != nil {
		return false, err
	}
	frame := wsframe.Encode(wsframe.OpClose, nil, mask)
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
		return false, err
	}
	_, err = c.conn.Write(frame)
	return err == nil, err
}

// failLocked marks the connection Error and releases the socket; the
// next operation that needs connectivity will attempt to reconnect
// (spec §4.2 failure model). Caller must hold mu.
func (c *Client) failLocked() {
	c.state = StateError
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// isTimeout walks err's Unwrap chain looking for a net.Error reporting
// Timeout() — wsframe/wsberr wrap the underlying net error but preserve
// it via Unwrap, and errors.As follows that chain.
func isTimeout(err error) bool {
	type timeouter interface {
		error
		Timeout() bool
	}
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func secWebSocketKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// drainHeaders reads and discards HTTP header lines up to the blank line
// terminating the response.
func drainHeaders(reader *bufio.Reader) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}
