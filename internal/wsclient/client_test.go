// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wsclient

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsframe"
)

// fixtureServer accepts exactly one TCP connection, performs a minimal
// RFC-6455 opening handshake (no Sec-WebSocket-Accept computation — the
// client under test doesn't check it either), and exposes the raw conn
// to the test for framing-level assertions.
type fixtureServer struct {
	t        *testing.T
	listener net.Listener
	accepted chan net.Conn
}

func startFixture(t *testing.T) (*fixtureServer, string, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fixtureServer{t: t, listener: ln, accepted: make(chan net.Conn, 1)}
	go fs.acceptOnce()

	addr := ln.Addr().(*net.TCPAddr)
	return fs, "127.0.0.1", uint16(addr.Port)
}

func (fs *fixtureServer) acceptOnce() {
	conn, err := fs.listener.Accept()
	if err != nil {
		return
	}
	reader := bufio.NewReader(conn)
	// Drain the request line and headers.
	for {
		line, err := reader.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"))
	fs.accepted <- conn
}

func (fs *fixtureServer) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-fs.accepted:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fixture server never accepted a connection")
		return nil
	}
}

func (fs *fixtureServer) close() {
	fs.listener.Close()
}

func testConfig(host string, port uint16) Config {
	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.ConnectTimeout = 2 * time.Second
	cfg.RecvPollTimeout = 50 * time.Millisecond
	cfg.SendTimeout = 2 * time.Second
	return cfg
}

func TestConnectAcceptsOn101(t *testing.T) {
	fs, host, port := startFixture(t)
	defer fs.close()

	c, err := New(testConfig(host, port), nil)
	require.NoError(t, err)

	ok, err := c.Connect()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.IsConnected())
}

func TestConnectRejectsNon101Status(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil || strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c, err := New(testConfig("127.0.0.1", uint16(addr.Port)), nil)
	require.NoError(t, err)

	ok, err := c.Connect()
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, StateError, c.State())
}

func TestConnectWithRetryExhausts(t *testing.T) {
	// Nothing is listening on this port — every attempt fails immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	cfg := testConfig("127.0.0.1", uint16(addr.Port))
	cfg.MaxRetries = 2
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.ConnectTimeout = 200 * time.Millisecond

	c, err := New(cfg, nil)
	require.NoError(t, err)

	ok, err := c.ConnectWithRetry()
	assert.False(t, ok)
	require.Error(t, err)
}

func TestSendTextProducesMaskedFrame(t *testing.T) {
	fs, host, port := startFixture(t)
	defer fs.close()

	c, err := New(testConfig(host, port), nil)
	require.NoError(t, err)
	_, err = c.Connect()
	require.NoError(t, err)

	serverConn := fs.conn(t)
	defer serverConn.Close()

	ok, err := c.SendText([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, ok)

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wsframe.Decode(bufio.NewReader(serverConn), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, wsframe.OpText, frame.Opcode)
	assert.Equal(t, "hello", string(frame.Payload))
	assert.True(t, frame.MaskedIn)
}

func TestReceiveFrameTimeoutIsNilNotError(t *testing.T) {
	fs, host, port := startFixture(t)
	defer fs.close()

	c, err := New(testConfig(host, port), nil)
	require.NoError(t, err)
	_, err = c.Connect()
	require.NoError(t, err)

	serverConn := fs.conn(t)
	defer serverConn.Close()

	frame, err := c.ReceiveFrame()
	assert.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, StateConnected, c.State())
}

func TestReceiveFrameAutoReplysPong(t *testing.T) {
	fs, host, port := startFixture(t)
	defer fs.close()

	c, err := New(testConfig(host, port), nil)
	require.NoError(t, err)
	_, err = c.Connect()
	require.NoError(t, err)

	serverConn := fs.conn(t)
	defer serverConn.Close()

	mask, err := wsframe.GenerateMask()
	require.NoError(t, err)
	serverConn.Write(wsframe.Encode(wsframe.OpPing, []byte("ping-me"), mask))

	var frame *wsframe.Frame
	require.Eventually(t, func() bool {
		var recvErr error
		frame, recvErr = c.ReceiveFrame()
		require.NoError(t, recvErr)
		return frame != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, wsframe.OpPing, frame.Opcode)

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pong, err := wsframe.Decode(bufio.NewReader(serverConn), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, wsframe.OpPong, pong.Opcode)
	assert.Equal(t, "ping-me", string(pong.Payload))
}

func TestDisconnectSendsCloseAndResetsState(t *testing.T) {
	fs, host, port := startFixture(t)
	defer fs.close()

	c, err := New(testConfig(host, port), nil)
	require.NoError(t, err)
	_, err = c.Connect()
	require.NoError(t, err)

	serverConn := fs.conn(t)
	defer serverConn.Close()

	c.Disconnect(true)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.IsConnected())

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wsframe.Decode(bufio.NewReader(serverConn), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, wsframe.OpClose, frame.Opcode)
}

func TestSendOnDisconnectedClientErrors(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	ok, err := c.SendText([]byte("x"))
	assert.False(t, ok)
	require.Error(t, err)
}
