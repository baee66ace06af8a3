// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package synthsession

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/audiobuf"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/host"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/mrcp"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsclient"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsframe"
)

// fakeChannel records every message the session sends to the host.
type fakeChannel struct {
	mu        sync.Mutex
	responses []*mrcp.Response
	events    []*mrcp.Event
	openedOK  *bool
	closedOK  bool
}

func (f *fakeChannel) Open(ctx context.Context) error  { return nil }
func (f *fakeChannel) Close(ctx context.Context) error { return nil }
func (f *fakeChannel) ProcessRequest(ctx context.Context, msg any) error {
	return nil
}
func (f *fakeChannel) MessageSend(ctx context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := msg.(type) {
	case *mrcp.Response:
		f.responses = append(f.responses, m)
	case *mrcp.Event:
		f.events = append(f.events, m)
	}
	return nil
}
func (f *fakeChannel) OpenRespond(ok bool) { f.openedOK = &ok }
func (f *fakeChannel) CloseRespond()       { f.closedOK = true }

func (f *fakeChannel) lastEvent() *mrcp.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func (f *fakeChannel) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// ttsFixtureServer handshakes like the real server and lets the test
// drive the TTS response frames directly.
type ttsFixtureServer struct {
	ln     net.Listener
	accept chan net.Conn
}

func startTTSFixture(t *testing.T) (*ttsFixtureServer, string, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &ttsFixtureServer{ln: ln, accept: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil || strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"))
		fs.accept <- conn
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return fs, "127.0.0.1", uint16(addr.Port)
}

func (fs *ttsFixtureServer) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-fs.accept:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fixture never accepted")
		return nil
	}
}

func newTestClient(t *testing.T, host string, port uint16) *wsclient.Client {
	t.Helper()
	cfg := wsclient.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.RecvPollTimeout = 30 * time.Millisecond
	c, err := wsclient.New(cfg, nil)
	require.NoError(t, err)
	return c
}

func readClientFrame(t *testing.T, conn net.Conn) wsframe.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wsframe.Decode(bufio.NewReader(conn), 1<<20)
	require.NoError(t, err)
	return frame
}

func sendServerFrame(t *testing.T, conn net.Conn, opcode wsframe.Opcode, payload []byte) {
	t.Helper()
	mask, err := wsframe.GenerateMask()
	require.NoError(t, err)
	_, err = conn.Write(wsframe.Encode(opcode, payload, mask))
	require.NoError(t, err)
}

func TestSynthSessionTTSHappyPath(t *testing.T) {
	fs, host_, port := startTTSFixture(t)
	defer fs.ln.Close()

	ws := newTestClient(t, host_, port)
	_, err := ws.Connect()
	require.NoError(t, err)
	serverConn := fs.conn(t)
	defer serverConn.Close()

	audio := audiobuf.New(4096, nil)
	ch := &fakeChannel{}
	sess := New(ch, ws, audio, func() host.CodecDescriptor { return host.StaticCodec{Rate: 8000, Frame: 320} }, "sid-1", nil)

	ctx := context.Background()
	sess.Open(ctx)
	defer sess.Close()

	sess.Request(&mrcp.Request{ID: 1, Method: "SPEAK", Body: []byte("hi")})

	envelopeFrame := readClientFrame(t, serverConn)
	assert.Equal(t, wsframe.OpText, envelopeFrame.Opcode)
	assert.Equal(t,
		`{"action":"tts","text":"hi","voice":"default","speed":1.00,"pitch":1.00,"volume":1.00,"sample_rate":8000,"format":"pcm","session_id":"sid-1"}`,
		string(envelopeFrame.Payload))

	sendServerFrame(t, serverConn, wsframe.OpBin, make([]byte, 640))
	sendServerFrame(t, serverConn, wsframe.OpText, []byte(`{"status":"complete"}`))

	require.Eventually(t, func() bool {
		return audio.Complete() && audio.Available() == 640
	}, 2*time.Second, 10*time.Millisecond)

	frame1 := make([]byte, 320)
	sess.StreamRead(frame1)
	assert.Equal(t, make([]byte, 320), frame1)
	assert.Equal(t, 0, ch.eventCount())

	frame2 := make([]byte, 320)
	sess.StreamRead(frame2)
	assert.Equal(t, make([]byte, 320), frame2)
	assert.Equal(t, 0, ch.eventCount())

	frame3 := make([]byte, 320)
	sess.StreamRead(frame3)
	ev := ch.lastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, mrcp.EventSpeakComplete, ev.Name)
	assert.Equal(t, mrcp.CauseNormal, ev.Cause)
}

func TestSynthSessionJSONHostileText(t *testing.T) {
	fs, host_, port := startTTSFixture(t)
	defer fs.ln.Close()

	ws := newTestClient(t, host_, port)
	_, err := ws.Connect()
	require.NoError(t, err)
	serverConn := fs.conn(t)
	defer serverConn.Close()

	audio := audiobuf.New(4096, nil)
	ch := &fakeChannel{}
	sess := New(ch, ws, audio, func() host.CodecDescriptor { return host.StaticCodec{Rate: 8000, Frame: 320} }, "", nil)
	sess.Open(context.Background())
	defer sess.Close()

	sess.Request(&mrcp.Request{ID: 1, Method: "SPEAK", Body: []byte("\"\\\n")})

	envelopeFrame := readClientFrame(t, serverConn)
	assert.Contains(t, string(envelopeFrame.Payload), `"text":"\"\\\n"`)
}

func TestSynthSessionCancelBeforeDrain(t *testing.T) {
	fs, host_, port := startTTSFixture(t)
	defer fs.ln.Close()

	ws := newTestClient(t, host_, port)
	_, err := ws.Connect()
	require.NoError(t, err)
	serverConn := fs.conn(t)
	defer serverConn.Close()

	audio := audiobuf.New(4096, nil)
	ch := &fakeChannel{}
	sess := New(ch, ws, audio, func() host.CodecDescriptor { return host.StaticCodec{Rate: 8000, Frame: 320} }, "", nil)
	sess.Open(context.Background())
	defer sess.Close()

	sess.Request(&mrcp.Request{ID: 1, Method: "SPEAK", Body: []byte("hello")})
	readClientFrame(t, serverConn) // envelope

	audio.Write(make([]byte, 2000))
	sess.Request(&mrcp.Request{ID: 2, Method: "STOP"})

	frame := make([]byte, 320)
	sess.StreamRead(frame)

	assert.Equal(t, make([]byte, 320), frame)
	assert.Equal(t, 0, audio.Available())
	assert.Equal(t, 0, ch.eventCount())
}
