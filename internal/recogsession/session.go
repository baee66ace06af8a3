// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package recogsession implements the recognizer per-session state
// machine (component S-Recog, spec §4.5): Idle → Listening →
// (Recognising | Cancelling). Host request/media threads call
// Open/Close/Request/StreamWrite. Each Session creates and owns its own
// bgtask.Task, whose goroutine sends audio and receives results. Two
// calls do WebSocket I/O on the calling thread instead: a RECOGNIZE
// request connects the client (with retries) when it is not already
// connected, and Close disconnects it after stopping the task.
// StreamWrite does no socket I/O.
package recogsession

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/audiobuf"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/bgtask"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/host"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/mrcp"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/vad"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wireproto"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsclient"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsframe"
)

// MaxRecognizeDuration bounds one RECOGNIZE request's lifetime (spec §5).
const MaxRecognizeDuration = 60 * time.Second

type sendAudioBatchMsg struct{}
type streamAudioChunkMsg struct{ chunk []byte }
type recvResultMsg struct{}

// Session is RecogSession from spec §3.
type Session struct {
	channel host.Channel
	ws      *wsclient.Client
	audio   *audiobuf.Buffer
	task    *bgtask.Task
	logger  logging.Logger

	mu               sync.Mutex
	detector         vad.Detector
	recogReq         *mrcp.Request
	stopResp         *mrcp.Response
	timersStarted    bool
	streamingEnabled bool
	speechStarted    bool
	waitingResult    bool
	streamPos        int
	streamChunkSize  int
	recognizeStart   time.Time
}

// New constructs a Session bound to one host channel and its exclusively
// owned WsClient, AudioBuffer, and Detector.
func New(channel host.Channel, ws *wsclient.Client, audio *audiobuf.Buffer, detector vad.Detector, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Session{
		channel:  channel,
		ws:       ws,
		audio:    audio,
		detector: detector,
		logger:   logger,
	}
	s.task = bgtask.New(s.handle, logger)
	return s
}

// Open starts the background task.
func (s *Session) Open(ctx context.Context) {
	s.task.Start(ctx)
	s.channel.OpenRespond(true)
}

// Close tears the session down.
func (s *Session) Close() {
	s.task.Stop()
	s.ws.Disconnect(true)
	s.channel.CloseRespond()
}

// Request dispatches one MRCP request (spec §4.5). RECOGNIZE may block
// while it connects the client; the other methods do not block.
func (s *Session) Request(req *mrcp.Request, sinkCodec host.CodecDescriptor, streaming bool) {
	switch req.Method {
	case "RECOGNIZE":
		s.handleRecognize(req, sinkCodec, streaming)

	case "STOP":
		s.mu.Lock()
		s.stopResp = &mrcp.Response{RequestID: req.ID, Status: mrcp.StatusSuccess, State: mrcp.StateComplete}
		s.mu.Unlock()

	case "START-INPUT-TIMERS":
		s.mu.Lock()
		s.timersStarted = true
		s.mu.Unlock()
		s.respond(req, mrcp.StatusSuccess)

	case "SET-PARAMS", "GET-PARAMS", "DEFINE-GRAMMAR":
		s.respond(req, mrcp.StatusSuccess)

	default:
		s.respond(req, mrcp.StatusMethodFailed)
	}
}

func (s *Session) handleRecognize(req *mrcp.Request, sinkCodec host.CodecDescriptor, streaming bool) {
	if sinkCodec == nil {
		s.respond(req, mrcp.StatusMethodFailed)
		return
	}

	timersStarted := true
	if v, ok := req.Header("Start-Input-Timers"); ok {
		timersStarted = v != "false"
	}
	// No-Input-Timeout and Speech-Complete-Timeout are not read:
	// vad.Detector has no way to receive timeouts, so the detector's own
	// configuration governs both. Only Start-Input-Timers is taken from
	// the request.

	if !s.ws.EnsureConnected() {
		s.respond(req, mrcp.StatusMethodFailed)
		return
	}

	s.mu.Lock()
	s.audio.Clear()
	s.detector.Reset()
	s.timersStarted = timersStarted
	s.streamingEnabled = streaming
	s.speechStarted = false
	s.waitingResult = false
	s.streamPos = 0
	s.streamChunkSize = wireproto.ChunkSizeForSampleRate(sinkCodec.SampleRate())
	s.recognizeStart = time.Now()
	s.recogReq = req
	s.mu.Unlock()

	s.channel.MessageSend(context.Background(), &mrcp.Response{RequestID: req.ID, Status: mrcp.StatusSuccess, State: mrcp.StateInProgress})
}

func (s *Session) respond(req *mrcp.Request, status mrcp.StatusCode) {
	s.channel.MessageSend(context.Background(), &mrcp.Response{RequestID: req.ID, Status: status, State: mrcp.StateComplete})
}

// StreamWrite delivers one inbound audio frame from the host's sink
// stream (spec §4.5). MUST NOT block.
func (s *Session) StreamWrite(frameIn []byte) {
	s.mu.Lock()

	if s.stopResp != nil {
		resp := s.stopResp
		s.stopResp = nil
		s.recogReq = nil
		s.waitingResult = false
		s.audio.Clear()
		s.mu.Unlock()
		s.channel.MessageSend(context.Background(), resp)
		return
	}

	if s.recogReq == nil || !s.ws.IsConnected() {
		s.mu.Unlock()
		return
	}
	req := s.recogReq

	// Append before classifying: a frame that trips Inactivity is itself
	// part of the utterance and must already be visible to Available()
	// when SendAudioBatch is signalled below, not added after the fact.
	s.audio.Write(frameIn)

	// ProcessFrame must stay under s.mu: a RECOGNIZE arriving on the host
	// request thread calls detector.Reset() under the same lock, and
	// without it that Reset races this call on the detector's own fields.
	event := s.detector.ProcessFrame(frameIn)
	s.mu.Unlock()

	switch event {
	case vad.EventActivity:
		s.mu.Lock()
		s.speechStarted = true
		s.mu.Unlock()
		s.channel.MessageSend(context.Background(), &mrcp.Event{
			Name:      mrcp.EventStartOfInput,
			RequestID: req.ID,
			State:     mrcp.StateInProgress,
		})

	case vad.EventInactivity:
		if s.audio.Available() > 0 {
			s.task.Post(sendAudioBatchMsg{})
		} else {
			s.emitRecognitionComplete(req, mrcp.CauseNormal, nil, "")
		}

	case vad.EventNoInput:
		s.mu.Lock()
		started := s.timersStarted
		s.mu.Unlock()
		if started {
			s.emitRecognitionComplete(req, mrcp.CauseNoInputTimeout, nil, "")
		}
	}

	s.mu.Lock()
	streaming := s.streamingEnabled && s.speechStarted
	s.mu.Unlock()

	if streaming {
		s.drainStreamChunks()
	}
}

// drainStreamChunks signals one StreamAudioChunk message per full
// wireproto.SplitStreamChunks piece of audio that has arrived since
// stream_pos, peeking the buffer rather than consuming it (spec §4.5): the
// full accumulated audio must still be available for SendAudioBatch once
// Inactivity fires (spec §9 streaming-mode fix). The trailing short piece
// SplitStreamChunks returns for a not-yet-full chunk is left unconsumed,
// to be completed and sent on a later call once more audio has arrived.
func (s *Session) drainStreamChunks() {
	s.mu.Lock()
	offset := s.streamPos
	size := s.streamChunkSize
	if size <= 0 {
		size = wireproto.StreamChunkSize
	}
	s.mu.Unlock()

	written := s.audio.Written()
	if written <= offset {
		return
	}
	tail, ok := s.audio.Peek(offset, written-offset)
	if !ok {
		return
	}

	chunks := wireproto.SplitStreamChunks(tail, size)
	for i, chunk := range chunks {
		if len(chunk) < size && i == len(chunks)-1 {
			return
		}
		s.task.Post(streamAudioChunkMsg{chunk: chunk})
		s.mu.Lock()
		s.streamPos += len(chunk)
		s.mu.Unlock()
	}
}

func (s *Session) emitRecognitionComplete(req *mrcp.Request, cause mrcp.Cause, body []byte, contentType string) {
	s.mu.Lock()
	if s.recogReq == nil || s.recogReq.ID != req.ID {
		s.mu.Unlock()
		return
	}
	s.recogReq = nil
	s.waitingResult = false
	s.mu.Unlock()

	s.channel.MessageSend(context.Background(), &mrcp.Event{
		Name:        mrcp.EventRecognitionComplete,
		RequestID:   req.ID,
		State:       mrcp.StateComplete,
		Cause:       cause,
		Body:        body,
		ContentType: contentType,
	})
}

func (s *Session) handle(ctx context.Context, msg bgtask.Message) {
	switch m := msg.(type) {
	case sendAudioBatchMsg:
		s.handleSendAudioBatch()
	case streamAudioChunkMsg:
		s.handleStreamAudioChunk(m.chunk)
	case recvResultMsg:
		s.handleRecvResult()
	}
}

func (s *Session) handleSendAudioBatch() {
	s.mu.Lock()
	req := s.recogReq
	audioLen := s.audio.Available()
	s.mu.Unlock()

	if req == nil {
		return
	}

	if audioLen == 0 {
		s.mu.Lock()
		s.streamPos = 0
		s.mu.Unlock()
		s.emitRecognitionComplete(req, mrcp.CauseNormal, nil, "")
		return
	}

	payload := make([]byte, audioLen)
	s.audio.Read(payload, audioLen)

	connected := s.ws.IsConnected()
	var sendErr error
	if connected {
		_, sendErr = s.ws.SendBinary(payload)
	}

	s.mu.Lock()
	s.audio.Clear()
	s.streamPos = 0
	s.mu.Unlock()

	if !connected || sendErr != nil {
		s.emitRecognitionComplete(req, mrcp.CauseError, nil, "")
		return
	}

	s.mu.Lock()
	s.waitingResult = true
	s.mu.Unlock()
	s.task.Post(recvResultMsg{})
}

func (s *Session) handleStreamAudioChunk(chunk []byte) {
	if !s.ws.IsConnected() {
		return
	}
	if _, err := s.ws.SendBinary(chunk); err != nil {
		s.logger.Warnf("recogsession: streaming chunk send failed: %v", err)
	}
}

func (s *Session) handleRecvResult() {
	s.mu.Lock()
	waiting := s.waitingResult
	req := s.recogReq
	s.mu.Unlock()

	if !waiting || req == nil {
		return
	}

	s.mu.Lock()
	expired := time.Since(s.recognizeStart) > MaxRecognizeDuration
	s.mu.Unlock()
	if expired {
		s.emitRecognitionComplete(req, mrcp.CauseError, nil, "")
		return
	}

	frame, err := s.ws.ReceiveFrame()
	if err != nil {
		s.emitRecognitionComplete(req, mrcp.CauseError, nil, "")
		return
	}
	if frame == nil {
		s.task.Post(recvResultMsg{})
		return
	}

	switch frame.Opcode {
	case wsframe.OpText:
		if len(frame.Payload) > 0 {
			s.emitRecognitionComplete(req, mrcp.CauseNormal, frame.Payload, wireproto.NLSMLContentType)
			return
		}
		s.task.Post(recvResultMsg{})

	case wsframe.OpClose:
		s.emitRecognitionComplete(req, mrcp.CauseError, nil, "")

	default:
		s.task.Post(recvResultMsg{})
	}
}
