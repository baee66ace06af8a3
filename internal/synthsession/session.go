// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package synthsession implements the synthesizer per-session state
// machine (component S-Synth, spec §4.4): Idle → Speaking →
// (Completing | Cancelling) → Idle, with Paused as a sub-state of
// Speaking. Host request/media threads call Open/Close/Request/
// StreamRead. Each Session creates and owns its own bgtask.Task, whose
// goroutine does the connect, send, and receive work; Close stops that
// task and then disconnects the client on the calling thread.
package synthsession

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/audiobuf"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/bgtask"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/host"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/mrcp"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wireproto"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsclient"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsframe"
)

// MaxSpeakDuration bounds a single SPEAK request's lifetime (spec §5).
const MaxSpeakDuration = 5 * time.Minute

// MaxIdlePolls is the number of consecutive receive_frame timeouts
// tolerated before a SPEAK with no audio yet is treated as failed — at
// the default 100ms recv_poll_timeout this is about 5 seconds of quiet
// (spec §4.4, §5).
const MaxIdlePolls = 50

type speakStartMsg struct {
	req *mrcp.Request
}

type recvPollMsg struct{}

// Session is SynthSession from spec §3.
type Session struct {
	channel   host.Channel
	ws        *wsclient.Client
	audio     *audiobuf.Buffer
	task      *bgtask.Task
	logger    logging.Logger
	sessionID string
	codecFn   func() host.CodecDescriptor

	mu         sync.Mutex
	speakReq   *mrcp.Request
	stopResp   *mrcp.Response
	paused     bool
	receiving  bool
	codec      host.CodecDescriptor
	speakStart time.Time
	idlePolls  uint32
	hasAudio   bool
}

// New constructs a Session bound to one host channel and its exclusively
// owned WsClient and AudioBuffer (spec §3 "Ownership").
func New(channel host.Channel, ws *wsclient.Client, audio *audiobuf.Buffer, codecFn func() host.CodecDescriptor, sessionID string, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Session{
		channel:   channel,
		ws:        ws,
		audio:     audio,
		codecFn:   codecFn,
		sessionID: sessionID,
		logger:    logger,
	}
	s.task = bgtask.New(s.handle, logger)
	return s
}

// Open starts the background task. Non-blocking; the host's "open OK"
// callback follows once the task has launched.
func (s *Session) Open(ctx context.Context) {
	s.task.Start(ctx)
	s.channel.OpenRespond(true)
}

// Close tears the session down: disconnects the client and fires the
// host's "close OK" callback.
func (s *Session) Close() {
	s.task.Stop()
	s.ws.Disconnect(true)
	s.channel.CloseRespond()
}

// Request dispatches one MRCP request (spec §4.4). Non-blocking.
func (s *Session) Request(req *mrcp.Request) {
	switch req.Method {
	case "SET-PARAMS", "GET-PARAMS":
		s.respond(req, mrcp.StatusSuccess)

	case "SPEAK":
		s.handleSpeak(req)

	case "STOP", "BARGE-IN":
		s.mu.Lock()
		s.stopResp = &mrcp.Response{RequestID: req.ID, Status: mrcp.StatusSuccess, State: mrcp.StateComplete}
		s.mu.Unlock()

	case "PAUSE":
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
		s.respond(req, mrcp.StatusSuccess)

	case "RESUME":
		s.mu.Lock()
		s.paused = false
		s.mu.Unlock()
		s.respond(req, mrcp.StatusSuccess)

	default:
		s.respond(req, mrcp.StatusMethodFailed)
	}
}

func (s *Session) handleSpeak(req *mrcp.Request) {
	codec := s.codecFn()

	s.mu.Lock()
	s.codec = codec
	s.audio.Clear()
	s.receiving = true
	s.speakStart = time.Now()
	s.idlePolls = 0
	s.hasAudio = false
	s.speakReq = req
	s.mu.Unlock()

	s.channel.MessageSend(context.Background(), &mrcp.Response{RequestID: req.ID, Status: mrcp.StatusSuccess, State: mrcp.StateInProgress})
	s.task.Post(speakStartMsg{req: req})
}

func (s *Session) respond(req *mrcp.Request, status mrcp.StatusCode) {
	s.channel.MessageSend(context.Background(), &mrcp.Response{RequestID: req.ID, Status: status, State: mrcp.StateComplete})
}

// StreamRead fills frameOut with exactly len(frameOut) bytes of audio
// (spec §4.4). MUST NOT block — every branch below is either a lock and
// a memcpy, or a zero-fill.
func (s *Session) StreamRead(frameOut []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopResp != nil {
		resp := s.stopResp
		s.stopResp = nil
		s.speakReq = nil
		s.receiving = false
		s.paused = false
		s.audio.Clear()
		s.channel.MessageSend(context.Background(), resp)
		fillSilence(frameOut)
		return
	}

	if s.speakReq == nil || s.paused {
		fillSilence(frameOut)
		return
	}

	frameSize := len(frameOut)
	available := s.audio.Available()
	complete := s.audio.Complete()

	switch {
	case available >= frameSize:
		s.audio.Read(frameOut, frameSize)

	case complete && available == 0:
		req := s.speakReq
		s.speakReq = nil
		s.receiving = false
		s.channel.MessageSend(context.Background(), &mrcp.Event{
			Name:      mrcp.EventSpeakComplete,
			RequestID: req.ID,
			State:     mrcp.StateComplete,
			Cause:     mrcp.CauseNormal,
		})
		fillSilence(frameOut)

	case complete && available > 0 && available < frameSize:
		_, n := s.audio.Read(frameOut, available)
		for i := n; i < frameSize; i++ {
			frameOut[i] = 0
		}

	default:
		// Underrun: audio hasn't arrived yet, keep feeding silence.
		fillSilence(frameOut)
	}
}

func fillSilence(frameOut []byte) {
	for i := range frameOut {
		frameOut[i] = 0
	}
}

// handle services one bgtask.Message on the background goroutine (spec
// §4.6).
func (s *Session) handle(ctx context.Context, msg bgtask.Message) {
	switch m := msg.(type) {
	case speakStartMsg:
		s.handleSpeakStart(m.req)
	case recvPollMsg:
		s.handleRecvPoll()
	}
}

func (s *Session) handleSpeakStart(req *mrcp.Request) {
	if !s.ws.EnsureConnected() {
		s.emitSpeakCompleteError(req)
		return
	}

	voice, _ := req.Header("Voice")
	sampleRate := 8000
	if s.codec != nil {
		sampleRate = s.codec.SampleRate()
	}

	ttsReq := wireproto.DefaultTTSRequest()
	ttsReq.Text = string(req.Body)
	if voice != "" {
		ttsReq.Voice = voice
	}
	ttsReq.SampleRate = sampleRate
	ttsReq.SessionID = s.sessionID

	if _, err := s.ws.SendText(wireproto.BuildTTSRequest(ttsReq)); err != nil {
		s.logger.Warnf("synthsession: send tts envelope failed: %v", err)
		s.emitSpeakCompleteError(req)
		return
	}
	s.task.Post(recvPollMsg{})
}

func (s *Session) handleRecvPoll() {
	s.mu.Lock()
	if s.stopResp != nil || !s.receiving {
		s.mu.Unlock()
		return
	}
	req := s.speakReq
	if req == nil {
		s.mu.Unlock()
		return
	}
	if time.Since(s.speakStart) > MaxSpeakDuration {
		s.audio.MarkComplete()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	frame, err := s.ws.ReceiveFrame()
	if err != nil {
		s.logger.Warnf("synthsession: receive_frame error: %v", err)
		s.emitSpeakCompleteError(req)
		return
	}

	if frame == nil {
		s.mu.Lock()
		s.idlePolls++
		idle := s.idlePolls
		hasAudio := s.hasAudio
		s.mu.Unlock()

		if idle > MaxIdlePolls {
			if hasAudio {
				s.audio.MarkComplete()
			} else {
				s.emitSpeakCompleteError(req)
			}
			return
		}
		s.task.Post(recvPollMsg{})
		return
	}

	s.mu.Lock()
	s.idlePolls = 0
	s.mu.Unlock()

	switch frame.Opcode {
	case wsframe.OpCont, wsframe.OpBin:
		s.audio.Write(frame.Payload)
		s.mu.Lock()
		s.hasAudio = true
		s.mu.Unlock()
		s.task.Post(recvPollMsg{})

	case wsframe.OpText:
		if wireproto.IsCompletionMarker(frame.Payload) {
			s.audio.MarkComplete()
			return
		}
		s.task.Post(recvPollMsg{})

	case wsframe.OpClose:
		s.audio.MarkComplete()

	default:
		s.task.Post(recvPollMsg{})
	}
}

func (s *Session) emitSpeakCompleteError(req *mrcp.Request) {
	s.mu.Lock()
	if s.speakReq == nil || s.speakReq.ID != req.ID {
		s.mu.Unlock()
		return
	}
	s.speakReq = nil
	s.receiving = false
	s.mu.Unlock()

	s.channel.MessageSend(context.Background(), &mrcp.Event{
		Name:      mrcp.EventSpeakComplete,
		RequestID: req.ID,
		State:     mrcp.StateComplete,
		Cause:     mrcp.CauseError,
	})
}
