// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/audiobuf"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/host"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/mrcp"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/recogsession"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/synthsession"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/vad"
	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsclient"
)

// driverChannel is the host.Channel stand-in the smoke test drives:
// every MessageSend is logged, and events in the COMPLETE state are also
// mirrored onto a wait channel so the driver can block until a terminal
// event arrives.
type driverChannel struct {
	name   string
	logger logging.Logger
	done   chan *mrcp.Event
}

func newDriverChannel(name string, logger logging.Logger) *driverChannel {
	return &driverChannel{name: name, logger: logger, done: make(chan *mrcp.Event, 4)}
}

func (c *driverChannel) Open(ctx context.Context) error  { return nil }
func (c *driverChannel) Close(ctx context.Context) error { return nil }
func (c *driverChannel) ProcessRequest(ctx context.Context, msg any) error {
	return nil
}

func (c *driverChannel) MessageSend(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case *mrcp.Response:
		c.logger.Infof("%s: response request_id=%d status=%d state=%s", c.name, m.RequestID, m.Status, m.State)
	case *mrcp.Event:
		c.logger.Infof("%s: event %s request_id=%d cause=%s", c.name, m.Name, m.RequestID, m.Cause)
		if m.State == mrcp.StateComplete {
			select {
			case c.done <- m:
			default:
			}
		}
	}
	return nil
}

func (c *driverChannel) OpenRespond(ok bool) { c.logger.Infof("%s: open_respond ok=%v", c.name, ok) }
func (c *driverChannel) CloseRespond()       { c.logger.Infof("%s: close_respond", c.name) }

func (c *driverChannel) waitComplete(timeout time.Duration) (*mrcp.Event, error) {
	select {
	case ev := <-c.done:
		return ev, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s: timed out waiting for a completion event", c.name)
	}
}

// runSynthScenario drives one SPEAK request against the fixture's /tts
// endpoint end to end, reproducing spec §8 scenario 1's shape: a handful
// of audio frames then SPEAK-COMPLETE(Normal).
func runSynthScenario(cfg smoketestConfig, logger logging.Logger) error {
	wsCfg := wsclient.DefaultConfig()
	wsCfg.Host = cfg.FixtureHost
	wsCfg.Port = cfg.FixturePort
	wsCfg.Path = "/tts"

	client, err := wsclient.New(wsCfg, logger.With("component", "wsclient-tts"))
	if err != nil {
		return fmt.Errorf("building tts client: %w", err)
	}

	audio := audiobuf.New(int(cfg.MaxAudioSize), logger.With("component", "audiobuf-tts"))
	ch := newDriverChannel("synth", logger)
	codec := host.StaticCodec{Rate: 8000, Frame: 320}
	sess := synthsession.New(ch, client, audio, func() host.CodecDescriptor { return codec }, uuid.NewString(), logger.With("component", "synthsession"))

	ctx := context.Background()
	sess.Open(ctx)
	defer sess.Close()

	sess.Request(&mrcp.Request{ID: 1, Method: "SPEAK", Body: []byte("hello from the smoke test"), Headers: map[string]string{"Voice": "default"}})

	stop := make(chan struct{})
	go pumpStreamRead(sess, codec.Frame, stop)
	defer close(stop)

	ev, err := ch.waitComplete(5 * time.Second)
	if err != nil {
		return err
	}
	logger.Infof("synth scenario finished: cause=%s", ev.Cause)
	return nil
}

func pumpStreamRead(sess *synthsession.Session, frameSize int, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	frame := make([]byte, frameSize)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sess.StreamRead(frame)
		}
	}
}

// runRecogScenario drives one RECOGNIZE request against the fixture's
// /asr endpoint, reproducing spec §8 scenario 4's shape: activity, a
// batch send, then RECOGNITION-COMPLETE(Normal) carrying NLSML.
func runRecogScenario(cfg smoketestConfig, logger logging.Logger) error {
	wsCfg := wsclient.DefaultConfig()
	wsCfg.Host = cfg.FixtureHost
	wsCfg.Port = cfg.FixturePort
	wsCfg.Path = "/asr"

	client, err := wsclient.New(wsCfg, logger.With("component", "wsclient-asr"))
	if err != nil {
		return fmt.Errorf("building asr client: %w", err)
	}

	audio := audiobuf.New(int(cfg.MaxAudioSize), logger.With("component", "audiobuf-asr"))
	detector := vad.NewEnergyDetector(0.01, 2, 3, 50)
	ch := newDriverChannel("recog", logger)
	sess := recogsession.New(ch, client, audio, detector, logger.With("component", "recogsession"))

	ctx := context.Background()
	sess.Open(ctx)
	defer sess.Close()

	codec := host.StaticCodec{Rate: 8000, Frame: 320}
	sess.Request(&mrcp.Request{ID: 1, Method: "RECOGNIZE", Headers: map[string]string{"Start-Input-Timers": "true"}}, codec, cfg.Streaming)

	// A constant-amplitude 16-bit LE tone loud enough to clear the
	// energy detector's 0.01 threshold set above, standing in for real
	// speech.
	const amplitude = int16(6000)
	tone := make([]byte, codec.Frame)
	for i := 0; i+1 < len(tone); i += 2 {
		tone[i] = byte(amplitude)
		tone[i+1] = byte(amplitude >> 8)
	}
	silence := make([]byte, codec.Frame)

	for i := 0; i < 10; i++ {
		sess.StreamWrite(tone)
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		sess.StreamWrite(silence)
		time.Sleep(5 * time.Millisecond)
	}

	ev, err := ch.waitComplete(5 * time.Second)
	if err != nil {
		return err
	}
	logger.Infof("recog scenario finished: cause=%s body=%q", ev.Cause, string(ev.Body))
	return nil
}
