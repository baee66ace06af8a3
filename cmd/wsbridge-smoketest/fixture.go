// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// fixtureServer plays the part of the external TTS/ASR engine the bridge
// talks to — the side of the wire this repo never implements (spec §1
// OUT OF SCOPE). It accepts the core's hand-rolled client handshake with
// a real gorilla/websocket.Upgrader, since masquerading as the "other
// end of the wire" is exactly the role that library fits; the core's own
// client stays framed by internal/wsframe regardless (see DESIGN.md).
type fixtureServer struct {
	upgrader websocket.Upgrader
	server   *http.Server
}

func newFixtureServer(addr string) *fixtureServer {
	fs := &fixtureServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/tts", fs.handleTTS)
	mux.HandleFunc("/asr", fs.handleASR)
	fs.server = &http.Server{Addr: addr, Handler: mux}
	return fs
}

func (fs *fixtureServer) start() error {
	ln := fs.server.Addr
	log.Printf("fixture: listening on %s (/tts, /asr)", ln)
	err := fs.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("fixture server: %w", err)
	}
	return nil
}

func (fs *fixtureServer) stop() {
	_ = fs.server.Close()
}

// handleTTS accepts one "tts" JSON envelope and replies with a short
// burst of silent LPCM followed by a {"status":"complete"} marker
// (spec §6.2, §8 scenario 1).
func (fs *fixtureServer) handleTTS(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fixture: tts upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	_, envelope, err := conn.ReadMessage()
	if err != nil {
		log.Printf("fixture: tts read envelope failed: %v", err)
		return
	}
	log.Printf("fixture: tts envelope: %s", envelope)

	// Three frames of synthetic silence, as if a real engine streamed
	// audio in chunks rather than one shot.
	frame := make([]byte, 320)
	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Printf("fixture: tts write audio failed: %v", err)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"complete"}`)); err != nil {
		log.Printf("fixture: tts write completion failed: %v", err)
	}
}

// handleASR reads messages until the first binary one and replies with a
// fixed NLSML result reporting that message's size (spec §8 scenario 4).
// In streaming mode the first binary message is the first audio chunk,
// so the reply does not wait for the rest of the utterance.
func (fs *fixtureServer) handleASR(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fixture: asr upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var total int
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			log.Printf("fixture: asr read failed: %v", err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		total += len(payload)
		// The first binary message ends the turn, whether it is a batch
		// or a streaming-mode chunk.
		break
	}

	nlsml := fmt.Sprintf(
		`<?xml version="1.0"?><result><interpretation><input>smoketest heard %d bytes</input></interpretation></result>`,
		total,
	)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(nlsml)); err != nil {
		log.Printf("fixture: asr write result failed: %v", err)
	}
}
