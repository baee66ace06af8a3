// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Command wsbridge-smoketest is a local harness that stands up a fake
// TTS/ASR engine (the fixture server, playing the role of the external
// speech service this repo never implements) and drives a real
// synthsession/recogsession pair against it end to end. It replaces the
// teacher's SIP test client, which exercised a call leg this repo has no
// SIP stack for; this exercises the actual WebSocket bridge instead.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
)

// smoketestConfig holds this harness's own settings — local listen/dial
// addresses and scenario toggles, not the MRCP engine property bag
// (that stays behind internal/engineconfig and is out of scope for a
// standalone CLI).
type smoketestConfig struct {
	FixtureHost  string
	FixturePort  uint16
	MaxAudioSize int64
	Streaming    bool
	LogLevel     string
	Scenario     string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsbridge-smoketest: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewApplicationLogger(logging.Name("wsbridge-smoketest"), logging.Level(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsbridge-smoketest: building logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("smoketest failed: %v", err)
		os.Exit(1)
	}
	logger.Info("smoketest passed")
}

// loadConfig mirrors the teacher's InitConfig/GetApplicationConfig split
// (api/integration-api/config.InitConfig): pflag owns the flag surface,
// viper binds it alongside defaults and WSBRIDGE_-prefixed env vars.
func loadConfig() (smoketestConfig, error) {
	fs := pflag.NewFlagSet("wsbridge-smoketest", pflag.ContinueOnError)
	fs.String("fixture-host", "127.0.0.1", "fixture server bind/dial host")
	fs.Int("fixture-port", 8790, "fixture server port")
	fs.Int64("max-audio-size", 2097152, "audio buffer capacity in bytes")
	fs.Bool("streaming", false, "drive the recognizer scenario in streaming mode")
	fs.String("log-level", "info", "debug, info, warn, or error")
	fs.String("scenario", "both", "which scenario to run: synth, recog, or both")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return smoketestConfig{}, fmt.Errorf("parsing flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WSBRIDGE")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return smoketestConfig{}, fmt.Errorf("binding flags: %w", err)
	}

	cfg := smoketestConfig{
		FixtureHost:  v.GetString("fixture-host"),
		FixturePort:  uint16(v.GetInt("fixture-port")),
		MaxAudioSize: v.GetInt64("max-audio-size"),
		Streaming:    v.GetBool("streaming"),
		LogLevel:     v.GetString("log-level"),
		Scenario:     v.GetString("scenario"),
	}
	return cfg, nil
}

func run(ctx context.Context, cfg smoketestConfig, logger logging.Logger) error {
	fs := newFixtureServer(fmt.Sprintf("%s:%d", cfg.FixtureHost, cfg.FixturePort))
	serveErr := make(chan error, 1)
	go func() { serveErr <- fs.start() }()
	defer fs.stop()

	go func() {
		<-ctx.Done()
		fs.stop()
	}()

	// Give the fixture a moment to bind before the driver dials it — the
	// same "wait for server to start" beat the teacher's SIP client used
	// before sending its INVITE.
	select {
	case err := <-serveErr:
		return fmt.Errorf("fixture server exited early: %w", err)
	case <-time.After(200 * time.Millisecond):
	}

	switch cfg.Scenario {
	case "synth":
		return runSynthScenario(cfg, logger)
	case "recog":
		return runRecogScenario(cfg, logger)
	case "both", "":
		if err := runSynthScenario(cfg, logger); err != nil {
			return fmt.Errorf("synth scenario: %w", err)
		}
		if err := runRecogScenario(cfg, logger); err != nil {
			return fmt.Errorf("recog scenario: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown scenario %q", cfg.Scenario)
	}
}
