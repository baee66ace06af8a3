// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package engineconfig decodes and validates the engine-level property
// bag (spec §6.3) the MRCP plugin loader hands the core at create_engine
// time. Property bags arrive as map[string]string from the XML
// configuration loader (out of scope, §1) — this package's only job is
// turning that map into a typed, validated struct.
package engineconfig

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/wsberr"
)

// Kind distinguishes the two resources, since defaults differ (synth
// buffers default larger than recog buffers per spec §6.3).
type Kind int

const (
	KindSynthesizer Kind = iota
	KindRecognizer
)

// EngineConfig is the typed, validated form of spec §6.3's property
// table.
type EngineConfig struct {
	WSHost       string `mapstructure:"ws-host" validate:"required,hostname|ip"`
	WSPort       uint16 `mapstructure:"ws-port" validate:"required"`
	WSPath       string `mapstructure:"ws-path" validate:"required"`
	MaxAudioSize int64  `mapstructure:"max-audio-size" validate:"required,min=1,max=52428800"`
	Streaming    bool   `mapstructure:"streaming"`
}

var validate = validator.New()

// Decode fills in spec-mandated defaults for any key absent from raw,
// then decodes and validates the result. kind selects the
// ws-path/max-audio-size defaults (spec §6.3).
func Decode(raw map[string]string, kind Kind) (EngineConfig, error) {
	defaults := defaultsFor(kind)
	merged := make(map[string]interface{}, len(defaults)+len(raw))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range raw {
		merged[k] = v
	}

	var cfg EngineConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return EngineConfig{}, wsberr.New(wsberr.KindConfig, "building decoder", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return EngineConfig{}, wsberr.New(wsberr.KindConfig, "decoding engine config", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return EngineConfig{}, wsberr.New(wsberr.KindConfig, fmt.Sprintf("invalid engine config: %v", err), err)
	}
	return cfg, nil
}

func defaultsFor(kind Kind) map[string]string {
	switch kind {
	case KindRecognizer:
		return map[string]string{
			"ws-host":        "localhost",
			"ws-port":        "8080",
			"ws-path":        "/asr",
			"max-audio-size": "524288", // 512 KiB
			"streaming":      "false",
		}
	default:
		return map[string]string{
			"ws-host":        "localhost",
			"ws-port":        "8080",
			"ws-path":        "/tts",
			"max-audio-size": "2097152", // 2 MiB
		}
	}
}
