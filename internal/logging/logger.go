// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package logging provides the structured logger used throughout the
// bridge. Every component takes a Logger at construction instead of
// reaching for the global log package.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the subset of structured-logging operations the bridge needs.
// Components depend on this interface, never on *zap.Logger directly, so
// tests can swap in a no-op or buffering implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Info(args ...interface{})
	With(fields ...string) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// Option configures NewApplicationLogger.
type Option func(*options)

type options struct {
	name  string
	path  string
	level string
}

// Name sets the logger's service name, included on every line.
func Name(name string) Option { return func(o *options) { o.name = name } }

// Path sets the directory rotated log files are written under. Empty
// means stderr only.
func Path(path string) Option { return func(o *options) { o.path = path } }

// Level sets the minimum level: debug, info, warn, error.
func Level(level string) Option { return func(o *options) { o.level = level } }

// NewApplicationLogger builds a zap-backed Logger. File output (when Path
// is set) rotates via lumberjack; stderr output is always attached so a
// session never goes silent because of a disk issue.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &options{name: "unimrcp-ws-bridge", level: "info"}
	for _, apply := range opts {
		apply(o)
	}

	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(o.level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", o.level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	}
	if o.path != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl))
	}

	base := zap.New(zapcore.NewTee(cores...)).Named(o.name)
	return &zapLogger{sugar: base.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests that don't
// care about log output.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.sugar.Info(args...) }

func (l *zapLogger) With(fields ...string) Logger {
	kv := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		kv = append(kv, f)
	}
	return &zapLogger{sugar: l.sugar.With(kv...)}
}
