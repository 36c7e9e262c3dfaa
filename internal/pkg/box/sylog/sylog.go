// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sylog is a small leveled logger used throughout ll-box, built on
// top of apex/log. Unlike the logger it is modeled on, level and output are
// fields on an explicit handle rather than package-global mutable state:
// every constructor that needs to log (Container, the filesystem drivers,
// the mount Engine) takes a *Logger, and the environment variable is
// consulted exactly once, at process startup, to build the initial handle.
package sylog

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strings"

	apexlog "github.com/apex/log"
)

// Level is the severity of a log message, reusing apex/log's five-level
// vocabulary, which happens to match LINGLONG_LOG_LEVEL exactly.
type Level = apexlog.Level

const (
	FatalLevel = apexlog.FatalLevel
	ErrorLevel = apexlog.ErrorLevel
	WarnLevel  = apexlog.WarnLevel
	InfoLevel  = apexlog.InfoLevel
	DebugLevel = apexlog.DebugLevel
)

// ParseLevel maps the LINGLONG_LOG_LEVEL vocabulary onto a Level.
// Unrecognized values (including the empty string) resolve to ErrorLevel,
// matching the documented default.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warning", "warn":
		return WarnLevel
	case "fatal":
		return FatalLevel
	default:
		return ErrorLevel
	}
}

// handler adapts apex/log entries to ll-box's prefix format and, when a
// syslog writer is configured, mirrors the message to the identity "ll-box".
type handler struct {
	w   io.Writer
	sys *syslog.Writer
}

func (h *handler) HandleLog(e *apexlog.Entry) error {
	level := strings.ToUpper(e.Level.String())
	fmt.Fprintf(h.w, "%-8s[U=%d,P=%d] %s\n", level+":", os.Geteuid(), os.Getpid(), e.Message)

	if h.sys == nil {
		return nil
	}
	switch e.Level {
	case apexlog.FatalLevel, apexlog.ErrorLevel:
		return h.sys.Err(e.Message)
	case apexlog.WarnLevel:
		return h.sys.Warning(e.Message)
	default:
		return h.sys.Info(e.Message)
	}
}

// Logger is an explicit logging handle wrapping an apex/log.Logger.
type Logger struct {
	l *apexlog.Logger
}

// New builds a Logger at the given level, writing to w (os.Stderr if nil).
// If identity is non-empty, messages are also mirrored to the system log
// facility under that identity; a failure to connect to syslog is not
// fatal, it just disables the mirror.
func New(level Level, w io.Writer, identity string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := &handler{w: w}
	if identity != "" {
		if sw, err := syslog.New(syslog.LOG_USER|syslog.LOG_NOTICE, identity); err == nil {
			h.sys = sw
		}
	}
	return &Logger{l: &apexlog.Logger{Handler: h, Level: level}}
}

// Default is used by call sites that cannot plausibly receive an explicit
// handle (the nsinit stage bodies, which start before any handle exists)
// and stands in for a nil *Logger; cmd/ll-box replaces it with the handle
// it builds. It is intentionally the only package-level logging state in
// this package.
var Default = New(ErrorLevel, os.Stderr, "")

func (l *Logger) entry() *apexlog.Logger {
	if l == nil || l.l == nil {
		return Default.l
	}
	return l.l
}

// Fatalf logs at FatalLevel and terminates the process with exit code 255.
// Only the top-level CLI should call this; library code should return a
// boxerr.Fatal instead and let the caller decide how to exit.
func (l *Logger) Fatalf(format string, a ...interface{}) {
	e := l.entry()
	_ = e.Handler.HandleLog(&apexlog.Entry{Logger: e, Level: FatalLevel, Message: fmt.Sprintf(format, a...)})
	os.Exit(255)
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.entry().Errorf(format, a...)
}

func (l *Logger) Warningf(format string, a ...interface{}) {
	l.entry().Warnf(format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.entry().Infof(format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.entry().Debugf(format, a...)
}

// Level returns the configured verbosity.
func (l *Logger) Level() Level {
	return l.entry().Level
}
