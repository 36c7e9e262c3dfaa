// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package boxerr gives the box engine's error returns a shape the caller
// can branch on without special-case sentinel values: Fatal aborts the
// container, BestEffort is recorded and the caller continues, and Parse
// reports a malformed field in a decoded runtime spec. All three wrap an
// underlying error and support errors.As/errors.Is through Unwrap.
package boxerr

import "fmt"

// Fatal means the engine cannot make forward progress; the caller should
// abort container setup and propagate a non-zero exit.
type Fatal struct {
	Op  string
	Err error
}

func (e *Fatal) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Fatal) Unwrap() error { return e.Err }

// NewFatal wraps err as a Fatal tagged with the failing operation.
func NewFatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Fatal{Op: op, Err: err}
}

// BestEffort means the failure is recorded and setup continues; used for
// optional steps such as closing a leftover deferred-remount fd or running
// a hook whose failure does not invalidate the container.
type BestEffort struct {
	Op  string
	Err error
}

func (e *BestEffort) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (best-effort): %s", e.Op, e.Err)
}

func (e *BestEffort) Unwrap() error { return e.Err }

// NewBestEffort wraps err as a BestEffort tagged with the operation it
// occurred during.
func NewBestEffort(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BestEffort{Op: op, Err: err}
}

// Parse means a field of a decoded runtime spec failed validation; the
// engine should refuse to construct the Container rather than guess at a
// default.
type Parse struct {
	Field string
	Err   error
}

func (e *Parse) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Err)
}

func (e *Parse) Unwrap() error { return e.Err }

// NewParse wraps err as a Parse error tagged with the offending field path
// (e.g. "mounts[3].type" or "process.args").
func NewParse(field string, err error) error {
	if err == nil {
		return nil
	}
	return &Parse{Field: field, Err: err}
}
