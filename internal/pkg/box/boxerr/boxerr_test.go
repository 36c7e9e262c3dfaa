// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package boxerr

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewFatalNilIsNil(t *testing.T) {
	assert.Assert(t, NewFatal("op", nil) == nil)
}

func TestNewBestEffortNilIsNil(t *testing.T) {
	assert.Assert(t, NewBestEffort("op", nil) == nil)
}

func TestNewParseNilIsNil(t *testing.T) {
	assert.Assert(t, NewParse("field", nil) == nil)
}

func TestFatalUnwrapAndAs(t *testing.T) {
	base := errors.New("uid_map rejected")
	err := NewFatal("write_uid_map", base)

	var fe *Fatal
	assert.Assert(t, errors.As(err, &fe))
	assert.Equal(t, fe.Op, "write_uid_map")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, err.Error(), "write_uid_map: uid_map rejected")
}

func TestBestEffortUnwrapAndAs(t *testing.T) {
	base := errors.New("umount2 failed")
	err := NewBestEffort("close_leftover_fd", base)

	var be *BestEffort
	assert.Assert(t, errors.As(err, &be))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, err.Error(), "close_leftover_fd (best-effort): umount2 failed")
}

func TestParseUnwrapAndAs(t *testing.T) {
	base := errors.New("unknown mount type")
	err := NewParse("mounts[3].type", base)

	var pe *Parse
	assert.Assert(t, errors.As(err, &pe))
	assert.Equal(t, pe.Field, "mounts[3].type")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, err.Error(), `field "mounts[3].type": unknown mount type`)
}

func TestErrorTaxonomyIsDistinguishable(t *testing.T) {
	fatal := NewFatal("a", errors.New("x"))
	best := NewBestEffort("a", errors.New("x"))
	parse := NewParse("a", errors.New("x"))

	var fe *Fatal
	assert.Assert(t, errors.As(fatal, &fe))
	assert.Assert(t, !errors.As(best, &fe))
	assert.Assert(t, !errors.As(parse, &fe))
}
