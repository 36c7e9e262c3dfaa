// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"gotest.tools/v3/assert"
)

func TestExitCodeRejectsWrongArgCount(t *testing.T) {
	assert.Equal(t, exitCode(nil), -1)
	assert.Equal(t, exitCode([]string{"a", "b"}), -1)
}

func TestExitCodeReturnsFailureForMissingDocument(t *testing.T) {
	assert.Equal(t, exitCode([]string{"/no/such/runtime-document.json"}), -1)
}

func TestExitCodeReturnsFailureForMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	assert.NilError(t, os.WriteFile(path, []byte("not json"), 0o644))
	assert.Equal(t, exitCode([]string{path}), -1)
}

func TestOpenDocumentTreatsNumericArgAsFD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	assert.NilError(t, os.WriteFile(path, []byte("{}"), 0o644))
	f, err := os.Open(path)
	assert.NilError(t, err)
	defer f.Close()

	got, err := openDocument(strconv.Itoa(int(f.Fd())))
	assert.NilError(t, err)
	assert.Equal(t, got.Fd(), f.Fd())
}

func TestOpenDocumentTreatsNonNumericArgAsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	assert.NilError(t, os.WriteFile(path, []byte("{}"), 0o644))

	got, err := openDocument(path)
	assert.NilError(t, err)
	defer got.Close()
}
